// The xpack package implements the XPACK compression format, an
// experimental LZ77 format in the family of DEFLATE, LZX, and Zstandard.
// Literals, match lengths, and match offsets are entropy-coded with
// tabled asymmetric numeral systems (tANS/FSE), and the three most
// recently used match offsets can be re-referenced cheaply.
//
// The format is not stable: streams produced by one version of this
// package may not be readable by another.
//
// Compression and decompression operate on whole buffers. The container
// package frames buffers into files.
package xpack

import "errors"

var (
	// ErrBadData is returned when a compressed stream is structurally
	// invalid: a malformed table header, an out-of-range offset, a bad
	// block mode, or a stream that ends in the middle of a block.
	ErrBadData = errors.New("xpack: data corrupt")

	// ErrShortOutput is returned when the stream ends cleanly before
	// producing the expected number of bytes.
	ErrShortOutput = errors.New("xpack: compressed stream ends early")

	// ErrInsufficientSpace is returned when a block declares more output
	// than the destination buffer has room for.
	ErrInsufficientSpace = errors.New("xpack: output buffer too small")

	// ErrUnsupported is returned for features that were disabled when
	// this package was built.
	ErrUnsupported = errors.New("xpack: feature not enabled in this build")
)

const (
	minMatchLen = 2
	maxMatchLen = 65535

	// maxBufferLimit is the largest buffer a Compressor can be created
	// for, and the reach of the offset slot table.
	maxBufferLimit = 1 << 26

	// Encoder block limits. The decoder accepts blocks up to
	// maxBlockLen output bytes; the encoder closes blocks well short of
	// that so that one final sequence cannot overflow the limit.
	maxBlockLen     = 1 << 19
	softBlockLen    = 1 << 18
	maxSeqPerBlock  = 1 << 15
	softLitPerBlock = 1 << 16
)

// compressionParams are the tunables for one compression level.
type compressionParams struct {
	hashBits   int // log2 of the 4-byte hash head table
	depth      int // hash chain entries to examine
	goodLen    int // reduce chain depth once a match this long is found
	niceLen    int // stop searching at a match this long
	lazy       int // 0: greedy, 1: one-position lazy, 2: two-position lazy
	hash3      bool
}

var levels = [...]compressionParams{
	{}, // levels are 1-based
	{hashBits: 13, depth: 4, goodLen: 8, niceLen: 32},
	{hashBits: 14, depth: 8, goodLen: 10, niceLen: 48},
	{hashBits: 14, depth: 16, goodLen: 12, niceLen: 64},
	{hashBits: 15, depth: 16, goodLen: 16, niceLen: 96, lazy: 1},
	{hashBits: 15, depth: 32, goodLen: 24, niceLen: 128, lazy: 1},
	{hashBits: 15, depth: 64, goodLen: 32, niceLen: 192, lazy: 1, hash3: true},
	{hashBits: 16, depth: 128, goodLen: 48, niceLen: 256, lazy: 1, hash3: true},
	{hashBits: 16, depth: 256, goodLen: 64, niceLen: 384, lazy: 2, hash3: true},
	{hashBits: 16, depth: 512, goodLen: 96, niceLen: 512, lazy: 2, hash3: true},
}

// MinLevel and MaxLevel bound the compression levels accepted by
// NewCompressor.
const (
	MinLevel = 1
	MaxLevel = 9
)
