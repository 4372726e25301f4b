// The container package reads and writes the XPACK file format: a
// 16-byte file header followed by independently compressed chunks. It
// is plumbing around whole-buffer codec calls; the bit-stream format
// lives in the xpack package.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/xpack"
)

// Magic begins every XPACK file.
const Magic = "XPACK\x00\x00\x00"

const (
	// Version is the container format version written and accepted.
	Version = 1

	headerSize      = 16
	chunkHeaderSize = 8

	// MinChunkSize and MaxChunkSize bound the chunk size a file may
	// declare.
	MinChunkSize = 1024
	MaxChunkSize = 67108864

	// DefaultChunkSize matches the xpack program default.
	DefaultChunkSize = 524288
)

var (
	ErrNotXPACK           = errors.New("not in XPACK format")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrCorrupt            = errors.New("file corrupt")
)

// A Header is the file-level header.
type Header struct {
	ChunkSize uint32
	Version   uint8
	Level     uint8
}

// WriteHeader writes the 16-byte file header.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	copy(buf[:8], Magic)
	binary.LittleEndian.PutUint32(buf[8:], h.ChunkSize)
	binary.LittleEndian.PutUint16(buf[12:], headerSize)
	buf[14] = h.Version
	buf[15] = h.Level
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and validates the file header, skipping any extra
// header bytes a longer header declares.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Header{}, ErrNotXPACK
		}
		return Header{}, err
	}
	if string(buf[:8]) != Magic {
		return Header{}, ErrNotXPACK
	}
	h := Header{
		ChunkSize: binary.LittleEndian.Uint32(buf[8:]),
		Version:   buf[14],
		Level:     buf[15],
	}
	declared := binary.LittleEndian.Uint16(buf[12:])
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w (%d)", ErrUnsupportedVersion, h.Version)
	}
	if declared < headerSize {
		return Header{}, fmt.Errorf("%w: incorrect header size (%d)", ErrCorrupt, declared)
	}
	if h.ChunkSize < MinChunkSize || h.ChunkSize > MaxChunkSize {
		return Header{}, fmt.Errorf("%w: unsupported chunk size (%d)", ErrCorrupt, h.ChunkSize)
	}
	if declared > headerSize {
		if _, err := io.CopyN(io.Discard, r, int64(declared-headerSize)); err != nil {
			return Header{}, ErrCorrupt
		}
	}
	return h, nil
}

// Pack compresses r into w: the file header, then one chunk per up to
// chunkSize input bytes. Chunks that do not compress are stored raw.
func Pack(w io.Writer, r io.Reader, c *xpack.Compressor, chunkSize uint32) error {
	if err := WriteHeader(w, Header{ChunkSize: chunkSize, Version: Version, Level: uint8(c.Level())}); err != nil {
		return err
	}
	original := make([]byte, chunkSize)
	compressed := make([]byte, chunkSize-1)
	for {
		n, err := io.ReadFull(r, original)
		if n == 0 {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		chunk := original[:n]
		stored := chunk
		if m := c.Compress(compressed[:n-1], chunk); m > 0 {
			stored = compressed[:m]
		}
		var hdr [chunkHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:], uint32(len(stored)))
		binary.LittleEndian.PutUint32(hdr[4:], uint32(n))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(stored); err != nil {
			return err
		}
	}
}

// Unpack decompresses an XPACK file from r into w. The file header
// must already have been consumed by ReadHeader, whose result is
// passed in.
func Unpack(w io.Writer, r io.Reader, d *xpack.Decompressor, h Header) error {
	original := make([]byte, h.ChunkSize)
	compressed := make([]byte, h.ChunkSize-1)
	var hdr [chunkHeaderSize]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: unexpected end-of-file", ErrCorrupt)
		}
		storedSize := binary.LittleEndian.Uint32(hdr[0:])
		originalSize := binary.LittleEndian.Uint32(hdr[4:])
		if originalSize < 1 || originalSize > h.ChunkSize ||
			storedSize < 1 || storedSize > originalSize {
			return fmt.Errorf("%w: bad chunk header", ErrCorrupt)
		}
		if storedSize == originalSize {
			buf := original[:originalSize]
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("%w: unexpected end-of-file", ErrCorrupt)
			}
			if _, err := w.Write(buf); err != nil {
				return err
			}
			continue
		}
		buf := compressed[:storedSize]
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("%w: unexpected end-of-file", ErrCorrupt)
		}
		out := original[:originalSize]
		if _, err := d.Decompress(out, buf); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
}
