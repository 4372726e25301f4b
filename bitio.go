package xpack

import "encoding/binary"

// All bit streams are LSB-first: the first bit written lands in the low
// bit of the first byte, and multi-bit fields are stored low bit first.

// A bitWriter packs bits into a caller-provided byte slice. It never
// writes past the end of the slice; instead it sets overflowed, and the
// caller abandons the stream.
type bitWriter struct {
	out        []byte
	pos        int    // bytes written
	bitBuf     uint64 // pending bits, low bits first
	bitCount   uint   // number of pending bits (< 57 between calls)
	overflowed bool
}

func (w *bitWriter) reset(out []byte) {
	w.out = out
	w.pos = 0
	w.bitBuf = 0
	w.bitCount = 0
	w.overflowed = false
}

// writeBits appends the low n bits of v. n must be at most 32, and the
// bits of v above n must be zero.
func (w *bitWriter) writeBits(v uint32, n uint) {
	w.bitBuf |= uint64(v) << w.bitCount
	w.bitCount += n
	if w.bitCount >= 32 {
		w.flush32()
	}
}

// flush32 moves whole bytes out of the bit buffer while at least 32
// bits remain buffered, so a following writeBits cannot overflow.
func (w *bitWriter) flush32() {
	for w.bitCount >= 32 {
		if w.pos+4 > len(w.out) {
			// Drain byte by byte near the end of the buffer.
			for w.bitCount >= 8 {
				if w.pos >= len(w.out) {
					w.overflowed = true
					w.bitCount = 0
					w.bitBuf = 0
					return
				}
				w.out[w.pos] = byte(w.bitBuf)
				w.pos++
				w.bitBuf >>= 8
				w.bitCount -= 8
			}
			return
		}
		binary.LittleEndian.PutUint32(w.out[w.pos:], uint32(w.bitBuf))
		w.pos += 4
		w.bitBuf >>= 32
		w.bitCount -= 32
	}
}

// alignToByte zero-pads the current byte and flushes it.
func (w *bitWriter) alignToByte() {
	if w.bitCount%8 != 0 {
		w.bitCount += 8 - w.bitCount%8
	}
	w.drain()
}

func (w *bitWriter) drain() {
	for w.bitCount >= 8 {
		if w.pos >= len(w.out) {
			w.overflowed = true
			w.bitCount = 0
			w.bitBuf = 0
			return
		}
		w.out[w.pos] = byte(w.bitBuf)
		w.pos++
		w.bitBuf >>= 8
		w.bitCount -= 8
	}
}

// writeBytes copies raw bytes into the output. The writer must be
// byte-aligned.
func (w *bitWriter) writeBytes(p []byte) {
	if w.pos+len(p) > len(w.out) {
		w.overflowed = true
		return
	}
	copy(w.out[w.pos:], p)
	w.pos += len(p)
}

// finish zero-pads the final byte and returns the number of bytes
// written, or 0 if the writer overflowed.
func (w *bitWriter) finish() int {
	w.alignToByte()
	if w.overflowed {
		return 0
	}
	return w.pos
}

// mark and rewind allow a block to be re-emitted in a different mode.
type writerMark struct {
	pos      int
	bitBuf   uint64
	bitCount uint
}

func (w *bitWriter) mark() writerMark {
	return writerMark{w.pos, w.bitBuf, w.bitCount}
}

func (w *bitWriter) rewind(m writerMark) {
	w.pos = m.pos
	w.bitBuf = m.bitBuf
	w.bitCount = m.bitCount
	w.overflowed = false
}

// A bitReader reads LSB-first bits from a byte slice, refilling its bit
// buffer in bulk so that a run of small reads costs one bounds check.
type bitReader struct {
	in       []byte
	pos      int    // bytes consumed into the bit buffer
	bitBuf   uint64 // unconsumed bits, low bits first
	bitCount uint
	bad      bool // a read ran past the end of the input
}

func (r *bitReader) reset(in []byte) {
	r.in = in
	r.pos = 0
	r.bitBuf = 0
	r.bitCount = 0
	r.bad = false
}

func (r *bitReader) refill() {
	for r.bitCount <= 56 {
		if r.pos >= len(r.in) {
			return
		}
		r.bitBuf |= uint64(r.in[r.pos]) << r.bitCount
		r.pos++
		r.bitCount += 8
	}
}

// readBits consumes and returns n bits, 0 <= n <= 32. If the input is
// exhausted first, it returns 0 and marks the reader bad; decoding
// checks the flag after each stage of a block rather than on every read.
func (r *bitReader) readBits(n uint) uint32 {
	if r.bitCount < n {
		r.refill()
		if r.bitCount < n {
			r.bad = true
			r.bitCount = 0
			r.bitBuf = 0
			return 0
		}
	}
	v := uint32(r.bitBuf & (1<<n - 1))
	r.bitBuf >>= n
	r.bitCount -= n
	return v
}

// peekBits returns the next n bits without consuming them. Missing bits
// beyond the end of the input read as zero.
func (r *bitReader) peekBits(n uint) uint32 {
	if r.bitCount < n {
		r.refill()
	}
	return uint32(r.bitBuf & (1<<n - 1))
}

func (r *bitReader) consume(n uint) {
	if r.bitCount < n {
		r.bad = true
		r.bitCount = 0
		r.bitBuf = 0
		return
	}
	r.bitBuf >>= n
	r.bitCount -= n
}

// alignToByte discards bits up to the next byte boundary.
func (r *bitReader) alignToByte() {
	r.consume(r.bitCount % 8)
}

// readBytes returns the next n raw bytes. The reader must be
// byte-aligned.
func (r *bitReader) readBytes(n int) []byte {
	// Return buffered whole bytes to the input.
	r.pos -= int(r.bitCount / 8)
	r.bitCount = 0
	r.bitBuf = 0
	if r.pos+n > len(r.in) {
		r.bad = true
		return nil
	}
	p := r.in[r.pos : r.pos+n]
	r.pos += n
	return p
}

// A bitStack stages bit fields in reverse. tANS streams are encoded
// walking the symbols backwards; pushing each field here and flushing
// the stack afterwards produces a stream the decoder reads forward.
type bitStack struct {
	fields []stackedField
}

type stackedField struct {
	v uint32
	n uint8
}

func (s *bitStack) reset() {
	s.fields = s.fields[:0]
}

func (s *bitStack) push(v uint32, n uint) {
	s.fields = append(s.fields, stackedField{v, uint8(n)})
}

// flushTo writes the staged fields to w in reverse push order.
func (s *bitStack) flushTo(w *bitWriter) {
	for i := len(s.fields) - 1; i >= 0; i-- {
		f := s.fields[i]
		w.writeBits(f.v, uint(f.n))
	}
	s.fields = s.fields[:0]
}
