package xpack

import (
	"math/rand"
	"testing"
)

func TestBitWriterReader(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	type field struct {
		v uint32
		n uint
	}
	fields := make([]field, 2000)
	for i := range fields {
		n := uint(rng.Intn(33))
		v := uint32(rng.Int63()) & (1<<n - 1)
		fields[i] = field{v, n}
	}

	buf := make([]byte, 16384)
	var w bitWriter
	w.reset(buf)
	for _, f := range fields {
		w.writeBits(f.v, f.n)
	}
	n := w.finish()
	if n == 0 {
		t.Fatal("writer overflowed unexpectedly")
	}

	var r bitReader
	r.reset(buf[:n])
	for i, f := range fields {
		got := r.readBits(f.n)
		if got != f.v {
			t.Fatalf("field %d: got %d, want %d", i, got, f.v)
		}
	}
	if r.bad {
		t.Fatal("reader ran out of input")
	}
}

func TestBitReaderPeekConsume(t *testing.T) {
	buf := []byte{0xA5, 0x5A, 0xFF, 0x00}
	var r bitReader
	r.reset(buf)
	if got := r.peekBits(8); got != 0xA5 {
		t.Fatalf("peek: got %#x, want 0xa5", got)
	}
	// Peeking must not consume.
	if got := r.readBits(4); got != 0x5 {
		t.Fatalf("read low nibble: got %#x, want 0x5", got)
	}
	r.consume(4)
	if got := r.readBits(8); got != 0x5A {
		t.Fatalf("read second byte: got %#x, want 0x5a", got)
	}
}

func TestBitReaderExhaustion(t *testing.T) {
	var r bitReader
	r.reset([]byte{0xFF})
	r.readBits(8)
	if r.bad {
		t.Fatal("read of available bits marked reader bad")
	}
	r.readBits(1)
	if !r.bad {
		t.Fatal("read past end of input not detected")
	}
}

func TestBitWriterAlign(t *testing.T) {
	buf := make([]byte, 16)
	var w bitWriter
	w.reset(buf)
	w.writeBits(0x3, 3)
	w.alignToByte()
	w.writeBytes([]byte{0xAB})
	n := w.finish()
	if n != 2 {
		t.Fatalf("wrote %d bytes, want 2", n)
	}

	var r bitReader
	r.reset(buf[:n])
	if got := r.readBits(3); got != 0x3 {
		t.Fatalf("got %#x, want 0x3", got)
	}
	r.alignToByte()
	p := r.readBytes(1)
	if r.bad || len(p) != 1 || p[0] != 0xAB {
		t.Fatalf("aligned byte read failed: %v %v", p, r.bad)
	}
}

func TestBitWriterOverflow(t *testing.T) {
	buf := make([]byte, 4)
	var w bitWriter
	w.reset(buf)
	for i := 0; i < 10; i++ {
		w.writeBits(0xFFFF, 16)
	}
	if n := w.finish(); n != 0 {
		t.Fatalf("overflowing writer returned %d, want 0", n)
	}
}

func TestBitWriterRewind(t *testing.T) {
	buf := make([]byte, 64)
	var w bitWriter
	w.reset(buf)
	w.writeBits(0x15, 5)
	m := w.mark()
	w.writeBits(0xFFFFFFFF, 32)
	w.writeBits(0x7, 3)
	w.rewind(m)
	w.writeBits(0x2A, 6)
	n := w.finish()

	var r bitReader
	r.reset(buf[:n])
	if got := r.readBits(5); got != 0x15 {
		t.Fatalf("got %#x, want 0x15", got)
	}
	if got := r.readBits(6); got != 0x2A {
		t.Fatalf("got %#x, want 0x2a", got)
	}
}

func TestBitStackReversesFields(t *testing.T) {
	buf := make([]byte, 64)
	var w bitWriter
	w.reset(buf)
	var s bitStack
	s.push(0x3, 4)
	s.push(0x1F, 5)
	s.push(0x0, 1)
	s.flushTo(&w)
	n := w.finish()

	var r bitReader
	r.reset(buf[:n])
	if got := r.readBits(1); got != 0x0 {
		t.Fatalf("first field: got %#x, want 0", got)
	}
	if got := r.readBits(5); got != 0x1F {
		t.Fatalf("second field: got %#x, want 0x1f", got)
	}
	if got := r.readBits(4); got != 0x3 {
		t.Fatalf("third field: got %#x, want 0x3", got)
	}
}
