package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/andybalholm/xpack"
)

func packUnpack(t *testing.T, data []byte, chunkSize uint32, level int) {
	t.Helper()
	c, err := xpack.NewCompressor(int(chunkSize), level)
	if err != nil {
		t.Fatal(err)
	}
	var packed bytes.Buffer
	if err := Pack(&packed, bytes.NewReader(data), c, chunkSize); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	r := bytes.NewReader(packed.Bytes())
	hdr, err := ReadHeader(r)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.ChunkSize != chunkSize || hdr.Version != Version || hdr.Level != uint8(level) {
		t.Fatalf("header: %+v", hdr)
	}

	var unpacked bytes.Buffer
	if err := Unpack(&unpacked, r, xpack.NewDecompressor(), hdr); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if !bytes.Equal(unpacked.Bytes(), data) {
		t.Fatal("unpacked data doesn't match original")
	}
}

func TestPackUnpack(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := make([]byte, 8)
	rng.Read(random)

	var data bytes.Buffer
	data.WriteString("hello")
	data.Write(bytes.Repeat([]byte{0}, 512*1024))
	data.Write(random)

	packUnpack(t, data.Bytes(), DefaultChunkSize, 6)
}

func TestPackUnpackEmpty(t *testing.T) {
	packUnpack(t, nil, DefaultChunkSize, 6)
}

func TestPackUnpackSmallChunks(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	data := make([]byte, 10000)
	for i := range data {
		// Compressible but not trivial.
		data[i] = byte(rng.Intn(16))
	}
	packUnpack(t, data, MinChunkSize, 3)
}

func TestPackUnpackIncompressible(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := make([]byte, 100000)
	rng.Read(data)
	packUnpack(t, data, DefaultChunkSize, 9)
}

func TestReadHeaderNotXPACK(t *testing.T) {
	if _, err := ReadHeader(bytes.NewReader([]byte("GARBAGE DATA HERE"))); !errors.Is(err, ErrNotXPACK) {
		t.Fatalf("got %v, want ErrNotXPACK", err)
	}
	if _, err := ReadHeader(bytes.NewReader([]byte("XP"))); !errors.Is(err, ErrNotXPACK) {
		t.Fatalf("truncated: got %v, want ErrNotXPACK", err)
	}
}

func validHeaderBytes() []byte {
	var buf bytes.Buffer
	WriteHeader(&buf, Header{ChunkSize: DefaultChunkSize, Version: Version, Level: 6})
	return buf.Bytes()
}

func TestReadHeaderUnsupportedVersion(t *testing.T) {
	hdr := validHeaderBytes()
	hdr[14] = 2
	if _, err := ReadHeader(bytes.NewReader(hdr)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestReadHeaderBadChunkSize(t *testing.T) {
	hdr := validHeaderBytes()
	binary.LittleEndian.PutUint32(hdr[8:], 100)
	if _, err := ReadHeader(bytes.NewReader(hdr)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func TestReadHeaderSkipsExtraBytes(t *testing.T) {
	hdr := validHeaderBytes()
	binary.LittleEndian.PutUint16(hdr[12:], 20)
	in := append(hdr, 0, 0, 0, 0)
	payload := []byte{0xAA}
	r := bytes.NewReader(append(in, payload...))
	if _, err := ReadHeader(r); err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	rest := make([]byte, 1)
	if _, err := r.Read(rest); err != nil || rest[0] != 0xAA {
		t.Fatalf("extra header bytes not skipped: %v %v", rest, err)
	}
}

func TestUnpackBadChunkHeader(t *testing.T) {
	var buf bytes.Buffer
	WriteHeader(&buf, Header{ChunkSize: DefaultChunkSize, Version: Version, Level: 6})
	// stored_size > original_size is invalid.
	var chdr [8]byte
	binary.LittleEndian.PutUint32(chdr[0:], 100)
	binary.LittleEndian.PutUint32(chdr[4:], 50)
	buf.Write(chdr[:])
	buf.Write(make([]byte, 100))

	r := bytes.NewReader(buf.Bytes())
	hdr, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := Unpack(&bytes.Buffer{}, r, xpack.NewDecompressor(), hdr); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}

func TestUnpackTruncated(t *testing.T) {
	data := bytes.Repeat([]byte("abcdef"), 10000)
	c, err := xpack.NewCompressor(DefaultChunkSize, 6)
	if err != nil {
		t.Fatal(err)
	}
	var packed bytes.Buffer
	if err := Pack(&packed, bytes.NewReader(data), c, DefaultChunkSize); err != nil {
		t.Fatal(err)
	}
	b := packed.Bytes()

	r := bytes.NewReader(b[:len(b)-3])
	hdr, err := ReadHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := Unpack(&bytes.Buffer{}, r, xpack.NewDecompressor(), hdr); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}
