package xpack

import "encoding/binary"

// Optional x86 preprocessing: rewriting the rel32 displacements of
// CALL/JMP instructions to absolute targets makes repeated calls to the
// same function byte-identical, which the match finder can exploit.
// The transform is applied to at most the first x86FilterRegion bytes
// and is exactly invertible, because the opcode bytes themselves are
// never changed and both directions skip the same five bytes after a
// hit.

const x86FilterRegion = 1 << 24

// EnableX86Filter makes subsequent Compress calls apply the x86
// preprocessing transform. It returns ErrUnsupported unless the
// package was built with the xpackx86 build tag.
func (c *Compressor) EnableX86Filter() error {
	if !x86FilterAvailable {
		return ErrUnsupported
	}
	if c.filterBuf == nil {
		c.filterBuf = make([]byte, c.maxBufferSize)
	}
	c.x86Filter = true
	return nil
}

// x86FilterForward rewrites displacements in place and reports whether
// anything changed.
func x86FilterForward(p []byte) bool {
	limit := len(p)
	if limit > x86FilterRegion {
		limit = x86FilterRegion
	}
	changed := false
	for i := 0; i+5 <= limit; {
		op := p[i]
		if op != 0xE8 && op != 0xE9 {
			i++
			continue
		}
		rel := int32(binary.LittleEndian.Uint32(p[i+1:]))
		abs := rel + int32(i+5)
		binary.LittleEndian.PutUint32(p[i+1:], uint32(abs))
		changed = true
		i += 5
	}
	return changed
}

// x86FilterInverse undoes x86FilterForward.
func x86FilterInverse(p []byte) {
	limit := len(p)
	if limit > x86FilterRegion {
		limit = x86FilterRegion
	}
	for i := 0; i+5 <= limit; {
		op := p[i]
		if op != 0xE8 && op != 0xE9 {
			i++
			continue
		}
		abs := int32(binary.LittleEndian.Uint32(p[i+1:]))
		rel := abs - int32(i+5)
		binary.LittleEndian.PutUint32(p[i+1:], uint32(rel))
		i += 5
	}
}
