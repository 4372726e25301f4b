package xpack

import (
	"encoding/binary"
	"math/bits"
)

const (
	hashMul32 = 0x1e35a7bd
	hash3Mul  = 0x9e3779b1
	hash3Bits = 15

	// Length-3 matches are only worth coding when the offset is small.
	maxHash3Offset = 1 << 12
)

func hash4(u uint32, hashBits int) uint32 {
	return (u * hashMul32) >> (32 - uint(hashBits))
}

func hash3(u uint32) uint32 {
	return ((u << 8) * hash3Mul) >> (32 - hash3Bits)
}

// A matchFinder looks for matches in a whole input buffer using hash
// chains. Heads and chain links store position+1, with 0 meaning empty,
// so a cleared table needs no sentinel pass.
type matchFinder struct {
	params  compressionParams
	maxDist int32

	head4 []uint32
	head3 []uint32
	prev  []uint32

	src []byte
	end int // positions below end have been inserted
}

func newMatchFinder(maxBufferSize int, params compressionParams) *matchFinder {
	f := &matchFinder{
		params: params,
		head4:  make([]uint32, 1<<params.hashBits),
		prev:   make([]uint32, maxBufferSize),
	}
	if params.hash3 {
		f.head3 = make([]uint32, 1<<hash3Bits)
	}
	w := int32(1)
	for int(w) < maxBufferSize {
		w <<= 1
	}
	f.maxDist = w
	return f
}

func (f *matchFinder) reset(src []byte) {
	for i := range f.head4 {
		f.head4[i] = 0
	}
	for i := range f.head3 {
		f.head3[i] = 0
	}
	f.src = src
	f.end = 0
}

// insert adds pos as the newest chain entry for its hash buckets.
// Re-inserting an old position would corrupt the chain, so positions at
// or below the high-water mark are skipped.
func (f *matchFinder) insert(pos int) {
	if pos < f.end || pos+4 > len(f.src) {
		return
	}
	u := binary.LittleEndian.Uint32(f.src[pos:])
	h := hash4(u, f.params.hashBits)
	f.prev[pos] = f.head4[h]
	f.head4[h] = uint32(pos + 1)
	if f.head3 != nil {
		f.head3[hash3(u)] = uint32(pos + 1)
	}
	f.end = pos + 1
}

func (f *matchFinder) insertRange(start, end int) {
	for i := start; i < end; i++ {
		f.insert(i)
	}
}

// search returns the best match at pos: its length and offset, and the
// recent-offsets slot it came from (-1 for a verbatim offset). A zero
// length means no usable match.
func (f *matchFinder) search(pos int, roq *recentOffsets) (length int, offset int32, recentIdx int) {
	src := f.src
	maxLen := len(src) - pos
	if maxLen > maxMatchLen {
		maxLen = maxMatchLen
	}
	if maxLen < minMatchLen {
		return 0, 0, -1
	}

	// Probe the recent offsets first; they can carry matches as short
	// as two bytes.
	bestRecent := 0
	recentIdx = -1
	for i := 0; i < numRecentSlots; i++ {
		off := roq.get(i)
		if int(off) > pos {
			continue
		}
		n := matchLen(src, pos-int(off), pos, maxLen)
		if n > bestRecent {
			bestRecent = n
			recentIdx = i
		}
	}
	if bestRecent < minMatchLen {
		bestRecent = 0
		recentIdx = -1
	}
	if bestRecent >= f.params.niceLen {
		return bestRecent, roq.get(recentIdx), recentIdx
	}

	bestLen := 0
	var bestOff int32
	if maxLen >= 4 {
		searchSeq := binary.LittleEndian.Uint32(src[pos:])
		depth := f.params.depth
		candidate := int(f.head4[hash4(searchSeq, f.params.hashBits)]) - 1
		for candidate >= 0 && depth > 0 {
			d := pos - candidate
			if d <= 0 || int32(d) > f.maxDist {
				break
			}
			if binary.LittleEndian.Uint32(src[candidate:]) == searchSeq {
				n := 4 + matchLen(src, candidate+4, pos+4, maxLen-4)
				if n > bestLen {
					bestLen = n
					bestOff = int32(d)
					if n >= f.params.niceLen {
						break
					}
					if n >= f.params.goodLen && depth > f.params.depth/4 {
						depth = f.params.depth / 4
					}
				}
			}
			next := int(f.prev[candidate]) - 1
			if next >= candidate {
				break
			}
			candidate = next
			depth--
		}
	}

	// A single extra probe for a length-3 match at a short distance.
	// Only three bytes feed the hash, so this is safe right up to the
	// end of the buffer.
	if f.head3 != nil && bestLen < 4 && maxLen >= 3 {
		u := uint32(src[pos]) | uint32(src[pos+1])<<8 | uint32(src[pos+2])<<16
		candidate := int(f.head3[hash3(u)]) - 1
		if candidate >= 0 && candidate < pos && pos-candidate <= maxHash3Offset {
			if src[candidate] == src[pos] && src[candidate+1] == src[pos+1] && src[candidate+2] == src[pos+2] {
				n := 3 + matchLen(src, candidate+3, pos+3, maxLen-3)
				if n > bestLen {
					bestLen = n
					bestOff = int32(pos - candidate)
				}
			}
		}
	}

	if bestRecent >= bestLen && recentIdx >= 0 {
		return bestRecent, roq.get(recentIdx), recentIdx
	}
	if bestLen == 0 {
		return 0, 0, -1
	}
	return bestLen, bestOff, -1
}

// matchLen returns how many bytes match between src[cand:] and
// src[pos:], comparing eight bytes at a time, capped at max.
func matchLen(src []byte, cand, pos, max int) int {
	n := 0
	for n+8 <= max && pos+n+8 <= len(src) {
		a := binary.LittleEndian.Uint64(src[cand+n:])
		b := binary.LittleEndian.Uint64(src[pos+n:])
		if a != b {
			return n + bits.TrailingZeros64(a^b)>>3
		}
		n += 8
	}
	for n < max && pos+n < len(src) && src[cand+n] == src[pos+n] {
		n++
	}
	return n
}
