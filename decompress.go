package xpack

// A Decompressor decodes XPACK streams produced by a Compressor. Its
// decode tables and staging buffers are allocated by NewDecompressor
// and reused across calls; a Decompressor must not be used
// concurrently.
type Decompressor struct {
	r   bitReader
	roq recentOffsets

	litNorm [litAlphabet]int32
	lenNorm [numLenSlots]int32
	offNorm [numOffSlots]int32
	alnNorm [numAlignedSyms]int32

	litDT []fseDecEntry
	lenDT []fseDecEntry
	offDT []fseDecEntry
	alnDT []fseDecEntry

	scratch fseScratch

	lits []byte
	seqs []decSequence
}

// A decSequence is one decoded sequence before execution. The offset
// stays symbolic until execution, because recent-offset resolution must
// happen in output order, and aligned-mode low bits arrive in a
// separate stream.
type decSequence struct {
	lr       int32
	ml       int32
	offExtra int32
	offCode  uint8
	aligned  bool // low offset bits still to come from the aligned stream
}

// NewDecompressor returns a Decompressor. One Decompressor handles
// streams from any Compressor, regardless of level or buffer size.
func NewDecompressor() *Decompressor {
	return &Decompressor{
		litDT: make([]fseDecEntry, 1<<litMaxLog),
		lenDT: make([]fseDecEntry, 1<<lenMaxLog),
		offDT: make([]fseDecEntry, 1<<offMaxLog),
		alnDT: make([]fseDecEntry, 1<<alignedMaxLog),
		lits:  make([]byte, maxBlockLen),
		seqs:  make([]decSequence, 1<<16),
	}
}

// Decompress decodes src into dst, which must be exactly the expected
// output size, and returns the number of bytes produced. On success
// that is len(dst); otherwise it returns ErrBadData, ErrShortOutput,
// or ErrInsufficientSpace. It never reads or writes out of bounds,
// for any input.
func (d *Decompressor) Decompress(dst, src []byte) (int, error) {
	r := &d.r
	r.reset(src)
	d.roq.init()

	filtered := false
	if len(dst) > 0 {
		filtered = r.readBits(1) == 1
		if filtered && !x86FilterAvailable {
			return 0, ErrBadData
		}
	}

	produced := 0
	for produced < len(dst) {
		n, err := d.decodeBlock(dst, produced)
		if err != nil {
			return produced, err
		}
		produced += n
	}
	if filtered {
		x86FilterInverse(dst)
	}
	return produced, nil
}

func (d *Decompressor) decodeBlock(dst []byte, produced int) (int, error) {
	r := &d.r

	mode := int(r.readBits(2))
	blockLen := int(r.readBits(20))
	if r.bad {
		// The stream ended at a block boundary with output still
		// owed.
		return 0, ErrShortOutput
	}
	if blockLen < 1 || blockLen > maxBlockLen {
		return 0, ErrBadData
	}
	if blockLen > len(dst)-produced {
		return 0, ErrInsufficientSpace
	}

	switch mode {
	case modeUncompressed:
		r.alignToByte()
		p := r.readBytes(blockLen)
		if r.bad {
			return 0, ErrBadData
		}
		copy(dst[produced:], p)
		return blockLen, nil
	case modeVerbatim, modeAligned:
	default:
		return 0, ErrBadData
	}

	seqCount := int(r.readBits(16))
	litCount := int(r.readBits(20))
	if r.bad || litCount > blockLen {
		return 0, ErrBadData
	}
	if mode == modeAligned && seqCount == 0 {
		return 0, ErrBadData
	}

	var litLog, lenLog, offLog, alnLog uint8
	var err error
	if litCount > 0 {
		if litLog, err = readTableHeader(r, d.litNorm[:], litMaxLog); err != nil {
			return 0, err
		}
		if err = buildDecTable(d.litNorm[:], litLog, d.litDT, &d.scratch); err != nil {
			return 0, err
		}
	}
	if seqCount > 0 {
		if lenLog, err = readTableHeader(r, d.lenNorm[:], lenMaxLog); err != nil {
			return 0, err
		}
		if err = buildDecTable(d.lenNorm[:], lenLog, d.lenDT, &d.scratch); err != nil {
			return 0, err
		}
		if offLog, err = readTableHeader(r, d.offNorm[:], offMaxLog); err != nil {
			return 0, err
		}
		if err = buildDecTable(d.offNorm[:], offLog, d.offDT, &d.scratch); err != nil {
			return 0, err
		}
		if mode == modeAligned {
			if alnLog, err = readTableHeader(r, d.alnNorm[:], alignedMaxLog); err != nil {
				return 0, err
			}
			if err = buildDecTable(d.alnNorm[:], alnLog, d.alnDT, &d.scratch); err != nil {
				return 0, err
			}
		}
	}

	// Literal stream: two interleaved states, even positions first.
	lits := d.lits[:litCount]
	if litCount > 0 {
		even := r.readBits(uint(litLog))
		var odd uint32
		if litCount > 1 {
			odd = r.readBits(uint(litLog))
		}
		for i := 0; i < litCount; i++ {
			if i&1 == 0 {
				e := d.litDT[even]
				lits[i] = e.sym
				if i+2 < litCount {
					even = uint32(e.base) + r.readBits(uint(e.nbits))
				}
			} else {
				e := d.litDT[odd]
				lits[i] = e.sym
				if i+2 < litCount {
					odd = uint32(e.base) + r.readBits(uint(e.nbits))
				}
			}
		}
		if r.bad {
			return 0, ErrBadData
		}
	}

	// Sequence stream. Offsets are kept symbolic; in aligned mode the
	// low bits of verbatim offsets arrive in the trailing stream.
	seqs := d.seqs[:seqCount]
	alignedCount := 0
	if seqCount > 0 {
		lenState := r.readBits(uint(lenLog))
		offState := r.readBits(uint(offLog))
		for i := 0; i < seqCount; i++ {
			e := d.lenDT[lenState]
			lSlot := int(e.sym)
			// A literal-run slot is always followed by a match-length
			// slot, so this transition is unconditional.
			lenState = uint32(e.base) + r.readBits(uint(e.nbits))
			lr := lenSlotBase[lSlot] + int32(r.readBits(uint(lenSlotBits[lSlot])))

			e = d.lenDT[lenState]
			mSlot := int(e.sym)
			if i+1 < seqCount {
				lenState = uint32(e.base) + r.readBits(uint(e.nbits))
			}
			ml := lenSlotBase[mSlot] + int32(r.readBits(uint(lenSlotBits[mSlot]))) + minMatchLen

			e = d.offDT[offState]
			oSlot := int(e.sym)
			if i+1 < seqCount {
				offState = uint32(e.base) + r.readBits(uint(e.nbits))
			}
			sq := decSequence{lr: lr, ml: ml, offCode: uint8(oSlot)}
			if oSlot >= numRecentSlots {
				eb := uint(offSlotBits[oSlot])
				if mode == modeAligned && eb >= alignedBits {
					hi := uint32(0)
					if eb > alignedBits {
						hi = r.readBits(eb - alignedBits)
					}
					sq.offExtra = int32(hi << alignedBits)
					sq.aligned = true
					alignedCount++
				} else if eb > 0 {
					sq.offExtra = int32(r.readBits(eb))
				}
			}
			seqs[i] = sq
		}
		if r.bad {
			return 0, ErrBadData
		}
	}

	// Aligned stream: byte-aligned at the end of the block.
	if mode == modeAligned {
		r.alignToByte()
		if alignedCount > 0 {
			aState := r.readBits(uint(alnLog))
			k := 0
			for i := range seqs {
				if !seqs[i].aligned {
					continue
				}
				e := d.alnDT[aState]
				seqs[i].offExtra |= int32(e.sym)
				k++
				if k < alignedCount {
					aState = uint32(e.base) + r.readBits(uint(e.nbits))
				}
			}
			if r.bad {
				return 0, ErrBadData
			}
		}
	}

	return d.executeBlock(dst, produced, blockLen, lits, seqs)
}

// executeBlock materializes the output: literal runs and matches from
// the staged sequences, then the trailing literals implied by the
// block length.
func (d *Decompressor) executeBlock(dst []byte, produced, blockLen int, lits []byte, seqs []decSequence) (int, error) {
	wpos := produced
	end := produced + blockLen
	litIdx := 0

	for i := range seqs {
		s := &seqs[i]
		lr := int(s.lr)
		ml := int(s.ml)
		if lr > end-wpos || lr > len(lits)-litIdx {
			return 0, ErrBadData
		}
		copy(dst[wpos:], lits[litIdx:litIdx+lr])
		wpos += lr
		litIdx += lr

		var off int32
		if s.offCode < numRecentSlots {
			off = d.roq.get(int(s.offCode))
			d.roq.useRecent(int(s.offCode))
		} else {
			off = offSlotBase[s.offCode] + s.offExtra
			d.roq.push(off)
		}
		if off < 1 || int(off) > wpos || ml > end-wpos {
			return 0, ErrBadData
		}
		copyMatch(dst, wpos, int(off), ml)
		wpos += ml
	}

	trailing := end - wpos
	if trailing != len(lits)-litIdx {
		return 0, ErrBadData
	}
	copy(dst[wpos:], lits[litIdx:])
	return blockLen, nil
}

// copyMatch copies length bytes from pos-off to pos within dst,
// byte-by-byte when the regions overlap so that runs replicate.
func copyMatch(dst []byte, pos, off, length int) {
	s := pos - off
	if off >= length {
		copy(dst[pos:pos+length], dst[s:s+length])
		return
	}
	for i := 0; i < length; i++ {
		dst[pos+i] = dst[s+i]
	}
}
