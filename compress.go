package xpack

import "errors"

// Block modes.
const (
	modeVerbatim     = 0
	modeAligned      = 1
	modeUncompressed = 2
)

// A sequence is one parsed unit: a run of literals followed by a match.
// The offset is already resolved against the recent-offsets queue,
// since that resolution must happen in emission order.
type sequence struct {
	lr       int32 // literal run length
	ml       int32 // match length
	offExtra int32 // extra-bits value for verbatim offset slots
	offCode  uint8 // offset slot
}

// A Compressor compresses whole buffers into the XPACK format. All of
// its scratch storage is allocated by NewCompressor and reused across
// calls; a Compressor must not be used concurrently, but separate
// Compressors are independent.
type Compressor struct {
	level         int
	params        compressionParams
	maxBufferSize int

	finder *matchFinder
	roq    recentOffsets

	w   bitWriter
	src []byte

	// Current-block staging.
	lits       []byte
	seqs       []sequence
	blockBytes int
	blockStart int

	litFreq [litAlphabet]int32
	lenFreq [numLenSlots]int32
	offFreq [numOffSlots]int32
	alnFreq [numAlignedSyms]int32
	litNorm [litAlphabet]int32
	lenNorm [numLenSlots]int32
	offNorm [numOffSlots]int32
	alnNorm [numAlignedSyms]int32

	litTable fseEncTable
	lenTable fseEncTable
	offTable fseEncTable
	alnTable fseEncTable
	scratch  fseScratch
	stack    bitStack

	x86Filter bool
	filterBuf []byte
}

// NewCompressor returns a Compressor for buffers of up to maxBufferSize
// bytes at the given compression level (1 fastest .. 9 best).
func NewCompressor(maxBufferSize, level int) (*Compressor, error) {
	if level < MinLevel || level > MaxLevel {
		return nil, errors.New("xpack: compression level out of range")
	}
	if maxBufferSize < 1 || maxBufferSize > maxBufferLimit {
		return nil, errors.New("xpack: unsupported buffer size")
	}
	c := &Compressor{
		level:         level,
		params:        levels[level],
		maxBufferSize: maxBufferSize,
		finder:        newMatchFinder(maxBufferSize, levels[level]),
		lits:          make([]byte, 0, 2*softLitPerBlock+64),
		seqs:          make([]sequence, 0, maxSeqPerBlock),
	}
	c.litTable.stateTable = make([]uint16, 0, 1<<litMaxLog)
	c.litTable.symbolTT = make([]symbolTransform, 0, litAlphabet)
	c.lenTable.stateTable = make([]uint16, 0, 1<<lenMaxLog)
	c.lenTable.symbolTT = make([]symbolTransform, 0, numLenSlots)
	c.offTable.stateTable = make([]uint16, 0, 1<<offMaxLog)
	c.offTable.symbolTT = make([]symbolTransform, 0, numOffSlots)
	c.alnTable.stateTable = make([]uint16, 0, 1<<alignedMaxLog)
	c.alnTable.symbolTT = make([]symbolTransform, 0, numAlignedSyms)
	c.stack.fields = make([]stackedField, 0, 6*maxSeqPerBlock+2)
	return c, nil
}

// Level returns the compression level the Compressor was created with.
func (c *Compressor) Level() int { return c.level }

// Compress compresses src into dst and returns the number of bytes
// written. It returns 0 when src is empty, longer than the Compressor's
// maximum buffer size, or incompressible to within len(dst) bytes; the
// caller should then store src raw. It never writes past len(dst).
func (c *Compressor) Compress(dst, src []byte) int {
	if len(src) == 0 || len(src) > c.maxBufferSize || len(dst) == 0 {
		return 0
	}
	input := src
	filtered := false
	if c.x86Filter {
		c.filterBuf = c.filterBuf[:len(src)]
		copy(c.filterBuf, src)
		if x86FilterForward(c.filterBuf) {
			input = c.filterBuf
			filtered = true
		}
	}

	c.w.reset(dst)
	if filtered {
		c.w.writeBits(1, 1)
	} else {
		c.w.writeBits(0, 1)
	}
	c.src = input
	c.roq.init()
	c.finder.reset(input)
	c.resetBlock()
	c.blockStart = 0
	c.parse(input)
	c.src = nil
	return c.w.finish()
}

func (c *Compressor) resetBlock() {
	c.lits = c.lits[:0]
	c.seqs = c.seqs[:0]
	c.blockBytes = 0
}

func (c *Compressor) shouldFlush() bool {
	return len(c.seqs) >= maxSeqPerBlock ||
		len(c.lits) >= softLitPerBlock ||
		c.blockBytes >= softBlockLen
}

// emitSequence stages one literal run plus match and updates the
// recent-offsets queue.
func (c *Compressor) emitSequence(src []byte, litStart, pos, length int, off int32, recentIdx int) {
	run := pos - litStart
	c.lits = append(c.lits, src[litStart:pos]...)
	if recentIdx < 0 {
		// A chain match can land on a queued offset that the direct
		// probes passed over.
		recentIdx = c.roq.find(off)
	}
	var code uint8
	var extra int32
	if recentIdx >= 0 {
		code = uint8(recentIdx)
		c.roq.useRecent(recentIdx)
	} else {
		slot := offSlot(off)
		code = uint8(slot)
		extra = off - offSlotBase[slot]
		c.roq.push(off)
	}
	c.seqs = append(c.seqs, sequence{
		lr:       int32(run),
		ml:       int32(length),
		offCode:  code,
		offExtra: extra,
	})
	c.blockBytes += run + length
}

// emitTrailingLiterals stages a literal run that is not followed by a
// match, then closes the block.
func (c *Compressor) emitTrailingLiterals(src []byte, litStart, pos int) {
	c.lits = append(c.lits, src[litStart:pos]...)
	c.blockBytes += pos - litStart
	c.closeBlock()
}

// closeBlock encodes the staged block. If entropy coding does not beat
// storing the bytes raw, the block is re-emitted in uncompressed mode.
func (c *Compressor) closeBlock() {
	if c.blockBytes == 0 {
		return
	}
	if c.w.overflowed {
		c.blockStart += c.blockBytes
		c.resetBlock()
		return
	}

	blockLen := c.blockBytes
	mark := c.w.mark()
	c.encodeBlock()

	compressedBits := (c.w.pos-mark.pos)*8 + int(c.w.bitCount) - int(mark.bitCount)
	if c.w.overflowed || compressedBits >= blockLen*8 {
		c.w.rewind(mark)
		c.w.writeBits(modeUncompressed, 2)
		c.w.writeBits(uint32(blockLen), 20)
		c.w.alignToByte()
		c.w.writeBytes(c.src[c.blockStart : c.blockStart+blockLen])
	}

	c.blockStart += blockLen
	c.resetBlock()
}

// encodeBlock writes the staged block in a compressed mode.
func (c *Compressor) encodeBlock() {
	seqCount := len(c.seqs)
	litCount := len(c.lits)

	for i := range c.litFreq {
		c.litFreq[i] = 0
	}
	for i := range c.lenFreq {
		c.lenFreq[i] = 0
	}
	for i := range c.offFreq {
		c.offFreq[i] = 0
	}
	for i := range c.alnFreq {
		c.alnFreq[i] = 0
	}
	for _, b := range c.lits {
		c.litFreq[b]++
	}
	nAligned := 0
	for i := range c.seqs {
		s := &c.seqs[i]
		c.lenFreq[lenSlotOf(s.lr)]++
		c.lenFreq[lenSlotOf(s.ml-minMatchLen)]++
		c.offFreq[s.offCode]++
		if s.offCode >= numRecentSlots && offSlotBits[s.offCode] >= alignedBits {
			c.alnFreq[s.offExtra&(1<<alignedBits-1)]++
			nAligned++
		}
	}

	// Decide between aligned and verbatim offset coding.
	mode := modeVerbatim
	var alnLog uint8
	if nAligned > 0 {
		alnLog = normalizeCounts(c.alnNorm[:], c.alnFreq[:], nAligned, alignedMaxLog)
		est := estimateBits(c.alnNorm[:], c.alnFreq[:], alnLog) + 64
		if est < alignedBits*nAligned {
			mode = modeAligned
		}
	}

	c.w.writeBits(uint32(mode), 2)
	c.w.writeBits(uint32(c.blockBytes), 20)
	c.w.writeBits(uint32(seqCount), 16)
	c.w.writeBits(uint32(litCount), 20)

	var litLog, lenLog, offLog uint8
	if litCount > 0 {
		litLog = normalizeCounts(c.litNorm[:], c.litFreq[:], litCount, litMaxLog)
		writeTableHeader(&c.w, c.litNorm[:], litLog)
		c.litTable.build(c.litNorm[:], litLog, &c.scratch)
	}
	if seqCount > 0 {
		lenLog = normalizeCounts(c.lenNorm[:], c.lenFreq[:], 2*seqCount, lenMaxLog)
		writeTableHeader(&c.w, c.lenNorm[:], lenLog)
		c.lenTable.build(c.lenNorm[:], lenLog, &c.scratch)

		offLog = normalizeCounts(c.offNorm[:], c.offFreq[:], seqCount, offMaxLog)
		writeTableHeader(&c.w, c.offNorm[:], offLog)
		c.offTable.build(c.offNorm[:], offLog, &c.scratch)

		if mode == modeAligned {
			writeTableHeader(&c.w, c.alnNorm[:], alnLog)
			c.alnTable.build(c.alnNorm[:], alnLog, &c.scratch)
		}
	}

	if litCount > 0 {
		c.writeLiteralStream()
	}
	if seqCount > 0 {
		c.writeSequenceStream(mode)
		if mode == modeAligned {
			c.writeAlignedStream()
		}
	}
}

// writeLiteralStream emits the two interleaved literal states. Walking
// the literals backwards and staging the fields yields a stream the
// decoder reads forwards, even positions first.
func (c *Compressor) writeLiteralStream() {
	st := &c.stack
	st.reset()
	var even, odd fseEncState
	evenInit, oddInit := false, false
	for i := len(c.lits) - 1; i >= 0; i-- {
		sym := int(c.lits[i])
		if i&1 == 0 {
			if !evenInit {
				even.init(&c.litTable, sym)
				evenInit = true
			} else {
				even.encode(&c.litTable, sym, st)
			}
		} else {
			if !oddInit {
				odd.init(&c.litTable, sym)
				oddInit = true
			} else {
				odd.encode(&c.litTable, sym, st)
			}
		}
	}
	if oddInit {
		odd.flush(&c.litTable, st)
	}
	even.flush(&c.litTable, st)
	st.flushTo(&c.w)
}

// writeSequenceStream emits the length and offset streams. Per
// sequence the decoder reads: literal-run transition and extra bits,
// match-length transition and extra bits, offset transition and extra
// bits; the fields are staged here in the exact reverse.
func (c *Compressor) writeSequenceStream(mode int) {
	st := &c.stack
	st.reset()
	var lenSt, offSt fseEncState
	last := len(c.seqs) - 1
	for i := last; i >= 0; i-- {
		s := &c.seqs[i]

		if s.offCode >= numRecentSlots {
			eb := uint(offSlotBits[s.offCode])
			if mode == modeAligned && eb >= alignedBits {
				if eb > alignedBits {
					st.push(uint32(s.offExtra)>>alignedBits, eb-alignedBits)
				}
			} else if eb > 0 {
				st.push(uint32(s.offExtra), eb)
			}
		}
		if i == last {
			offSt.init(&c.offTable, int(s.offCode))
		} else {
			offSt.encode(&c.offTable, int(s.offCode), st)
		}

		mlv := s.ml - minMatchLen
		mSlot := lenSlotOf(mlv)
		if lenSlotBits[mSlot] > 0 {
			st.push(uint32(mlv-lenSlotBase[mSlot]), uint(lenSlotBits[mSlot]))
		}
		if i == last {
			lenSt.init(&c.lenTable, mSlot)
		} else {
			lenSt.encode(&c.lenTable, mSlot, st)
		}

		lSlot := lenSlotOf(s.lr)
		if lenSlotBits[lSlot] > 0 {
			st.push(uint32(s.lr-lenSlotBase[lSlot]), uint(lenSlotBits[lSlot]))
		}
		// The literal-run slot always has a following symbol in the
		// length stream, so it is always a transition.
		lenSt.encode(&c.lenTable, lSlot, st)
	}
	offSt.flush(&c.offTable, st)
	lenSt.flush(&c.lenTable, st)
	st.flushTo(&c.w)
}

// writeAlignedStream emits the low offset bits as their own
// byte-aligned stream at the end of the block.
func (c *Compressor) writeAlignedStream() {
	c.w.alignToByte()
	st := &c.stack
	st.reset()
	var aSt fseEncState
	first := true
	for i := len(c.seqs) - 1; i >= 0; i-- {
		s := &c.seqs[i]
		if s.offCode < numRecentSlots || offSlotBits[s.offCode] < alignedBits {
			continue
		}
		sym := int(s.offExtra & (1<<alignedBits - 1))
		if first {
			aSt.init(&c.alnTable, sym)
			first = false
		} else {
			aSt.encode(&c.alnTable, sym, st)
		}
	}
	aSt.flush(&c.alnTable, st)
	st.flushTo(&c.w)
}
