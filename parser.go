package xpack

// The parsers choose which matches to emit. Levels 1-3 take every
// acceptable match greedily; higher levels defer a match when the next
// position (or the one after, at the top levels) offers a longer one.

func (c *Compressor) parse(src []byte) {
	if c.params.lazy > 0 {
		c.parseLazy(src)
	} else {
		c.parseGreedy(src)
	}
}

func (c *Compressor) parseGreedy(src []byte) {
	pos := 0
	litStart := 0
	for pos < len(src) {
		length, off, ri := c.finder.search(pos, &c.roq)
		c.finder.insert(pos)
		if length < minMatchLen {
			pos++
			if pos-litStart >= softLitPerBlock {
				c.emitTrailingLiterals(src, litStart, pos)
				litStart = pos
			}
			continue
		}
		c.emitSequence(src, litStart, pos, length, off, ri)
		c.finder.insertRange(pos+1, pos+length)
		pos += length
		litStart = pos
		if c.shouldFlush() {
			c.closeBlock()
		}
	}
	if litStart < len(src) {
		c.emitTrailingLiterals(src, litStart, len(src))
	} else {
		c.closeBlock()
	}
}

func (c *Compressor) parseLazy(src []byte) {
	pos := 0
	litStart := 0
	for pos < len(src) {
		length, off, ri := c.finder.search(pos, &c.roq)
		c.finder.insert(pos)
		if length < minMatchLen {
			pos++
			if pos-litStart >= softLitPerBlock {
				c.emitTrailingLiterals(src, litStart, pos)
				litStart = pos
			}
			continue
		}

		// Defer the match while the next position has a strictly
		// longer one. Recent-offset matches get a small bonus: they
		// are cheap to code, so a deferral has to earn more.
		steps := 0
		for steps < c.params.lazy && length < c.params.niceLen && pos+1 < len(src) {
			l1, o1, r1 := c.finder.search(pos+1, &c.roq)
			bias := 0
			if ri >= 0 {
				bias = 1
			}
			if l1 <= length+bias {
				break
			}
			c.finder.insert(pos + 1)
			pos++
			length, off, ri = l1, o1, r1
			steps++
		}

		c.emitSequence(src, litStart, pos, length, off, ri)
		c.finder.insertRange(pos+1, pos+length)
		pos += length
		litStart = pos
		if c.shouldFlush() {
			c.closeBlock()
		}
	}
	if litStart < len(src) {
		c.emitTrailingLiterals(src, litStart, len(src))
	} else {
		c.closeBlock()
	}
}
