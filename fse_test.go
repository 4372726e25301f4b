package xpack

import (
	"math/rand"
	"testing"
)

func checkNormalized(t *testing.T, norm, freq []int32, log uint8) {
	t.Helper()
	sum := int32(0)
	for s, c := range norm {
		sum += c
		if freq[s] > 0 && c < 1 {
			t.Fatalf("symbol %d has frequency %d but count %d", s, freq[s], c)
		}
		if freq[s] == 0 && c != 0 {
			t.Fatalf("symbol %d is unused but has count %d", s, c)
		}
	}
	if sum != 1<<log {
		t.Fatalf("counts sum to %d, want %d", sum, 1<<log)
	}
}

func TestNormalizeCounts(t *testing.T) {
	cases := [][]int32{
		{1, 1},
		{1000000, 1},
		{1, 1, 1000},
		{5, 0, 0, 7, 0, 100, 3},
		{1 << 20},
	}
	for i, freq := range cases {
		total := 0
		for _, f := range freq {
			total += int(f)
		}
		norm := make([]int32, len(freq))
		log := normalizeCounts(norm, freq, total, 9)
		if log < minTableLog || log > 9 {
			t.Fatalf("case %d: table log %d out of range", i, log)
		}
		checkNormalized(t, norm, freq, log)
	}
}

func TestNormalizeCountsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 200; iter++ {
		freq := make([]int32, 256)
		total := 0
		n := 1 + rng.Intn(256)
		for i := 0; i < n; i++ {
			f := 1 + rng.Intn(10000)
			freq[rng.Intn(256)] += int32(f)
		}
		for _, f := range freq {
			total += int(f)
		}
		norm := make([]int32, 256)
		log := normalizeCounts(norm, freq, total, litMaxLog)
		checkNormalized(t, norm, freq, log)
	}
}

func TestTableHeaderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 100; iter++ {
		freq := make([]int32, numLenSlots)
		total := 0
		n := 1 + rng.Intn(numLenSlots)
		for i := 0; i < n; i++ {
			f := 1 + rng.Intn(5000)
			freq[rng.Intn(numLenSlots)] += int32(f)
		}
		for _, f := range freq {
			total += int(f)
		}
		norm := make([]int32, numLenSlots)
		log := normalizeCounts(norm, freq, total, lenMaxLog)

		buf := make([]byte, 256)
		var w bitWriter
		w.reset(buf)
		writeTableHeader(&w, norm, log)
		n2 := w.finish()
		if n2 == 0 {
			t.Fatal("header overflowed")
		}

		var r bitReader
		r.reset(buf[:n2])
		got := make([]int32, numLenSlots)
		gotLog, err := readTableHeader(&r, got, lenMaxLog)
		if err != nil {
			t.Fatalf("readTableHeader: %v", err)
		}
		if gotLog != log {
			t.Fatalf("log: got %d, want %d", gotLog, log)
		}
		for s := range norm {
			if got[s] != norm[s] {
				t.Fatalf("count %d: got %d, want %d", s, got[s], norm[s])
			}
		}
	}
}

func TestTableHeaderRejectsBadLog(t *testing.T) {
	buf := make([]byte, 16)
	var w bitWriter
	w.reset(buf)
	w.writeBits(0, 4) // zero table log
	n := w.finish()

	var r bitReader
	r.reset(buf[:n])
	norm := make([]int32, numLenSlots)
	if _, err := readTableHeader(&r, norm, lenMaxLog); err == nil {
		t.Fatal("zero table log accepted")
	}
}

// encodeSymbols runs a single-state tANS stream through the encoder
// staging and returns the bytes the decoder should read forward.
func encodeSymbols(t *testing.T, et *fseEncTable, syms []int) []byte {
	t.Helper()
	buf := make([]byte, 8*len(syms)+64)
	var w bitWriter
	w.reset(buf)
	var st bitStack
	var enc fseEncState
	for i := len(syms) - 1; i >= 0; i-- {
		if i == len(syms)-1 {
			enc.init(et, syms[i])
		} else {
			enc.encode(et, syms[i], &st)
		}
	}
	enc.flush(et, &st)
	st.flushTo(&w)
	n := w.finish()
	if n == 0 {
		t.Fatal("encode overflowed")
	}
	return buf[:n]
}

func TestFSERoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for iter := 0; iter < 50; iter++ {
		alphabet := 2 + rng.Intn(60)
		count := 1 + rng.Intn(5000)
		syms := make([]int, count)
		freq := make([]int32, alphabet)
		for i := range syms {
			// A skewed distribution, like real symbol streams.
			s := rng.Intn(alphabet)
			if rng.Intn(4) != 0 {
				s = s % (1 + alphabet/4)
			}
			syms[i] = s
			freq[s]++
		}

		norm := make([]int32, alphabet)
		log := normalizeCounts(norm, freq, count, lenMaxLog)

		var scratch fseScratch
		var et fseEncTable
		et.stateTable = make([]uint16, 0, 1<<lenMaxLog)
		et.symbolTT = make([]symbolTransform, 0, alphabet)
		et.build(norm, log, &scratch)

		dt := make([]fseDecEntry, 1<<log)
		if err := buildDecTable(norm, log, dt, &scratch); err != nil {
			t.Fatalf("buildDecTable: %v", err)
		}

		stream := encodeSymbols(t, &et, syms)

		var r bitReader
		r.reset(stream)
		state := r.readBits(uint(log))
		for i := 0; i < count; i++ {
			e := dt[state]
			if int(e.sym) != syms[i] {
				t.Fatalf("iter %d: symbol %d: got %d, want %d", iter, i, e.sym, syms[i])
			}
			if i+1 < count {
				state = uint32(e.base) + r.readBits(uint(e.nbits))
			}
		}
		if r.bad {
			t.Fatal("decoder ran out of bits")
		}
	}
}

func TestFSESingleSymbol(t *testing.T) {
	freq := []int32{0, 42, 0}
	norm := make([]int32, 3)
	log := normalizeCounts(norm, freq, 42, alignedMaxLog)
	if norm[1] != 1<<log {
		t.Fatalf("single-symbol count: got %d, want %d", norm[1], 1<<log)
	}

	var scratch fseScratch
	var et fseEncTable
	et.stateTable = make([]uint16, 0, 1<<log)
	et.symbolTT = make([]symbolTransform, 0, 3)
	et.build(norm, log, &scratch)

	dt := make([]fseDecEntry, 1<<log)
	if err := buildDecTable(norm, log, dt, &scratch); err != nil {
		t.Fatalf("buildDecTable: %v", err)
	}

	syms := make([]int, 100)
	for i := range syms {
		syms[i] = 1
	}
	stream := encodeSymbols(t, &et, syms)

	var r bitReader
	r.reset(stream)
	state := r.readBits(uint(log))
	for i := 0; i < len(syms); i++ {
		e := dt[state]
		if e.sym != 1 {
			t.Fatalf("symbol %d: got %d, want 1", i, e.sym)
		}
		if i+1 < len(syms) {
			state = uint32(e.base) + r.readBits(uint(e.nbits))
		}
	}
	if r.bad {
		t.Fatal("decoder ran out of bits")
	}
}
