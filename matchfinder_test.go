package xpack

import (
	"bytes"
	"testing"
)

func TestMatchFinderBasic(t *testing.T) {
	src := []byte("abcdefghabcdefgh")
	f := newMatchFinder(len(src), levels[6])
	f.reset(src)
	var roq recentOffsets
	roq.init()

	f.insertRange(0, 8)
	length, off, ri := f.search(8, &roq)
	if length != 8 || off != 8 {
		t.Fatalf("got length %d offset %d, want 8 8", length, off)
	}
	if ri != -1 {
		t.Fatalf("unexpected recent-offset hit: %d", ri)
	}
}

func TestMatchFinderRecentOffset(t *testing.T) {
	src := bytes.Repeat([]byte{'x'}, 64)
	f := newMatchFinder(len(src), levels[1])
	f.reset(src)
	var roq recentOffsets
	roq.init()

	// Offset 1 is in the initial queue, so a run is found from
	// position 1 without any chain entries.
	length, off, ri := f.search(1, &roq)
	if ri < 0 || off != 1 {
		t.Fatalf("expected recent-offset 1 hit, got length %d offset %d ri %d", length, off, ri)
	}
	if length != 63 {
		t.Fatalf("run length: got %d, want 63", length)
	}
}

func TestMatchFinderRespectsWindow(t *testing.T) {
	f := newMatchFinder(1024, levels[9])
	src := make([]byte, 1024)
	copy(src, "needle")
	copy(src[1000:], "needle")
	f.reset(src)
	var roq recentOffsets
	roq.init()

	f.insertRange(0, 1000)
	length, off, _ := f.search(1000, &roq)
	if length < 6 {
		t.Fatalf("match not found: length %d", length)
	}
	if off != 1000 {
		t.Fatalf("offset: got %d, want 1000", off)
	}
}

func TestMatchLen(t *testing.T) {
	src := []byte("aaaaaaaaaaaaaaaabbbb")
	if n := matchLen(src, 0, 4, 12); n != 12 {
		t.Fatalf("got %d, want 12", n)
	}
	if n := matchLen(src, 0, 8, 100); n != 8 {
		t.Fatalf("got %d, want 8", n)
	}
	if n := matchLen(src, 0, 16, 4); n != 0 {
		t.Fatalf("got %d, want 0", n)
	}
}
