package asm

import (
	"bytes"
	"testing"
)

func TestSourceMapRoundTrip(t *testing.T) {
	files := []string{"main.s", "lib.s"}
	entries := []SourceMapEntry{
		{Address: 0x00400000, File: "main.s", Line: 1, Segment: SegText, SegmentIndex: 0},
		{Address: 0x00400004, File: "main.s", Line: 2, Segment: SegText, SegmentIndex: 1},
		{Address: 0x00400008, File: "lib.s", Line: 10, Segment: SegText, SegmentIndex: 2},
		{Address: 0x1001_0000, File: "lib.s", Line: 11, Segment: SegData, SegmentIndex: 0},
	}

	var buf bytes.Buffer
	if _, err := EncodeSourceMap(&buf, files, entries); err != nil {
		t.Fatalf("EncodeSourceMap: %v", err)
	}

	gotFiles, gotEntries, err := DecodeSourceMap(&buf)
	if err != nil {
		t.Fatalf("DecodeSourceMap: %v", err)
	}
	if len(gotFiles) != len(files) {
		t.Fatalf("file table: got %v, want %v", gotFiles, files)
	}
	for i, f := range files {
		if gotFiles[i] != f {
			t.Fatalf("file %d: got %q, want %q", i, gotFiles[i], f)
		}
	}
	if len(gotEntries) != len(entries) {
		t.Fatalf("entry count: got %d, want %d", len(gotEntries), len(entries))
	}
	for i, want := range entries {
		got := gotEntries[i]
		if got.Address != want.Address || got.File != want.File || got.Line != want.Line ||
			got.Segment != want.Segment || got.SegmentIndex != want.SegmentIndex {
			t.Fatalf("entry %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestFindSourceLineExactMatch(t *testing.T) {
	entries := []SourceMapEntry{
		{Address: 0x400000, Line: 1},
		{Address: 0x400004, Line: 2},
		{Address: 0x400008, Line: 3},
	}
	e, ok := FindSourceLine(entries, 0x400004)
	if !ok || e.Line != 2 {
		t.Fatalf("FindSourceLine(0x400004): got %+v, ok=%v", e, ok)
	}
	if _, ok := FindSourceLine(entries, 0x400005); ok {
		t.Fatal("expected no match for an address with no source map entry")
	}
}

func TestSourceMapHandlesNegativeAddressDeltas(t *testing.T) {
	// Entries aren't required to be monotonic across segments (text vs
	// data interleave in emission order when a .org jumps the cursor
	// backward isn't possible, but cross-segment deltas can still be
	// negative relative to the previous entry's raw address).
	files := []string{"main.s"}
	entries := []SourceMapEntry{
		{Address: 0x1001_0000, File: "main.s", Line: 5, Segment: SegData, SegmentIndex: 0},
		{Address: 0x00400000, File: "main.s", Line: 1, Segment: SegText, SegmentIndex: 0},
	}
	var buf bytes.Buffer
	if _, err := EncodeSourceMap(&buf, files, entries); err != nil {
		t.Fatalf("EncodeSourceMap: %v", err)
	}
	_, got, err := DecodeSourceMap(&buf)
	if err != nil {
		t.Fatalf("DecodeSourceMap: %v", err)
	}
	if got[1].Address != 0x00400000 {
		t.Fatalf("negative delta round trip: got %#x", got[1].Address)
	}
}
