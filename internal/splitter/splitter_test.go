package splitter

import "testing"

// filter treats a word with the top byte 0xFF as a header; the low 8 bits
// give the slice length in words, header included.
var testFilter = HeaderFilter{
	Mask:        0xFF000000,
	Value:       0xFF000000,
	LengthMask:  0x000000FF,
	LengthShift: 0,
}

func TestSplitThreeEvents(t *testing.T) {
	data := []uint32{
		0xFF000004, 1, 2, 3,
		0xFF000003, 4, 5,
		0xFF000002, 6,
	}
	res := Split(data, testFilter)
	if len(res.Slices) != 3 {
		t.Fatalf("got %d slices, want 3: %+v", len(res.Slices), res.Slices)
	}
	if len(res.Slices[0]) != 4 || len(res.Slices[1]) != 3 || len(res.Slices[2]) != 2 {
		t.Fatalf("unexpected slice lengths: %v %v %v", res.Slices[0], res.Slices[1], res.Slices[2])
	}
	if res.SizeExceededWords != 0 {
		t.Fatalf("unexpected size-exceeded words: %d", res.SizeExceededWords)
	}

	var total int
	for _, s := range res.Slices {
		total += len(s)
	}
	if total+res.SizeExceededWords != len(data) {
		t.Fatalf("invariant broken: slices=%d exceeded=%d input=%d", total, res.SizeExceededWords, len(data))
	}
}

func TestSplitTruncatedTrailingEvent(t *testing.T) {
	data := []uint32{
		0xFF000002, 1,
		0xFF000005, 2, 3, // declares 5 words but only 3 remain
	}
	res := Split(data, testFilter)
	if len(res.Slices) != 1 {
		t.Fatalf("got %d slices, want 1: %+v", len(res.Slices), res.Slices)
	}
	if res.SizeExceededWords != 3 {
		t.Fatalf("got size-exceeded %d, want 3", res.SizeExceededWords)
	}

	var total int
	for _, s := range res.Slices {
		total += len(s)
	}
	if total+res.SizeExceededWords != len(data) {
		t.Fatalf("invariant broken: slices=%d exceeded=%d input=%d", total, res.SizeExceededWords, len(data))
	}
}

func TestSplitOrphanWordsBeforeHeader(t *testing.T) {
	data := []uint32{0xDEADBEEF, 0xFF000002, 9}
	res := Split(data, testFilter)
	if len(res.Slices) != 1 || len(res.Slices[0]) != 2 {
		t.Fatalf("unexpected slices: %+v", res.Slices)
	}
	if res.SizeExceededWords != 1 {
		t.Fatalf("got size-exceeded %d, want 1", res.SizeExceededWords)
	}
}

func TestSplitNoHeaderFound(t *testing.T) {
	data := []uint32{1, 2, 3}
	res := Split(data, testFilter)
	if len(res.Slices) != 0 {
		t.Fatalf("got %d slices, want 0", len(res.Slices))
	}
	if res.SizeExceededWords != 3 {
		t.Fatalf("got size-exceeded %d, want 3", res.SizeExceededWords)
	}
}

// TestPassThroughIsNoOp verifies spec.md §4.5's invariant: with splitting
// disabled for an event, the module's data passes through unsplit.
func TestPassThroughIsNoOp(t *testing.T) {
	data := []uint32{1, 2, 3, 4}
	res := PassThrough(data)
	if len(res.Slices) != 1 || len(res.Slices[0]) != 4 {
		t.Fatalf("unexpected pass-through result: %+v", res)
	}
	if res.SizeExceededWords != 0 {
		t.Fatalf("unexpected size-exceeded words: %d", res.SizeExceededWords)
	}
}

func TestPassThroughEmpty(t *testing.T) {
	res := PassThrough(nil)
	if len(res.Slices) != 0 {
		t.Fatalf("expected no slices for empty input, got %+v", res)
	}
}
