// Package splitter implements the multi-event splitter, spec.md §4.5:
// when a single readout event packs several physics events for
// throughput (a mesytec "multi-event" firmware mode), it slices a
// module's combined dynamic byte range into per-physics-event pieces and
// replays the downstream event callbacks once per slice.
package splitter

// HeaderFilter locates per-physics-event headers within a module's
// dynamic data and extracts that event's length field, spec.md §4.5
// "Algorithm" step 1-2. Mask/Value identify the header word; LengthMask
// and LengthShift pull the slice length (in words, header included) out
// of that same word.
type HeaderFilter struct {
	Mask, Value      uint32
	LengthMask       uint32
	LengthShift      uint8
}

// Match reports whether word looks like a per-physics-event header.
func (f HeaderFilter) Match(word uint32) bool {
	return word&f.Mask == f.Value
}

// Length extracts the slice length (including the header word itself)
// encoded in a matched header word.
func (f HeaderFilter) Length(word uint32) int {
	return int((word & f.LengthMask) >> f.LengthShift)
}

// Result is the outcome of splitting one module's combined data range.
type Result struct {
	Slices            [][]uint32
	SizeExceededWords int
}

// Split scans data for consecutive per-physics-event slices delimited by
// filter, spec.md §4.5 "Algorithm". Any words that cannot be attributed
// to a complete, well-formed slice are counted as SizeExceededWords and
// discarded — this holds the invariant in spec.md §8: for each input
// event, sum(slice lengths) + size_exceeded_bytes == input words.
func Split(data []uint32, filter HeaderFilter) Result {
	var res Result
	pos := 0
	for pos < len(data) {
		idx := -1
		for i := pos; i < len(data); i++ {
			if filter.Match(data[i]) {
				idx = i
				break
			}
		}
		if idx == -1 {
			res.SizeExceededWords += len(data) - pos
			break
		}
		if idx > pos {
			// Orphaned words before the next recognizable header.
			res.SizeExceededWords += idx - pos
		}
		length := filter.Length(data[idx])
		end := idx + length
		if length <= 0 || end > len(data) {
			res.SizeExceededWords += len(data) - idx
			break
		}
		res.Slices = append(res.Slices, data[idx:end])
		pos = end
	}
	return res
}

// PassThrough wraps data as a single slice, used when multi-event
// splitting is disabled for an event (spec.md §4.5 "Invariant").
func PassThrough(data []uint32) Result {
	if len(data) == 0 {
		return Result{}
	}
	return Result{Slices: [][]uint32{data}}
}
