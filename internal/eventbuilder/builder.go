// Package eventbuilder implements the multi-crate event builder, spec.md
// §4.6: it reorders and combines module data produced independently by
// several crates into single physics events, keyed by a monotone
// timestamp extracted from each module's data.
package eventbuilder

// ModuleKey identifies one module's data stream across crates.
type ModuleKey struct {
	CrateID     uint8
	EventIndex  int
	ModuleIndex int
}

// Config is one event's builder configuration, spec.md §4.6 "The match
// window and discard window are per-event configurable."
type Config struct {
	// MatchWindow bounds how far a module's head timestamp may trail the
	// matched timestamp T and still participate in that combined event.
	MatchWindow uint64
	// DiscardWindow bounds how far a module's head timestamp may trail
	// the newest head seen across all modules before it is dropped as
	// unmatchable.
	DiscardWindow uint64
	// FIFODepth bounds the number of unmatched module-events buffered
	// per module (spec.md §4.6 "Invariant": memory usage is bounded by
	// modules × fifo_depth × max_slice_size).
	FIFODepth int
}

// TimestampExtractor pulls the monotone matching timestamp out of one
// module's realized data.
type TimestampExtractor func(key ModuleKey, data []uint32) (timestamp uint64, ok bool)

type entry struct {
	timestamp uint64
	data      []uint32
}

// CombinedEvent is one emitted multi-crate physics event. Modules absent
// from this round (no data currently queued, or queued but outside the
// match window) get an empty slice, spec.md §4.6 "If a module has no
// data for the matched event, its slice is empty."
type CombinedEvent struct {
	Timestamp uint64
	Modules   map[ModuleKey][]uint32
}

// Builder combines per-module FIFOs into ordered CombinedEvents. It is
// not safe for concurrent Push/TryEmit calls from multiple goroutines
// without external serialization, matching spec.md §5's single
// event-building thread.
type Builder struct {
	cfg     Config
	extract TimestampExtractor
	order   []ModuleKey
	fifos   map[ModuleKey][]entry

	Counters *Counters
}

// NewBuilder creates a builder for the given keys. keys fixes the set of
// modules expected to contribute to every combined event; modules not
// named here are never tracked.
func NewBuilder(cfg Config, keys []ModuleKey, extract TimestampExtractor) *Builder {
	b := &Builder{
		cfg:      cfg,
		extract:  extract,
		order:    append([]ModuleKey(nil), keys...),
		fifos:    make(map[ModuleKey][]entry, len(keys)),
		Counters: newCounters(),
	}
	for _, k := range keys {
		b.fifos[k] = nil
	}
	return b
}

// Push enqueues one module's realized event data. If the module's FIFO
// is at capacity, the oldest queued entry is dropped (counted as a
// discarded event) to admit the new one.
func (b *Builder) Push(key ModuleKey, data []uint32) {
	ts, ok := b.extract(key, data)
	if !ok {
		b.Counters.addExtractFailure(key)
		return
	}
	q := b.fifos[key]
	if b.cfg.FIFODepth > 0 && len(q) >= b.cfg.FIFODepth {
		q = q[1:]
		b.Counters.addDiscarded(key)
	}
	q = append(q, entry{timestamp: ts, data: data})
	b.fifos[key] = q
}

// TryEmit attempts to produce the next combined event, spec.md §4.6
// "Algorithm". It first evicts any module heads too far behind the
// newest head seen (the discard window), then takes the newest remaining
// head timestamp as T and combines every head within MatchWindow of T.
// Heads outside the match window stay queued and are counted as empty
// module data for this event.
func (b *Builder) TryEmit() (CombinedEvent, bool) {
	b.evictStale()

	maxHead, any := b.maxHeadTimestamp()
	if !any {
		return CombinedEvent{}, false
	}

	out := CombinedEvent{Timestamp: maxHead, Modules: make(map[ModuleKey][]uint32, len(b.order))}
	for _, k := range b.order {
		q := b.fifos[k]
		if len(q) == 0 {
			b.Counters.addEmpty(k)
			continue
		}
		head := q[0]
		if maxHead-head.timestamp > b.cfg.MatchWindow {
			b.Counters.addEmpty(k)
			continue
		}
		out.Modules[k] = head.data
		b.fifos[k] = q[1:]
	}
	return out, true
}

// maxHeadTimestamp returns the largest timestamp currently at the head
// of any tracked module's FIFO; this is the candidate match point T.
func (b *Builder) maxHeadTimestamp() (uint64, bool) {
	var max uint64
	found := false
	for _, q := range b.fifos {
		if len(q) == 0 {
			continue
		}
		if !found || q[0].timestamp > max {
			max = q[0].timestamp
			found = true
		}
	}
	return max, found
}

// evictStale drops any head more than DiscardWindow behind the newest
// head across all modules, since it can no longer be matched, spec.md
// §4.6 "drop any heads older than T minus a discard window".
func (b *Builder) evictStale() {
	if b.cfg.DiscardWindow == 0 {
		return
	}
	for {
		max, any := b.maxHeadTimestamp()
		if !any {
			return
		}
		evicted := false
		for _, k := range b.order {
			q := b.fifos[k]
			if len(q) == 0 {
				continue
			}
			if max-q[0].timestamp > b.cfg.DiscardWindow {
				b.fifos[k] = q[1:]
				b.Counters.addDiscarded(k)
				evicted = true
			}
		}
		if !evicted {
			return
		}
	}
}
