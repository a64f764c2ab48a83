package eventbuilder

import "sync"

// Counters tracks per-module event-builder diagnostics, spec.md §4.6
// "recording them as discardedEvents" / "recorded as emptyModuleData".
type Counters struct {
	mu               sync.Mutex
	DiscardedEvents  map[ModuleKey]uint64
	EmptyModuleData  map[ModuleKey]uint64
	ExtractFailures  map[ModuleKey]uint64
}

func newCounters() *Counters {
	return &Counters{
		DiscardedEvents: make(map[ModuleKey]uint64),
		EmptyModuleData: make(map[ModuleKey]uint64),
		ExtractFailures: make(map[ModuleKey]uint64),
	}
}

func (c *Counters) addDiscarded(k ModuleKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.DiscardedEvents[k]++
}

func (c *Counters) addEmpty(k ModuleKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EmptyModuleData[k]++
}

func (c *Counters) addExtractFailure(k ModuleKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ExtractFailures[k]++
}

// Snapshot returns a deep copy safe for concurrent readers.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := Counters{
		DiscardedEvents: make(map[ModuleKey]uint64, len(c.DiscardedEvents)),
		EmptyModuleData: make(map[ModuleKey]uint64, len(c.EmptyModuleData)),
		ExtractFailures: make(map[ModuleKey]uint64, len(c.ExtractFailures)),
	}
	for k, v := range c.DiscardedEvents {
		cp.DiscardedEvents[k] = v
	}
	for k, v := range c.EmptyModuleData {
		cp.EmptyModuleData[k] = v
	}
	for k, v := range c.ExtractFailures {
		cp.ExtractFailures[k] = v
	}
	return cp
}
