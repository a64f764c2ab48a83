package splitter

import "sync"

// Counters tracks per-module size-exceeded diagnostics, mirroring the
// mutex-guarded snapshot pattern used by internal/streamparser.
type Counters struct {
	mu                sync.Mutex
	SizeExceededWords map[int]uint64
}

func newCounters() *Counters {
	return &Counters{SizeExceededWords: make(map[int]uint64)}
}

func (c *Counters) addSizeExceeded(moduleIndex, words int) {
	if words == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SizeExceededWords[moduleIndex] += uint64(words)
}

// Snapshot returns a deep copy safe for concurrent readers.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[int]uint64, len(c.SizeExceededWords))
	for k, v := range c.SizeExceededWords {
		cp[k] = v
	}
	return Counters{SizeExceededWords: cp}
}
