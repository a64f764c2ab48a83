// Package bufpool implements the bounded raw-buffer free-list described in
// spec.md §3 "Raw Buffer" and §5 "Resource policy": the Readout Worker
// takes buffers from the free-list, the consumer chain passes them by
// reference, and the last consumer returns each buffer to the free-list.
package bufpool

import "sync/atomic"

// Buffer is a pool-allocated raw buffer. Data is sized to cap and
// resliced to the bytes actually filled by the reader; Release must be
// called exactly once per acquisition of a reference (see Retain).
type Buffer struct {
	Data   []byte
	Number uint64

	pool    *Pool
	refs    int32
	scratch []byte // backing array, full capacity
}

// Retain adds a reference, e.g. when fanning a buffer out to more than one
// consumer (spec.md §5 "Lifetimes are tracked with reference counts when
// fan-out is enabled").
func (b *Buffer) Retain() {
	atomic.AddInt32(&b.refs, 1)
}

// Release drops a reference; once the last reference is released the
// buffer's backing array returns to the free-list.
func (b *Buffer) Release() {
	if atomic.AddInt32(&b.refs, -1) == 0 {
		b.pool.put(b)
	}
}

// Pool is a bounded free-list of fixed-capacity buffers, spec.md §5
// "bounded free-list (10x 1 MiB typical)".
type Pool struct {
	free chan *Buffer
	size int
}

// New creates a pool of n buffers, each with the given byte capacity.
func New(n int, capacity int) *Pool {
	p := &Pool{free: make(chan *Buffer, n), size: capacity}
	for i := 0; i < n; i++ {
		scratch := make([]byte, capacity)
		p.free <- &Buffer{scratch: scratch, pool: p}
	}
	return p
}

// Acquire blocks until a buffer is available. There is no bound on this
// wait: per spec.md §4.3 "Backpressure discipline" the archive writer is
// the authoritative consumer and the acquisition loop is expected to
// block on it rather than drop data.
func (p *Pool) Acquire() *Buffer {
	b := <-p.free
	b.Data = b.scratch[:0]
	b.refs = 1
	return b
}

func (p *Pool) put(b *Buffer) {
	p.free <- b
}

// Len reports the number of buffers currently available, useful for
// diagnostics/counters.
func (p *Pool) Len() int { return len(p.free) }

// Cap reports the configured pool depth.
func (p *Pool) Cap() int { return cap(p.free) }
