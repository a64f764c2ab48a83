package fanout

import (
	"sync/atomic"

	"github.com/mesycraft/mvlcdaq/internal/bufpool"
)

// QueuedBufferConsumer runs one BufferConsumer on its own goroutine
// behind a bounded channel, spec.md §4.8 "Consumers that require
// isolation run in their own thread and expose a bounded queue; the
// synchronous call enqueues a reference and returns."
type QueuedBufferConsumer struct {
	consumer BufferConsumer
	ch       chan *bufpool.Buffer
	policy   OverflowPolicy

	dropped atomic.Uint64
}

func newQueuedBufferConsumer(c BufferConsumer, capacity int, policy OverflowPolicy) *QueuedBufferConsumer {
	q := &QueuedBufferConsumer{
		consumer: c,
		ch:       make(chan *bufpool.Buffer, capacity),
		policy:   policy,
	}
	go q.run()
	return q
}

func (q *QueuedBufferConsumer) run() {
	for buf := range q.ch {
		q.consumer.Buffer(buf)
		buf.Release()
	}
}

// offer enqueues buf per the consumer's overflow policy.
func (q *QueuedBufferConsumer) offer(buf *bufpool.Buffer) {
	switch q.policy {
	case PolicyBlock:
		q.ch <- buf
	default: // PolicyDrop
		select {
		case q.ch <- buf:
		default:
			q.dropped.Add(1)
			buf.Release()
		}
	}
}

// Dropped returns how many buffers this consumer's queue has discarded.
func (q *QueuedBufferConsumer) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops the consumer's goroutine once its queue drains.
func (q *QueuedBufferConsumer) Close() {
	close(q.ch)
}
