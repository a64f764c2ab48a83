package fanout

import (
	"sync"

	"github.com/mesycraft/mvlcdaq/internal/bufpool"
)

// CounterSampler is a buffer consumer that samples buffer sizes into
// Prometheus-shaped counters/gauges without parsing the buffer, spec.md
// §4.8 "Prometheus metrics exporter sampling counters" (one of the
// example buffer-consumer use cases named in the spec).
type CounterSampler struct {
	mu            sync.Mutex
	buffersSeen   uint64
	bytesSeen     uint64
	lastBufferNum uint64
}

var _ BufferConsumer = (*CounterSampler)(nil)

// NewCounterSampler creates an empty sampler.
func NewCounterSampler() *CounterSampler {
	return &CounterSampler{}
}

// Buffer implements BufferConsumer.
func (s *CounterSampler) Buffer(buf *bufpool.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffersSeen++
	s.bytesSeen += uint64(len(buf.Data))
	s.lastBufferNum = buf.Number
}

// CounterSample is a point-in-time snapshot exposed to a metrics scrape.
type CounterSample struct {
	BuffersSeen   uint64
	BytesSeen     uint64
	LastBufferNum uint64
}

// Snapshot returns the sampler's current counters.
func (s *CounterSampler) Snapshot() CounterSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CounterSample{
		BuffersSeen:   s.buffersSeen,
		BytesSeen:     s.bytesSeen,
		LastBufferNum: s.lastBufferNum,
	}
}
