package fanout

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/mesycraft/mvlcdaq/internal/clog"
)

// ThrottledLogger is the leaky-bucket throttled logger the core offers
// to consumers, spec.md §4.8 "a throttled logger (leaky-bucket, N events
// per second with overflow counter)".
type ThrottledLogger struct {
	limiter *rate.Limiter
	log     clog.Clog

	mu        sync.Mutex
	suppressed uint64
}

// NewThrottledLogger creates a logger allowing up to eventsPerSecond
// Info-level calls through, with bursts up to burst.
func NewThrottledLogger(log clog.Clog, eventsPerSecond float64, burst int) *ThrottledLogger {
	return &ThrottledLogger{
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), burst),
		log:     log,
	}
}

// Info logs msg/kv if the leaky bucket has capacity, otherwise counts
// the call as suppressed.
func (t *ThrottledLogger) Info(msg string, kv ...interface{}) {
	if t.limiter.Allow() {
		t.log.Info(msg, kv...)
		return
	}
	t.mu.Lock()
	t.suppressed++
	t.mu.Unlock()
}

// Suppressed returns how many Info calls were dropped by the bucket.
func (t *ThrottledLogger) Suppressed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
