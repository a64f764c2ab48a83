// Package fanout delivers analysis events and raw buffers to optional
// external consumers, spec.md §4.8. Consumers are invoked synchronously
// from the stream worker thread unless they opt into their own queue for
// isolation.
package fanout

import (
	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
)

// ModuleConsumer receives per-event callbacks identical to the analysis
// input, spec.md §4.8 "Module consumer".
type ModuleConsumer interface {
	BeginEvent(crateID uint8, eventIndex int)
	ModuleData(crateID uint8, eventIndex, moduleIndex int, data streamparser.ModuleData)
	EndEvent(crateID uint8, eventIndex int)
}

// BufferConsumer receives the unparsed raw buffer with its buffer
// number, spec.md §4.8 "Buffer consumer".
type BufferConsumer interface {
	Buffer(buf *bufpool.Buffer)
}

// OverflowPolicy decides what happens when a consumer's bounded queue is
// full, spec.md §4.8 "the consumer's own policy (drop / block) applies".
type OverflowPolicy uint8

const (
	PolicyDrop OverflowPolicy = iota
	PolicyBlock
)

// Registry fans buffer and module data out to any number of registered
// consumers, called synchronously in registration order.
type Registry struct {
	moduleConsumers []ModuleConsumer
	bufferConsumers []*QueuedBufferConsumer
}

// NewRegistry creates an empty fan-out registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddModuleConsumer registers a synchronous module consumer.
func (r *Registry) AddModuleConsumer(c ModuleConsumer) {
	r.moduleConsumers = append(r.moduleConsumers, c)
}

// AddBufferConsumer registers a buffer consumer behind a bounded queue of
// depth capacity, with overflow handled per policy.
func (r *Registry) AddBufferConsumer(c BufferConsumer, capacity int, policy OverflowPolicy) *QueuedBufferConsumer {
	q := newQueuedBufferConsumer(c, capacity, policy)
	r.bufferConsumers = append(r.bufferConsumers, q)
	return q
}

var _ streamparser.Callbacks = (*CallbackAdapter)(nil)

// CallbackAdapter lets a Registry's module consumers sit downstream of a
// streamparser.Callbacks chain (e.g. after the event builder or
// splitter), fanning BeginEvent, ModuleData and EndEvent out to each
// registered consumer. SystemEvent callbacks are not forwarded.
type CallbackAdapter struct {
	r *Registry
}

// AsCallbacks exposes the registry's module consumers as a single
// streamparser.Callbacks sink.
func (r *Registry) AsCallbacks() *CallbackAdapter {
	return &CallbackAdapter{r: r}
}

func (a *CallbackAdapter) BeginEvent(crateID uint8, eventIndex int) {
	for _, c := range a.r.moduleConsumers {
		c.BeginEvent(crateID, eventIndex)
	}
}

func (a *CallbackAdapter) ModuleData(crateID uint8, eventIndex, moduleIndex int, data streamparser.ModuleData) {
	for _, c := range a.r.moduleConsumers {
		c.ModuleData(crateID, eventIndex, moduleIndex, data)
	}
}

func (a *CallbackAdapter) EndEvent(crateID uint8, eventIndex int) {
	for _, c := range a.r.moduleConsumers {
		c.EndEvent(crateID, eventIndex)
	}
}

func (a *CallbackAdapter) SystemEvent(crateID uint8, subtype frame.SystemEventType, words []uint32) {}

// Dispatch raw buffers to all registered buffer consumers. The buffer's
// reference count is incremented once per consumer and released by each
// consumer when done, per spec.md §5 "Lifetimes are tracked with
// reference counts when fan-out is enabled."
func (r *Registry) Dispatch(buf *bufpool.Buffer) {
	for _, q := range r.bufferConsumers {
		buf.Retain()
		q.offer(buf)
	}
}
