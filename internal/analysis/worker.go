package analysis

import (
	"sync"

	"github.com/mesycraft/mvlcdaq/internal/clog"
)

// WorkerState is one of the stream worker's three states, spec.md §4.7
// "Pause/resume/single-step".
type WorkerState uint8

const (
	StateRunning WorkerState = iota
	StatePaused
	StateSingleStepping
)

// PhysicsEvent is one unit of snoop-queue input: a physics event index
// plus the realized module data feeding the graph's sources.
type PhysicsEvent struct {
	EventIndex int
	Modules    map[ModuleKey][]uint32
}

// StepRecord is published to the debug UI after each single-stepped
// event, spec.md §4.7 "publishes a record of what happened".
type StepRecord struct {
	EventIndex int
}

// StreamWorker drives a Graph over a snoop queue of physics events on
// its own goroutine, honoring pause/resume/single-step transitions.
// Being the sole writer into the graph, it needs no lock around
// Graph.RunEvent itself (spec.md §4.7 "Concurrency").
type StreamWorker struct {
	graph *Graph
	queue <-chan PhysicsEvent
	log   clog.Clog

	mu        sync.Mutex
	state     WorkerState
	resume    chan struct{}
	lastStep  StepRecord
}

// NewStreamWorker creates a worker reading from queue and evaluating graph.
func NewStreamWorker(graph *Graph, queue <-chan PhysicsEvent, log clog.Clog) *StreamWorker {
	return &StreamWorker{
		graph:  graph,
		queue:  queue,
		log:    log.WithPrefix("stream-worker"),
		state:  StateRunning,
		resume: make(chan struct{}, 1),
	}
}

// Run processes the snoop queue until it closes. It blocks entirely
// while Paused, and after SingleStepping one event it reverts to Paused.
func (w *StreamWorker) Run() {
	for ev := range w.queue {
		w.waitForRunnable()
		w.graph.RunEvent(ev.EventIndex, ev.Modules)

		w.mu.Lock()
		single := w.state == StateSingleStepping
		if single {
			w.lastStep = StepRecord{EventIndex: ev.EventIndex}
			w.state = StatePaused
		}
		w.mu.Unlock()
	}
}

// waitForRunnable blocks while Paused, returning immediately in Running
// or SingleStepping state.
func (w *StreamWorker) waitForRunnable() {
	for {
		w.mu.Lock()
		if w.state != StatePaused {
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()
		<-w.resume
	}
}

// Pause transitions to Paused; in-flight event processing finishes first.
func (w *StreamWorker) Pause() {
	w.mu.Lock()
	w.state = StatePaused
	w.mu.Unlock()
}

// Resume transitions back to Running and wakes a blocked Run loop.
func (w *StreamWorker) Resume() {
	w.mu.Lock()
	w.state = StateRunning
	w.mu.Unlock()
	select {
	case w.resume <- struct{}{}:
	default:
	}
}

// SingleStep allows exactly one more event through, then returns to
// Paused after it completes.
func (w *StreamWorker) SingleStep() {
	w.mu.Lock()
	w.state = StateSingleStepping
	w.mu.Unlock()
	select {
	case w.resume <- struct{}{}:
	default:
	}
}

// State returns the worker's current state.
func (w *StreamWorker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastStep returns the most recently published single-step record.
func (w *StreamWorker) LastStep() StepRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStep
}
