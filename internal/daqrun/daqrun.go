// Package daqrun wires together one DAQ run: the readout worker, the
// stream parser, the splitter/event-builder stages, the analysis graph,
// and fan-out. The readout (or replay) worker and the stream worker each
// run on their own goroutine; the parser, splitter, event builder,
// analysis graph and fan-out dispatch all run on the stream worker's
// goroutine.
package daqrun

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mesycraft/mvlcdaq/internal/analysis"
	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/eventbuilder"
	"github.com/mesycraft/mvlcdaq/internal/fanout"
	"github.com/mesycraft/mvlcdaq/internal/readout"
	"github.com/mesycraft/mvlcdaq/internal/remote"
	"github.com/mesycraft/mvlcdaq/internal/splitter"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

// Config bundles everything needed to run one crate for one run.
type Config struct {
	CrateID      uint8
	Kind         transport.Kind
	Layout       streamparser.CrateLayout
	SnoopDepth   int
	ArchivePath  string
	ListfileBase string
	Rotation     archive.RotationPolicy

	// Splitting configures multi-event splitting per readout event index,
	// spec.md §4.5. A nil map disables the splitter stage entirely.
	Splitting map[int]splitter.EventConfig

	// BuildEvents enables the multi-crate event builder, spec.md §4.6. If
	// false, each crate's realized module data feeds the analysis graph
	// directly, one readout event at a time.
	BuildEvents        bool
	BuilderConfig      eventbuilder.Config
	BuilderKeys        []eventbuilder.ModuleKey
	TimestampExtractor eventbuilder.TimestampExtractor
}

// Run owns one active acquisition: the worker, the parser, the graph,
// and the fan-out registry, plus the goroutine group supervising them.
type Run struct {
	ID       string
	cfg      Config
	log      clog.Clog
	group    *errgroup.Group
	groupCtx context.Context
	cancel   context.CancelFunc

	Pool     *bufpool.Pool
	Archive  *archive.Writer
	Parser   *streamparser.Parser
	Graph    *analysis.Graph
	Registry *fanout.Registry
	// Splitter is nil when Config.Splitting is nil.
	Splitter *splitter.Adapter
	// Builder is nil when Config.BuildEvents is false.
	Builder *eventbuilder.Builder

	snoop chan *bufpool.Buffer
}

// New prepares (but does not start) a run: opens the archive, builds the
// parser and its downstream callback chain, and allocates the buffer
// pool, spec.md §4.3 step 2 "Open archive".
func New(ctx context.Context, cfg Config, graph *analysis.Graph, poolSize, bufCapacity int, log clog.Clog) (*Run, error) {
	arc, err := archive.Create(cfg.ArchivePath, cfg.Kind, cfg.ListfileBase, cfg.Rotation)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	registry := fanout.NewRegistry()
	snoop := make(chan *bufpool.Buffer, cfg.SnoopDepth)

	r := &Run{
		ID:       uuid.NewString(),
		cfg:      cfg,
		log:      log.WithPrefix("daqrun"),
		group:    g,
		groupCtx: gctx,
		cancel:   cancel,
		Pool:     bufpool.New(poolSize, bufCapacity),
		Archive:  arc,
		Graph:    graph,
		Registry: registry,
		snoop:    snoop,
	}

	// Build the downstream callback chain innermost-first: fan-out is the
	// terminus every stage forwards to unchanged, spec.md §4.5/§4.6/§4.7
	// describe the splitter, event builder and analysis graph as
	// successive stages between the parser and the rest of the system.
	var cb streamparser.Callbacks = registry.AsCallbacks()

	if cfg.BuildEvents {
		r.Builder = eventbuilder.NewBuilder(cfg.BuilderConfig, cfg.BuilderKeys, cfg.TimestampExtractor)
	}
	graphAdapter := newEventGraphAdapter(cfg.CrateID, cb, r.Builder, graph)
	cb = graphAdapter

	if cfg.Splitting != nil {
		r.Splitter = splitter.NewAdapter(cfg.Splitting, cb)
		cb = r.Splitter
	}

	r.Parser = streamparser.New(cfg.CrateID, cfg.Kind, cfg.Layout, cb, r.log)
	return r, nil
}

// Snoop exposes the run's snoop queue so the caller can construct a
// readout.Worker or readout.ReplayWorker bound to it.
func (r *Run) Snoop() readout.SnoopQueue { return r.snoop }

// StartReadout launches the readout worker goroutine, spec.md §5 "Readout".
func (r *Run) StartReadout(w *readout.Worker, stop readout.StopScripts) {
	r.group.Go(func() error {
		return w.Run(r.groupCtx, stop)
	})
}

// StartReplay launches a replay worker goroutine in place of live
// readout, spec.md §4.3 "On replay, the Readout Worker is replaced by a
// Replay Worker that reads from an archive and feeds the same snoop
// queue."
func (r *Run) StartReplay(w *readout.ReplayWorker) {
	r.group.Go(func() error {
		return w.Run()
	})
}

// StartStreamWorker launches the stream worker goroutine, spec.md §5
// "Stream Worker": dequeue snoop, feed the parser (which drives the
// analysis graph via the registered downstream callbacks), repeat until
// the snoop channel closes or the run is canceled.
func (r *Run) StartStreamWorker() {
	r.group.Go(func() error {
		for {
			select {
			case <-r.groupCtx.Done():
				return nil
			case buf, ok := <-r.snoop:
				if !ok {
					return nil
				}
				r.Registry.Dispatch(buf)
				if r.cfg.Kind == transport.KindEthernet {
					r.Parser.ParsePacket(0, buf.Data)
				} else {
					r.Parser.ParseBuffer(buf.Data)
				}
				buf.Release()
			}
		}
	})
}

// Stop cancels the run's goroutines and waits for them to return, then
// closes the archive, spec.md §4.3 step 4 "close the archive".
func (r *Run) Stop() error {
	r.cancel()
	err := r.group.Wait()
	if closeErr := r.Archive.Close(); err == nil {
		err = closeErr
	}
	return err
}

// RemoteState adapts a Run's counters to remote.StateProvider, spec.md §6.3.
type RemoteState struct {
	Run *Run
}

var _ remote.StateProvider = (*RemoteState)(nil)

func (s *RemoteState) SystemState() remote.SystemState {
	return remote.SystemState{RunState: "running", RunID: s.Run.ID, ControllerConnected: true}
}

func (s *RemoteState) DAQStats() remote.DAQStats {
	snap := s.Run.Parser.Counters.Snapshot()
	return remote.DAQStats{
		BuffersRead: snap.BuffersProcessed,
		BytesRead:   snap.BytesProcessed,
		Exceptions:  snap.ParserExceptions,
	}
}
