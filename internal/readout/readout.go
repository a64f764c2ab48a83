// Package readout implements the readout worker, spec.md §4.3: it owns
// one controller for a run, drives its data channel, writes the split
// archive, and best-effort publishes buffers to the live analysis snoop
// queue.
package readout

import (
	"context"
	"time"

	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/command"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

// StartScripts holds the register writes executed in order when a run
// starts (global-start, then multicast-start), spec.md §4.3 step 1.
type StartScripts struct {
	GlobalStart    []RegisterWrite
	MulticastStart []RegisterWrite
}

// StopScripts holds the register writes executed in order when a run
// stops (multicast-stop, then global-stop), spec.md §4.3 step 4.
type StopScripts struct {
	MulticastStop []RegisterWrite
	GlobalStop    []RegisterWrite
}

// RegisterWrite is one (address, value) pair applied via the controller's
// register channel.
type RegisterWrite = command.RegisterWrite

// SnoopQueue is the best-effort channel feeding the stream worker; a full
// queue causes the buffer to be dropped from the live-analysis path only,
// never from the archive, spec.md §4.3 "Backpressure discipline".
type SnoopQueue chan<- *bufpool.Buffer

// Worker drives one controller for the duration of a run.
type Worker struct {
	ctrl    transport.Controller
	pool    *bufpool.Pool
	arc     *archive.Writer
	snoop   SnoopQueue
	log     clog.Clog
	dropped uint64

	timeTickEvery time.Duration
}

// NewWorker creates a readout worker over an already-open controller and
// archive writer.
func NewWorker(ctrl transport.Controller, pool *bufpool.Pool, arc *archive.Writer, snoop SnoopQueue, log clog.Clog) *Worker {
	return &Worker{
		ctrl:          ctrl,
		pool:          pool,
		arc:           arc,
		snoop:         snoop,
		log:           log.WithPrefix("readout"),
		timeTickEvery: 1 * time.Second,
	}
}

// Prepare uploads stacks (the caller has already compiled and built the
// upload program via command.BuildUploadProgram), writes trigger register
// values, then runs the start scripts in the order spec.md §4.3 step 1
// requires.
func (w *Worker) Prepare(ctx context.Context, uploadProgram []RegisterWrite, triggerWrites []RegisterWrite, start StartScripts) error {
	for _, rw := range uploadProgram {
		if err := w.ctrl.WriteRegister(ctx, rw.Address, rw.Value); err != nil {
			return err
		}
	}
	for _, rw := range triggerWrites {
		if err := w.ctrl.WriteRegister(ctx, rw.Address, rw.Value); err != nil {
			return err
		}
	}
	for _, rw := range start.GlobalStart {
		if err := w.ctrl.WriteRegister(ctx, rw.Address, rw.Value); err != nil {
			return err
		}
	}
	for _, rw := range start.MulticastStart {
		if err := w.ctrl.WriteRegister(ctx, rw.Address, rw.Value); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the acquire loop until ctx is canceled, then runs stop
// per spec.md §4.3 step 4.
func (w *Worker) Run(ctx context.Context, stop StopScripts) error {
	defer w.runStopScripts(context.Background(), stop)

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		buf := w.pool.Acquire()
		n, err := w.ctrl.ReadData(ctx, buf.Data[:cap(buf.Data)], 100*time.Millisecond)
		if err != nil {
			buf.Release()
			return err
		}
		buf.Data = buf.Data[:n]

		if n > 0 {
			if err := w.arc.WriteRaw(buf.Data); err != nil {
				buf.Release()
				return err
			}
			w.publishSnoop(buf)
			buf.Release()
		} else {
			buf.Release()
		}

		if time.Since(lastTick) >= w.timeTickEvery {
			w.insertTimeTick()
			lastTick = time.Now()
		}
	}
}

// publishSnoop hands buf to the snoop queue on a best-effort basis,
// spec.md §4.3 step 3: "If the snoop queue is full, drop the buffer from
// the snoop path only ... and increment a loss counter."
func (w *Worker) publishSnoop(buf *bufpool.Buffer) {
	buf.Retain()
	select {
	case w.snoop <- buf:
	default:
		w.dropped++
		buf.Release()
	}
}

// Dropped reports how many buffers were lost from the snoop path.
func (w *Worker) Dropped() uint64 { return w.dropped }

// insertTimeTick writes a synthetic TimeTick system event into both the
// archive and the snoop queue, spec.md §4.3 step 3.
func (w *Worker) insertTimeTick() {
	hdr := frame.Header{Type: frame.TypeSystemEvent, Length: 0, SysType: frame.SysEventTimeTick}
	word := hdr.Encode()
	w.arc.WriteWords([]uint32{word})

	buf := w.pool.Acquire()
	buf.Data = append(buf.Data[:0], byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
	w.publishSnoop(buf)
	buf.Release()
}

func (w *Worker) runStopScripts(ctx context.Context, stop StopScripts) {
	for _, rw := range stop.MulticastStop {
		w.ctrl.WriteRegister(ctx, rw.Address, rw.Value)
	}
	for _, rw := range stop.GlobalStop {
		w.ctrl.WriteRegister(ctx, rw.Address, rw.Value)
	}
	endRun := frame.Header{Type: frame.TypeSystemEvent, Length: 0, SysType: frame.SysEventEndRun}
	w.arc.WriteWords([]uint32{endRun.Encode()})
}
