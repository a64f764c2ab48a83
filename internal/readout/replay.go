package readout

import (
	"encoding/binary"

	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
)

// ReplayWorker reads a previously archived listfile and feeds the same
// snoop queue a live Worker would, spec.md §4.3 "On replay, the Readout
// Worker is replaced by a Replay Worker that reads from an archive and
// feeds the same snoop queue."
type ReplayWorker struct {
	rd      *archive.Reader
	pool    *bufpool.Pool
	snoop   SnoopQueue
	log     clog.Clog
	dropped uint64
}

// NewReplayWorker creates a replay worker over an already-opened
// listfile reader.
func NewReplayWorker(rd *archive.Reader, pool *bufpool.Pool, snoop SnoopQueue, log clog.Clog) *ReplayWorker {
	return &ReplayWorker{rd: rd, pool: pool, snoop: snoop, log: log.WithPrefix("replay")}
}

// Run streams the listfile word-by-word, rechunking it into pool-sized
// buffers and publishing each to the snoop queue exactly as the live
// Worker would, so the analysis graph cannot tell replay from live
// acquisition apart.
func (w *ReplayWorker) Run() error {
	for {
		buf := w.pool.Acquire()
		n, err := w.fillOne(buf)
		if n == 0 {
			buf.Release()
			if err != nil {
				return nil // normal end of listfile
			}
			continue
		}
		buf.Data = buf.Data[:n]
		w.publishSnoop(buf)
		buf.Release()
	}
}

func (w *ReplayWorker) fillOne(buf *bufpool.Buffer) (int, error) {
	capacity := cap(buf.Data)
	buf.Data = buf.Data[:capacity]
	n := 0
	for n+4 <= capacity {
		word, err := w.rd.ReadWord()
		if err != nil {
			return n, err
		}
		binary.LittleEndian.PutUint32(buf.Data[n:n+4], word)
		n += 4
	}
	return n, nil
}

func (w *ReplayWorker) publishSnoop(buf *bufpool.Buffer) {
	buf.Retain()
	select {
	case w.snoop <- buf:
	default:
		w.dropped++
		buf.Release()
	}
}

// Dropped reports how many buffers were lost from the snoop path.
func (w *ReplayWorker) Dropped() uint64 { return w.dropped }
