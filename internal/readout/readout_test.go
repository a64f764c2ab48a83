package readout

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

type fakeController struct {
	reads    [][]byte
	writes   []RegisterWrite
	readIdx  int
}

func (c *fakeController) WriteRegister(ctx context.Context, addr uint16, value uint32) error {
	c.writes = append(c.writes, RegisterWrite{Address: addr, Value: value})
	return nil
}
func (c *fakeController) ReadRegister(ctx context.Context, addr uint16) (uint32, error) {
	return 0, nil
}
func (c *fakeController) ReadData(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if c.readIdx >= len(c.reads) {
		return 0, nil
	}
	data := c.reads[c.readIdx]
	c.readIdx++
	n := copy(buf, data)
	return n, nil
}
func (c *fakeController) Close() error { return nil }

var _ transport.Controller = (*fakeController)(nil)

func TestWorkerPrepareAndRunWritesArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.zip")
	arc, err := archive.Create(path, transport.KindUSB, "listfile.mvlclst", archive.RotationPolicy{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: 1, StackID: 0}
	buf := make([]byte, 8)
	encodeWord(buf[0:4], stackHdr.Encode())
	encodeWord(buf[4:8], 0xAA)

	ctrl := &fakeController{reads: [][]byte{buf}}
	pool := bufpool.New(4, 4096)
	snoop := make(chan *bufpool.Buffer, 4)

	w := NewWorker(ctrl, pool, arc, snoop, clog.NewLogger("test"))
	w.timeTickEvery = time.Hour // disable tick insertion for this test

	if err := w.Prepare(context.Background(), nil, nil, StartScripts{}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx, StopScripts{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case b := <-snoop:
		if len(b.Data) != 8 {
			t.Fatalf("got snoop buffer len %d, want 8", len(b.Data))
		}
		b.Release()
	default:
		t.Fatal("expected a buffer on the snoop queue")
	}

	if err := arc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive missing: %v", err)
	}
}

func encodeWord(b []byte, w uint32) {
	b[0] = byte(w)
	b[1] = byte(w >> 8)
	b[2] = byte(w >> 16)
	b[3] = byte(w >> 24)
}
