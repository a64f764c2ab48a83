package daqrun

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesycraft/mvlcdaq/internal/analysis"
	"github.com/mesycraft/mvlcdaq/internal/archive"
	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/readout"
	"github.com/mesycraft/mvlcdaq/internal/streamparser"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

func oneModuleLayout() streamparser.CrateLayout {
	return streamparser.CrateLayout{Events: []streamparser.EventLayout{
		{Modules: []streamparser.ModuleLayout{{HasDynamic: true}}},
	}}
}

func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// TestRunFeedsParserSplitterAndGraph exercises the full chain New() wires
// together: parser -> splitter -> event builder -> analysis graph, with
// fan-out as the common terminus, spec.md §4.5/§4.6/§4.7.
func TestRunFeedsParserSplitterAndGraph(t *testing.T) {
	dir := t.TempDir()

	graph := analysis.NewGraph(1)
	src := &analysis.Source{
		CrateID: 0, EventIndex: 0, ModuleIndex: 0, ParamCount: 1,
		Filters: []analysis.BitMatchFilter{{Mask: 0xFFFF0000, Value: 0x00000000, Shift: 0, ParamIndex: 0}},
		Output:  analysis.NewPipe(1),
	}
	graph.AddSource(src)
	hist := analysis.NewHistogram1D("data", 0, 0, 0, 100, 10)
	graph.AddSink(hist, src.Output)
	require.NoError(t, graph.Build())

	cfg := Config{
		CrateID:      0,
		Kind:         transport.KindUSB,
		Layout:       oneModuleLayout(),
		SnoopDepth:   4,
		ArchivePath:  filepath.Join(dir, "run.zip"),
		ListfileBase: "listfile.mvlclst",
	}

	r, err := New(context.Background(), cfg, graph, 4, 4096, clog.NewLogger("test"))
	require.NoError(t, err)
	r.StartStreamWorker()

	data := make([]uint32, 4)
	for i := range data {
		data[i] = uint32(i)
	}
	blockHdr := frame.Header{Type: frame.TypeBlockRead, Length: uint16(len(data))}
	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: uint16(1 + len(data)), StackID: 0}
	words := []uint32{stackHdr.Encode(), blockHdr.Encode()}
	words = append(words, data...)

	buf := r.Pool.Acquire()
	buf.Data = append(buf.Data[:0], wordsToBytes(words)...)
	r.Snoop() <- buf

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, r.Stop())

	snap := r.Parser.Counters.Snapshot()
	require.NotZero(t, snap.BuffersProcessed, "expected the parser to have processed at least one buffer")
	require.Zero(t, snap.ParserExceptions)

	histSnap := hist.Snapshot()
	require.NotZero(t, histSnap.Entries, "expected the analysis graph to have received at least one event")
}

// TestRunReplayFeedsSameChainAsLive exercises StartReplay: a listfile
// written by one run is read back and fed through a second run's parser
// via a replay worker instead of a live readout worker, spec.md §4.3
// "On replay, the Readout Worker is replaced by a Replay Worker."
func TestRunReplayFeedsSameChainAsLive(t *testing.T) {
	dir := t.TempDir()
	listfilePath := filepath.Join(dir, "src.zip")

	arc, err := archive.Create(listfilePath, transport.KindUSB, "listfile.mvlclst", archive.RotationPolicy{})
	require.NoError(t, err)

	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: 3, StackID: 0}
	words := []uint32{stackHdr.Encode(), 0x10, 0x20, 0x30}
	require.NoError(t, arc.WriteWords(words))
	require.NoError(t, arc.Close())

	rd, closer, err := archive.OpenListfile(listfilePath, "listfile.mvlclst")
	require.NoError(t, err)
	defer closer.Close()

	graph := analysis.NewGraph(1)
	require.NoError(t, graph.Build())

	cfg := Config{
		CrateID:      0,
		Kind:         transport.KindUSB,
		Layout:       streamparser.CrateLayout{Events: []streamparser.EventLayout{{Modules: []streamparser.ModuleLayout{{PrefixWords: 3}}}}},
		SnoopDepth:   4,
		ArchivePath:  filepath.Join(dir, "dst.zip"),
		ListfileBase: "listfile.mvlclst",
	}
	r, err := New(context.Background(), cfg, graph, 4, 4096, clog.NewLogger("test"))
	require.NoError(t, err)

	r.StartStreamWorker()
	r.StartReplay(readout.NewReplayWorker(rd, r.Pool, r.Snoop(), clog.NewLogger("test")))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Stop())

	snap := r.Parser.Counters.Snapshot()
	require.NotZero(t, snap.BuffersProcessed)
}
