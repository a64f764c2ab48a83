package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

func TestWriteAndReadBackListfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run001.zip")

	w, err := Create(path, transport.KindUSB, "listfile.mvlclst", RotationPolicy{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteCrateConfig([]uint32{1, 2, 3}); err != nil {
		t.Fatalf("WriteCrateConfig: %v", err)
	}
	if err := w.WriteEmbeddedVMEConfig([]uint32{4, 5}); err != nil {
		t.Fatalf("WriteEmbeddedVMEConfig: %v", err)
	}
	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: 2, StackID: 0}
	if err := w.WriteWords([]uint32{stackHdr.Encode(), 0xAA, 0xBB}); err != nil {
		t.Fatalf("WriteWords: %v", err)
	}
	if err := w.WriteMessagesLog("run started\n"); err != nil {
		t.Fatalf("WriteMessagesLog: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	rd, closer, err := OpenListfile(path, "listfile.mvlclst")
	if err != nil {
		t.Fatalf("OpenListfile: %v", err)
	}
	defer closer.Close()

	if rd.Magic() != "MVLC_USB" {
		t.Fatalf("got magic %q, want MVLC_USB", rd.Magic())
	}

	var types []frame.Type
	var sysTypes []frame.SystemEventType
	err = ScanFrames(rd, Filter{}, func(hdr frame.Header, payload []uint32) error {
		types = append(types, hdr.Type)
		if hdr.Type == frame.TypeSystemEvent {
			sysTypes = append(sysTypes, hdr.SysType)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanFrames: %v", err)
	}

	want := []frame.SystemEventType{frame.SysEventCrateConfig, frame.SysEventEmbeddedVMEConfig, frame.SysEventEndOfFile}
	if len(sysTypes) != len(want) {
		t.Fatalf("got system events %v, want %v", sysTypes, want)
	}
	for i := range want {
		if sysTypes[i] != want[i] {
			t.Fatalf("system event %d: got %v, want %v", i, sysTypes[i], want[i])
		}
	}

	var sawStackFrame bool
	for _, ty := range types {
		if ty == frame.TypeStackFrame {
			sawStackFrame = true
		}
	}
	if !sawStackFrame {
		t.Fatalf("expected to see the StackFrame among scanned frames")
	}
}

func TestRotationBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rot.zip")

	w, err := Create(path, transport.KindEthernet, "listfile.mvlclst", RotationPolicy{MaxBytes: 20})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.WriteWords([]uint32{uint32(i)}); err != nil {
			t.Fatalf("WriteWords: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.partNum < 2 {
		t.Fatalf("expected at least one rotation, got partNum=%d", w.partNum)
	}
}

func TestFilterKeepsOnlySelectedSystemEvents(t *testing.T) {
	f := Filter{
		Types:        map[frame.Type]bool{frame.TypeSystemEvent: true},
		SystemEvents: map[frame.SystemEventType]bool{frame.SysEventCrateConfig: true},
	}
	if !f.Keep(frame.Header{Type: frame.TypeSystemEvent, SysType: frame.SysEventCrateConfig}) {
		t.Fatal("expected CrateConfig to pass filter")
	}
	if f.Keep(frame.Header{Type: frame.TypeSystemEvent, SysType: frame.SysEventEndOfFile}) {
		t.Fatal("expected EndOfFile to be filtered out")
	}
	if f.Keep(frame.Header{Type: frame.TypeStackFrame}) {
		t.Fatal("expected StackFrame to be filtered out")
	}
}
