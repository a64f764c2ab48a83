// Package archive implements the split archive format, spec.md §6.1: a
// ZIP container holding the raw listfile, run messages, and serialized
// configuration, with a rotating file policy driven by size and/or
// duration thresholds.
package archive

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

// endianMarker lets a reader detect whether the writer's byte order
// matches its own, spec.md §6.1 "Listfile framing".
const endianMarker = 0x12345678

// RotationPolicy controls when the listfile entry (and, in the future,
// the container itself) rotates to a new part.
type RotationPolicy struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

// Writer produces one split archive: a ZIP container with a rotating
// listfile entry plus fixed sidecar entries.
type Writer struct {
	zw     *zip.Writer
	file   *os.File
	policy RotationPolicy

	kind         transport.Kind
	listfileBase string
	partNum      int

	cur        io.Writer
	curBytes   int64
	partStart  time.Time
}

// Create opens path as a new split archive for kind's transport, writing
// the listfile preamble (magic + endian marker) into the first part.
func Create(path string, kind transport.Kind, listfileBase string, policy RotationPolicy) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	w := &Writer{
		zw:           zip.NewWriter(f),
		file:         f,
		policy:       policy,
		kind:         kind,
		listfileBase: listfileBase,
	}
	if err := w.rotateListfile(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) listfileName() string {
	if w.partNum == 0 {
		return w.listfileBase
	}
	return fmt.Sprintf("%s_part%03d", w.listfileBase, w.partNum)
}

func (w *Writer) rotateListfile() error {
	entry, err := w.zw.Create(w.listfileName())
	if err != nil {
		return fmt.Errorf("archive: create listfile entry: %w", err)
	}
	w.cur = entry
	w.curBytes = 0
	w.partStart = startTime()
	w.partNum++

	magic := w.kind.ListfileMagic()
	if _, err := io.WriteString(entry, magic); err != nil {
		return err
	}
	var endianBuf [4]byte
	binary.LittleEndian.PutUint32(endianBuf[:], endianMarker)
	if _, err := entry.Write(endianBuf[:]); err != nil {
		return err
	}
	w.curBytes += int64(len(magic) + 4)
	return nil
}

// startTime is the clock behind duration-based rotation. It is a package
// variable so that a test can substitute a fake clock instead of sleeping.
var startTime = time.Now

// WriteCrateConfig emits the CrateConfig SystemEvent that must appear
// before EmbeddedVMEConfig, spec.md §6.1.
func (w *Writer) WriteCrateConfig(payload []uint32) error {
	return w.writeSystemEvent(frame.SysEventCrateConfig, payload)
}

// WriteEmbeddedVMEConfig emits the mvme configuration as a padded JSON
// SystemEvent, spec.md §6.1.
func (w *Writer) WriteEmbeddedVMEConfig(payload []uint32) error {
	return w.writeSystemEvent(frame.SysEventEmbeddedVMEConfig, payload)
}

func (w *Writer) writeSystemEvent(subtype frame.SystemEventType, payload []uint32) error {
	hdr := frame.Header{Type: frame.TypeSystemEvent, Length: uint16(len(payload)), SysType: subtype}
	return w.WriteWords(append([]uint32{hdr.Encode()}, payload...))
}

// WriteWords appends raw 32-bit words to the listfile, rotating first if
// the configured size threshold would be exceeded.
func (w *Writer) WriteWords(words []uint32) error {
	buf := make([]byte, len(words)*4)
	for i, word := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], word)
	}
	return w.WriteRaw(buf)
}

// WriteRaw appends raw bytes to the listfile, honoring the rotation
// policy.
func (w *Writer) WriteRaw(b []byte) error {
	if w.shouldRotate(int64(len(b))) {
		if err := w.rotateListfile(); err != nil {
			return err
		}
	}
	n, err := w.cur.Write(b)
	w.curBytes += int64(n)
	return err
}

func (w *Writer) shouldRotate(nextWrite int64) bool {
	if w.policy.MaxBytes > 0 && w.curBytes+nextWrite > w.policy.MaxBytes {
		return true
	}
	if w.policy.MaxDuration > 0 && startTime().Sub(w.partStart) > w.policy.MaxDuration {
		return true
	}
	return false
}

// WriteMessagesLog writes the messages.log sidecar entry.
func (w *Writer) WriteMessagesLog(text string) error {
	entry, err := w.zw.Create("messages.log")
	if err != nil {
		return err
	}
	_, err = io.WriteString(entry, text)
	return err
}

// WriteAnalysisConfig writes the analysis.analysis sidecar entry (JSON).
func (w *Writer) WriteAnalysisConfig(jsonBytes []byte) error {
	entry, err := w.zw.Create("analysis.analysis")
	if err != nil {
		return err
	}
	_, err = entry.Write(jsonBytes)
	return err
}

// WriteVMEConfig writes the <base>.vmeconfig sidecar entry (JSON).
func (w *Writer) WriteVMEConfig(base string, jsonBytes []byte) error {
	entry, err := w.zw.Create(base + ".vmeconfig")
	if err != nil {
		return err
	}
	_, err = entry.Write(jsonBytes)
	return err
}

// Close writes the EndOfFile SystemEvent and finalizes the ZIP container.
func (w *Writer) Close() error {
	if err := w.writeSystemEvent(frame.SysEventEndOfFile, nil); err != nil {
		w.file.Close()
		return err
	}
	if err := w.zw.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
