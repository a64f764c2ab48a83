package archive

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mesycraft/mvlcdaq/internal/frame"
)

// Reader streams frames back out of one listfile entry within a split
// archive, reversing Writer's framing.
type Reader struct {
	r     io.Reader
	magic string
	swap  bool
}

// OpenListfile opens the named entry within a ZIP archive at path and
// validates its magic/endian preamble.
func OpenListfile(path, entryName string) (*Reader, io.Closer, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, nil, err
		}
		rd, err := newReader(rc)
		if err != nil {
			rc.Close()
			zr.Close()
			return nil, nil, err
		}
		return rd, zr, nil
	}
	zr.Close()
	return nil, nil, fmt.Errorf("archive: entry %q not found in %s", entryName, path)
}

func newReader(r io.Reader) (*Reader, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("archive: short listfile preamble: %w", err)
	}
	magic := string(hdr[:8])
	if magic != "MVLC_USB" && magic != "MVLC_ETH" {
		return nil, fmt.Errorf("archive: unrecognized magic %q", magic)
	}
	marker := binary.LittleEndian.Uint32(hdr[8:12])
	return &Reader{r: r, magic: magic, swap: marker != endianMarker}, nil
}

// Magic returns the transport magic recorded when the listfile was
// written.
func (r *Reader) Magic() string { return r.magic }

// ReadWord reads the next 32-bit word, honoring a byte-swap if the
// writer's endianness differed from this reader's.
func (r *Reader) ReadWord() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	w := binary.LittleEndian.Uint32(b[:])
	if r.swap {
		w = (w>>24)&0xFF | (w>>8)&0xFF00 | (w<<8)&0xFF0000 | (w << 24)
	}
	return w, nil
}

// Filter selects which frames a listfile scan should keep, spec.md §6.1
// framing plus the filtering need implied by replay tooling working on
// archived listfiles (e.g. extracting just SystemEvent frames for
// inspection).
type Filter struct {
	Types        map[frame.Type]bool
	SystemEvents map[frame.SystemEventType]bool
}

// Keep reports whether hdr passes the filter. A nil/zero Filter keeps
// everything.
func (f Filter) Keep(hdr frame.Header) bool {
	if len(f.Types) > 0 && !f.Types[hdr.Type] {
		return false
	}
	if hdr.Type == frame.TypeSystemEvent && len(f.SystemEvents) > 0 && !f.SystemEvents[hdr.SysType] {
		return false
	}
	return true
}

// ScanFrames reads successive frame headers and their payloads from r,
// invoking visit with both for each frame that passes filter. It stops at
// EOF or the first SystemEvent(EndOfFile).
func ScanFrames(r *Reader, filter Filter, visit func(hdr frame.Header, payload []uint32) error) error {
	for {
		w, err := r.ReadWord()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		hdr := frame.DecodeHeader(w)
		payload := make([]uint32, hdr.Length)
		for i := range payload {
			pw, err := r.ReadWord()
			if err != nil {
				return fmt.Errorf("archive: truncated frame payload: %w", err)
			}
			payload[i] = pw
		}
		if filter.Keep(hdr) {
			if err := visit(hdr, payload); err != nil {
				return err
			}
		}
		if hdr.Type == frame.TypeSystemEvent && hdr.SysType == frame.SysEventEndOfFile {
			return nil
		}
	}
}
