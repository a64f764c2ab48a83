package netfanout

import (
	"encoding/binary"
	"io"
	"math"
)

// MessageType tags the event-oriented protocol's typed messages,
// spec.md §6.2 "An alternative event-oriented protocol exposes
// structured events as a sequence of typed messages (BeginRun,
// EventData, EndRun)".
type MessageType uint8

const (
	MsgBeginRun MessageType = iota + 1
	MsgEventData
	MsgEndRun
)

// SourceWidth announces one source's per-event index/value storage
// widths, advertised once in BeginRun.
type SourceWidth struct {
	Name        string
	IndexBytes  uint8
	ValueBytes  uint8
}

// BeginRunMessage opens an event-oriented session.
type BeginRunMessage struct {
	RunID   string
	Sources []SourceWidth
}

// IndexValuePair is one (parameter index, value) entry within an
// EventData message.
type IndexValuePair struct {
	Index uint32
	Value float64
}

// EventDataMessage carries one physics event's packed (index, value)
// pairs for one source.
type EventDataMessage struct {
	EventIndex int
	SourceName string
	Pairs      []IndexValuePair
}

// EndRunMessage closes an event-oriented session.
type EndRunMessage struct {
	Reason string
}

// WriteBeginRun serializes m to w.
func WriteBeginRun(w io.Writer, m BeginRunMessage) error {
	if err := writeMessageType(w, MsgBeginRun); err != nil {
		return err
	}
	if err := writeString(w, m.RunID); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Sources))); err != nil {
		return err
	}
	for _, s := range m.Sources {
		if err := writeString(w, s.Name); err != nil {
			return err
		}
		if _, err := w.Write([]byte{s.IndexBytes, s.ValueBytes}); err != nil {
			return err
		}
	}
	return nil
}

// WriteEventData serializes m to w.
func WriteEventData(w io.Writer, m EventDataMessage) error {
	if err := writeMessageType(w, MsgEventData); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.EventIndex)); err != nil {
		return err
	}
	if err := writeString(w, m.SourceName); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Pairs))); err != nil {
		return err
	}
	for _, p := range m.Pairs {
		if err := writeUint32(w, p.Index); err != nil {
			return err
		}
		if err := writeUint64(w, floatBits(p.Value)); err != nil {
			return err
		}
	}
	return nil
}

// WriteEndRun serializes m to w.
func WriteEndRun(w io.Writer, m EndRunMessage) error {
	if err := writeMessageType(w, MsgEndRun); err != nil {
		return err
	}
	return writeString(w, m.Reason)
}

func writeMessageType(w io.Writer, t MessageType) error {
	_, err := w.Write([]byte{byte(t)})
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}
