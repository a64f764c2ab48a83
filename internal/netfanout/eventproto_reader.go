package netfanout

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ReadMessageType peeks the next message's type tag.
func ReadMessageType(r io.Reader) (MessageType, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return MessageType(b[0]), nil
}

// ReadBeginRunBody reads a BeginRunMessage's body (the type tag must
// already have been consumed via ReadMessageType).
func ReadBeginRunBody(r io.Reader) (BeginRunMessage, error) {
	runID, err := readString(r)
	if err != nil {
		return BeginRunMessage{}, err
	}
	n, err := readUint32(r)
	if err != nil {
		return BeginRunMessage{}, err
	}
	sources := make([]SourceWidth, n)
	for i := range sources {
		name, err := readString(r)
		if err != nil {
			return BeginRunMessage{}, err
		}
		var widths [2]byte
		if _, err := io.ReadFull(r, widths[:]); err != nil {
			return BeginRunMessage{}, err
		}
		sources[i] = SourceWidth{Name: name, IndexBytes: widths[0], ValueBytes: widths[1]}
	}
	return BeginRunMessage{RunID: runID, Sources: sources}, nil
}

// ReadEventDataBody reads an EventDataMessage's body.
func ReadEventDataBody(r io.Reader) (EventDataMessage, error) {
	eventIndex, err := readUint32(r)
	if err != nil {
		return EventDataMessage{}, err
	}
	name, err := readString(r)
	if err != nil {
		return EventDataMessage{}, err
	}
	n, err := readUint32(r)
	if err != nil {
		return EventDataMessage{}, err
	}
	pairs := make([]IndexValuePair, n)
	for i := range pairs {
		idx, err := readUint32(r)
		if err != nil {
			return EventDataMessage{}, err
		}
		bits, err := readUint64(r)
		if err != nil {
			return EventDataMessage{}, err
		}
		pairs[i] = IndexValuePair{Index: idx, Value: math.Float64frombits(bits)}
	}
	return EventDataMessage{EventIndex: int(eventIndex), SourceName: name, Pairs: pairs}, nil
}

// ReadEndRunBody reads an EndRunMessage's body.
func ReadEndRunBody(r io.Reader) (EndRunMessage, error) {
	reason, err := readString(r)
	if err != nil {
		return EndRunMessage{}, err
	}
	return EndRunMessage{Reason: reason}, nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("netfanout: implausible string length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
