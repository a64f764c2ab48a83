// Package transport defines the duplex connection to a single MVLC
// controller: a blocking register read/write channel and a streaming data
// channel, spec.md §4.2. usb and eth provide the two concrete framings.
package transport

import (
	"context"
	"errors"
	"time"
)

// Errors surfaced by register access and data reads, spec.md §4.2 "Failures".
var (
	ErrConnectionLost = errors.New("transport: connection lost")
	ErrTimeout        = errors.New("transport: timeout")
	ErrBusError       = errors.New("transport: bus error")
	ErrSyntaxError    = errors.New("transport: syntax error")
)

// Controller is the duplex connection owned by exactly one Readout Worker
// for the lifetime of a run. Implementations (usb.Transport, eth.Transport)
// differ only in how the data channel delivers raw buffers.
type Controller interface {
	// WriteRegister issues a single register write and waits for the
	// controller's response. Protected by a per-connection mutex so
	// register access is strictly ordered, spec.md §4.2 "Ordering".
	WriteRegister(ctx context.Context, addr uint16, value uint32) error

	// ReadRegister issues a single register read and returns its value.
	ReadRegister(ctx context.Context, addr uint16) (uint32, error)

	// ReadData fills up to len(buf) bytes from the data channel. It
	// returns (0, nil) on an idle-poll timeout, a positive count on
	// partial or full success, and a non-nil error only on a fatal
	// condition (spec.md §4.2 "read_data").
	ReadData(ctx context.Context, buf []byte, timeout time.Duration) (int, error)

	// Close releases the underlying device handle or socket.
	Close() error
}

// Kind identifies which framing a Controller uses, needed by the stream
// parser to select its Ethernet-specific reassembly logic (spec.md §4.4).
type Kind uint8

const (
	KindUSB Kind = iota
	KindEthernet
)

// ListfileMagic returns the 8-byte ASCII magic the split archive (spec.md
// §6.1) stamps at the start of a listfile for transport k.
func (k Kind) ListfileMagic() string {
	switch k {
	case KindUSB:
		return "MVLC_USB"
	case KindEthernet:
		return "MVLC_ETH"
	default:
		return "MVLC_???"
	}
}
