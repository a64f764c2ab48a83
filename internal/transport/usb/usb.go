// Package usb implements the MVLC USB transport: a command pipe for
// register access and a bulk-in data pipe delivering a raw byte stream
// (spec.md §4.2 "USB data channel"). It drives the device through
// github.com/karalabe/usb, the same hardware-HID wrapper ProbeChain-go-probe
// depends on for its hardware-wallet transports.
package usb

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/usb"

	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

// VendorID and ProductID identify an MVLC on the USB bus.
const (
	VendorID  = 0x3000
	ProductID = 0x1300
)

// Transport is the USB-attached controller connection, spec.md §4.2.
type Transport struct {
	dev usb.Device
	log clog.Clog

	// cmdMu serializes the register command/response channel; the data
	// pipe is single-reader by construction (only the Readout Worker
	// calls ReadData), spec.md §5 "Resource policy".
	cmdMu sync.Mutex
}

var _ transport.Controller = (*Transport)(nil)

// Open enumerates USB devices matching VendorID/ProductID and opens the
// first match.
func Open(log clog.Clog) (*Transport, error) {
	infos, err := usb.Enumerate(VendorID, ProductID)
	if err != nil {
		return nil, fmt.Errorf("usb: enumerate: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("usb: %w: no MVLC found", transport.ErrConnectionLost)
	}
	dev, err := infos[0].Open()
	if err != nil {
		return nil, fmt.Errorf("usb: open: %w", err)
	}
	return &Transport{dev: dev, log: log.WithPrefix("usb")}, nil
}

// commandPacketSize is the fixed size of a single register request/response
// exchange on the command pipe.
const commandPacketSize = 12

func (t *Transport) WriteRegister(ctx context.Context, addr uint16, value uint32) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	req := make([]byte, commandPacketSize)
	binary.LittleEndian.PutUint16(req[0:2], addr)
	binary.LittleEndian.PutUint32(req[2:6], value)
	req[6] = 1 // write opcode

	if _, err := t.dev.Write(req); err != nil {
		return fmt.Errorf("usb: write register %#x: %w", addr, classify(err))
	}
	resp := make([]byte, commandPacketSize)
	if _, err := t.dev.Read(resp); err != nil {
		return fmt.Errorf("usb: response for write %#x: %w", addr, classify(err))
	}
	return decodeRegisterStatus(resp)
}

func (t *Transport) ReadRegister(ctx context.Context, addr uint16) (uint32, error) {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	req := make([]byte, commandPacketSize)
	binary.LittleEndian.PutUint16(req[0:2], addr)
	req[6] = 0 // read opcode

	if _, err := t.dev.Write(req); err != nil {
		return 0, fmt.Errorf("usb: read register %#x: %w", addr, classify(err))
	}
	resp := make([]byte, commandPacketSize)
	if _, err := t.dev.Read(resp); err != nil {
		return 0, fmt.Errorf("usb: response for read %#x: %w", addr, classify(err))
	}
	if err := decodeRegisterStatus(resp); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

// ReadData reads from the bulk data pipe. The USB data channel is a byte
// stream: a single call may return a partial frame or several frames;
// reassembly is the stream parser's job, not this transport's (spec.md
// §4.2/§4.4).
func (t *Transport) ReadData(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := t.dev.Read(buf)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if isTimeout(r.err) {
				return 0, nil
			}
			return 0, fmt.Errorf("usb: read data: %w", classify(r.err))
		}
		return r.n, nil
	case <-time.After(timeout):
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *Transport) Close() error {
	return t.dev.Close()
}

func decodeRegisterStatus(resp []byte) error {
	switch resp[7] {
	case 0:
		return nil
	case 1:
		return transport.ErrSyntaxError
	case 2:
		return transport.ErrBusError
	case 3:
		return transport.ErrTimeout
	default:
		return fmt.Errorf("usb: unexpected status byte %#x", resp[7])
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}

func classify(err error) error {
	if isTimeout(err) {
		return transport.ErrTimeout
	}
	return transport.ErrConnectionLost
}
