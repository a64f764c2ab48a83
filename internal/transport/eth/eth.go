// Package eth implements the MVLC Ethernet transport: a UDP command socket
// for register access and a UDP data socket delivering one packet per
// read, each carrying a two-word packet header ahead of the frame data
// (spec.md §4.2 "Ethernet data channel").
package eth

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

// CommandPort and DataPort are the MVLC's fixed UDP ports.
const (
	CommandPort = 0x5678
	DataPort    = 0x8000
)

// PacketHeaderWords is the number of 32-bit words of packet header that
// precede frame data in every UDP payload.
const PacketHeaderWords = 2

// NumChannels is the number of independent UDP data channels; their
// relative order is undefined (spec.md §4.2 "Ordering").
const NumChannels = 2

// PacketHeader is the decoded two-word header prefixing a UDP data
// payload.
type PacketHeader struct {
	Channel        uint8
	PacketNumber   uint16
	DataWordCount  uint16
	UDPTimestamp   uint32
	NextHeaderWord uint16 // offset, in words, of the next parseable frame header
}

// DecodePacketHeader reads the two leading header words of a UDP payload.
func DecodePacketHeader(payload []byte) (PacketHeader, error) {
	if len(payload) < PacketHeaderWords*4 {
		return PacketHeader{}, fmt.Errorf("eth: short packet: %d bytes", len(payload))
	}
	w0 := binary.LittleEndian.Uint32(payload[0:4])
	w1 := binary.LittleEndian.Uint32(payload[4:8])
	return PacketHeader{
		Channel:        uint8(w0 >> 28 & 0x1),
		PacketNumber:   uint16(w0 >> 12 & 0xFFFF),
		DataWordCount:  uint16(w0 & 0x0FFF),
		UDPTimestamp:   w1 & 0x000FFFFF,
		NextHeaderWord: uint16(w1 >> 20 & 0xFFF),
	}, nil
}

// Transport is the Ethernet-attached controller connection.
type Transport struct {
	cmdConn  *net.UDPConn
	dataConn *net.UDPConn
	log      clog.Clog
	cmdMu    sync.Mutex
}

var _ transport.Controller = (*Transport)(nil)

// Dial opens the command and data UDP sockets to host.
func Dial(host string, log clog.Clog) (*Transport, error) {
	cmdAddr := &net.UDPAddr{IP: net.ParseIP(host), Port: CommandPort}
	cmdConn, err := net.DialUDP("udp", nil, cmdAddr)
	if err != nil {
		return nil, fmt.Errorf("eth: dial command socket: %w", err)
	}
	dataAddr := &net.UDPAddr{IP: net.ParseIP(host), Port: DataPort}
	dataConn, err := net.DialUDP("udp", nil, dataAddr)
	if err != nil {
		cmdConn.Close()
		return nil, fmt.Errorf("eth: dial data socket: %w", err)
	}
	return &Transport{cmdConn: cmdConn, dataConn: dataConn, log: log.WithPrefix("eth")}, nil
}

const commandPacketSize = 12

func (t *Transport) WriteRegister(ctx context.Context, addr uint16, value uint32) error {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	req := make([]byte, commandPacketSize)
	binary.LittleEndian.PutUint16(req[0:2], addr)
	binary.LittleEndian.PutUint32(req[2:6], value)
	req[6] = 1

	if dl, ok := ctx.Deadline(); ok {
		t.cmdConn.SetDeadline(dl)
	} else {
		t.cmdConn.SetDeadline(time.Now().Add(2 * time.Second))
	}
	if _, err := t.cmdConn.Write(req); err != nil {
		return fmt.Errorf("eth: write register %#x: %w", addr, classify(err))
	}
	resp := make([]byte, commandPacketSize)
	if _, err := t.cmdConn.Read(resp); err != nil {
		return fmt.Errorf("eth: response for write %#x: %w", addr, classify(err))
	}
	return decodeStatus(resp)
}

func (t *Transport) ReadRegister(ctx context.Context, addr uint16) (uint32, error) {
	t.cmdMu.Lock()
	defer t.cmdMu.Unlock()

	req := make([]byte, commandPacketSize)
	binary.LittleEndian.PutUint16(req[0:2], addr)
	req[6] = 0

	if dl, ok := ctx.Deadline(); ok {
		t.cmdConn.SetDeadline(dl)
	} else {
		t.cmdConn.SetDeadline(time.Now().Add(2 * time.Second))
	}
	if _, err := t.cmdConn.Write(req); err != nil {
		return 0, fmt.Errorf("eth: read register %#x: %w", addr, classify(err))
	}
	resp := make([]byte, commandPacketSize)
	if _, err := t.cmdConn.Read(resp); err != nil {
		return 0, fmt.Errorf("eth: response for read %#x: %w", addr, classify(err))
	}
	if err := decodeStatus(resp); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(resp[2:6]), nil
}

// ReadData receives exactly one UDP payload, header words included, into
// buf (spec.md §4.2: "each call returns exactly one UDP payload").
func (t *Transport) ReadData(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	t.dataConn.SetReadDeadline(time.Now().Add(timeout))
	n, err := t.dataConn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil
		}
		return 0, fmt.Errorf("eth: read data: %w", classify(err))
	}
	return n, nil
}

func (t *Transport) Close() error {
	errCmd := t.cmdConn.Close()
	errData := t.dataConn.Close()
	if errCmd != nil {
		return errCmd
	}
	return errData
}

func decodeStatus(resp []byte) error {
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
		return fmt.Errorf("eth: unexpected status byte %#x", resp[7])
	}
}

func classify(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return transport.ErrTimeout
	}
	return transport.ErrConnectionLost
}
