// Package streamparser converts the controller's inbound byte/packet
// stream into structured event callbacks, maintaining reassembly state
// across buffer and packet boundaries. This is the hardest subsystem
// described by spec.md §4.4; one Parser instance exists per data channel.
package streamparser

import (
	"encoding/binary"

	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
	"github.com/mesycraft/mvlcdaq/internal/transport/eth"
)

// ModuleData is the realized per-module byte range for one event, spec.md
// §3 "ModuleData": an optional prefix, an optional dynamic block, and an
// optional suffix, each a run of 32-bit words.
type ModuleData struct {
	Prefix  []uint32
	Dynamic []uint32
	Suffix  []uint32
}

// Callbacks receives structured output from the parser, spec.md §4.4
// "Callbacks emitted".
type Callbacks interface {
	BeginEvent(crateID uint8, eventIndex int)
	ModuleData(crateID uint8, eventIndex, moduleIndex int, data ModuleData)
	EndEvent(crateID uint8, eventIndex int)
	SystemEvent(crateID uint8, subtype frame.SystemEventType, words []uint32)
}

type state uint8

const (
	stateIdle state = iota
	stateInStackFrame
	stateInBlockRead
	stateInSystemEvent
	stateError
)

type moduleSub uint8

const (
	subPrefix moduleSub = iota
	subDynamicHeader
	subDynamicBody
	subSuffix
	subDone
)

// Parser is a single data channel's reassembly state machine.
type Parser struct {
	crateID uint8
	kind    transport.Kind
	layout  CrateLayout
	cb      Callbacks
	log     clog.Clog

	Counters *Counters

	state state

	pending       []uint32
	leftoverBytes []byte

	// framePayloadLeft is how many words of the *current physical frame*
	// remain to be consumed; continuation chains reset it per physical
	// frame (spec.md §4.4 "Continuation handling").
	framePayloadLeft int
	frameContinues   bool
	stackID          uint8

	eventIndex  int
	moduleIndex int
	sub         moduleSub
	wordsLeft   int // remaining words for the current sub-state
	dynamicBuf  []uint32
	curPrefix   []uint32
	curSuffix   []uint32

	blockContinues bool
	sysSubtype     frame.SystemEventType

	// Ethernet-only reassembly state, spec.md §4.4 "Ethernet-specific
	// reassembly".
	lastPacketNumber [eth.NumChannels]int
}

// New creates a parser for one crate's data channel.
func New(crateID uint8, kind transport.Kind, layout CrateLayout, cb Callbacks, log clog.Clog) *Parser {
	p := &Parser{
		crateID:  crateID,
		kind:     kind,
		layout:   layout,
		cb:       cb,
		log:      log.WithPrefix("stream-parser"),
		Counters: newCounters(),
	}
	for i := range p.lastPacketNumber {
		p.lastPacketNumber[i] = -1
	}
	return p
}

// ParseBuffer feeds one raw USB buffer into the parser. spec.md §8: for
// all parsed input streams, bytes consumed + bytes skipped as unused
// equals bytes delivered by the transport — every byte handed to
// ParseBuffer is eventually accounted for in Counters.
func (p *Parser) ParseBuffer(data []byte) {
	p.Counters.addBuffer(len(data))
	p.feedBytes(data)
	p.run()
}

// ParsePacket feeds one Ethernet UDP payload, performing per-channel
// packet-loss detection and next-header resync, spec.md §4.4
// "Ethernet-specific reassembly".
func (p *Parser) ParsePacket(channel uint8, payload []byte) {
	p.Counters.addBuffer(len(payload))

	hdr, err := eth.DecodePacketHeader(payload)
	if err != nil {
		p.Counters.addException()
		return
	}

	last := p.lastPacketNumber[channel]
	if last >= 0 {
		gap := gapCount(uint16(last), hdr.PacketNumber)
		if gap > 0 {
			p.Counters.addPacketLoss(channel, uint64(gap))
			p.state = stateError
		}
	}
	p.lastPacketNumber[channel] = int(hdr.PacketNumber)

	bodyEnd := (eth.PacketHeaderWords + int(hdr.DataWordCount)) * 4
	if bodyEnd > len(payload) {
		bodyEnd = len(payload)
	}
	body := payload[eth.PacketHeaderWords*4 : bodyEnd]
	words := bytesToWords(body)

	if p.state == stateError {
		// Skip to the first parseable frame header using the packet's
		// own hint rather than scanning byte-by-byte.
		skip := int(hdr.NextHeaderWord)
		if skip > len(words) {
			skip = len(words)
		}
		p.Counters.addUnused(skip * 4)
		words = words[skip:]
		p.pending = append(p.pending[:0], words...)
		p.state = stateIdle
	} else {
		p.pending = append(p.pending, words...)
	}
	p.run()
}

func gapCount(last, cur uint16) int {
	d := int(cur) - int(last) - 1
	if d < 0 {
		d += 1 << 16
	}
	return d
}

func (p *Parser) feedBytes(data []byte) {
	buf := append(p.leftoverBytes, data...)
	n := len(buf) / 4
	words := bytesToWords(buf[:n*4])
	p.leftoverBytes = append([]byte(nil), buf[n*4:]...)
	p.pending = append(p.pending, words...)
}

func bytesToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// run drains as much of p.pending as the current state machine can
// process, pausing (not erroring) whenever more raw data is required.
func (p *Parser) run() {
	for {
		switch p.state {
		case stateIdle:
			if !p.startNextFrame() {
				return
			}
		case stateInStackFrame:
			if !p.stepModules() {
				return
			}
		case stateInSystemEvent:
			if !p.stepSystemEvent() {
				return
			}
		case stateError:
			if !p.resyncFromPending() {
				return
			}
		}
	}
}

// startNextFrame looks at the next header word in Idle state.
func (p *Parser) startNextFrame() bool {
	if len(p.pending) < 1 {
		return false
	}
	hdr := frame.DecodeHeader(p.pending[0])
	switch hdr.Type {
	case frame.TypeStackFrame:
		p.pending = p.pending[1:]
		p.Counters.addFrameType("StackFrame")
		p.Counters.addResult(ResultOk)
		p.beginStackFrame(hdr)
		return true
	case frame.TypeSystemEvent:
		p.pending = p.pending[1:]
		p.Counters.addFrameType("SystemEvent")
		p.framePayloadLeft = int(hdr.Length)
		p.dynamicBuf = p.dynamicBuf[:0]
		p.curPrefix = nil
		p.state = stateInSystemEvent
		p.sysSubtype = hdr.SysType
		return true
	case frame.TypeStackContinuation:
		// A continuation with no open frame expecting it: unrecoverable.
		p.pending = p.pending[1:]
		p.Counters.addResult(ResultUnexpectedContinuation)
		p.Counters.addException()
		p.state = stateError
		return true
	case frame.TypeBlockRead:
		p.pending = p.pending[1:]
		p.Counters.addResult(ResultUnexpectedOpenBlockFrame)
		p.Counters.addException()
		p.state = stateError
		return true
	default:
		p.pending = p.pending[1:]
		p.Counters.addResult(ResultNotAStackFrame)
		p.Counters.addException()
		p.state = stateError
		return true
	}
}

func (p *Parser) beginStackFrame(hdr frame.Header) {
	p.framePayloadLeft = int(hdr.Length)
	p.frameContinues = hdr.Flags.Continue()
	p.stackID = hdr.StackID
	if hdr.Flags.Erred() {
		// Frame-level errors (SyntaxError/Timeout/BusError) are
		// recoverable: recorded and the frame is still walked normally,
		// spec.md §4.4/§7.
		p.Counters.addFrameType("ErredFrame")
	}
	// A fresh StackFrame (not a continuation) starts a brand new event.
	p.eventIndex = int(hdr.StackID)
	p.moduleIndex = 0
	p.sub = subPrefix
	p.wordsLeft = p.currentModulePrefixWords()
	p.dynamicBuf = p.dynamicBuf[:0]
	p.curPrefix = nil
	p.cb.BeginEvent(p.crateID, p.eventIndex)
	p.state = stateInStackFrame
}

func (p *Parser) currentModulePrefixWords() int {
	m, ok := p.layout.Module(p.eventIndex, p.moduleIndex)
	if !ok {
		return 0
	}
	return m.PrefixWords
}

// resyncFromPending scans forward in already-buffered words for the next
// recognizable StackFrame or SystemEvent header (spec.md §4.4 "On an
// unrecoverable error ... the parser enters Error, increments exception
// count, and resynchronizes at the next recognizable StackFrame or
// SystemEvent header").
func (p *Parser) resyncFromPending() bool {
	for i, w := range p.pending {
		h := frame.DecodeHeader(w)
		if h.Type == frame.TypeStackFrame || h.Type == frame.TypeSystemEvent {
			p.Counters.addUnused(i * 4)
			p.pending = p.pending[i:]
			p.state = stateIdle
			return true
		}
	}
	// Nothing recognizable buffered yet; drop it all as unused and wait
	// for more data next call.
	p.Counters.addUnused(len(p.pending) * 4)
	p.pending = p.pending[:0]
	return false
}
