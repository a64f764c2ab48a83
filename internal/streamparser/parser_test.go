package streamparser

import (
	"encoding/binary"
	"testing"

	"github.com/mesycraft/mvlcdaq/internal/clog"
	"github.com/mesycraft/mvlcdaq/internal/frame"
	"github.com/mesycraft/mvlcdaq/internal/transport"
)

type event struct {
	kind        string
	crateID     uint8
	eventIndex  int
	moduleIndex int
	data        ModuleData
	subtype     frame.SystemEventType
	sysWords    []uint32
}

type recorder struct {
	events []event
}

func (r *recorder) BeginEvent(crateID uint8, eventIndex int) {
	r.events = append(r.events, event{kind: "begin", crateID: crateID, eventIndex: eventIndex})
}

func (r *recorder) ModuleData(crateID uint8, eventIndex, moduleIndex int, data ModuleData) {
	r.events = append(r.events, event{kind: "module", crateID: crateID, eventIndex: eventIndex, moduleIndex: moduleIndex, data: data})
}

func (r *recorder) EndEvent(crateID uint8, eventIndex int) {
	r.events = append(r.events, event{kind: "end", crateID: crateID, eventIndex: eventIndex})
}

func (r *recorder) SystemEvent(crateID uint8, subtype frame.SystemEventType, words []uint32) {
	r.events = append(r.events, event{kind: "sys", crateID: crateID, subtype: subtype, sysWords: words})
}

func wordsToBytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func oneModuleLayout() CrateLayout {
	return CrateLayout{Events: []EventLayout{
		{Modules: []ModuleLayout{{HasDynamic: true}}},
	}}
}

// TestSingleModuleUSBReadout implements spec.md §8 scenario 1.
func TestSingleModuleUSBReadout(t *testing.T) {
	data := make([]uint32, 100)
	for i := range data {
		data[i] = uint32(i)
	}
	blockHdr := frame.Header{Type: frame.TypeBlockRead, Length: 100}
	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: uint16(1 + 100), StackID: 0}

	var words []uint32
	words = append(words, stackHdr.Encode())
	words = append(words, blockHdr.Encode())
	words = append(words, data...)

	rec := &recorder{}
	p := New(0, transport.KindUSB, oneModuleLayout(), rec, clog.NewLogger("test"))
	p.ParseBuffer(wordsToBytes(words))

	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(rec.events), rec.events)
	}
	if rec.events[0].kind != "begin" || rec.events[0].eventIndex != 0 {
		t.Fatalf("unexpected begin: %+v", rec.events[0])
	}
	md := rec.events[1]
	if md.kind != "module" || len(md.data.Dynamic) != 100 {
		t.Fatalf("unexpected module data: %+v", md)
	}
	if md.data.Dynamic[0] != 0 || md.data.Dynamic[99] != 99 {
		t.Fatalf("unexpected dynamic payload: first=%d last=%d", md.data.Dynamic[0], md.data.Dynamic[99])
	}
	if rec.events[2].kind != "end" {
		t.Fatalf("unexpected end: %+v", rec.events[2])
	}

	snap := p.Counters.Snapshot()
	if snap.ParserExceptions != 0 {
		t.Fatalf("unexpected exceptions: %d", snap.ParserExceptions)
	}
}

// TestCrossBufferReassembly implements spec.md §8 scenario 2: the same
// 100-word block delivered across three raw buffers must yield the same
// single event callback with an identical payload.
func TestCrossBufferReassembly(t *testing.T) {
	data := make([]uint32, 100)
	for i := range data {
		data[i] = uint32(i)
	}
	blockHdr := frame.Header{Type: frame.TypeBlockRead, Length: 100}
	stackHdr := frame.Header{Type: frame.TypeStackFrame, Length: uint16(1 + 100), StackID: 0}

	var words []uint32
	words = append(words, stackHdr.Encode())
	words = append(words, blockHdr.Encode())
	words = append(words, data...)

	allBytes := wordsToBytes(words)
	chunkWordSizes := []int{42, 30, 30} // 102 words total: 2 header words + 100 data words
	var total int
	for _, n := range chunkWordSizes {
		total += n
	}
	if total*4 != len(allBytes) {
		t.Fatalf("chunk sizes do not cover buffer: %d*4 != %d", total, len(allBytes))
	}

	rec := &recorder{}
	p := New(0, transport.KindUSB, oneModuleLayout(), rec, clog.NewLogger("test"))
	off := 0
	for _, n := range chunkWordSizes {
		p.ParseBuffer(allBytes[off : off+n*4])
		off += n * 4
	}

	if len(rec.events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(rec.events), rec.events)
	}
	md := rec.events[1]
	if len(md.data.Dynamic) != 100 || md.data.Dynamic[0] != 0 || md.data.Dynamic[99] != 99 {
		t.Fatalf("unexpected reassembled payload: %+v", md.data.Dynamic)
	}
}

// TestEthernetPacketLoss implements spec.md §8 scenario 3: delivering
// packets 0, 1, 3 (dropping 2) on channel 0 must record exactly one lost
// packet and resynchronize cleanly on packet 3.
func TestEthernetPacketLoss(t *testing.T) {
	rec := &recorder{}
	p := New(0, transport.KindEthernet, oneModuleLayout(), rec, clog.NewLogger("test"))

	mkPacket := func(channel uint8, packetNum uint16, data []uint32, nextHdrWords uint16) []byte {
		w0 := uint32(channel)<<28 | uint32(packetNum)<<12 | uint32(len(data))
		w1 := uint32(nextHdrWords) << 20
		payload := make([]byte, (2+len(data))*4)
		binary.LittleEndian.PutUint32(payload[0:4], w0)
		binary.LittleEndian.PutUint32(payload[4:8], w1)
		for i, d := range data {
			binary.LittleEndian.PutUint32(payload[8+i*4:], d)
		}
		return payload
	}

	// Packets 0 and 1 carry no frame data at all; packet 3 (after the
	// simulated drop of packet 2) starts a clean, self-contained
	// SystemEvent(TimeTick) frame.
	p.ParsePacket(0, mkPacket(0, 0, nil, 0))
	p.ParsePacket(0, mkPacket(0, 1, nil, 0))

	sysHdr := frame.Header{Type: frame.TypeSystemEvent, Length: 1, SysType: frame.SysEventTimeTick}
	p.ParsePacket(0, mkPacket(0, 3, []uint32{sysHdr.Encode(), 0x1}, 0))

	snap := p.Counters.Snapshot()
	if snap.PacketLoss[0] != 1 {
		t.Fatalf("got packet loss %d, want 1", snap.PacketLoss[0])
	}
	var sysEvents int
	for _, e := range rec.events {
		if e.kind == "sys" {
			sysEvents++
		}
		if e.kind == "begin" || e.kind == "end" {
			t.Fatalf("no partial/garbage event should have been emitted: %+v", e)
		}
	}
	if sysEvents != 1 {
		t.Fatalf("got %d system events, want 1", sysEvents)
	}
}
