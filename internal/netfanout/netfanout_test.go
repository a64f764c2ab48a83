package netfanout

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/mesycraft/mvlcdaq/internal/bufpool"
	"github.com/mesycraft/mvlcdaq/internal/clog"
)

func TestRawServerDeliversBuffer(t *testing.T) {
	s, err := ListenRaw("127.0.0.1:0", clog.NewLogger("test"))
	if err != nil {
		t.Fatalf("ListenRaw: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("tcp", s.ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // allow acceptLoop to register the client

	pool := bufpool.New(1, 16)
	buf := pool.Acquire()
	buf.Number = 7
	buf.Data = append(buf.Data, 1, 2, 3, 4, 5, 6, 7, 8) // two words
	s.Dispatch(buf)
	buf.Release()

	var hdr [8]byte
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		t.Fatalf("read header: %v", err)
	}
	gotNumber := binary.LittleEndian.Uint32(hdr[0:4])
	gotWords := binary.LittleEndian.Uint32(hdr[4:8])
	if gotNumber != 7 || gotWords != 2 {
		t.Fatalf("got number=%d words=%d, want 7/2", gotNumber, gotWords)
	}
}

func TestEventProtoRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	begin := BeginRunMessage{RunID: "run1", Sources: []SourceWidth{{Name: "mod0", IndexBytes: 2, ValueBytes: 8}}}
	if err := WriteBeginRun(&buf, begin); err != nil {
		t.Fatalf("WriteBeginRun: %v", err)
	}
	data := EventDataMessage{EventIndex: 3, SourceName: "mod0", Pairs: []IndexValuePair{{Index: 1, Value: 42.5}}}
	if err := WriteEventData(&buf, data); err != nil {
		t.Fatalf("WriteEventData: %v", err)
	}
	end := EndRunMessage{Reason: "done"}
	if err := WriteEndRun(&buf, end); err != nil {
		t.Fatalf("WriteEndRun: %v", err)
	}

	mt, err := ReadMessageType(&buf)
	if err != nil || mt != MsgBeginRun {
		t.Fatalf("got type %v err %v, want MsgBeginRun", mt, err)
	}
	gotBegin, err := ReadBeginRunBody(&buf)
	if err != nil {
		t.Fatalf("ReadBeginRunBody: %v", err)
	}
	if gotBegin.RunID != "run1" || len(gotBegin.Sources) != 1 || gotBegin.Sources[0].Name != "mod0" {
		t.Fatalf("unexpected begin-run: %+v", gotBegin)
	}

	mt, err = ReadMessageType(&buf)
	if err != nil || mt != MsgEventData {
		t.Fatalf("got type %v err %v, want MsgEventData", mt, err)
	}
	gotData, err := ReadEventDataBody(&buf)
	if err != nil {
		t.Fatalf("ReadEventDataBody: %v", err)
	}
	if gotData.EventIndex != 3 || gotData.Pairs[0].Value != 42.5 {
		t.Fatalf("unexpected event data: %+v", gotData)
	}

	mt, err = ReadMessageType(&buf)
	if err != nil || mt != MsgEndRun {
		t.Fatalf("got type %v err %v, want MsgEndRun", mt, err)
	}
	gotEnd, err := ReadEndRunBody(&buf)
	if err != nil || gotEnd.Reason != "done" {
		t.Fatalf("unexpected end-run: %+v err %v", gotEnd, err)
	}
}
