package eth

import (
	"encoding/binary"
	"testing"
)

func TestDecodePacketHeader(t *testing.T) {
	payload := make([]byte, 16)
	w0 := uint32(1)<<28 | uint32(42)<<12 | uint32(7)
	w1 := uint32(0xAABBCCDD)&0xFFFFF | uint32(100)<<20
	binary.LittleEndian.PutUint32(payload[0:4], w0)
	binary.LittleEndian.PutUint32(payload[4:8], w1)

	h, err := DecodePacketHeader(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Channel != 1 || h.PacketNumber != 42 || h.DataWordCount != 7 || h.NextHeaderWord != 100 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestDecodePacketHeaderShort(t *testing.T) {
	if _, err := DecodePacketHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short packet")
	}
}
