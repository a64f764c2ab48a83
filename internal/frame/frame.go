// Package frame defines the MVLC wire-format constants shared by the
// command compiler, the controller transport, and the stream parser:
// the 32-bit frame header layout, frame types, flags, and the SystemEvent
// subtype byte. Bit-packing follows the teacher's APCI control-field
// encoding (cs104/apci.go: fixed-width header, bitfields packed into the
// low bytes of a fixed-size word), generalized from IEC's 6-byte APCI to
// a single 32-bit little-endian header word per spec.md §6.1.
package frame

import "fmt"

// Type identifies the kind of record a frame header introduces.
type Type uint8

// Frame types, see spec.md §3 "Frame".
const (
	TypeStackFrame Type = iota + 1
	TypeStackContinuation
	TypeBlockRead
	TypeStackError
	TypeSystemEvent
)

func (t Type) String() string {
	switch t {
	case TypeStackFrame:
		return "StackFrame"
	case TypeStackContinuation:
		return "StackContinuation"
	case TypeBlockRead:
		return "BlockRead"
	case TypeStackError:
		return "StackError"
	case TypeSystemEvent:
		return "SystemEvent"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Flags occupy bits 16-23 of the header word.
type Flags uint8

const (
	FlagContinue    Flags = 1 << 0
	FlagSyntaxError Flags = 1 << 1
	FlagTimeout     Flags = 1 << 2
	FlagBusError    Flags = 1 << 3
)

func (f Flags) Continue() bool    { return f&FlagContinue != 0 }
func (f Flags) SyntaxError() bool { return f&FlagSyntaxError != 0 }
func (f Flags) Timeout() bool     { return f&FlagTimeout != 0 }
func (f Flags) BusError() bool    { return f&FlagBusError != 0 }

// Erred reports whether any of the three error flags are set; such a
// frame is recoverable per spec.md §4.4/§7 but must be counted.
func (f Flags) Erred() bool { return f&(FlagSyntaxError|FlagTimeout|FlagBusError) != 0 }

// Header layout (32-bit little-endian word), spec.md §6.1:
//
//	bits 0-15  length in words, excluding the header itself
//	bits 16-23 flags
//	bits 24-26 frame type (left zero for SystemEvent frames)
//	bit  27    set for SystemEvent frames (systemEvtBit)
//	bits 28-31 SystemEvent subtype, or the StackID of a StackFrame or
//	           StackContinuation
const (
	lengthMask    = 0x0000FFFF
	flagsShift    = 16
	flagsMask     = 0xFF
	typeShift     = 24
	typeMask      = 0x07
	systemEvtBit  = 1 << 27
	subtypeShift  = 28
	subtypeMask   = 0x0F
	maxWordLength = lengthMask
)

// Header is a decoded frame header.
type Header struct {
	Type    Type
	Length  uint16 // payload length in 32-bit words, excluding the header
	Flags   Flags
	SysType SystemEventType // valid only when Type == TypeSystemEvent
	// StackID identifies which of the (up to 16) per-crate readout events
	// a StackFrame/StackContinuation belongs to, spec.md §3 "Trigger
	// Binding". Valid only when Type is TypeStackFrame or
	// TypeStackContinuation; packed into the same bit range SystemEvent
	// uses for its subtype, since the two are mutually exclusive.
	StackID uint8
}

// Encode packs h into a single 32-bit header word.
func (h Header) Encode() uint32 {
	w := uint32(h.Length) & lengthMask
	w |= uint32(h.Flags) << flagsShift
	switch h.Type {
	case TypeSystemEvent:
		w |= systemEvtBit
		w |= (uint32(h.SysType) & subtypeMask) << subtypeShift
	case TypeStackFrame, TypeStackContinuation:
		w |= (uint32(h.Type) & typeMask) << typeShift
		w |= (uint32(h.StackID) & subtypeMask) << subtypeShift
	default:
		w |= (uint32(h.Type) & typeMask) << typeShift
	}
	return w
}

// DecodeHeader unpacks a 32-bit header word.
func DecodeHeader(word uint32) Header {
	h := Header{
		Length: uint16(word & lengthMask),
		Flags:  Flags((word >> flagsShift) & flagsMask),
	}
	if word&systemEvtBit != 0 {
		h.Type = TypeSystemEvent
		h.SysType = SystemEventType((word >> subtypeShift) & subtypeMask)
	} else {
		h.Type = Type((word >> typeShift) & typeMask)
		if h.Type == TypeStackFrame || h.Type == TypeStackContinuation {
			h.StackID = uint8((word >> subtypeShift) & subtypeMask)
		}
	}
	return h
}

// MaxWordLength is the largest payload length (in words) a single frame
// header can represent.
const MaxWordLength = maxWordLength

// SystemEventType is the subtype byte of a SystemEvent record, spec.md §3.
type SystemEventType uint8

const (
	SysEventTimeTick SystemEventType = iota
	SysEventBeginRun
	SysEventEndRun
	SysEventEndOfFile
	SysEventEmbeddedVMEConfig
	SysEventUnixTimestamp
	// SysEventCrateConfig is the supplemental subtype (original_source's
	// mvlc_util.cc writes a CrateConfig SystemEvent ahead of the embedded
	// VME config at listfile start, see SPEC_FULL.md).
	SysEventCrateConfig
)

func (s SystemEventType) String() string {
	switch s {
	case SysEventTimeTick:
		return "TimeTick"
	case SysEventBeginRun:
		return "BeginRun"
	case SysEventEndRun:
		return "EndRun"
	case SysEventEndOfFile:
		return "EndOfFile"
	case SysEventEmbeddedVMEConfig:
		return "EmbeddedVMEConfig"
	case SysEventUnixTimestamp:
		return "UnixTimestamp"
	case SysEventCrateConfig:
		return "CrateConfig"
	default:
		return fmt.Sprintf("SystemEventType(%d)", uint8(s))
	}
}
