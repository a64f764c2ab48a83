// Package command implements the MVLC command compiler: it turns a parsed
// VME script into a compact command stack the controller executes
// autonomously per trigger (spec.md §4.1), plus the register-write program
// that uploads a stack, and the trigger-value encoding for a readout event.
//
// The compiler is pure: Compile never touches I/O, and identical input
// always produces byte-identical output (spec.md §4.1, §8 migration
// property). Opcode packing follows the teacher's bit-packed control-field
// idiom (cs104/apci.go's newIFrame/newSFrame/newUFrame), generalized from a
// fixed 6-byte APCI to MVLC's variable-width opcode words.
package command

import (
	"errors"
	"fmt"
)

// Width is the VME data bus width for a register access.
type Width uint8

const (
	Width16 Width = 16
	Width32 Width = 32
)

// AddressModifier is the VME address modifier accompanying an access.
type AddressModifier uint8

// Common VME address modifiers used by the supported commands.
const (
	AMA32NonPrivData  AddressModifier = 0x09
	AMA32NonPrivBlock AddressModifier = 0x0B
	AMA24NonPrivData  AddressModifier = 0x39
	AMA24NonPrivBlock AddressModifier = 0x3B
)

// Kind tags the ~30 opcode variants spec.md §3 describes for a Command.
type Kind uint8

const (
	KindRegisterWrite Kind = iota
	KindRegisterReadFast
	KindRegisterReadSlow
	KindBlockRead32
	KindBlockRead64
	KindBlockReadFastBlock
	KindBlockReadTwoESST
	KindSoftwareDelay
	KindMarker
	KindInlineStack
	KindAccuSet
	KindAccuMaskRotate
	KindAccuCompareLoop
	KindAccuReadInto
	KindWaitOnClocks
	KindCustomRaw
)

// CompareOp is the comparison predicate for an accumulator compare-loop.
type CompareOp uint8

const (
	CompareEQ CompareOp = iota
	CompareNE
	CompareLT
	CompareGT
)

// Command is a single parsed-script instruction with resolved operands.
// Not every field applies to every Kind; see the per-Kind comment.
type Command struct {
	Kind Kind

	Address         uint32
	Width           Width
	AddressModifier AddressModifier
	TransferCount   uint32 // block transfer word count

	FifoMode      bool // block reads: controller does not increment VME address
	IncrementAddr bool // non-fifo block reads: increment VME address between cycles
	ByteSwap      bool // swap each 64-bit pair for big-endian block devices

	Value uint32 // register write value / accumulator set value / marker sentinel

	DelayCycles   uint16    // KindSoftwareDelay
	CompareOp     CompareOp // KindAccuCompareLoop
	CompareValue  uint32    // KindAccuCompareLoop
	IterationLimit uint16   // KindAccuCompareLoop; 0 means "use controller default"

	MaskRotateShift int8   // KindAccuMaskRotate: positive=left, negative=right
	MaskRotateMask  uint32 // KindAccuMaskRotate

	RawWords []uint32 // KindCustomRaw

	SubStack []Command // KindInlineStack, flattened during Compile
}

// Script is an ordered, resolved list of commands awaiting compilation.
type Script struct {
	Name       string
	OutputPipe uint8
	Commands   []Command
}

// Errors returned by Compile and BuildUploadProgram, spec.md §4.1 "Failures".
var (
	ErrUnsupportedInStack    = errors.New("command: unsupported in stack")
	ErrStackTooLong          = errors.New("command: stack too long")
	ErrInvalidAddressModifier = errors.New("command: invalid address modifier")
	ErrTransferCountOverflow = errors.New("command: transfer count overflow")
)

// MaxShortStackWords bounds a short-upload stack; stacks exceeding this
// require the long-stack upload path (spec.md §3 "Command Stack").
const MaxShortStackWords = 1024

// RegisterWrite is one (address, value) pair applied via the controller's
// register channel.
type RegisterWrite struct {
	Address uint16
	Value   uint32
}

// opcode values for the encoded stack word stream. These are internal to
// this package: the byte layout is a compiled detail, not a public API.
const (
	opRegisterWrite     = 0x01
	opRegisterReadFast  = 0x02
	opRegisterReadSlow  = 0x03
	opBlockRead32       = 0x10
	opBlockRead64       = 0x11
	opBlockReadFastBlk  = 0x12
	opBlockReadTwoESST  = 0x13
	opMarker            = 0x20
	opAccuSet           = 0x30
	opAccuMaskRotate    = 0x31
	opAccuCompareLoop   = 0x32
	opAccuReadInto      = 0x33
	opWaitOnClocks      = 0x40
	opCustomRaw         = 0x50
)

// blockReadFlags packs the fifo/increment/byteswap trio into a single byte
// shared by all block-read opcodes.
func blockReadFlags(c Command) byte {
	var b byte
	if c.FifoMode {
		b |= 1 << 0
	}
	if c.IncrementAddr {
		b |= 1 << 1
	}
	if c.ByteSwap {
		b |= 1 << 2
	}
	return b
}

// Stack is the compiled, controller-executable opcode word stream.
type Stack struct {
	Name       string
	OutputPipe uint8
	Words      []uint32
}

// StackCommandBuilder accumulates compiled opcode words while walking a
// script, in the style of the teacher's ASDU builder (asdu/codec.go's
// AppendBytes/Append* methods appending onto a growing byte slice).
type StackCommandBuilder struct {
	words []uint32
}

func (b *StackCommandBuilder) emit(opcode byte, operands ...uint32) {
	b.words = append(b.words, uint32(opcode)<<24|uint32(len(operands)))
	b.words = append(b.words, operands...)
}

// Words returns the accumulated opcode stream.
func (b *StackCommandBuilder) Words() []uint32 { return append([]uint32(nil), b.words...) }

// Compile walks script and produces a command stack. It is pure: the same
// script always compiles to the same Words slice.
func Compile(script Script) (*Stack, error) {
	b := &StackCommandBuilder{}
	if err := compileInto(b, script.Commands); err != nil {
		return nil, err
	}
	return &Stack{Name: script.Name, OutputPipe: script.OutputPipe, Words: b.words}, nil
}

func compileInto(b *StackCommandBuilder, cmds []Command) error {
	for _, c := range cmds {
		if err := validateAddressModifier(c); err != nil {
			return err
		}
		switch c.Kind {
		case KindRegisterWrite:
			b.emit(opRegisterWrite, c.Address, uint32(c.Width), c.Value)
		case KindRegisterReadFast:
			b.emit(opRegisterReadFast, c.Address, uint32(c.Width))
		case KindRegisterReadSlow:
			b.emit(opRegisterReadSlow, c.Address, uint32(c.Width))
		case KindBlockRead32, KindBlockRead64, KindBlockReadFastBlock, KindBlockReadTwoESST:
			if c.TransferCount == 0 || c.TransferCount > 0xFFFF {
				return fmt.Errorf("%w: count=%d", ErrTransferCountOverflow, c.TransferCount)
			}
			b.emit(blockOpcode(c.Kind), c.Address, c.TransferCount, uint32(blockReadFlags(c)))
		case KindMarker:
			b.emit(opMarker, c.Value)
		case KindInlineStack:
			// Flatten: an inline sub-stack's commands are spliced in place,
			// spec.md §4.1 "inline sub-stacks are flattened".
			if err := compileInto(b, c.SubStack); err != nil {
				return err
			}
		case KindAccuSet:
			b.emit(opAccuSet, c.Value)
		case KindAccuMaskRotate:
			b.emit(opAccuMaskRotate, c.MaskRotateMask, uint32(int32(c.MaskRotateShift)))
		case KindAccuCompareLoop:
			// Accumulator test commands emit a compare-and-loop opcode
			// that re-reads the previous block until the compared value
			// matches or the iteration limit is reached, spec.md §4.1.
			b.emit(opAccuCompareLoop, uint32(c.CompareOp), c.CompareValue, uint32(c.IterationLimit))
		case KindAccuReadInto:
			b.emit(opAccuReadInto, c.Address, uint32(c.Width))
		case KindWaitOnClocks:
			b.emit(opWaitOnClocks, c.Value)
		case KindCustomRaw:
			b.emit(opCustomRaw, uint32(len(c.RawWords)))
			b.words = append(b.words, c.RawWords...)
		case KindSoftwareDelay:
			// Software delays are host-side pacing and cannot be
			// expressed as an autonomous controller opcode.
			return fmt.Errorf("%w: software delay", ErrUnsupportedInStack)
		default:
			return fmt.Errorf("%w: kind=%d", ErrUnsupportedInStack, c.Kind)
		}
	}
	return nil
}

func blockOpcode(k Kind) byte {
	switch k {
	case KindBlockRead32:
		return opBlockRead32
	case KindBlockRead64:
		return opBlockRead64
	case KindBlockReadFastBlock:
		return opBlockReadFastBlk
	case KindBlockReadTwoESST:
		return opBlockReadTwoESST
	default:
		panic("command: blockOpcode called with non-block Kind")
	}
}

func validateAddressModifier(c Command) error {
	switch c.Kind {
	case KindRegisterWrite, KindRegisterReadFast, KindRegisterReadSlow, KindAccuReadInto:
		switch c.AddressModifier {
		case 0, AMA32NonPrivData, AMA24NonPrivData:
			return nil
		default:
			return fmt.Errorf("%w: %#x", ErrInvalidAddressModifier, c.AddressModifier)
		}
	case KindBlockRead32, KindBlockRead64, KindBlockReadFastBlock, KindBlockReadTwoESST:
		switch c.AddressModifier {
		case 0, AMA32NonPrivBlock, AMA24NonPrivBlock:
			return nil
		default:
			return fmt.Errorf("%w: %#x", ErrInvalidAddressModifier, c.AddressModifier)
		}
	default:
		return nil
	}
}

// upload program sentinel writes bracketing the stack-memory program,
// spec.md §4.1 "BeginUpload/EndUpload sentinel writes".
const (
	sentinelBeginUpload uint32 = 0xF1F1F1F1
	sentinelEndUpload   uint32 = 0xF2F2F2F2
)

// addrUploadControl is the control register the BeginUpload/EndUpload
// sentinels are written to, bracketing the stack-memory writes in between.
const addrUploadControl uint16 = 0x0200

// stackMemoryAddress computes the controller stack-memory address backing
// word i of a stack uploaded to outputPipe. Each output pipe's stack
// memory occupies its own half of the 16-bit register address space (bit
// 15 selects the pipe); words within one stack occupy consecutive
// addresses starting at startAddress, spec.md §4.1 "consecutive controller
// stack-memory words".
func stackMemoryAddress(outputPipe uint8, startAddress uint32, i int) uint16 {
	addr := uint16(startAddress) + uint16(i)
	if outputPipe != 0 {
		addr |= 0x8000
	}
	return addr
}

// BuildUploadProgram emits the register writes that load stack into
// controller stack memory at startAddress on outputPipe, bracketed by
// BeginUpload/EndUpload sentinels.
func BuildUploadProgram(stack *Stack, outputPipe uint8, startAddress uint32) ([]RegisterWrite, error) {
	if len(stack.Words) > MaxShortStackWords {
		return nil, fmt.Errorf("%w: %d words (limit %d); use the long stack upload path",
			ErrStackTooLong, len(stack.Words), MaxShortStackWords)
	}
	program := make([]RegisterWrite, 0, len(stack.Words)+2)
	program = append(program, RegisterWrite{Address: addrUploadControl, Value: sentinelBeginUpload})
	for i, w := range stack.Words {
		program = append(program, RegisterWrite{Address: stackMemoryAddress(outputPipe, startAddress, i), Value: w})
	}
	program = append(program, RegisterWrite{Address: addrUploadControl, Value: sentinelEndUpload})
	return program, nil
}

// TriggerSource identifies what hardware condition arms a readout event,
// spec.md §3 "Trigger Binding".
type TriggerSource uint8

const (
	TriggerIRQ1 TriggerSource = iota + 1
	TriggerIRQ2
	TriggerIRQ3
	TriggerIRQ4
	TriggerIRQ5
	TriggerIRQ6
	TriggerIRQ7
	TriggerPeriodic
	TriggerExternalIO
	TriggerSlave
)

// TriggerBinding configures one readout event's trigger, spec.md §3.
type TriggerBinding struct {
	Source     TriggerSource
	UseIACK    bool  // only meaningful for IRQ sources
	SlaveIndex uint8 // only meaningful for TriggerSlave
}

const (
	trigBitIACK      = 1 << 3
	trigBitSourceLow = 0
	trigBitSlaveLow  = 4
)

// ComputeTriggerValue encodes a trigger binding into the controller's 8-bit
// trigger register value.
//
// Per spec.md §9 "open questions / source ambiguities": TriggerIO and
// Periodic intentionally produce the identical stack-external trigger
// encoding in the legacy implementation; that identity is preserved here
// deliberately rather than given a distinguishing bit.
func ComputeTriggerValue(b TriggerBinding) (uint8, error) {
	switch b.Source {
	case TriggerIRQ1, TriggerIRQ2, TriggerIRQ3, TriggerIRQ4, TriggerIRQ5, TriggerIRQ6, TriggerIRQ7:
		level := uint8(b.Source - TriggerIRQ1 + 1)
		v := level << trigBitSourceLow
		if b.UseIACK {
			v |= trigBitIACK
		}
		return v, nil
	case TriggerPeriodic, TriggerExternalIO:
		// Both map to the same "stack-external trigger" encoding, see
		// the doc comment above.
		return 0x08, nil
	case TriggerSlave:
		return 0x10 | (b.SlaveIndex & 0x0F), nil
	default:
		return 0, fmt.Errorf("command: unknown trigger source %d", b.Source)
	}
}
