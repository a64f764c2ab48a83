package command

import (
	"errors"
	"reflect"
	"testing"
)

// TestCompileDecompileRoundTrip exercises spec.md §8: for all valid
// scripts, decompile(compile(s)) == s up to normalized forms.
func TestCompileDecompileRoundTrip(t *testing.T) {
	script := Script{
		Name:       "event0",
		OutputPipe: 0,
		Commands: []Command{
			{Kind: KindBlockRead64, Address: 0x01000000, TransferCount: 100, FifoMode: true},
			{Kind: KindRegisterWrite, Address: 0x6034, Width: Width16, Value: 1},
			{Kind: KindAccuSet, Value: 0},
			{Kind: KindAccuReadInto, Address: 0x1000, Width: Width32},
			{Kind: KindAccuCompareLoop, CompareOp: CompareEQ, CompareValue: 1, IterationLimit: 50},
			{Kind: KindMarker, Value: 0xDEADBEEF},
			{Kind: KindCustomRaw, RawWords: []uint32{1, 2, 3}},
		},
	}

	stack1, err := Compile(script)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	stack2, err := Compile(script)
	if err != nil {
		t.Fatalf("compile (again): %v", err)
	}
	if !reflect.DeepEqual(stack1.Words, stack2.Words) {
		t.Fatalf("compile is not deterministic")
	}

	got, err := Decompile(stack1)
	if err != nil {
		t.Fatalf("decompile: %v", err)
	}
	if !reflect.DeepEqual(got, script.Commands) {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, script.Commands)
	}
}

func TestCompileFlattensInlineStack(t *testing.T) {
	script := Script{
		Commands: []Command{
			{Kind: KindInlineStack, SubStack: []Command{
				{Kind: KindMarker, Value: 1},
				{Kind: KindMarker, Value: 2},
			}},
			{Kind: KindMarker, Value: 3},
		},
	}
	stack, err := Compile(script)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	got, err := Decompile(stack)
	if err != nil {
		t.Fatalf("decompile: %v", err)
	}
	want := []Command{
		{Kind: KindMarker, Value: 1},
		{Kind: KindMarker, Value: 2},
		{Kind: KindMarker, Value: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestCompileRejectsSoftwareDelay(t *testing.T) {
	script := Script{Commands: []Command{{Kind: KindSoftwareDelay, DelayCycles: 10}}}
	_, err := Compile(script)
	if !errors.Is(err, ErrUnsupportedInStack) {
		t.Fatalf("got %v, want ErrUnsupportedInStack", err)
	}
}

func TestCompileRejectsOverflowTransferCount(t *testing.T) {
	script := Script{Commands: []Command{
		{Kind: KindBlockRead32, Address: 0x1000, TransferCount: 0x10000},
	}}
	_, err := Compile(script)
	if !errors.Is(err, ErrTransferCountOverflow) {
		t.Fatalf("got %v, want ErrTransferCountOverflow", err)
	}
}

func TestCompileRejectsInvalidAddressModifier(t *testing.T) {
	script := Script{Commands: []Command{
		{Kind: KindRegisterWrite, Address: 0x1000, Width: Width16, AddressModifier: 0x7F},
	}}
	_, err := Compile(script)
	if !errors.Is(err, ErrInvalidAddressModifier) {
		t.Fatalf("got %v, want ErrInvalidAddressModifier", err)
	}
}

func TestBuildUploadProgramBracketsSentinels(t *testing.T) {
	stack, err := Compile(Script{Commands: []Command{{Kind: KindMarker, Value: 7}}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	program, err := BuildUploadProgram(stack, 0, 0x4000)
	if err != nil {
		t.Fatalf("build upload program: %v", err)
	}
	if program[0].Value != sentinelBeginUpload || program[len(program)-1].Value != sentinelEndUpload {
		t.Fatalf("upload program missing sentinels: %#v", program)
	}
	if len(program) != len(stack.Words)+2 {
		t.Fatalf("got len %d, want %d", len(program), len(stack.Words)+2)
	}
	for i, w := range stack.Words {
		rw := program[i+1]
		if rw.Value != w {
			t.Fatalf("word %d: got value %#x, want %#x", i, rw.Value, w)
		}
		if rw.Address != 0x4000+uint16(i) {
			t.Fatalf("word %d: got address %#x, want %#x", i, rw.Address, 0x4000+i)
		}
	}
}

func TestBuildUploadProgramRejectsTooLongStack(t *testing.T) {
	cmds := make([]Command, 0, MaxShortStackWords)
	for i := 0; i < MaxShortStackWords; i++ {
		cmds = append(cmds, Command{Kind: KindMarker, Value: uint32(i)})
	}
	stack, err := Compile(Script{Commands: cmds})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = BuildUploadProgram(stack, 0, 0)
	if !errors.Is(err, ErrStackTooLong) {
		t.Fatalf("got %v, want ErrStackTooLong", err)
	}
}

func TestComputeTriggerValue(t *testing.T) {
	irq3, err := ComputeTriggerValue(TriggerBinding{Source: TriggerIRQ3})
	if err != nil {
		t.Fatalf("irq3: %v", err)
	}
	if irq3 != 3 {
		t.Fatalf("irq3 got %#x, want 3", irq3)
	}
	irq3Iack, _ := ComputeTriggerValue(TriggerBinding{Source: TriggerIRQ3, UseIACK: true})
	if irq3Iack != 3|trigBitIACK {
		t.Fatalf("irq3+iack got %#x", irq3Iack)
	}

	// spec.md §9: TriggerIO and Periodic must be identical.
	periodic, _ := ComputeTriggerValue(TriggerBinding{Source: TriggerPeriodic})
	extio, _ := ComputeTriggerValue(TriggerBinding{Source: TriggerExternalIO})
	if periodic != extio {
		t.Fatalf("periodic (%#x) and external-IO (%#x) trigger values must match", periodic, extio)
	}
}
