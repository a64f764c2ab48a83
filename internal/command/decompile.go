package command

import "fmt"

// Decompile reconstructs the flattened command list a Stack was compiled
// from. It is the inverse half of the round-trip property in spec.md §8:
// Decompile(Compile(s)) == s "up to resolved addresses and normalized
// forms" — inline sub-stacks compile away, so decompilation always yields
// the flattened form, never the original nesting.
func Decompile(s *Stack) ([]Command, error) {
	var out []Command
	words := s.Words
	for len(words) > 0 {
		header := words[0]
		opcode := byte(header >> 24)
		n := int(header & 0x00FFFFFF)
		words = words[1:]
		if n > len(words) {
			return nil, fmt.Errorf("command: decompile: truncated operand list for opcode %#x", opcode)
		}
		operands := words[:n]
		words = words[n:]

		c, consumedExtra, err := decodeOne(opcode, operands, words)
		if err != nil {
			return nil, err
		}
		words = words[consumedExtra:]
		out = append(out, c)
	}
	return out, nil
}

func decodeOne(opcode byte, ops []uint32, rest []uint32) (Command, int, error) {
	switch opcode {
	case opRegisterWrite:
		return Command{Kind: KindRegisterWrite, Address: ops[0], Width: Width(ops[1]), Value: ops[2]}, 0, nil
	case opRegisterReadFast:
		return Command{Kind: KindRegisterReadFast, Address: ops[0], Width: Width(ops[1])}, 0, nil
	case opRegisterReadSlow:
		return Command{Kind: KindRegisterReadSlow, Address: ops[0], Width: Width(ops[1])}, 0, nil
	case opBlockRead32, opBlockRead64, opBlockReadFastBlk, opBlockReadTwoESST:
		flags := byte(ops[2])
		return Command{
			Kind:          kindFromBlockOpcode(opcode),
			Address:       ops[0],
			TransferCount: ops[1],
			FifoMode:      flags&(1<<0) != 0,
			IncrementAddr: flags&(1<<1) != 0,
			ByteSwap:      flags&(1<<2) != 0,
		}, 0, nil
	case opMarker:
		return Command{Kind: KindMarker, Value: ops[0]}, 0, nil
	case opAccuSet:
		return Command{Kind: KindAccuSet, Value: ops[0]}, 0, nil
	case opAccuMaskRotate:
		return Command{Kind: KindAccuMaskRotate, MaskRotateMask: ops[0], MaskRotateShift: int8(int32(ops[1]))}, 0, nil
	case opAccuCompareLoop:
		return Command{
			Kind:           KindAccuCompareLoop,
			CompareOp:      CompareOp(ops[0]),
			CompareValue:   ops[1],
			IterationLimit: uint16(ops[2]),
		}, 0, nil
	case opAccuReadInto:
		return Command{Kind: KindAccuReadInto, Address: ops[0], Width: Width(ops[1])}, 0, nil
	case opWaitOnClocks:
		return Command{Kind: KindWaitOnClocks, Value: ops[0]}, 0, nil
	case opCustomRaw:
		n := int(ops[0])
		if n > len(rest) {
			return Command{}, 0, fmt.Errorf("command: decompile: truncated raw word payload")
		}
		raw := append([]uint32(nil), rest[:n]...)
		return Command{Kind: KindCustomRaw, RawWords: raw}, n, nil
	default:
		return Command{}, 0, fmt.Errorf("command: decompile: unknown opcode %#x", opcode)
	}
}

func kindFromBlockOpcode(opcode byte) Kind {
	switch opcode {
	case opBlockRead32:
		return KindBlockRead32
	case opBlockRead64:
		return KindBlockRead64
	case opBlockReadFastBlk:
		return KindBlockReadFastBlock
	case opBlockReadTwoESST:
		return KindBlockReadTwoESST
	default:
		panic("command: kindFromBlockOpcode: bad opcode")
	}
}
