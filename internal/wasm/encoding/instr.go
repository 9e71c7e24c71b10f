package encoding

import (
	"bufio"
	"bytes"
	"fmt"

	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/opcode"
)

// writeInstr encodes a single instruction, recursing for structured
// instructions such as Block.
func writeInstr(buf *bytes.Buffer, instr instruction.Instruction) error {
	if block, ok := instr.(instruction.Block); ok {
		buf.WriteByte(byte(opcode.Block))
		buf.WriteByte(opcode.BlockTypeEmpty)
		for _, inner := range block.Instrs {
			if err := writeInstr(buf, inner); err != nil {
				return err
			}
		}
		buf.WriteByte(byte(opcode.End))
		return nil
	}

	buf.WriteByte(byte(instr.Op()))
	for _, arg := range instr.ImmediateArgs() {
		switch v := arg.(type) {
		case uint32:
			writeU32(buf, v)
		case int32:
			writeI32(buf, v)
		case int64:
			writeI64(buf, v)
		case byte:
			buf.WriteByte(v)
		default:
			return fmt.Errorf("encoding: unsupported immediate argument type %T", v)
		}
	}
	return nil
}

// readInstrs decodes instructions until a top-level "end" (0x0B) opcode is
// consumed, returning the decoded sequence (not including the terminator).
func readInstrs(r *bufio.Reader) ([]instruction.Instruction, error) {
	var out []instruction.Instruction
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if opcode.Opcode(op) == opcode.End {
			return out, nil
		}
		instr, err := readInstr(r, opcode.Opcode(op))
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}
}

func readInstr(r *bufio.Reader, op opcode.Opcode) (instruction.Instruction, error) {
	switch op {
	case opcode.Unreachable:
		return instruction.Unreachable{}, nil
	case opcode.Block:
		if _, err := r.ReadByte(); err != nil { // block type, always empty here
			return nil, err
		}
		inner, err := readInstrs(r)
		if err != nil {
			return nil, err
		}
		return instruction.Block{Instrs: inner}, nil
	case opcode.Br:
		idx, err := readU32(r)
		return instruction.Br{Index: idx}, err
	case opcode.BrIf:
		idx, err := readU32(r)
		return instruction.BrIf{Index: idx}, err
	case opcode.Call:
		idx, err := readU32(r)
		return instruction.Call{Index: idx}, err
	case opcode.CallIndirect:
		typeIdx, err := readU32(r)
		if err != nil {
			return nil, err
		}
		tableIdx, err := readU32(r)
		return instruction.CallIndirect{TypeIndex: typeIdx, TableIndex: tableIdx}, err
	case opcode.LocalGet:
		idx, err := readU32(r)
		return instruction.LocalGet{Index: idx}, err
	case opcode.LocalSet:
		idx, err := readU32(r)
		return instruction.LocalSet{Index: idx}, err
	case opcode.GlobalGet:
		idx, err := readU32(r)
		return instruction.GlobalGet{Index: idx}, err
	case opcode.GlobalSet:
		idx, err := readU32(r)
		return instruction.GlobalSet{Index: idx}, err
	case opcode.I32Load:
		align, err := readU32(r)
		if err != nil {
			return nil, err
		}
		off, err := readU32(r)
		return instruction.I32Load{Align: align, Offset: off}, err
	case opcode.I32Store:
		align, err := readU32(r)
		if err != nil {
			return nil, err
		}
		off, err := readU32(r)
		return instruction.I32Store{Align: align, Offset: off}, err
	case opcode.I32Const:
		v, err := readI32(r)
		return instruction.I32Const{Value: v}, err
	case opcode.I64Const:
		v, err := readI64(r)
		return instruction.I64Const{Value: v}, err
	case opcode.I32Add:
		return instruction.I32Add{}, nil
	case opcode.I32Ne:
		return instruction.I32Ne{}, nil
	case opcode.I32Eqz:
		return instruction.I32Eqz{}, nil
	default:
		return nil, fmt.Errorf("encoding: unsupported opcode 0x%02x", byte(op))
	}
}
