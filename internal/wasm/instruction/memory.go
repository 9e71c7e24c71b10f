package instruction

import "github.com/wasmcompose/linker/internal/wasm/opcode"

// I32Load represents the WASM i32.load instruction.
type I32Load struct {
	Offset uint32
	Align  uint32
}

func (I32Load) Op() opcode.Opcode { return opcode.I32Load }

func (i I32Load) ImmediateArgs() []interface{} { return []interface{}{i.Align, i.Offset} }

// I32Store represents the WASM i32.store instruction.
type I32Store struct {
	Offset uint32
	Align  uint32
}

func (I32Store) Op() opcode.Opcode { return opcode.I32Store }

func (i I32Store) ImmediateArgs() []interface{} { return []interface{}{i.Align, i.Offset} }
