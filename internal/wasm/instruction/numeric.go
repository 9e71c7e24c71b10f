package instruction

import "github.com/wasmcompose/linker/internal/wasm/opcode"

// I32Const represents the WASM i32.const instruction.
type I32Const struct {
	Value int32
}

func (I32Const) Op() opcode.Opcode { return opcode.I32Const }

func (i I32Const) ImmediateArgs() []interface{} { return []interface{}{i.Value} }

// I64Const represents the WASM i64.const instruction.
type I64Const struct {
	Value int64
}

func (I64Const) Op() opcode.Opcode { return opcode.I64Const }

func (i I64Const) ImmediateArgs() []interface{} { return []interface{}{i.Value} }

// I32Add represents the WASM i32.add instruction.
type I32Add struct{ NoImmediateArgs }

func (I32Add) Op() opcode.Opcode { return opcode.I32Add }

// I32Ne represents the WASM i32.ne instruction.
type I32Ne struct{ NoImmediateArgs }

func (I32Ne) Op() opcode.Opcode { return opcode.I32Ne }

// I32Eqz represents the WASM i32.eqz instruction.
type I32Eqz struct{ NoImmediateArgs }

func (I32Eqz) Op() opcode.Opcode { return opcode.I32Eqz }
