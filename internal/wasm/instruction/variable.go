package instruction

import "github.com/wasmcompose/linker/internal/wasm/opcode"

// LocalGet represents the WASM local.get instruction.
type LocalGet struct {
	Index uint32
}

func (LocalGet) Op() opcode.Opcode { return opcode.LocalGet }

func (i LocalGet) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// LocalSet represents the WASM local.set instruction.
type LocalSet struct {
	Index uint32
}

func (LocalSet) Op() opcode.Opcode { return opcode.LocalSet }

func (i LocalSet) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// GlobalGet represents the WASM global.get instruction.
type GlobalGet struct {
	Index uint32
}

func (GlobalGet) Op() opcode.Opcode { return opcode.GlobalGet }

func (i GlobalGet) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// GlobalSet represents the WASM global.set instruction.
type GlobalSet struct {
	Index uint32
}

func (GlobalSet) Op() opcode.Opcode { return opcode.GlobalSet }

func (i GlobalSet) ImmediateArgs() []interface{} { return []interface{}{i.Index} }
