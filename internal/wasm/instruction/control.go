package instruction

import "github.com/wasmcompose/linker/internal/wasm/opcode"

// Unreachable represents the WASM unreachable instruction. Used as the
// entire body of every stub-module export.
type Unreachable struct{ NoImmediateArgs }

func (Unreachable) Op() opcode.Opcode { return opcode.Unreachable }

// Call represents the WASM call instruction.
type Call struct {
	Index uint32
}

func (Call) Op() opcode.Opcode { return opcode.Call }

func (i Call) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// CallIndirect represents the WASM call_indirect instruction. Indirection
// thunks are the only place this linker emits it.
type CallIndirect struct {
	TypeIndex  uint32
	TableIndex uint32
}

func (CallIndirect) Op() opcode.Opcode { return opcode.CallIndirect }

func (i CallIndirect) ImmediateArgs() []interface{} {
	return []interface{}{i.TypeIndex, i.TableIndex}
}

// Br represents the WASM br instruction.
type Br struct {
	Index uint32
}

func (Br) Op() opcode.Opcode { return opcode.Br }

func (i Br) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// BrIf represents the WASM br_if instruction.
type BrIf struct {
	Index uint32
}

func (BrIf) Op() opcode.Opcode { return opcode.BrIf }

func (i BrIf) ImmediateArgs() []interface{} { return []interface{}{i.Index} }

// Block represents a WASM block construct. Encoding wraps Instrs with the
// block/end opcodes; the block's own immediate is always the empty block
// type, since this linker never emits blocks with result types.
type Block struct {
	Instrs []Instruction
}

func (Block) Op() opcode.Opcode { return opcode.Block }

func (Block) ImmediateArgs() []interface{} { return []interface{}{opcode.BlockTypeEmpty} }
