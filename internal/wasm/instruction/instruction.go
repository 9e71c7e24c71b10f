// Package instruction defines the WASM instruction set emitted by the
// synthesized env/init/stub modules.
package instruction

import "github.com/wasmcompose/linker/internal/wasm/opcode"

// Instruction is implemented by every emittable WASM instruction.
type Instruction interface {
	// Op returns the instruction's opcode.
	Op() opcode.Opcode
	// ImmediateArgs returns the instruction's immediate operands, in the
	// order the binary encoder should write them.
	ImmediateArgs() []interface{}
}

// NoImmediateArgs is embedded by instructions that carry no immediates.
type NoImmediateArgs struct{}

// ImmediateArgs returns an empty slice.
func (NoImmediateArgs) ImmediateArgs() []interface{} { return nil }

// MemArg describes the alignment/offset immediate pair carried by memory
// instructions.
type MemArg struct {
	Offset uint32
	Align  uint32
}
