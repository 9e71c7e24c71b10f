package module

import (
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

// Expr is a constant expression: a short instruction sequence, used for
// global initializers and segment offsets. The implicit trailing "end"
// opcode is added by the encoder, not stored here.
type Expr struct {
	Instrs []instruction.Instruction
}

// CodeSection holds one RawCodeSegment per defined function, in the same
// order as FunctionSection.TypeIndices.
type CodeSection struct {
	Segments []RawCodeSegment
}

// RawCodeSegment holds a function's already-encoded body bytes (locals
// declarations followed by its instruction stream and trailing end byte).
// It is "raw" because the synthesizer fills it in after the fact via
// encoding.WriteCodeEntry, rather than storing a structured tree here.
type RawCodeSegment struct {
	Code []byte
}

// CodeEntry is the structured form of a single function's body, as built
// up by the synthesizers before being encoded into a RawCodeSegment.
type CodeEntry struct {
	Func FunctionBody
}

// FunctionBody is a function's local declarations and instruction stream.
type FunctionBody struct {
	Locals []LocalDeclaration
	Expr   Expr
}

// LocalDeclaration declares Count consecutive locals of Type.
type LocalDeclaration struct {
	Count uint32
	Type  types.ValueType
}
