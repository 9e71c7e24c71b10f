// Package opcode enumerates the WASM binary instruction opcodes used by
// internal/wasm/instruction and internal/wasm/encoding.
package opcode

// Opcode is a single WASM instruction opcode byte.
type Opcode byte

const (
	Unreachable  Opcode = 0x00
	Nop          Opcode = 0x01
	Block        Opcode = 0x02
	Loop         Opcode = 0x03
	If           Opcode = 0x04
	Else         Opcode = 0x05
	End          Opcode = 0x0B
	Br           Opcode = 0x0C
	BrIf         Opcode = 0x0D
	Return       Opcode = 0x0F
	Call         Opcode = 0x10
	CallIndirect Opcode = 0x11

	LocalGet  Opcode = 0x20
	LocalSet  Opcode = 0x21
	LocalTee  Opcode = 0x22
	GlobalGet Opcode = 0x23
	GlobalSet Opcode = 0x24

	I32Load  Opcode = 0x28
	I64Load  Opcode = 0x29
	I32Store Opcode = 0x36
	I64Store Opcode = 0x37

	I32Const Opcode = 0x41
	I64Const Opcode = 0x42
	F32Const Opcode = 0x43
	F64Const Opcode = 0x44

	I32Eqz Opcode = 0x45
	I32Eq  Opcode = 0x46
	I32Ne  Opcode = 0x47

	I32Add Opcode = 0x6A
	I32Sub Opcode = 0x6B
	I32Mul Opcode = 0x6C
)

// BlockTypeEmpty is the "void" immediate used by block/loop/if when no result
// type is produced, encoded as the single byte 0x40.
const BlockTypeEmpty byte = 0x40
