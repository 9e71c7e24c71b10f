package encoding

import (
	"bufio"
	"bytes"

	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/opcode"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

// WriteCodeEntry encodes a single function body (locals declarations
// followed by its instruction stream and terminating "end" opcode) and
// writes it to w, without the leading size prefix used inside the code
// section. Callers that assemble a code section segment-by-segment, as
// the synthesizers do, store the bytes written to w directly in
// module.RawCodeSegment.Code.
func WriteCodeEntry(w *bytes.Buffer, entry *module.CodeEntry) error {
	writeU32(w, uint32(len(entry.Func.Locals)))
	for _, decl := range entry.Func.Locals {
		writeU32(w, decl.Count)
		w.WriteByte(byte(decl.Type))
	}
	for _, instr := range entry.Func.Expr.Instrs {
		if err := writeInstr(w, instr); err != nil {
			return err
		}
	}
	w.WriteByte(byte(opcode.End))
	return nil
}

// CodeEntries decodes every raw segment in m's code section into a
// structured module.CodeEntry, in declaration order.
func CodeEntries(m *module.Module) ([]*module.CodeEntry, error) {
	entries := make([]*module.CodeEntry, len(m.Code.Segments))
	for i, seg := range m.Code.Segments {
		entry, err := readCodeEntry(seg.Code)
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}
	return entries, nil
}

func readCodeEntry(code []byte) (*module.CodeEntry, error) {
	r := bufio.NewReader(bytes.NewReader(code))

	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	locals := make([]module.LocalDeclaration, n)
	for i := range locals {
		count, err := readU32(r)
		if err != nil {
			return nil, err
		}
		vt, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		locals[i] = module.LocalDeclaration{Count: count, Type: types.ValueType(vt)}
	}

	instrs, err := readInstrs(r)
	if err != nil {
		return nil, err
	}

	return &module.CodeEntry{
		Func: module.FunctionBody{
			Locals: locals,
			Expr:   module.Expr{Instrs: instrs},
		},
	}, nil
}
