package resolve

import (
	"bytes"

	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
)

// StubLibraryName is the library name of the synthesized stub module
// inserted when every missing symbol is a function and either
// stub-insertion was requested or every missing symbol is weak.
const StubLibraryName = "wit-component:stubs"

// MakeStubsModule synthesizes a module with one trap-only exported
// function per entry of missing, in discovery order, each with the
// signature recorded at its import site. It is appended as a
// non-dlopen library and the encode pass restarts from scratch.
func MakeStubsModule(missing []Missing) ([]byte, error) {
	m := &module.Module{Version: 1}

	for i, miss := range missing {
		ft := miss.Export.Type.Function
		m.Type.Functions = append(m.Type.Functions, module.FunctionType{Params: ft.Params, Results: ft.Results})
		m.Function.TypeIndices = append(m.Function.TypeIndices, uint32(i))
		m.Export.Exports = append(m.Export.Exports, module.Export{
			Name:       miss.Export.Key.Name,
			Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: uint32(i)},
		})
		m.Code.Segments = append(m.Code.Segments, module.RawCodeSegment{})
	}

	for i := range missing {
		var buf bytes.Buffer
		entry := &module.CodeEntry{Func: module.FunctionBody{
			Expr: module.Expr{Instrs: []instruction.Instruction{instruction.Unreachable{}}},
		}}
		if err := encoding.WriteCodeEntry(&buf, entry); err != nil {
			return nil, err
		}
		m.Code.Segments[i].Code = buf.Bytes()
	}

	m.Customs = append(m.Customs, module.ProducersSection())

	var out bytes.Buffer
	if err := encoding.WriteModule(&out, m); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
