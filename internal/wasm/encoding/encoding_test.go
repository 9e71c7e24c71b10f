package encoding

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

func TestWriteReadModuleRoundTrip(t *testing.T) {
	maxOne := uint32(1)
	start := uint32(1)

	m := &module.Module{
		Version: 1,
		Type: module.TypeSection{Functions: []module.FunctionType{
			{Params: []types.ValueType{types.I32}, Results: []types.ValueType{types.I32}},
			{},
		}},
		Import: module.ImportSection{Imports: []module.Import{
			{Module: "env", Name: "memory", Descriptor: module.MemoryImport{Memory: module.MemoryType{Minimum: 1, Maximum: &maxOne}}},
			{Module: "env", Name: "helper", Descriptor: module.FunctionImport{Func: 0}},
		}},
		Function: module.FunctionSection{TypeIndices: []uint32{1}},
		Table:    module.TableSection{Tables: []module.TableType{{Minimum: 4}}},
		Global: module.GlobalSection{Globals: []module.Global{
			{Type: types.I32, Mutable: true, Init: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 42}}}},
		}},
		Export: module.ExportSection{Exports: []module.Export{
			{Name: "run", Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: 1}},
			{Name: "counter", Descriptor: module.ExportDescriptor{Type: module.GlobalExportType, Index: 0}},
		}},
		Start: module.StartSection{FuncIndex: &start},
		Element: module.ElementSection{Segments: []module.ElementSegment{
			{Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 0}}}, FuncIndices: []uint32{0, 1}},
		}},
		Data: module.DataSection{Segments: []module.DataSegment{
			{Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 8}}}, Init: []byte("hello")},
		}},
		Customs: []module.CustomSection{{Name: "producers", Payload: []byte{1, 2, 3}}},
	}

	var buf bytes.Buffer
	if err := WriteCodeEntry(&buf, &module.CodeEntry{Func: module.FunctionBody{
		Expr: module.Expr{Instrs: []instruction.Instruction{
			instruction.LocalGet{Index: 0},
			instruction.Call{Index: 0},
		}},
	}}); err != nil {
		t.Fatal(err)
	}
	m.Code.Segments = []module.RawCodeSegment{{Code: buf.Bytes()}}

	var encoded bytes.Buffer
	require.NoError(t, WriteModule(&encoded, m))

	decoded, err := ReadModule(bytes.NewReader(encoded.Bytes()))
	require.NoError(t, err)

	require.Equal(t, m.Type.Functions, decoded.Type.Functions)
	require.Equal(t, m.Import.Imports, decoded.Import.Imports)
	require.Equal(t, m.Function.TypeIndices, decoded.Function.TypeIndices)
	require.Equal(t, m.Table.Tables, decoded.Table.Tables)
	require.Equal(t, m.Global.Globals, decoded.Global.Globals)
	require.Equal(t, m.Export.Exports, decoded.Export.Exports)
	require.Equal(t, *m.Start.FuncIndex, *decoded.Start.FuncIndex)
	require.Equal(t, m.Element.Segments, decoded.Element.Segments)
	require.Equal(t, m.Data.Segments, decoded.Data.Segments)
	require.Equal(t, m.Code.Segments, decoded.Code.Segments)
	require.Contains(t, decoded.Customs, module.CustomSection{Name: "producers", Payload: []byte{1, 2, 3}})

	entries, err := CodeEntries(decoded)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []instruction.Instruction{
		instruction.LocalGet{Index: 0},
		instruction.Call{Index: 0},
	}, entries[0].Func.Expr.Instrs)
}

func TestWriteModuleRejectsNonZeroElementTableIndex(t *testing.T) {
	m := &module.Module{Version: 1, Element: module.ElementSection{Segments: []module.ElementSegment{
		{Index: 1, Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: 0}}}},
	}}}
	var buf bytes.Buffer
	require.Error(t, WriteModule(&buf, m))
}

func TestU32LEBRoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 16384, 0xFFFFFFFF} {
		var buf bytes.Buffer
		writeU32(&buf, v)
		got, err := readU32(bufio.NewReader(bytes.NewReader(buf.Bytes())))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestI32LEBRoundTripSignExtension(t *testing.T) {
	for _, v := range []int32{-1, -128, 0, 127, 128, -65536} {
		var buf bytes.Buffer
		writeI32(&buf, v)
		got, err := readI32(bufio.NewReader(bytes.NewReader(buf.Bytes())))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}
