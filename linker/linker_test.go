package linker

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
)

// libraryOpts describes a minimal dynamic library module for test
// fixtures: its own exported functions, the env-module functions it
// imports, and whether it should be treated as a component root.
type libraryOpts struct {
	exports       []string
	envImports    map[string]module.FunctionType
	componentRoot bool
}

func buildLibraryModule(t *testing.T, opts libraryOpts) []byte {
	m := &module.Module{Version: 1}

	voidType := uint32(0)
	m.Type.Functions = append(m.Type.Functions, module.FunctionType{})

	for name, ft := range opts.envImports {
		typeIdx := addFuncTypeForTest(m, ft)
		m.Import.Imports = append(m.Import.Imports, module.Import{
			Module: "env", Name: name, Descriptor: module.FunctionImport{Func: typeIdx},
		})
	}

	numImports := uint32(len(m.Import.Imports))
	for _, export := range opts.exports {
		m.Function.TypeIndices = append(m.Function.TypeIndices, voidType)
		funcIdx := numImports + uint32(len(m.Function.TypeIndices)-1)

		var buf bytes.Buffer
		require.NoError(t, encoding.WriteCodeEntry(&buf, &module.CodeEntry{Func: module.FunctionBody{
			Expr: module.Expr{Instrs: []instruction.Instruction{instruction.Unreachable{}}},
		}}))
		m.Code.Segments = append(m.Code.Segments, module.RawCodeSegment{Code: buf.Bytes()})

		m.Export.Exports = append(m.Export.Exports, module.Export{
			Name:       export,
			Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: funcIdx},
		})
	}

	if opts.componentRoot {
		m.Customs = append(m.Customs, module.CustomSection{Name: "component-type"})
	}

	m.Customs = append(m.Customs, module.CustomSection{Name: "dylink.0"})

	var out bytes.Buffer
	require.NoError(t, encoding.WriteModule(&out, m))
	return out.Bytes()
}

func addFuncTypeForTest(m *module.Module, ft module.FunctionType) uint32 {
	for i, existing := range m.Type.Functions {
		if existing.Equal(ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Type.Functions))
	m.Type.Functions = append(m.Type.Functions, ft)
	return idx
}

func TestEncodeTwoAcyclicLibraries(t *testing.T) {
	base := buildLibraryModule(t, libraryOpts{exports: []string{"add"}})
	top := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		envImports:    map[string]module.FunctionType{"add": {}},
	})

	out, err := New().
		Library("base", base, false).
		Library("top", top, false).
		Encode()

	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestEncodeMutualRecursionViaIndirection(t *testing.T) {
	// "a" exports even_is and imports odd_is from env; "b" exports
	// odd_is and imports even_is from env: a genuine dependency cycle,
	// resolved by the indirection shim rather than rejected.
	a := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		exports:       []string{"even_is"},
		envImports:    map[string]module.FunctionType{"odd_is": {}},
	})
	b := buildLibraryModule(t, libraryOpts{
		exports:    []string{"odd_is"},
		envImports: map[string]module.FunctionType{"even_is": {}},
	})

	out, err := New().
		Library("a", a, false).
		Library("b", b, false).
		Encode()

	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestEncodeMissingWeakFunctionIsStubbedAutomatically(t *testing.T) {
	top := buildLibraryModuleWithWeakImport(t, "optional_hook")

	out, err := New().
		Library("top", top, false).
		Encode()

	require.NoError(t, err, "a weak missing import must be stubbed without StubMissingFunctions")
	require.NotEmpty(t, out)
}

func buildLibraryModuleWithWeakImport(t *testing.T, weakImportName string) []byte {
	m := &module.Module{Version: 1}
	m.Type.Functions = append(m.Type.Functions, module.FunctionType{})
	m.Import.Imports = append(m.Import.Imports, module.Import{
		Module: "env", Name: weakImportName, Descriptor: module.FunctionImport{Func: 0},
	})
	m.Customs = append(m.Customs, module.CustomSection{Name: "component-type"})

	// dylink.0 import-info (sub-section id 4): one {module, field, flags}
	// triple per entry, flags = WEAK_BINDING for this import.
	info := leb(1)
	info = append(info, lebName("env")...)
	info = append(info, lebName(weakImportName)...)
	info = append(info, leb(1)...) // WEAK_BINDING
	dylink0 := append([]byte{4}, append(leb(uint32(len(info))), info...)...)
	m.Customs = append(m.Customs, module.CustomSection{Name: "dylink.0", Payload: dylink0})

	var out bytes.Buffer
	require.NoError(t, encoding.WriteModule(&out, m))
	return out.Bytes()
}

func lebName(s string) []byte {
	return append(leb(uint32(len(s))), []byte(s)...)
}

func leb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func TestEncodeDuplicateSymbolFails(t *testing.T) {
	expA := buildLibraryModule(t, libraryOpts{exports: []string{"shared"}})
	expB := buildLibraryModule(t, libraryOpts{exports: []string{"shared"}})
	top := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		envImports:    map[string]module.FunctionType{"shared": {}},
	})

	_, err := New().
		Library("a", expA, false).
		Library("b", expB, false).
		Library("top", top, false).
		Encode()

	require.Error(t, err)
}

func TestLibraryRejectsDuplicateName(t *testing.T) {
	lib := buildLibraryModule(t, libraryOpts{exports: []string{"x"}})
	l := New().Library("dup", lib, false).Library("dup", lib, false)
	_, err := l.Encode()
	require.Error(t, err)
}

func TestEncodeUnreachableLibraryIsDropped(t *testing.T) {
	root := buildLibraryModule(t, libraryOpts{componentRoot: true, exports: []string{"entry"}})
	orphan := buildLibraryModule(t, libraryOpts{exports: []string{"unused"}})

	out, err := New().
		Library("root", root, false).
		Library("orphan", orphan, false).
		Encode()

	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestEncodeIsDeterministic(t *testing.T) {
	base := buildLibraryModule(t, libraryOpts{exports: []string{"add", "sub"}})
	top := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		envImports:    map[string]module.FunctionType{"add": {}, "sub": {}},
	})

	build := func() []byte {
		out, err := New().
			Library("base", base, false).
			Library("top", top, true).
			Encode()
		require.NoError(t, err)
		return out
	}

	first := build()
	for i := 0; i < 5; i++ {
		require.Equal(t, first, build(), "identical inputs must produce byte-identical output")
	}
}

func TestEncodeValidateAcceptsSynthesizedModules(t *testing.T) {
	base := buildLibraryModule(t, libraryOpts{exports: []string{"f"}})
	top := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		envImports:    map[string]module.FunctionType{"f": {}},
	})

	out, err := New().
		Library("base", base, false).
		Library("top", top, false).
		Validate(true).
		Encode()

	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestEncodeMissingNonWeakFunctionFailsWithSuggestion(t *testing.T) {
	top := buildLibraryModule(t, libraryOpts{
		componentRoot: true,
		envImports:    map[string]module.FunctionType{"dooo_thing": {}},
	})
	base := buildLibraryModule(t, libraryOpts{exports: []string{"do_thing"}})

	_, err := New().
		Library("base", base, false).
		Library("top", top, false).
		Encode()

	require.Error(t, err)
	require.Contains(t, err.Error(), "dooo_thing")
	require.Contains(t, err.Error(), "did you mean one of: [do_thing]")
}
