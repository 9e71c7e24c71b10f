package synth

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcompose/linker/internal/layout"
	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

func emptyEnvResult(mds []*metadata.Metadata) *EnvResult {
	return &EnvResult{
		Module:      &module.Module{Version: 1},
		DlOpenables: layout.NewDlOpenables(0, 0, mds),
	}
}

func TestInitWithNoFixupsEncodesAValidModule(t *testing.T) {
	mds := []*metadata.Metadata{{Name: "a"}}

	out, err := Init(mds, map[metadata.ExportKey]resolve.Exporter{}, nil, emptyEnvResult(mds))
	require.NoError(t, err)
	require.NotEmpty(t, out)

	m, err := encoding.ReadModule(bytes.NewReader(out))
	require.NoError(t, err)
	require.NotNil(t, m.Start.FuncIndex)
}

func TestInitCallsCtorsAndDataRelocsInOrder(t *testing.T) {
	mds := []*metadata.Metadata{{Name: "a", HasDataRelocs: true, HasCtors: true}}

	out, err := Init(mds, map[metadata.ExportKey]resolve.Exporter{}, nil, emptyEnvResult(mds))
	require.NoError(t, err)

	m, err := encoding.ReadModule(bytes.NewReader(out))
	require.NoError(t, err)

	var fnNames []string
	for _, imp := range m.Import.Imports {
		if imp.Descriptor.Kind() == module.FunctionImportType {
			fnNames = append(fnNames, imp.Name)
		}
	}
	require.Contains(t, fnNames, "__wasm_apply_data_relocs")
	require.Contains(t, fnNames, "__wasm_call_ctors")

	// the start function calls data relocs (import 0) before ctors (import 1)
	entries, err := encoding.CodeEntries(m)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []instruction.Instruction{
		instruction.Call{Index: 0},
		instruction.Call{Index: 1},
	}, entries[0].Func.Expr.Instrs)
}

func TestInitMissingGOTMemExporterIsAnError(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "a", MemoryAddressImports: map[string]struct{}{"some_global": {}}},
	}

	_, err := Init(mds, map[metadata.ExportKey]resolve.Exporter{}, nil, emptyEnvResult(mds))
	require.Error(t, err)
}

func TestInitResolvedGOTMemExporterAddsGlobalFixup(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "a", MemoryAddressImports: map[string]struct{}{"shared_counter": {}}},
	}

	// GOT.mem pseudo-imports are always matched as an i32, immutable
	// address global regardless of the underlying symbol's real type.
	gt := metadata.GlobalType{ValueType: types.I32, Mutable: false}
	resolved := map[metadata.ExportKey]resolve.Exporter{
		metadata.GlobalKey("shared_counter", gt): {Library: "b"},
	}

	out, err := Init(mds, resolved, nil, emptyEnvResult(mds))
	require.NoError(t, err)
	require.NotEmpty(t, out)
}
