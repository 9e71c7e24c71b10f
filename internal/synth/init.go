package synth

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/layout"
	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

type importKey struct {
	module, name string
}

// Init synthesizes the "init" module: it imports env's memory,
// table, and every global/function it needs from the linked libraries,
// and runs every instantiation-time fixup (dlopen global address
// fixups, GOT.mem relocations, __wasm_apply_data_relocs,
// __wasm_call_ctors, __wasm_set_libraries) from its start function, in
// that order.
func Init(mds []*metadata.Metadata, resolved map[metadata.ExportKey]resolve.Exporter, indirections []layout.Indirection, env *EnvResult) ([]byte, error) {
	m := &module.Module{Version: 1}

	// type 0: ()->(), used by the start function and by
	// __wasm_apply_data_relocs / __wasm_call_ctors imports.
	m.Type.Functions = append(m.Type.Functions, module.FunctionType{})
	// type 1: (i32)->(), used by __wasm_set_libraries imports.
	m.Type.Functions = append(m.Type.Functions, module.FunctionType{Params: []types.ValueType{types.I32}})
	nextTypeIdx := uint32(2)

	m.Import.Imports = append(m.Import.Imports,
		module.Import{Module: "env", Name: "memory", Descriptor: module.MemoryImport{Memory: module.MemoryType{Minimum: 0}}},
		module.Import{Module: "env", Name: "__indirect_function_table", Descriptor: module.TableImport{Table: module.TableType{Minimum: 0}}},
	)

	globalMap := map[importKey]uint32{}
	var globalImportCount uint32
	addGlobalImport := func(mod, name string, mutable bool) uint32 {
		key := importKey{mod, name}
		if idx, ok := globalMap[key]; ok {
			return idx
		}
		m.Import.Imports = append(m.Import.Imports, module.Import{
			Module:     mod,
			Name:       name,
			Descriptor: module.GlobalImport{Global: module.GlobalType{Type: types.I32, Mutable: mutable}},
		})
		idx := globalImportCount
		globalMap[key] = idx
		globalImportCount++
		return idx
	}

	functionMap := map[importKey]uint32{}
	var functionImportCount uint32
	addFunctionImport := func(mod, name string, typeIdx uint32) uint32 {
		key := importKey{mod, name}
		if idx, ok := functionMap[key]; ok {
			return idx
		}
		m.Import.Imports = append(m.Import.Imports, module.Import{
			Module:     mod,
			Name:       name,
			Descriptor: module.FunctionImport{Func: typeIdx},
		})
		idx := functionImportCount
		functionMap[key] = idx
		functionImportCount++
		return idx
	}

	var memoryAddressInits, relocCalls, ctorCalls, setLibrariesCalls []instruction.Instruction

	for _, fixup := range env.DlOpenables.GlobalAddresses {
		exporterBase := addGlobalImport("env", fixup.Exporter+":memory_base", false)
		exporterGlobal := addGlobalImport(fixup.Exporter, fixup.Symbol, false)
		memoryAddressInits = append(memoryAddressInits,
			instruction.I32Const{Value: int32(fixup.SlotAddress)},
			instruction.GlobalGet{Index: exporterBase},
			instruction.GlobalGet{Index: exporterGlobal},
			instruction.I32Add{},
			instruction.I32Store{Offset: 0, Align: 2},
		)
	}

	for _, md := range mds {
		if md.HasDataRelocs {
			idx := addFunctionImport(md.Name, "__wasm_apply_data_relocs", 0)
			relocCalls = append(relocCalls, instruction.Call{Index: idx})
		}
		if md.HasCtors {
			idx := addFunctionImport(md.Name, "__wasm_call_ctors", 0)
			ctorCalls = append(ctorCalls, instruction.Call{Index: idx})
		}
		if md.HasSetLibraries {
			idx := addFunctionImport(md.Name, "__wasm_set_libraries", 1)
			setLibrariesCalls = append(setLibrariesCalls,
				instruction.I32Const{Value: int32(env.DlOpenables.LibrariesAddress)},
				instruction.Call{Index: idx},
			)
		}

		for _, sym := range sortedSet(md.MemoryAddressImports) {
			key := metadata.GlobalKey(sym, metadata.GlobalType{ValueType: types.I32, Mutable: false})
			exporter, ok := resolved[key]
			if !ok {
				return nil, errors.Errorf("synth: no resolved exporter for GOT.mem symbol %q", sym)
			}

			exporterBase := addGlobalImport("env", exporter.Library+":memory_base", false)
			exporterGlobal := addGlobalImport(exporter.Library, sym, false)
			dest := addGlobalImport("env", md.Name+":"+sym, true)

			memoryAddressInits = append(memoryAddressInits,
				instruction.GlobalGet{Index: exporterBase},
				instruction.GlobalGet{Index: exporterGlobal},
				instruction.I32Add{},
				instruction.GlobalSet{Index: dest},
			)
		}
	}

	var dlOpenableFunctions []uint32
	for _, md := range mds {
		if !md.DlOpenable {
			continue
		}
		for _, export := range md.Exports {
			if export.Key.Kind != metadata.KindFunction {
				continue
			}
			idx := addFunctionImport(md.Name, export.Key.Name, addFuncTypeTracking(m, export.Type.Function, &nextTypeIdx))
			dlOpenableFunctions = append(dlOpenableFunctions, idx)
		}
	}

	var indirectionFuncs []uint32
	for _, ind := range indirections {
		exporterName := mds[ind.Exporter].Name
		idx := addFunctionImport(exporterName, ind.Name, addFuncTypeTracking(m, ind.Type, &nextTypeIdx))
		indirectionFuncs = append(indirectionFuncs, idx)
	}

	m.Function.TypeIndices = append(m.Function.TypeIndices, 0)

	m.Start.FuncIndex = &functionImportCount

	m.Element.Segments = append(m.Element.Segments,
		module.ElementSegment{
			Offset:      module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: int32(env.DlOpenables.TableBase)}}},
			FuncIndices: dlOpenableFunctions,
		},
		module.ElementSegment{
			Offset:      module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: int32(env.IndirectionTableBase)}}},
			FuncIndices: indirectionFuncs,
		},
	)

	var body []instruction.Instruction
	body = append(body, memoryAddressInits...)
	body = append(body, relocCalls...)
	body = append(body, ctorCalls...)
	body = append(body, setLibrariesCalls...)

	var buf bytes.Buffer
	if err := encoding.WriteCodeEntry(&buf, &module.CodeEntry{Func: module.FunctionBody{Expr: module.Expr{Instrs: body}}}); err != nil {
		return nil, err
	}
	m.Code.Segments = append(m.Code.Segments, module.RawCodeSegment{Code: buf.Bytes()})

	m.Data.Segments = append(m.Data.Segments, module.DataSegment{
		Offset: module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: int32(env.DlOpenables.MemoryBase)}}},
		Init:   env.DlOpenables.Buffer,
	})

	m.Customs = append(m.Customs, module.ProducersSection())

	var out bytes.Buffer
	if err := encoding.WriteModule(&out, m); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// addFuncTypeTracking allocates a fresh type entry and returns the
// index the caller should pass to addFunctionImport. TODO: deduplicate
// identical signatures instead of appending a new entry each time.
func addFuncTypeTracking(m *module.Module, ft metadata.FunctionType, next *uint32) uint32 {
	idx := *next
	m.Type.Functions = append(m.Type.Functions, module.FunctionType{Params: ft.Params, Results: ft.Results})
	*next++
	return idx
}
