package synth

import (
	"bytes"
	"sort"

	"github.com/wasmcompose/linker/internal/layout"
	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/instruction"
	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

// EnvResult bundles the synthesized env module with the layout
// decisions the init module must stay consistent with.
type EnvResult struct {
	Module               *module.Module
	DlOpenables          layout.DlOpenables
	IndirectionTableBase uint32
}

type importRef struct {
	kind  module.ExportType
	index uint32
}

// Env synthesizes the "env" module: a passthrough of every raw
// import across all libraries, the dlopen lookup table, per-library
// memory/table base globals (in input order, so offsets are stable
// across runs with identical inputs), heap globals, and the
// call_indirect indirection thunks that break the dependency cycles
// found during topological sort.
func Env(mds []*metadata.Metadata, indirections []layout.Indirection, cabiReallocLibrary string) (*EnvResult, error) {
	m := &module.Module{Version: 1}

	importMap := map[string]importRef{}
	var importOrder []string
	importOf := map[string]metadata.Import{}

	addType := func(ft metadata.FunctionType) uint32 {
		idx := uint32(len(m.Type.Functions))
		m.Type.Functions = append(m.Type.Functions, module.FunctionType{Params: ft.Params, Results: ft.Results})
		return idx
	}

	var funcImportCount, globalImportCount uint32

	for _, md := range mds {
		for _, imp := range md.Imports {
			key := imp.Module + "\x00" + imp.Name + "\x00" + imp.Type.String()
			if _, ok := importMap[key]; ok {
				continue
			}
			switch imp.Type.Kind {
			case metadata.KindFunction:
				typeIdx := addType(imp.Type.Function)
				m.Import.Imports = append(m.Import.Imports, module.Import{
					Module:     imp.Module,
					Name:       imp.Name,
					Descriptor: module.FunctionImport{Func: typeIdx},
				})
				importMap[key] = importRef{kind: module.FunctionExportType, index: funcImportCount}
				funcImportCount++
			case metadata.KindGlobal:
				m.Import.Imports = append(m.Import.Imports, module.Import{
					Module: imp.Module,
					Name:   imp.Name,
					Descriptor: module.GlobalImport{Global: module.GlobalType{
						Type:    imp.Type.Global.ValueType,
						Mutable: imp.Type.Global.Mutable,
					}},
				})
				importMap[key] = importRef{kind: module.GlobalExportType, index: globalImportCount}
				globalImportCount++
			}
			importOrder = append(importOrder, key)
			importOf[key] = imp
		}
	}

	memoryOffset := StackSizeBytes
	tableOffset := uint32(0)

	var exports []module.Export
	var globals []module.Global

	addGlobalExport := func(name string, value uint32, mutable bool) {
		idx := uint32(len(globals))
		globals = append(globals, module.Global{
			Type:    types.I32,
			Mutable: mutable,
			Init:    module.Expr{Instrs: []instruction.Instruction{instruction.I32Const{Value: int32(value)}}},
		})
		exports = append(exports, module.Export{Name: name, Descriptor: module.ExportDescriptor{Type: module.GlobalExportType, Index: idx}})
	}

	if cabiReallocLibrary != "" {
		typeIdx := addType(metadata.FunctionType{
			Params:  []types.ValueType{types.I32, types.I32, types.I32, types.I32},
			Results: []types.ValueType{types.I32},
		})
		m.Import.Imports = append(m.Import.Imports, module.Import{
			Module:     cabiReallocLibrary,
			Name:       "cabi_realloc",
			Descriptor: module.FunctionImport{Func: typeIdx},
		})
		exports = append(exports, module.Export{Name: "cabi_realloc", Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: funcImportCount}})
		funcImportCount++
	}

	dlOpenables := layout.NewDlOpenables(tableOffset, memoryOffset, mds)
	tableOffset += dlOpenables.FunctionCount
	memoryOffset += uint32(len(dlOpenables.Buffer))

	addGlobalExport("__stack_pointer", StackSizeBytes, true)

	for _, md := range mds {
		memoryOffset = align(memoryOffset, 1<<md.MemInfo.MemoryAlignment)
		tableOffset = align(tableOffset, 1<<md.MemInfo.TableAlignment)

		addGlobalExport(md.Name+":memory_base", memoryOffset, false)
		addGlobalExport(md.Name+":table_base", tableOffset, false)

		memoryOffset += md.MemInfo.MemorySize
		tableOffset += md.MemInfo.TableSize

		for _, s := range sortedSet(md.MemoryAddressImports) {
			addGlobalExport(md.Name+":"+s, 0, true)
		}
	}

	offsets := map[string]uint32{}
	for i, ind := range indirections {
		offsets[ind.Name] = tableOffset + uint32(i)
	}
	for _, md := range mds {
		for _, s := range sortedSet(md.TableAddressImports) {
			addGlobalExport(md.Name+":"+s, offsets[s], true)
		}
	}

	memoryOffset = align(memoryOffset, HeapAlignmentBytes)
	addGlobalExport("__heap_base", memoryOffset, false)
	heapEnd := align(memoryOffset, PageSizeBytes)
	addGlobalExport("__heap_end", heapEnd, false)
	memorySizePages := heapEnd / PageSizeBytes

	indirectionTableBase := tableOffset

	for i, ind := range indirections {
		typeIdx := addType(ind.Type)
		var body []instruction.Instruction
		for p := range ind.Type.Params {
			body = append(body, instruction.LocalGet{Index: uint32(p)})
		}
		slot := indirectionTableBase + uint32(i)
		body = append(body, instruction.I32Const{Value: int32(slot)})
		body = append(body, instruction.CallIndirect{TypeIndex: typeIdx, TableIndex: 0})

		funcIdx := uint32(len(m.Function.TypeIndices))
		m.Function.TypeIndices = append(m.Function.TypeIndices, typeIdx)

		var buf bytes.Buffer
		if err := encoding.WriteCodeEntry(&buf, &module.CodeEntry{Func: module.FunctionBody{Expr: module.Expr{Instrs: body}}}); err != nil {
			return nil, err
		}
		m.Code.Segments = append(m.Code.Segments, module.RawCodeSegment{Code: buf.Bytes()})

		exports = append(exports, module.Export{
			Name:       ind.Name,
			Descriptor: module.ExportDescriptor{Type: module.FunctionExportType, Index: funcImportCount + funcIdx},
		})

		tableOffset++
	}

	for _, key := range importOrder {
		imp := importOf[key]
		ref := importMap[key]
		exports = append(exports, module.Export{
			Name:       imp.Module + ":" + imp.Name,
			Descriptor: module.ExportDescriptor{Type: ref.kind, Index: ref.index},
		})
	}

	m.Table.Tables = append(m.Table.Tables, module.TableType{Minimum: tableOffset})
	exports = append(exports, module.Export{Name: "__indirect_function_table", Descriptor: module.ExportDescriptor{Type: module.TableExportType, Index: 0}})

	m.Memory.Memories = append(m.Memory.Memories, module.MemoryType{Minimum: memorySizePages})
	exports = append(exports, module.Export{Name: "memory", Descriptor: module.ExportDescriptor{Type: module.MemoryExportType, Index: 0}})

	m.Global.Globals = globals
	m.Export.Exports = exports
	m.Customs = append(m.Customs, module.ProducersSection())

	return &EnvResult{Module: m, DlOpenables: dlOpenables, IndirectionTableBase: indirectionTableBase}, nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
