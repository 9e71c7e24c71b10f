// Package resolve matches each library's imported symbols against the
// set of exports contributed by every library in the input set.
package resolve

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

// Exporter is one (library, export) pair contributing a given ExportKey.
type Exporter struct {
	Library string
	Export  metadata.Export
}

// Exporters maps every ExportKey to the libraries that export it, in
// input order.
type Exporters map[metadata.ExportKey][]Exporter

// ResolveExporters builds the symbol -> exporters index across every
// library. All libraries contribute; ordering is preserved.
func ResolveExporters(mds []*metadata.Metadata) Exporters {
	exporters := Exporters{}
	for _, md := range mds {
		for _, export := range md.Exports {
			exporters[export.Key] = append(exporters[export.Key], Exporter{Library: md.Name, Export: export})
		}
	}
	return exporters
}

// Missing is one unresolved import: the importing library and the
// export-shaped symbol it needed.
type Missing struct {
	Importer string
	Export   metadata.Export
}

// Duplicate is an import that matched more than one exporter.
type Duplicate struct {
	Importer  string
	Key       metadata.ExportKey
	Exporters []Exporter
}

// Resolution is the result of matching every library's imports against
// the Exporters index.
type Resolution struct {
	Resolved   map[metadata.ExportKey]Exporter
	Missing    []Missing
	Duplicates []Duplicate
}

const cabiReallocName = "cabi_realloc"

func cabiReallocType() metadata.FunctionType {
	return metadata.FunctionType{
		Params:  []types.ValueType{types.I32, types.I32, types.I32, types.I32},
		Results: []types.ValueType{types.I32},
	}
}

// ResolveSymbols classifies every imported symbol into exactly one of
// resolved, missing, or duplicate.
//
// Three import flavors drive matching:
//  1. function imports under module name "env" are matched by full
//     (name, FunctionType);
//  2. GOT.mem memory-address imports are matched as (name, Global{I32,
//     non-mutable});
//  3. GOT.func table-address imports are matched by function name only,
//     adopting the matching exporter's signature.
//
// Before resolution, a cabi_realloc exported with the conventional
// (i32,i32,i32,i32)->i32 signature collapses its exporter list to a
// single entry and is reported via cabiReallocLibrary.
func ResolveSymbols(mds []*metadata.Metadata, exporters Exporters) (Resolution, string) {
	cabiReallocKey := metadata.FuncKey(cabiReallocName, cabiReallocType())
	collapseCabiRealloc(exporters, cabiReallocKey)
	cabiReallocLibrary := ""
	if exps, ok := exporters[cabiReallocKey]; ok && len(exps) > 0 {
		cabiReallocLibrary = exps[0].Library
	}

	functionExporters := map[string][]Exporter{}
	for _, key := range sortedFunctionKeys(exporters) {
		functionExporters[key.Name] = append(functionExporters[key.Name], exporters[key]...)
	}

	res := Resolution{Resolved: map[metadata.ExportKey]Exporter{}}

	triage := func(importer string, key metadata.ExportKey, typ metadata.Type, flags uint32) {
		exps, ok := exporters[key]
		if !ok || len(exps) == 0 {
			res.Missing = append(res.Missing, Missing{Importer: importer, Export: metadata.Export{Key: key, Type: typ, Flags: flags}})
			return
		}
		if len(exps) == 1 {
			res.Resolved[key] = exps[0]
			return
		}
		res.Duplicates = append(res.Duplicates, Duplicate{Importer: importer, Key: key, Exporters: exps})
	}

	// Iteration is name-sorted throughout so missing/duplicate discovery
	// order (and with it the stub module's export order and the final
	// output bytes) is identical across runs on identical inputs.
	for _, md := range mds {
		for _, name := range sortedNames(md.EnvImports) {
			envImport := md.EnvImports[name]
			key := metadata.FuncKey(name, envImport.Type)
			triage(md.Name, key, metadata.Type{Kind: metadata.KindFunction, Function: envImport.Type}, envImport.Flags)
		}
		for _, name := range sortedSet(md.MemoryAddressImports) {
			gt := metadata.GlobalType{ValueType: types.I32, Mutable: false}
			key := metadata.GlobalKey(name, gt)
			triage(md.Name, key, metadata.Type{Kind: metadata.KindGlobal, Global: gt}, 0)
		}
	}

	for _, md := range mds {
		for _, name := range sortedSet(md.TableAddressImports) {
			exps := functionExporters[name]
			switch len(exps) {
			case 0:
				res.Missing = append(res.Missing, Missing{
					Importer: md.Name,
					Export:   metadata.Export{Key: metadata.FuncKey(name, metadata.FunctionType{}), Type: metadata.Type{Kind: metadata.KindFunction}},
				})
			case 1:
				res.Resolved[exps[0].Export.Key] = exps[0]
			default:
				res.Duplicates = append(res.Duplicates, Duplicate{
					Importer:  md.Name,
					Key:       exps[0].Export.Key,
					Exporters: exps,
				})
			}
		}
	}

	return res, cabiReallocLibrary
}

func collapseCabiRealloc(exporters Exporters, key metadata.ExportKey) {
	if exps, ok := exporters[key]; ok && len(exps) > 1 {
		exporters[key] = exps[:1]
	}
}

func sortedFunctionKeys(exporters Exporters) []metadata.ExportKey {
	var keys []metadata.ExportKey
	for key := range exporters {
		if key.Kind == metadata.KindFunction {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Sig < keys[j].Sig
	})
	return keys
}

func sortedNames(m map[string]metadata.EnvImport) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FindFunctionExporter locates the library exporting the named function
// with signature sig, returning an error naming the requested key if
// none match. The error does not list candidate names.
func FindFunctionExporter(name string, sig metadata.FunctionType, exporters Exporters) (Exporter, error) {
	key := metadata.FuncKey(name, sig)
	exps, ok := exporters[key]
	if !ok || len(exps) == 0 {
		return Exporter{}, errors.Errorf("resolve: unable to find %s in any library", key)
	}
	return exps[0], nil
}

// SortedMissingNames returns the deterministic, sorted list of distinct
// symbol names among missing, used when computing suggestion
// candidates for error messages.
func SortedMissingNames(missing []Missing) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, m := range missing {
		if _, ok := seen[m.Export.Key.Name]; !ok {
			seen[m.Export.Key.Name] = struct{}{}
			names = append(names, m.Export.Key.Name)
		}
	}
	sort.Strings(names)
	return names
}

// AllFunctions reports whether every entry of missing is a function
// import, the precondition for the stub-insertion retry.
func AllFunctions(missing []Missing) bool {
	for _, m := range missing {
		if m.Export.Key.Kind != metadata.KindFunction {
			return false
		}
	}
	return true
}

// AllWeak reports whether every entry of missing is individually marked
// WEAK_BINDING.
func AllWeak(missing []Missing) bool {
	for _, m := range missing {
		if !m.Export.Weak() {
			return false
		}
	}
	return true
}

// FormatMissing renders the non-weak missing set for an error message.
func FormatMissing(missing []Missing) string {
	names := SortedMissingNames(missing)
	return fmt.Sprintf("unresolved symbol(s): %v", names)
}
