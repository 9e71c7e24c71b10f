// Package layout computes the indirection list that breaks dependency
// cycles and the binary dlopen/dlsym lookup table, the one wire format
// this project owns end-to-end.
package layout

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
)

// Indirection is one entry of the env module's re-exported,
// call_indirect-based function list: a symbol name, its signature, and
// the index (into the input metadata slice) of the library that really
// implements it.
type Indirection struct {
	Name     string
	Type     metadata.FunctionType
	Exporter int
}

// EnvFunctionExports walks libraries in topological order and decides
// which symbols the env module must re-export as call_indirect thunks
// to break forward (cycle) references.
//
// For each library m, in order:
//  1. for each GOT.func symbol not yet exported, locate its
//     function-only exporter and emit it;
//  2. for each env_imports symbol not yet exported, find its exporter;
//     if that exporter has not yet been instantiated (a forward
//     reference across the cycle), emit it too. A symbol m exports
//     itself counts as such a reference, since m is not yet
//     instantiated. Backward references need no indirection; the
//     encoder wires them directly at instantiation time.
//  3. mark m instantiated ("seen").
//
// The result preserves topological discovery order.
func EnvFunctionExports(mds []*metadata.Metadata, exporters resolve.Exporters, topoSorted []int) ([]Indirection, error) {
	// By the time indirection planning runs, symbol resolution has
	// already rejected any GOT.func name with more than one function
	// exporter, so first-wins here can only affect names nothing looks
	// up. Iterate sorted keys anyway to keep the pick stable.
	functionExporters := map[string]Exporter{}
	for _, key := range sortedFunctionKeys(exporters) {
		if exps := exporters[key]; len(exps) > 0 {
			if _, ok := functionExporters[key.Name]; !ok {
				functionExporters[key.Name] = exps[0]
			}
		}
	}

	indexes := make(map[string]int, len(mds))
	for i, md := range mds {
		indexes[md.Name] = i
	}

	var result []Indirection
	exported := map[string]struct{}{}
	seen := map[int]struct{}{}

	for _, index := range topoSorted {
		md := mds[index]

		for _, name := range sortedStringSet(md.TableAddressImports) {
			if _, ok := exported[name]; ok {
				continue
			}
			exp, ok := functionExporters[name]
			if !ok {
				return nil, errors.Errorf("layout: unable to find %q in any library", name)
			}
			result = append(result, Indirection{Name: name, Type: exp.Export.Type.Function, Exporter: indexes[exp.Library]})
			exported[name] = struct{}{}
		}

		for _, name := range sortedEnvImportNames(md) {
			if _, ok := exported[name]; ok {
				continue
			}
			envImport := md.EnvImports[name]
			exporter, err := resolve.FindFunctionExporter(name, envImport.Type, exporters)
			if err != nil {
				return nil, err
			}
			exporterIndex := indexes[exporter.Library]
			if _, already := seen[exporterIndex]; !already {
				result = append(result, Indirection{Name: name, Type: envImport.Type, Exporter: exporterIndex})
				exported[name] = struct{}{}
			}
		}

		seen[index] = struct{}{}
	}

	return result, nil
}

// Exporter mirrors resolve.Exporter; declared locally to avoid a cyclic
// type alias while keeping this file self-contained for readers.
type Exporter = resolve.Exporter

func sortedFunctionKeys(exporters resolve.Exporters) []metadata.ExportKey {
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

func sortedStringSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedEnvImportNames(md *metadata.Metadata) []string {
	out := make([]string, 0, len(md.EnvImports))
	for name := range md.EnvImports {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
