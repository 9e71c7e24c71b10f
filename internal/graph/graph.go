// Package graph builds the inter-library dependency digraph and
// computes the orderings and reachability sets the rest of the linker
// needs from it.
package graph

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
)

// Dependencies maps a library's index in the input metadata slice to
// the set of indices it transitively depends on.
type Dependencies map[int]map[int]struct{}

// FindDependencies computes each library's direct dependencies
// (needed_libs ∪ exporters of its env_imports), re-keyed to array
// index, then closes the result under transitivity by fixed-point
// iteration.
func FindDependencies(mds []*metadata.Metadata, exporters resolve.Exporters) (Dependencies, error) {
	indexes := make(map[string]int, len(mds))
	for i, md := range mds {
		indexes[md.Name] = i
	}

	deps := Dependencies{}
	add := func(from, to int) {
		if deps[from] == nil {
			deps[from] = map[int]struct{}{}
		}
		deps[from][to] = struct{}{}
	}

	for i, md := range mds {
		for _, needed := range md.NeededLibs {
			to, ok := indexes[needed]
			if !ok {
				return nil, errors.Errorf("graph: library %q needs %q, which is not in the input set", md.Name, needed)
			}
			add(i, to)
		}
		for name, envImport := range md.EnvImports {
			exporter, err := resolve.FindFunctionExporter(name, envImport.Type, exporters)
			if err != nil {
				return nil, errors.Wrapf(err, "graph: resolving dependency of %q", md.Name)
			}
			add(i, indexes[exporter.Library])
		}
	}

	for {
		additions := map[int]map[int]struct{}{}
		for index, exporterSet := range deps {
			for exporter := range exporterSet {
				for transitive := range deps[exporter] {
					if _, ok := exporterSet[transitive]; !ok {
						if additions[index] == nil {
							additions[index] = map[int]struct{}{}
						}
						additions[index][transitive] = struct{}{}
					}
				}
			}
		}
		if len(additions) == 0 {
			return deps, nil
		}
		for index, extra := range additions {
			for e := range extra {
				add(index, e)
			}
		}
	}
}

// FindReachable returns the names of libraries transitively reachable
// from a component export or dlopen root: has_component_exports ∨
// dl_openable, plus everything those roots depend on.
func FindReachable(mds []*metadata.Metadata, deps Dependencies) map[string]struct{} {
	roots := map[int]struct{}{}
	for i, md := range mds {
		if md.HasComponentExports || md.DlOpenable {
			roots[i] = struct{}{}
		}
	}

	reachable := map[string]struct{}{}
	for root := range roots {
		reachable[mds[root].Name] = struct{}{}
		for dep := range deps[root] {
			reachable[mds[dep].Name] = struct{}{}
		}
	}
	return reachable
}

// TopoSort produces a total order over [0,count) that respects edges
// not participating in a cycle. For each node not yet sorted, it
// recurses into pure predecessors, inserts the node, then recurses into
// its cycle partners, so cycle edges are placed by first visit rather
// than causing failure.
func TopoSort(count int, deps Dependencies) []int {
	sorted := make([]int, 0, count)
	seen := make([]bool, count)

	var visit func(n int)
	visit = func(n int) {
		if seen[n] {
			return
		}
		ds := sortedKeys(deps[n])

		for _, d := range ds {
			if seen[d] {
				continue
			}
			if _, backEdge := deps[d][n]; backEdge {
				continue
			}
			visit(d)
		}

		seen[n] = true
		sorted = append(sorted, n)

		for _, d := range ds {
			if seen[d] {
				continue
			}
			if _, backEdge := deps[d][n]; backEdge {
				visit(d)
			}
		}
	}

	for i := 0; i < count; i++ {
		visit(i)
	}
	return sorted
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
