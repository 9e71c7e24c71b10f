package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

func funcKey(name string, sig metadata.FunctionType) metadata.ExportKey {
	return metadata.FuncKey(name, sig)
}

func TestFindDependenciesAcyclic(t *testing.T) {
	sig := metadata.FunctionType{Results: []types.ValueType{types.I32}}

	base := &metadata.Metadata{
		Name:    "base",
		Exports: []metadata.Export{{Key: funcKey("double", sig)}},
	}
	top := &metadata.Metadata{
		Name:       "top",
		NeededLibs: []string{"base"},
		EnvImports: map[string]metadata.EnvImport{"double": {Type: sig}},
	}

	mds := []*metadata.Metadata{base, top}
	exporters := resolve.ResolveExporters(mds)

	deps, err := FindDependencies(mds, exporters)
	require.NoError(t, err)
	require.Empty(t, deps[0])
	require.Contains(t, deps[1], 0)
}

func TestFindDependenciesUnknownNeededLib(t *testing.T) {
	mds := []*metadata.Metadata{{Name: "top", NeededLibs: []string{"missing"}}}
	_, err := FindDependencies(mds, resolve.ResolveExporters(mds))
	require.Error(t, err)
}

func TestFindDependenciesTransitiveClosure(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "a", NeededLibs: []string{"b"}},
		{Name: "b", NeededLibs: []string{"c"}},
		{Name: "c"},
	}
	deps, err := FindDependencies(mds, resolve.ResolveExporters(mds))
	require.NoError(t, err)
	require.Contains(t, deps[0], 1)
	require.Contains(t, deps[0], 2, "a's dependency on c is transitive through b")
	require.Contains(t, deps[1], 2)
}

func TestFindReachablePrunesUnreferencedLibrary(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "entry", HasComponentExports: true, NeededLibs: []string{"used"}},
		{Name: "used"},
		{Name: "orphan"},
	}
	deps, err := FindDependencies(mds, resolve.ResolveExporters(mds))
	require.NoError(t, err)

	reachable := FindReachable(mds, deps)
	require.Contains(t, reachable, "entry")
	require.Contains(t, reachable, "used")
	require.NotContains(t, reachable, "orphan")
}

func TestFindReachableDlOpenableRoot(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "plugin", DlOpenable: true},
		{Name: "unused"},
	}
	deps, err := FindDependencies(mds, resolve.ResolveExporters(mds))
	require.NoError(t, err)

	reachable := FindReachable(mds, deps)
	require.Contains(t, reachable, "plugin")
	require.NotContains(t, reachable, "unused")
}

func TestTopoSortRespectsDependencyOrder(t *testing.T) {
	// 0 depends on 1, 1 depends on 2: dependencies must precede dependents.
	deps := Dependencies{
		0: {1: struct{}{}},
		1: {2: struct{}{}},
	}
	sorted := TopoSort(3, deps)

	positions := map[int]int{}
	for i, n := range sorted {
		positions[n] = i
	}
	require.Less(t, positions[2], positions[1])
	require.Less(t, positions[1], positions[0])
	require.Len(t, sorted, 3)
}

func TestTopoSortToleratesCycles(t *testing.T) {
	// 0 and 1 depend on each other; both must still appear exactly once.
	deps := Dependencies{
		0: {1: struct{}{}},
		1: {0: struct{}{}},
	}
	sorted := TopoSort(2, deps)
	require.ElementsMatch(t, []int{0, 1}, sorted)
}

func TestTopoSortDeterministic(t *testing.T) {
	deps := Dependencies{
		0: {1: struct{}{}, 2: struct{}{}},
		1: {3: struct{}{}},
		2: {3: struct{}{}},
	}
	first := TopoSort(4, deps)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, TopoSort(4, deps), "TopoSort must be deterministic across repeated calls on identical input")
	}
}
