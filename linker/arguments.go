package linker

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wasmcompose/linker/internal/component"
	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/module"
)

func encodeEnvModule(m *module.Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoding.WriteModule(&buf, m); err != nil {
		var pretty bytes.Buffer
		module.Pretty(&pretty, m)
		return nil, fmt.Errorf("%w\n%s", err, pretty.String())
	}
	return buf.Bytes(), nil
}

// validateModuleBytes round-trips a synthesized module through the
// decoder. The linker emitted these bytes itself, so any decode failure
// is an internal bug, not caller error.
func validateModuleBytes(name string, raw []byte) error {
	if _, err := encoding.ReadModule(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("synthesized %s module failed validation: %w", name, err)
	}
	return nil
}

func kindOf(t metadata.Type) string {
	if t.Kind == metadata.KindFunction {
		return "func"
	}
	return "global"
}

// buildArguments constructs the pseudo-instance arguments a library
// needs at instantiation time: the shared env instance (memory, table,
// stack pointer, its own memory/table base globals, and every
// env-function import it makes, wired to the producing library's
// already-instantiated adapter when available, or to env's own
// indirection thunk otherwise), the GOT.mem and GOT.func pseudo-import
// instances, and one instance per raw import module.
func buildArguments(name string, md *metadata.Metadata, exporters resolve.Exporters, seen map[string]struct{}) map[string]component.Instance {
	envItems := []component.Item{
		{Alias: "memory", Kind: "memory", Which: component.MainOrAdapter{IsMain: true}, Name: "memory"},
		{Alias: "__indirect_function_table", Kind: "table", Which: component.MainOrAdapter{IsMain: true}, Name: "__indirect_function_table"},
		{Alias: "__stack_pointer", Kind: "global", Which: component.MainOrAdapter{IsMain: true}, Name: "__stack_pointer"},
		{Alias: "__memory_base", Kind: "global", Which: component.MainOrAdapter{IsMain: true}, Name: name + ":memory_base"},
		{Alias: "__table_base", Kind: "global", Which: component.MainOrAdapter{IsMain: true}, Name: name + ":table_base"},
	}

	for _, symName := range sortedKeys(md.EnvImports) {
		exporter, err := resolve.FindFunctionExporter(symName, md.EnvImports[symName].Type, exporters)
		which := component.MainOrAdapter{IsMain: true}
		if err == nil {
			if _, ok := seen[exporter.Library]; ok {
				which = component.MainOrAdapter{AdapterName: exporter.Library}
			}
		}
		envItems = append(envItems, component.Item{Alias: symName, Kind: "func", Which: which, Name: symName})
	}

	memItems := []component.Item{}
	for _, s := range sortedSet(md.MemoryAddressImports) {
		memItems = append(memItems, globalItem(name, s))
	}
	memItems = append(memItems,
		component.Item{Alias: "__heap_base", Kind: "global", Which: component.MainOrAdapter{IsMain: true}, Name: "__heap_base"},
		component.Item{Alias: "__heap_end", Kind: "global", Which: component.MainOrAdapter{IsMain: true}, Name: "__heap_end"},
	)

	funcItems := []component.Item{}
	for _, s := range sortedSet(md.TableAddressImports) {
		funcItems = append(funcItems, globalItem(name, s))
	}

	args := map[string]component.Instance{
		"GOT.mem":  {Items: memItems},
		"GOT.func": {Items: funcItems},
		"env":      {Items: envItems},
	}

	byModule := map[string][]component.Item{}
	for _, imp := range md.Imports {
		byModule[imp.Module] = append(byModule[imp.Module], component.Item{
			Alias: imp.Name,
			Kind:  kindOf(imp.Type),
			Which: component.MainOrAdapter{IsMain: true},
			Name:  fmt.Sprintf("%s:%s", imp.Module, imp.Name),
		})
	}
	for mod, items := range byModule {
		args[mod] = component.Instance{Items: items}
	}

	return args
}

func globalItem(libraryName, symbol string) component.Item {
	return component.Item{
		Alias: symbol,
		Kind:  "global",
		Which: component.MainOrAdapter{IsMain: true},
		Name:  libraryName + ":" + symbol,
	}
}

func sortedKeys(m map[string]metadata.EnvImport) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
