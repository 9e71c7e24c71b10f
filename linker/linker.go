// Package linker composes "dynamic library" WASM modules, each
// carrying the conventional dylink.0 custom-section metadata, into a
// single component sharing one linear memory and one indirect function
// table, resolving dependency cycles via call_indirect indirection
// shims, with an optional dlopen/dlsym runtime lookup table.
package linker

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/component"
	"github.com/wasmcompose/linker/internal/graph"
	"github.com/wasmcompose/linker/internal/layout"
	"github.com/wasmcompose/linker/internal/levenshtein"
	"github.com/wasmcompose/linker/internal/logging"
	"github.com/wasmcompose/linker/internal/metadata"
	"github.com/wasmcompose/linker/internal/resolve"
	"github.com/wasmcompose/linker/internal/synth"
)

type rawLibrary struct {
	name       string
	bytes      []byte
	dlOpenable bool
}

type rawAdapter struct {
	name  string
	bytes []byte
}

// Linker is a builder that composes dynamic library modules into a
// component. The zero value is not usable; construct one with New.
type Linker struct {
	libraries []rawLibrary
	adapters  []rawAdapter

	validate             bool
	stubMissingFunctions bool

	log logging.Logger

	err error
}

// New returns an empty Linker.
func New() *Linker {
	return &Linker{log: logging.NewNoOpLogger()}
}

// WithLogger configures the Logger used for diagnostic output during
// Encode. The default is a no-op logger.
func (l *Linker) WithLogger(log logging.Logger) *Linker {
	l.log = log
	return l
}

// Library registers a dynamic library module. If dlOpenable is true,
// every export of this library is added to the dlopen/dlsym lookup
// table for runtime resolution. Duplicate library names are an error,
// surfaced at Encode time.
func (l *Linker) Library(name string, module []byte, dlOpenable bool) *Linker {
	for _, existing := range l.libraries {
		if existing.name == name {
			l.setErr(errors.Wrapf(ErrDuplicateSymbol, "library name %q already registered", name))
			return l
		}
	}
	l.libraries = append(l.libraries, rawLibrary{name: name, bytes: module, dlOpenable: dlOpenable})
	return l
}

// Adapter registers a component-model adapter module. Duplicate
// adapter names are an error, surfaced at Encode time.
func (l *Linker) Adapter(name string, module []byte) *Linker {
	for _, existing := range l.adapters {
		if existing.name == name {
			l.setErr(errors.Wrapf(ErrDuplicateAdapter, "adapter name %q already registered", name))
			return l
		}
	}
	l.adapters = append(l.adapters, rawAdapter{name: name, bytes: module})
	return l
}

// Validate controls whether the synthesized env and init modules are
// decoded and checked after emission. A failure here is a linker bug,
// not a problem with the registered libraries, and is reported as
// ErrInternalValidation.
func (l *Linker) Validate(validate bool) *Linker {
	l.validate = validate
	return l
}

// StubMissingFunctions controls whether unresolved function imports
// are papered over with trapping stubs rather than reported as errors.
// When every unresolved import is a weak function import, the stubs are
// inserted regardless of this setting.
func (l *Linker) StubMissingFunctions(stub bool) *Linker {
	l.stubMissingFunctions = stub
	return l
}

func (l *Linker) setErr(err error) {
	if l.err == nil {
		l.err = err
	}
}

// Encode analyzes, topologically sorts, and links the registered
// libraries and adapters into a single component, returning the
// encoded bytes.
//
// Two conditions cause the pipeline to restart from scratch: a set of
// exclusively-function, exclusively-weak (or explicitly stub-requested)
// missing imports triggers a stub library insertion, and a library
// unreachable from any component export or dlopen root is dropped. Each
// restart strictly shrinks the missing-or-unreachable set, so the loop
// runs at most a handful of passes.
func (l *Linker) Encode() ([]byte, error) {
	if l.err != nil {
		return nil, l.err
	}

	for {
		out, retry, err := l.encode()
		if err != nil {
			return nil, err
		}
		if retry {
			continue
		}
		return out, nil
	}
}

func (l *Linker) encode() (out []byte, retry bool, err error) {
	l.log.Debug("encode pass: %d library/ies, %d adapter(s) registered", len(l.libraries), len(l.adapters))

	names := map[string]struct{}{}
	for _, lib := range l.libraries {
		names[lib.name] = struct{}{}
	}

	mds := make([]*metadata.Metadata, len(l.libraries))
	for i, lib := range l.libraries {
		md, err := metadata.Extract(lib.name, lib.bytes, lib.dlOpenable)
		if err != nil {
			return nil, false, errors.Wrapf(err, "linker: failed to extract linking metadata from %s", lib.name)
		}
		mds[i] = md
	}

	for _, md := range mds {
		for _, needed := range md.NeededLibs {
			if _, ok := names[needed]; !ok {
				return nil, false, errors.Wrapf(ErrMissingLibrary, "library %q needs %q", md.Name, needed)
			}
		}
	}

	exporters := resolve.ResolveExporters(mds)
	resolution, cabiReallocLibrary := resolve.ResolveSymbols(mds, exporters)

	if len(resolution.Missing) > 0 {
		if resolve.AllFunctions(resolution.Missing) && (l.stubMissingFunctions || resolve.AllWeak(resolution.Missing)) {
			l.log.Warn("stubbing %d missing function symbol(s) and restarting", len(resolution.Missing))
			stubBytes, err := resolve.MakeStubsModule(resolution.Missing)
			if err != nil {
				return nil, false, errors.Wrap(err, "linker: synthesizing stub module")
			}
			l.stubMissingFunctions = false
			l.libraries = append(l.libraries, rawLibrary{name: resolve.StubLibraryName, bytes: stubBytes, dlOpenable: false})
			return nil, true, nil
		}
		return nil, false, errors.Wrap(ErrUnresolvedSymbol, formatNonWeakMissing(resolution.Missing, mds))
	}

	if len(resolution.Duplicates) > 0 {
		return nil, false, errors.Wrapf(ErrDuplicateSymbol, "%v", resolution.Duplicates)
	}

	deps, err := graph.FindDependencies(mds, exporters)
	if err != nil {
		return nil, false, err
	}

	reachable := graph.FindReachable(mds, deps)
	var unreachable []string
	for _, lib := range l.libraries {
		if _, ok := reachable[lib.name]; !ok {
			unreachable = append(unreachable, lib.name)
		}
	}
	if len(unreachable) > 0 {
		l.log.Warn("dropping %d unreachable library/ies and restarting", len(unreachable))
		drop := map[string]struct{}{}
		for _, name := range unreachable {
			drop[name] = struct{}{}
		}
		kept := l.libraries[:0:0]
		for _, lib := range l.libraries {
			if _, ok := drop[lib.name]; !ok {
				kept = append(kept, lib)
			}
		}
		l.libraries = kept
		return nil, true, nil
	}

	topoSorted := graph.TopoSort(len(mds), deps)

	indirections, err := layout.EnvFunctionExports(mds, exporters, topoSorted)
	if err != nil {
		return nil, false, err
	}

	env, err := synth.Env(mds, indirections, cabiReallocLibrary)
	if err != nil {
		return nil, false, errors.Wrap(err, "linker: synthesizing env module")
	}

	envBytes, err := encodeEnvModule(env.Module)
	if err != nil {
		return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
	}
	if l.validate {
		if err := validateModuleBytes("env", envBytes); err != nil {
			return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
		}
	}

	enc := component.New()
	if err := enc.Module(envBytes); err != nil {
		return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
	}

	for _, a := range l.adapters {
		if err := enc.Adapter(a.name, a.bytes); err != nil {
			return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
		}
	}

	seen := map[string]struct{}{}
	for _, index := range topoSorted {
		lib := l.libraries[index]
		md := mds[index]

		args := buildArguments(lib.name, md, exporters, seen)

		if err := enc.Library(lib.name, lib.bytes, component.LibraryInfo{
			InstantiateAfterShims: false,
			Arguments:             args,
		}); err != nil {
			return nil, false, errors.Wrapf(ErrInternalValidation, "registering library %q: %v", lib.name, err)
		}

		seen[lib.name] = struct{}{}
	}

	initBytes, err := synth.Init(mds, resolution.Resolved, indirections, env)
	if err != nil {
		return nil, false, errors.Wrap(err, "linker: synthesizing init module")
	}
	if l.validate {
		if err := validateModuleBytes("init", initBytes); err != nil {
			return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
		}
	}

	initArgs := map[string]component.Instance{
		"env": {MainOrAdapter: &component.MainOrAdapter{IsMain: true}},
	}
	for _, lib := range l.libraries {
		initArgs[lib.name] = component.Instance{MainOrAdapter: &component.MainOrAdapter{AdapterName: lib.name}}
	}
	if err := enc.Library("__init", initBytes, component.LibraryInfo{
		InstantiateAfterShims: true,
		Arguments:             initArgs,
	}); err != nil {
		return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
	}

	out, err = enc.Encode()
	if err != nil {
		return nil, false, errors.Wrap(ErrInternalValidation, err.Error())
	}
	return out, false, nil
}

func formatNonWeakMissing(missing []resolve.Missing, mds []*metadata.Metadata) string {
	var nonWeak []string
	for _, m := range missing {
		if !m.Export.Weak() {
			nonWeak = append(nonWeak, m.Export.Key.Name)
		}
	}

	suggestion := ""
	if len(nonWeak) > 0 {
		candidates := levenshtein.ClosestStrings(4, nonWeak[0], slices.Values(exportedSymbolNames(mds)))
		if len(candidates) > 0 {
			suggestion = fmt.Sprintf(" (did you mean one of: %v?)", candidates)
		}
	}

	return fmt.Sprintf("linker: unresolved symbol(s): %v%s", nonWeak, suggestion)
}

func exportedSymbolNames(mds []*metadata.Metadata) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, md := range mds {
		for _, export := range md.Exports {
			if _, ok := seen[export.Key.Name]; !ok {
				seen[export.Key.Name] = struct{}{}
				names = append(names, export.Key.Name)
			}
		}
	}
	return names
}
