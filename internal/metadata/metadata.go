// Package metadata extracts the dynamic-linking metadata conventionally
// stored in a "dylink.0" custom section (and the module's ordinary
// import/export sections) from a raw WASM library module.
//
// This is a stand-in for the "already-parsed metadata" collaborator the
// linker expects at its boundary: a real deployment may receive Metadata
// built by a dedicated custom-section reader instead of calling Extract.
package metadata

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wasmcompose/linker/internal/wasm/encoding"
	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

// WEAK_BINDING is the only recognized bit of Export.Flags.
const WEAK_BINDING uint32 = 1

// Kind distinguishes a function export/import from a global one.
type Kind int

const (
	KindFunction Kind = iota
	KindGlobal
)

// Type carries a symbol's full shape, a function signature or a
// global's value type and mutability, for call sites that need more
// than the canonical Sig string carried on ExportKey. It is never
// itself used as a map key.
type Type struct {
	Kind     Kind
	Function FunctionType
	Global   GlobalType
}

func (t Type) String() string {
	switch t.Kind {
	case KindFunction:
		return t.Function.String()
	default:
		return t.Global.String()
	}
}

// FunctionType is a function signature, independent of any module's type
// section (two libraries may assign the same signature different type
// indices).
type FunctionType struct {
	Params  []types.ValueType
	Results []types.ValueType
}

func (ft FunctionType) String() string {
	return fmt.Sprintf("%v -> %v", ft.Params, ft.Results)
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValueType types.ValueType
	Mutable   bool
}

func (gt GlobalType) String() string {
	if gt.Mutable {
		return fmt.Sprintf("mut %s", gt.ValueType)
	}
	return gt.ValueType.String()
}

// ExportKey identifies a symbol: its name plus its shape, canonicalized
// to a comparable Sig string (FunctionType/GlobalType both carry slice
// fields, so the full Type is not itself usable as a map key). Build one
// with FuncKey or GlobalKey rather than constructing it directly. Two
// exports with the same name but different Sig are distinct symbols.
type ExportKey struct {
	Name string
	Kind Kind
	Sig  string
}

func (k ExportKey) String() string {
	return fmt.Sprintf("%s: %s", k.Name, k.Sig)
}

// FuncKey builds the ExportKey for a function symbol named name with
// signature ft.
func FuncKey(name string, ft FunctionType) ExportKey {
	return ExportKey{Name: name, Kind: KindFunction, Sig: ft.String()}
}

// GlobalKey builds the ExportKey for a global symbol named name of type
// gt.
func GlobalKey(name string, gt GlobalType) ExportKey {
	return ExportKey{Name: name, Kind: KindGlobal, Sig: gt.String()}
}

// Export is one exported symbol of a library: its key, its full type
// (for consumers that need the actual params/results or value
// type/mutability rather than just the canonical Sig), and its
// dynamic-linking flags (WEAK_BINDING).
type Export struct {
	Key   ExportKey
	Type  Type
	Flags uint32
}

func (e Export) Weak() bool {
	return e.Flags&WEAK_BINDING != 0
}

// Import is a raw import, unclassified by resolution.
type Import struct {
	Module string
	Name   string
	Type   Type
}

// MemInfo carries the dylink.0 memory/table sizing and alignment
// requirements (alignment values are log2, per the tool convention).
type MemInfo struct {
	MemorySize      uint32
	MemoryAlignment uint32
	TableSize       uint32
	TableAlignment  uint32
}

// Metadata is the immutable, derived-once record of a single library's
// dynamic-linking surface.
type Metadata struct {
	Name       string
	DlOpenable bool

	Exports []Export
	Imports []Import

	// EnvImports maps a symbol name to the (FunctionType, flags) of an
	// import from the synthetic "env" module that must resolve to
	// some other library's exported function.
	EnvImports map[string]EnvImport

	// MemoryAddressImports are GOT.mem pseudo-import symbol names.
	MemoryAddressImports map[string]struct{}
	// TableAddressImports are GOT.func pseudo-import symbol names.
	TableAddressImports map[string]struct{}

	NeededLibs []string

	MemInfo MemInfo

	HasDataRelocs       bool
	HasCtors            bool
	HasSetLibraries     bool
	HasComponentExports bool
}

// EnvImport is the (signature, flags) pair recorded per env-module
// import symbol.
type EnvImport struct {
	Type  FunctionType
	Flags uint32
}

// FindExport returns the export matching key, if any.
func (m *Metadata) FindExport(key ExportKey) (Export, bool) {
	for _, e := range m.Exports {
		if e.Key == key {
			return e, true
		}
	}
	return Export{}, false
}

// FunctionExport returns the (unique, by convention) function export
// named name, if any.
func (m *Metadata) FunctionExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Key.Name == name && e.Key.Kind == KindFunction {
			return e, true
		}
	}
	return Export{}, false
}

// GlobalExport returns the global export named name, if any.
func (m *Metadata) GlobalExport(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Key.Name == name && e.Key.Kind == KindGlobal {
			return e, true
		}
	}
	return Export{}, false
}

// cache memoizes Extract results keyed by library name + content hash,
// since Metadata is re-derived on every stub-insertion and
// reachability-pruning restart but the underlying bytes don't change.
var cache, _ = lru.New[string, *Metadata](256)

// Extract parses name's dylink.0 custom section (if present) plus its
// ordinary import/export sections into a Metadata record.
func Extract(name string, raw []byte, dlOpenable bool) (*Metadata, error) {
	key := cacheKey(name, raw, dlOpenable)
	if cached, ok := cache.Get(key); ok {
		return cached, nil
	}

	mod, err := encoding.ReadModule(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "metadata: decoding library %q", name)
	}

	m := &Metadata{
		Name:                 name,
		DlOpenable:           dlOpenable,
		EnvImports:           map[string]EnvImport{},
		MemoryAddressImports: map[string]struct{}{},
		TableAddressImports:  map[string]struct{}{},
	}

	funcTypeOf := func(idx uint32) FunctionType {
		if int(idx) >= len(mod.Type.Functions) {
			return FunctionType{}
		}
		ft := mod.Type.Functions[idx]
		return FunctionType{Params: ft.Params, Results: ft.Results}
	}

	globalTypeOf := func(idx, numImportedGlobals uint32) GlobalType {
		if idx < numImportedGlobals {
			return GlobalType{}
		}
		localIdx := idx - numImportedGlobals
		if int(localIdx) >= len(mod.Global.Globals) {
			return GlobalType{}
		}
		g := mod.Global.Globals[localIdx]
		return GlobalType{ValueType: g.Type, Mutable: g.Mutable}
	}

	for _, imp := range mod.Import.Imports {
		switch d := imp.Descriptor.(type) {
		case module.FunctionImport:
			sig := funcTypeOf(d.Func)
			switch imp.Module {
			case "env":
				m.EnvImports[imp.Name] = EnvImport{Type: sig}
			case "GOT.func":
				m.TableAddressImports[imp.Name] = struct{}{}
			default:
				m.Imports = append(m.Imports, Import{
					Module: imp.Module,
					Name:   imp.Name,
					Type:   Type{Kind: KindFunction, Function: sig},
				})
			}
		case module.GlobalImport:
			gt := GlobalType{ValueType: d.Global.Type, Mutable: d.Global.Mutable}
			if imp.Module == "GOT.mem" {
				m.MemoryAddressImports[imp.Name] = struct{}{}
			} else {
				m.Imports = append(m.Imports, Import{
					Module: imp.Module,
					Name:   imp.Name,
					Type:   Type{Kind: KindGlobal, Global: gt},
				})
			}
		case module.MemoryImport, module.TableImport:
			// linear memory and the indirect function table are
			// supplied by env; not part of the symbol surface.
		}
	}

	numImportedFuncs := countFunctionImports(mod)
	numImportedGlobals := countGlobalImports(mod)

	for _, exp := range mod.Export.Exports {
		switch exp.Descriptor.Type {
		case module.FunctionExportType:
			idx := exp.Descriptor.Index
			var sig FunctionType
			if idx >= numImportedFuncs {
				sig = funcTypeOf(mod.Function.TypeIndices[idx-numImportedFuncs])
			}
			m.Exports = append(m.Exports, Export{Key: FuncKey(exp.Name, sig), Type: Type{Kind: KindFunction, Function: sig}})
			switch exp.Name {
			case "__wasm_apply_data_relocs":
				m.HasDataRelocs = true
			case "__wasm_call_ctors":
				m.HasCtors = true
			case "__wasm_set_libraries":
				m.HasSetLibraries = true
			}
		case module.GlobalExportType:
			gt := globalTypeOf(exp.Descriptor.Index, numImportedGlobals)
			m.Exports = append(m.Exports, Export{Key: GlobalKey(exp.Name, gt), Type: Type{Kind: KindGlobal, Global: gt}})
		}
	}

	for _, c := range mod.Customs {
		switch c.Name {
		case "dylink.0":
			if err := parseDylink0(c.Payload, m); err != nil {
				return nil, errors.Wrapf(err, "metadata: parsing dylink.0 of %q", name)
			}
		case "component-type", "component-type:main":
			m.HasComponentExports = true
		}
	}

	cache.Add(key, m)
	return m, nil
}

func countFunctionImports(mod *module.Module) uint32 {
	var n uint32
	for _, imp := range mod.Import.Imports {
		if imp.Descriptor.Kind() == module.FunctionImportType {
			n++
		}
	}
	return n
}

func countGlobalImports(mod *module.Module) uint32 {
	var n uint32
	for _, imp := range mod.Import.Imports {
		if imp.Descriptor.Kind() == module.GlobalImportType {
			n++
		}
	}
	return n
}

// dylink.0 sub-section identifiers, per the tool-conventions spec.
const (
	wasmDylinkMemInfo    = 1
	wasmDylinkNeeded     = 2
	wasmDylinkExportInfo = 3
	wasmDylinkImportInfo = 4
)

func parseDylink0(payload []byte, m *Metadata) error {
	r := bufio.NewReader(bytes.NewReader(payload))
	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil // EOF: no more sub-sections
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		body := make([]byte, size)
		if _, err := readFull(r, body); err != nil {
			return err
		}
		br := bufio.NewReader(bytes.NewReader(body))

		switch id {
		case wasmDylinkMemInfo:
			memSize, err := readU32(br)
			if err != nil {
				return err
			}
			memAlign, err := readU32(br)
			if err != nil {
				return err
			}
			tableSize, err := readU32(br)
			if err != nil {
				return err
			}
			tableAlign, err := readU32(br)
			if err != nil {
				return err
			}
			m.MemInfo = MemInfo{
				MemorySize:      memSize,
				MemoryAlignment: memAlign,
				TableSize:       tableSize,
				TableAlignment:  tableAlign,
			}
		case wasmDylinkNeeded:
			n, err := readU32(br)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				name, err := readName(br)
				if err != nil {
					return err
				}
				m.NeededLibs = append(m.NeededLibs, name)
			}
		case wasmDylinkExportInfo:
			n, err := readU32(br)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				name, err := readName(br)
				if err != nil {
					return err
				}
				flags, err := readU32(br)
				if err != nil {
					return err
				}
				for idx := range m.Exports {
					if m.Exports[idx].Key.Name == name {
						m.Exports[idx].Flags = flags
					}
				}
			}
		case wasmDylinkImportInfo:
			n, err := readU32(br)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				mod, err := readName(br)
				if err != nil {
					return err
				}
				field, err := readName(br)
				if err != nil {
					return err
				}
				flags, err := readU32(br)
				if err != nil {
					return err
				}
				if mod == "env" {
					if envImport, ok := m.EnvImports[field]; ok {
						envImport.Flags = flags
						m.EnvImports[field] = envImport
					}
				}
			}
		}
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func readU32(r *bufio.Reader) (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

func readName(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func cacheKey(name string, raw []byte, dlOpenable bool) string {
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%t:%s", name, dlOpenable, hex.EncodeToString(h[:]))
}
