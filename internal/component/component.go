// Package component is a minimal stand-in for the component-encoder
// collaborator: it is consumed linearly (module,
// adapter*, library*, encode) and is not held to the rigor of the
// linking pipeline itself; a real deployment plugs in a proper
// component encoder here.
package component

import "github.com/pkg/errors"

// Main identifies the main (env) module as an argument target;
// Adapter identifies a named adapter module.
type MainOrAdapter struct {
	IsMain      bool
	AdapterName string
}

// Item is one entry of an Instance's Items list: an alias of a single
// export of some module, renamed to alias within the pseudo-instance.
type Item struct {
	Alias string
	Kind  string // "func", "global", "memory", "table"
	Which MainOrAdapter
	Name  string
}

// Instance is the value half of a LibraryInfo.arguments mapping: either
// a curated list of aliased items, or a blanket reference to an entire
// module/adapter's export namespace.
type Instance struct {
	Items         []Item
	MainOrAdapter *MainOrAdapter
}

// LibraryInfo accompanies each library registration.
type LibraryInfo struct {
	InstantiateAfterShims bool
	Arguments             map[string]Instance
}

// Encoder consumes library/adapter/module registrations and produces
// the final component bytes.
type Encoder struct {
	moduleBytes []byte
	moduleSet   bool

	adapterNames map[string]struct{}
	adapters     []namedBytes

	libraries []libraryEntry
}

type namedBytes struct {
	Name  string
	Bytes []byte
}

type libraryEntry struct {
	Name  string
	Bytes []byte
	Info  LibraryInfo
}

func New() *Encoder {
	return &Encoder{adapterNames: map[string]struct{}{}}
}

// Module registers the main module. It may be called at most once.
func (e *Encoder) Module(bytes []byte) error {
	if e.moduleSet {
		return errors.New("component: module already registered")
	}
	e.moduleBytes = bytes
	e.moduleSet = true
	return nil
}

// Adapter registers an adapter module under name. Duplicate names are
// an error.
func (e *Encoder) Adapter(name string, bytes []byte) error {
	if _, ok := e.adapterNames[name]; ok {
		return errors.Errorf("component: duplicate adapter name %q", name)
	}
	e.adapterNames[name] = struct{}{}
	e.adapters = append(e.adapters, namedBytes{Name: name, Bytes: bytes})
	return nil
}

// Library registers one input library (or, with instantiate_after_shims
// set, the final __init library).
func (e *Encoder) Library(name string, bytes []byte, info LibraryInfo) error {
	e.libraries = append(e.libraries, libraryEntry{Name: name, Bytes: bytes, Info: info})
	return nil
}

// Encode finalizes the component. This stand-in concatenates a minimal
// component-model preamble with every registered module verbatim; it
// does not perform real component-model lifting/lowering, which is
// explicitly out of scope for the linker and is the responsibility of
// a real collaborator implementation.
func (e *Encoder) Encode() ([]byte, error) {
	if !e.moduleSet {
		return nil, errors.New("component: no main module registered")
	}

	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d) // reuse the core-module magic as a placeholder component preamble
	out = append(out, 0x0d, 0x00, 0x01, 0x00) // component-model preview2 layer marker

	appendSection := func(b []byte) {
		out = appendVarU32(out, uint32(len(b)))
		out = append(out, b...)
	}

	appendSection(e.moduleBytes)
	for _, a := range e.adapters {
		appendSection(a.Bytes)
	}
	for _, l := range e.libraries {
		appendSection(l.Bytes)
	}

	return out, nil
}

func appendVarU32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
		} else {
			buf = append(buf, b)
			return buf
		}
	}
}
