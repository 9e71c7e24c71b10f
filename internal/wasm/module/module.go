// Package module defines an in-memory document tree for a WASM module,
// independent of its binary encoding. internal/wasm/encoding reads and
// writes this tree; internal/synth constructs it.
package module

// Module is the in-memory representation of a single WASM module.
type Module struct {
	Version uint32

	Type     TypeSection
	Import   ImportSection
	Function FunctionSection
	Table    TableSection
	Memory   MemorySection
	Global   GlobalSection
	Export   ExportSection
	Start    StartSection
	Element  ElementSection
	Code     CodeSection
	Data     DataSection

	Names   NameSection
	Customs []CustomSection
}

// TypeSection holds the module's function type declarations.
type TypeSection struct {
	Functions []FunctionType
}

// FunctionSection maps each defined function to its type index.
type FunctionSection struct {
	TypeIndices []uint32
}

// TableSection holds the module's table declarations.
type TableSection struct {
	Tables []TableType
}

// TableType describes a single table.
type TableType struct {
	Minimum uint32
	Maximum *uint32
}

// MemorySection holds the module's memory declarations.
type MemorySection struct {
	Memories []MemoryType
}

// MemoryType describes a single linear memory, in units of 64KiB pages.
type MemoryType struct {
	Minimum uint32
	Maximum *uint32
}

// GlobalSection holds the module's defined (non-imported) globals.
type GlobalSection struct {
	Globals []Global
}

// StartSection names the function, if any, to run at instantiation.
type StartSection struct {
	FuncIndex *uint32
}

// CustomSection is an opaque, named custom section.
type CustomSection struct {
	Name    string
	Payload []byte
}
