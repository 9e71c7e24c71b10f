package module

// NameSection is the "name" custom section: debug names for the module,
// its functions, and their locals.
type NameSection struct {
	Module    string
	Functions []NameMap
	Locals    []LocalNameMap
}

// NameMap associates an index with a human-readable name.
type NameMap struct {
	Index uint32
	Name  string
}

// LocalNameMap associates a function's locals with names.
type LocalNameMap struct {
	FuncIndex uint32
	NameMap   NameMap
}
