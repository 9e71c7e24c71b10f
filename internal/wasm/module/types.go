package module

import "github.com/wasmcompose/linker/internal/wasm/types"

// FunctionType is a function signature: parameter and result value types.
type FunctionType struct {
	Params  []types.ValueType
	Results []types.ValueType
}

// Equal reports whether two function types have identical signatures.
func (t FunctionType) Equal(other FunctionType) bool {
	return types.Equal(t.Params, other.Params) && types.Equal(t.Results, other.Results)
}

// GlobalType describes a global variable's value type and mutability.
type GlobalType struct {
	Type    types.ValueType
	Mutable bool
}

// Global is a module-defined global: its type plus an initializer
// expression, restricted in practice to a single const instruction.
type Global struct {
	Type    types.ValueType
	Mutable bool
	Init    Expr
}
