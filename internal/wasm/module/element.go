package module

// ElementSection holds the module's active element segments.
type ElementSection struct {
	Segments []ElementSegment
}

// ElementSegment is an active, funcref-typed element segment populating
// table Index starting at Offset with FuncIndices.
type ElementSegment struct {
	Index       uint32
	Offset      Expr
	FuncIndices []uint32
}
