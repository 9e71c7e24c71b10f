package module

// DataSection holds the module's active data segments.
type DataSection struct {
	Segments []DataSegment
}

// DataSegment is an active data segment targeting memory Index at a
// constant Offset expression, with contents Init.
type DataSegment struct {
	Index  uint32
	Offset Expr
	Init   []byte
}
