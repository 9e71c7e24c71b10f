package module

// ExportType distinguishes the four kinds of exportable entities.
type ExportType byte

const (
	FunctionExportType ExportType = iota
	TableExportType
	MemoryExportType
	GlobalExportType
)

// ExportSection holds the module's exports, in declaration order.
type ExportSection struct {
	Exports []Export
}

// Export is a single exported entity.
type Export struct {
	Name       string
	Descriptor ExportDescriptor
}

// ExportDescriptor names the kind and index of an exported entity.
type ExportDescriptor struct {
	Type  ExportType
	Index uint32
}
