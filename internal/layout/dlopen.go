package layout

import (
	"encoding/binary"
	"sort"

	"github.com/wasmcompose/linker/internal/metadata"
)

// GlobalFixup is a deferred write: the init module must store
// exporter's resolved global address for Symbol at the absolute memory
// address SlotAddress, once every library's memory_base is known.
type GlobalFixup struct {
	Exporter    string
	Symbol      string
	SlotAddress uint32
}

// DlOpenables is the dlopen/dlsym lookup table: a name-sorted library
// array, each entry pointing to a name-sorted symbol array, so the
// runtime dlsym can binary-search both. All multi-byte integers are
// little-endian u32 and all string regions are padded to a multiple of
// 4 bytes; the layout is binary-stable and consumed by the runtime.
type DlOpenables struct {
	TableBase  uint32
	MemoryBase uint32
	Buffer     []byte

	GlobalAddresses []GlobalFixup

	// FunctionCount is the number of table slots consumed, starting at
	// TableBase, by dlopen-able function exports.
	FunctionCount uint32

	// LibrariesAddress is the memory address of the root descriptor
	// {library_count, libraries_addr}.
	LibrariesAddress uint32
}

type librarySymbol struct {
	name        string
	nameAddress uint32
	isFunction  bool
	funcSlot    uint32
}

// NewDlOpenables scans mds in input order, keeping only dl_openable
// libraries, and lays out the lookup table starting at tableBase (table
// index space) and memoryBase (linear memory).
func NewDlOpenables(tableBase, memoryBase uint32, mds []*metadata.Metadata) DlOpenables {
	var buffer []byte
	var globalAddresses []GlobalFixup
	var functionCount uint32

	type libraryRecord struct {
		name        string
		nameAddress uint32
		symbolCount int
		symbolsAddr uint32
	}
	var libraries []libraryRecord

	for _, md := range mds {
		if !md.DlOpenable {
			continue
		}

		nameAddress := memoryBase + uint32(len(buffer))
		buffer = writeBytesPadded(buffer, []byte(md.Name))

		symbols := make([]librarySymbol, len(md.Exports))
		for i, export := range md.Exports {
			symNameAddr := memoryBase + uint32(len(buffer))
			buffer = writeBytesPadded(buffer, []byte(export.Key.Name))

			sym := librarySymbol{name: export.Key.Name, nameAddress: symNameAddr}
			if export.Key.Kind == metadata.KindFunction {
				sym.isFunction = true
				sym.funcSlot = tableBase + functionCount
				functionCount++
			}
			symbols[i] = sym
		}

		sort.Slice(symbols, func(i, j int) bool { return symbols[i].name < symbols[j].name })

		symbolsStart := uint32(len(buffer))
		for _, sym := range symbols {
			buffer = appendU32(buffer, uint32(len(sym.name)))
			buffer = appendU32(buffer, sym.nameAddress)
			if sym.isFunction {
				buffer = appendU32(buffer, sym.funcSlot)
			} else {
				globalAddresses = append(globalAddresses, GlobalFixup{
					Exporter:    md.Name,
					Symbol:      sym.name,
					SlotAddress: memoryBase + uint32(len(buffer)),
				})
				buffer = appendU32(buffer, 0)
			}
		}

		libraries = append(libraries, libraryRecord{
			name:        md.Name,
			nameAddress: nameAddress,
			symbolCount: len(md.Exports),
			symbolsAddr: memoryBase + symbolsStart,
		})
	}

	sort.Slice(libraries, func(i, j int) bool { return libraries[i].name < libraries[j].name })

	librariesStart := uint32(len(buffer))
	for _, lib := range libraries {
		buffer = appendU32(buffer, uint32(len(lib.name)))
		buffer = appendU32(buffer, lib.nameAddress)
		buffer = appendU32(buffer, uint32(lib.symbolCount))
		buffer = appendU32(buffer, lib.symbolsAddr)
	}

	librariesAddress := memoryBase + uint32(len(buffer))
	buffer = appendU32(buffer, uint32(len(libraries)))
	buffer = appendU32(buffer, memoryBase+librariesStart)

	return DlOpenables{
		TableBase:        tableBase,
		MemoryBase:       memoryBase,
		Buffer:           buffer,
		GlobalAddresses:  globalAddresses,
		FunctionCount:    functionCount,
		LibrariesAddress: librariesAddress,
	}
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func writeBytesPadded(buf []byte, bs []byte) []byte {
	buf = append(buf, bs...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}
