package layout

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmcompose/linker/internal/metadata"
)

func TestNewDlOpenablesSkipsNonDlOpenable(t *testing.T) {
	mds := []*metadata.Metadata{{Name: "plain"}}
	d := NewDlOpenables(0, 0, mds)
	require.Len(t, d.Buffer, 8, "only the root descriptor is written")
	require.Zero(t, binary.LittleEndian.Uint32(d.Buffer[0:4]), "the root descriptor lists no libraries")
	require.Zero(t, d.FunctionCount)
}

func TestNewDlOpenablesSingleLibraryLayout(t *testing.T) {
	mds := []*metadata.Metadata{
		{
			Name:       "lib",
			DlOpenable: true,
			Exports: []metadata.Export{
				{Key: metadata.FuncKey("run", metadata.FunctionType{})},
				{Key: metadata.GlobalKey("counter", metadata.GlobalType{})},
			},
		},
	}

	const tableBase, memoryBase = 100, 1000
	d := NewDlOpenables(tableBase, memoryBase, mds)

	require.Equal(t, uint32(1), d.FunctionCount, "one function export consumes one table slot")
	require.Len(t, d.GlobalAddresses, 1)
	require.Equal(t, "lib", d.GlobalAddresses[0].Exporter)
	require.Equal(t, "counter", d.GlobalAddresses[0].Symbol)

	// root descriptor is the trailing 8 bytes: {library_count, libraries_addr}
	root := d.Buffer[len(d.Buffer)-8:]
	libraryCount := binary.LittleEndian.Uint32(root[0:4])
	librariesAddr := binary.LittleEndian.Uint32(root[4:8])
	require.Equal(t, uint32(1), libraryCount)
	require.Equal(t, d.LibrariesAddress, memoryBase+uint32(len(d.Buffer))-8)

	// the single library record: {name_len, name_addr, symbol_count, symbols_addr}
	libRecord := d.Buffer[librariesAddr-memoryBase : librariesAddr-memoryBase+16]
	nameLen := binary.LittleEndian.Uint32(libRecord[0:4])
	nameAddr := binary.LittleEndian.Uint32(libRecord[4:8])
	symbolCount := binary.LittleEndian.Uint32(libRecord[8:12])
	symbolsAddr := binary.LittleEndian.Uint32(libRecord[12:16])

	require.Equal(t, uint32(len("lib")), nameLen)
	require.Equal(t, "lib", string(d.Buffer[nameAddr-memoryBase:nameAddr-memoryBase+nameLen]))
	require.Equal(t, uint32(2), symbolCount)

	// symbols are sorted by name: "counter" before "run"
	firstSym := d.Buffer[symbolsAddr-memoryBase : symbolsAddr-memoryBase+12]
	firstLen := binary.LittleEndian.Uint32(firstSym[0:4])
	firstNameAddr := binary.LittleEndian.Uint32(firstSym[4:8])
	firstValue := binary.LittleEndian.Uint32(firstSym[8:12])
	require.Equal(t, uint32(len("counter")), firstLen)
	require.Equal(t, "counter", string(d.Buffer[firstNameAddr-memoryBase:firstNameAddr-memoryBase+firstLen]))
	require.Equal(t, uint32(0), firstValue, "global symbol slot is a zero placeholder patched by a GlobalFixup")

	secondSym := d.Buffer[symbolsAddr-memoryBase+12 : symbolsAddr-memoryBase+24]
	secondLen := binary.LittleEndian.Uint32(secondSym[0:4])
	secondValue := binary.LittleEndian.Uint32(secondSym[8:12])
	require.Equal(t, uint32(len("run")), secondLen)
	require.Equal(t, uint32(tableBase), secondValue, "the only function export takes the first table slot")
}

func TestNewDlOpenablesLibrariesSortedByName(t *testing.T) {
	mds := []*metadata.Metadata{
		{Name: "zeta", DlOpenable: true},
		{Name: "alpha", DlOpenable: true},
	}
	d := NewDlOpenables(0, 0, mds)

	root := d.Buffer[len(d.Buffer)-8:]
	librariesAddr := binary.LittleEndian.Uint32(root[4:8])

	firstRecord := d.Buffer[librariesAddr : librariesAddr+16]
	firstNameLen := binary.LittleEndian.Uint32(firstRecord[0:4])
	firstNameAddr := binary.LittleEndian.Uint32(firstRecord[4:8])
	require.Equal(t, "alpha", string(d.Buffer[firstNameAddr:firstNameAddr+firstNameLen]))
}

func TestWriteBytesPaddedAlignsToFour(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abc", "abcd", "abcde"} {
		out := writeBytesPadded(nil, []byte(s))
		require.Zero(t, len(out)%4, "padded length must be a multiple of 4 for %q", s)
		require.True(t, len(out) >= len(s))
	}
}
