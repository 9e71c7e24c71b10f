// Package encoding reads and writes the WASM binary format for the
// in-memory document tree defined by internal/wasm/module.
package encoding

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/wasmcompose/linker/internal/wasm/module"
	"github.com/wasmcompose/linker/internal/wasm/types"
)

const (
	secCustom   = 0
	secType     = 1
	secImport   = 2
	secFunction = 3
	secTable    = 4
	secMemory   = 5
	secGlobal   = 6
	secExport   = 7
	secStart    = 8
	secElement  = 9
	secCode     = 10
	secData     = 11
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

// WriteModule encodes m to w in the WASM binary format.
func WriteModule(w io.Writer, m *module.Module) error {
	var out bytes.Buffer
	out.Write(magic[:])
	ver := m.Version
	if ver == 0 {
		ver = 1
	}
	writeU32LE(&out, ver)

	if len(m.Type.Functions) > 0 {
		if err := writeSection(&out, secType, encodeTypeSection(m)); err != nil {
			return err
		}
	}
	if len(m.Import.Imports) > 0 {
		payload, err := encodeImportSection(m)
		if err != nil {
			return err
		}
		if err := writeSection(&out, secImport, payload); err != nil {
			return err
		}
	}
	if len(m.Function.TypeIndices) > 0 {
		if err := writeSection(&out, secFunction, encodeFunctionSection(m)); err != nil {
			return err
		}
	}
	if len(m.Table.Tables) > 0 {
		if err := writeSection(&out, secTable, encodeTableSection(m)); err != nil {
			return err
		}
	}
	if len(m.Memory.Memories) > 0 {
		if err := writeSection(&out, secMemory, encodeMemorySection(m)); err != nil {
			return err
		}
	}
	if len(m.Global.Globals) > 0 {
		payload, err := encodeGlobalSection(m)
		if err != nil {
			return err
		}
		if err := writeSection(&out, secGlobal, payload); err != nil {
			return err
		}
	}
	if len(m.Export.Exports) > 0 {
		if err := writeSection(&out, secExport, encodeExportSection(m)); err != nil {
			return err
		}
	}
	if m.Start.FuncIndex != nil {
		var buf bytes.Buffer
		writeU32(&buf, *m.Start.FuncIndex)
		if err := writeSection(&out, secStart, buf.Bytes()); err != nil {
			return err
		}
	}
	if len(m.Element.Segments) > 0 {
		payload, err := encodeElementSection(m)
		if err != nil {
			return err
		}
		if err := writeSection(&out, secElement, payload); err != nil {
			return err
		}
	}
	if len(m.Code.Segments) > 0 {
		if err := writeSection(&out, secCode, encodeCodeSection(m)); err != nil {
			return err
		}
	}
	if len(m.Data.Segments) > 0 {
		payload, err := encodeDataSection(m)
		if err != nil {
			return err
		}
		if err := writeSection(&out, secData, payload); err != nil {
			return err
		}
	}
	if err := writeNameSection(&out, m); err != nil {
		return err
	}
	for _, c := range m.Customs {
		if err := writeSection(&out, secCustom, encodeCustomSection(c)); err != nil {
			return err
		}
	}

	_, err := w.Write(out.Bytes())
	return err
}

func writeU32LE(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeSection(out *bytes.Buffer, id byte, payload []byte) error {
	out.WriteByte(id)
	writeU32(out, uint32(len(payload)))
	out.Write(payload)
	return nil
}

func writeName(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeValType(buf *bytes.Buffer, t types.ValueType) {
	buf.WriteByte(byte(t))
}

func writeLimits(buf *bytes.Buffer, min uint32, max *uint32) {
	if max == nil {
		buf.WriteByte(0x00)
		writeU32(buf, min)
		return
	}
	buf.WriteByte(0x01)
	writeU32(buf, min)
	writeU32(buf, *max)
}

func encodeTypeSection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Type.Functions)))
	for _, fn := range m.Type.Functions {
		buf.WriteByte(0x60)
		writeU32(&buf, uint32(len(fn.Params)))
		for _, p := range fn.Params {
			writeValType(&buf, p)
		}
		writeU32(&buf, uint32(len(fn.Results)))
		for _, r := range fn.Results {
			writeValType(&buf, r)
		}
	}
	return buf.Bytes()
}

func encodeImportSection(m *module.Module) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Import.Imports)))
	for _, imp := range m.Import.Imports {
		writeName(&buf, imp.Module)
		writeName(&buf, imp.Name)
		switch d := imp.Descriptor.(type) {
		case module.FunctionImport:
			buf.WriteByte(0x00)
			writeU32(&buf, d.Func)
		case module.TableImport:
			buf.WriteByte(0x01)
			buf.WriteByte(0x70)
			writeLimits(&buf, d.Table.Minimum, d.Table.Maximum)
		case module.MemoryImport:
			buf.WriteByte(0x02)
			writeLimits(&buf, d.Memory.Minimum, d.Memory.Maximum)
		case module.GlobalImport:
			buf.WriteByte(0x03)
			writeValType(&buf, d.Global.Type)
			if d.Global.Mutable {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		default:
			return nil, fmt.Errorf("encoding: unsupported import descriptor %T", d)
		}
	}
	return buf.Bytes(), nil
}

func encodeFunctionSection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Function.TypeIndices)))
	for _, idx := range m.Function.TypeIndices {
		writeU32(&buf, idx)
	}
	return buf.Bytes()
}

func encodeTableSection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Table.Tables)))
	for _, t := range m.Table.Tables {
		buf.WriteByte(0x70)
		writeLimits(&buf, t.Minimum, t.Maximum)
	}
	return buf.Bytes()
}

func encodeMemorySection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Memory.Memories)))
	for _, mem := range m.Memory.Memories {
		writeLimits(&buf, mem.Minimum, mem.Maximum)
	}
	return buf.Bytes()
}

func encodeGlobalSection(m *module.Module) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Global.Globals)))
	for _, g := range m.Global.Globals {
		writeValType(&buf, g.Type)
		if g.Mutable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		if err := writeConstExpr(&buf, g.Init); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeConstExpr(buf *bytes.Buffer, e module.Expr) error {
	for _, instr := range e.Instrs {
		if err := writeInstr(buf, instr); err != nil {
			return err
		}
	}
	buf.WriteByte(0x0B) // end
	return nil
}

func encodeExportSection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Export.Exports)))
	for _, exp := range m.Export.Exports {
		writeName(&buf, exp.Name)
		buf.WriteByte(byte(exp.Descriptor.Type))
		writeU32(&buf, exp.Descriptor.Index)
	}
	return buf.Bytes()
}

func encodeElementSection(m *module.Module) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Element.Segments)))
	for _, seg := range m.Element.Segments {
		if seg.Index != 0 {
			return nil, errors.New("encoding: only table index 0 is supported for element segments")
		}
		writeU32(&buf, 0) // flag: active, table 0, funcidx vector
		if err := writeConstExpr(&buf, seg.Offset); err != nil {
			return nil, err
		}
		writeU32(&buf, uint32(len(seg.FuncIndices)))
		for _, idx := range seg.FuncIndices {
			writeU32(&buf, idx)
		}
	}
	return buf.Bytes(), nil
}

func encodeCodeSection(m *module.Module) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Code.Segments)))
	for _, seg := range m.Code.Segments {
		writeU32(&buf, uint32(len(seg.Code)))
		buf.Write(seg.Code)
	}
	return buf.Bytes()
}

func encodeDataSection(m *module.Module) ([]byte, error) {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(m.Data.Segments)))
	for _, seg := range m.Data.Segments {
		if seg.Index != 0 {
			return nil, errors.New("encoding: only memory index 0 is supported for data segments")
		}
		writeU32(&buf, 0) // flag: active, memory 0
		if err := writeConstExpr(&buf, seg.Offset); err != nil {
			return nil, err
		}
		writeU32(&buf, uint32(len(seg.Init)))
		buf.Write(seg.Init)
	}
	return buf.Bytes(), nil
}

func encodeCustomSection(c module.CustomSection) []byte {
	var buf bytes.Buffer
	writeName(&buf, c.Name)
	buf.Write(c.Payload)
	return buf.Bytes()
}

func writeNameSection(out *bytes.Buffer, m *module.Module) error {
	if m.Names.Module == "" && len(m.Names.Functions) == 0 && len(m.Names.Locals) == 0 {
		return nil
	}
	var payload bytes.Buffer
	if m.Names.Module != "" {
		var sub bytes.Buffer
		writeName(&sub, m.Names.Module)
		payload.WriteByte(0)
		writeU32(&payload, uint32(sub.Len()))
		payload.Write(sub.Bytes())
	}
	if len(m.Names.Functions) > 0 {
		var sub bytes.Buffer
		writeU32(&sub, uint32(len(m.Names.Functions)))
		for _, nm := range m.Names.Functions {
			writeU32(&sub, nm.Index)
			writeName(&sub, nm.Name)
		}
		payload.WriteByte(1)
		writeU32(&payload, uint32(sub.Len()))
		payload.Write(sub.Bytes())
	}
	if len(m.Names.Locals) > 0 {
		byFunc := map[uint32][]module.NameMap{}
		var order []uint32
		for _, l := range m.Names.Locals {
			if _, ok := byFunc[l.FuncIndex]; !ok {
				order = append(order, l.FuncIndex)
			}
			byFunc[l.FuncIndex] = append(byFunc[l.FuncIndex], l.NameMap)
		}
		var sub bytes.Buffer
		writeU32(&sub, uint32(len(order)))
		for _, fidx := range order {
			writeU32(&sub, fidx)
			names := byFunc[fidx]
			writeU32(&sub, uint32(len(names)))
			for _, nm := range names {
				writeU32(&sub, nm.Index)
				writeName(&sub, nm.Name)
			}
		}
		payload.WriteByte(2)
		writeU32(&payload, uint32(sub.Len()))
		payload.Write(sub.Bytes())
	}
	var section bytes.Buffer
	writeName(&section, "name")
	section.Write(payload.Bytes())
	return writeSection(out, secCustom, section.Bytes())
}

// ReadModule decodes a module from the WASM binary format.
func ReadModule(r io.Reader) (*module.Module, error) {
	br := bufio.NewReader(r)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] || hdr[2] != magic[2] || hdr[3] != magic[3] {
		return nil, errors.New("encoding: bad magic number")
	}

	m := &module.Module{
		Version: uint32(hdr[4]) | uint32(hdr[5])<<8 | uint32(hdr[6])<<16 | uint32(hdr[7])<<24,
	}

	for {
		id, err := br.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		size, err := readU32(br)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(br, size)
		if err != nil {
			return nil, err
		}
		pr := bufio.NewReader(bytes.NewReader(payload))

		switch id {
		case secType:
			if err := readTypeSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "type section")
			}
		case secImport:
			if err := readImportSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "import section")
			}
		case secFunction:
			if err := readFunctionSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "function section")
			}
		case secTable:
			if err := readTableSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "table section")
			}
		case secMemory:
			if err := readMemorySection(pr, m); err != nil {
				return nil, errors.Wrap(err, "memory section")
			}
		case secGlobal:
			if err := readGlobalSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "global section")
			}
		case secExport:
			if err := readExportSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "export section")
			}
		case secStart:
			idx, err := readU32(pr)
			if err != nil {
				return nil, errors.Wrap(err, "start section")
			}
			m.Start.FuncIndex = &idx
		case secElement:
			if err := readElementSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "element section")
			}
		case secCode:
			if err := readCodeSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "code section")
			}
		case secData:
			if err := readDataSection(pr, m); err != nil {
				return nil, errors.Wrap(err, "data section")
			}
		case secCustom:
			if err := readCustomSection(pr, m, payload); err != nil {
				return nil, errors.Wrap(err, "custom section")
			}
		default:
			return nil, fmt.Errorf("encoding: unknown section id %d", id)
		}
	}

	return m, nil
}

func readTypeSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("encoding: unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Type.Functions = append(m.Type.Functions, module.FunctionType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *bufio.Reader) ([]types.ValueType, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]types.ValueType, n)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out[i] = types.ValueType(b)
	}
	return out, nil
}

func readLimits(r *bufio.Reader) (uint32, *uint32, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	min, err := readU32(r)
	if err != nil {
		return 0, nil, err
	}
	if flag == 0 {
		return min, nil, nil
	}
	max, err := readU32(r)
	if err != nil {
		return 0, nil, err
	}
	return min, &max, nil
}

func readName(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	bs, err := readBytes(r, n)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func readImportSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := readName(r)
		if err != nil {
			return err
		}
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		var desc module.ImportDescriptor
		switch kind {
		case 0x00:
			idx, err := readU32(r)
			if err != nil {
				return err
			}
			desc = module.FunctionImport{Func: idx}
		case 0x01:
			if _, err := r.ReadByte(); err != nil { // reftype
				return err
			}
			min, max, err := readLimits(r)
			if err != nil {
				return err
			}
			desc = module.TableImport{Table: module.TableType{Minimum: min, Maximum: max}}
		case 0x02:
			min, max, err := readLimits(r)
			if err != nil {
				return err
			}
			desc = module.MemoryImport{Memory: module.MemoryType{Minimum: min, Maximum: max}}
		case 0x03:
			vt, err := r.ReadByte()
			if err != nil {
				return err
			}
			mut, err := r.ReadByte()
			if err != nil {
				return err
			}
			desc = module.GlobalImport{Global: module.GlobalType{Type: types.ValueType(vt), Mutable: mut == 1}}
		default:
			return fmt.Errorf("encoding: unknown import kind %d", kind)
		}
		m.Import.Imports = append(m.Import.Imports, module.Import{Module: mod, Name: name, Descriptor: desc})
	}
	return nil
}

func readFunctionSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		m.Function.TypeIndices = append(m.Function.TypeIndices, idx)
	}
	return nil
}

func readTableSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		min, max, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Table.Tables = append(m.Table.Tables, module.TableType{Minimum: min, Maximum: max})
	}
	return nil
}

func readMemorySection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		min, max, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memory.Memories = append(m.Memory.Memories, module.MemoryType{Minimum: min, Maximum: max})
	}
	return nil
}

func readGlobalSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		vt, err := r.ReadByte()
		if err != nil {
			return err
		}
		mut, err := r.ReadByte()
		if err != nil {
			return err
		}
		instrs, err := readInstrs(r)
		if err != nil {
			return err
		}
		m.Global.Globals = append(m.Global.Globals, module.Global{
			Type:    types.ValueType(vt),
			Mutable: mut == 1,
			Init:    module.Expr{Instrs: instrs},
		})
	}
	return nil
}

func readExportSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := readU32(r)
		if err != nil {
			return err
		}
		m.Export.Exports = append(m.Export.Exports, module.Export{
			Name:       name,
			Descriptor: module.ExportDescriptor{Type: module.ExportType(kind), Index: idx},
		})
	}
	return nil
}

func readElementSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flag, err := readU32(r)
		if err != nil {
			return err
		}
		if flag != 0 {
			return fmt.Errorf("encoding: unsupported element segment flag %d", flag)
		}
		instrs, err := readInstrs(r)
		if err != nil {
			return err
		}
		count, err := readU32(r)
		if err != nil {
			return err
		}
		idxs := make([]uint32, count)
		for j := range idxs {
			idxs[j], err = readU32(r)
			if err != nil {
				return err
			}
		}
		m.Element.Segments = append(m.Element.Segments, module.ElementSegment{
			Offset:      module.Expr{Instrs: instrs},
			FuncIndices: idxs,
		})
	}
	return nil
}

func readCodeSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		size, err := readU32(r)
		if err != nil {
			return err
		}
		code, err := readBytes(r, size)
		if err != nil {
			return err
		}
		m.Code.Segments = append(m.Code.Segments, module.RawCodeSegment{Code: code})
	}
	return nil
}

func readDataSection(r *bufio.Reader, m *module.Module) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		flag, err := readU32(r)
		if err != nil {
			return err
		}
		if flag != 0 {
			return fmt.Errorf("encoding: unsupported data segment flag %d", flag)
		}
		instrs, err := readInstrs(r)
		if err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		init, err := readBytes(r, size)
		if err != nil {
			return err
		}
		m.Data.Segments = append(m.Data.Segments, module.DataSegment{
			Offset: module.Expr{Instrs: instrs},
			Init:   init,
		})
	}
	return nil
}

func readCustomSection(r *bufio.Reader, m *module.Module, raw []byte) error {
	name, err := readName(r)
	if err != nil {
		return err
	}
	if name == "name" {
		return readNameSection(r, m)
	}
	m.Customs = append(m.Customs, module.CustomSection{Name: name, Payload: raw[nameFieldLen(name):]})
	return nil
}

func nameFieldLen(name string) int {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(name)))
	return buf.Len() + len(name)
}

func readNameSection(r *bufio.Reader, m *module.Module) error {
	for {
		id, err := r.ReadByte()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		payload, err := readBytes(r, size)
		if err != nil {
			return err
		}
		pr := bufio.NewReader(bytes.NewReader(payload))
		switch id {
		case 0:
			name, err := readName(pr)
			if err != nil {
				return err
			}
			m.Names.Module = name
		case 1:
			n, err := readU32(pr)
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				idx, err := readU32(pr)
				if err != nil {
					return err
				}
				name, err := readName(pr)
				if err != nil {
					return err
				}
				m.Names.Functions = append(m.Names.Functions, module.NameMap{Index: idx, Name: name})
			}
		case 2:
			fn, err := readU32(pr)
			if err != nil {
				return err
			}
			for i := uint32(0); i < fn; i++ {
				fidx, err := readU32(pr)
				if err != nil {
					return err
				}
				ln, err := readU32(pr)
				if err != nil {
					return err
				}
				for j := uint32(0); j < ln; j++ {
					idx, err := readU32(pr)
					if err != nil {
						return err
					}
					name, err := readName(pr)
					if err != nil {
						return err
					}
					m.Names.Locals = append(m.Names.Locals, module.LocalNameMap{
						FuncIndex: fidx,
						NameMap:   module.NameMap{Index: idx, Name: name},
					})
				}
			}
		}
	}
}
