package module

import "bytes"

// ProducersSection builds the conventional "producers" custom section
// identifying this linker as a processor of the module, mirroring the
// producers metadata toolchains commonly attach to their own output.
func ProducersSection() CustomSection {
	var buf bytes.Buffer

	writeU32(&buf, 1) // field count
	writeName(&buf, "processed-by")
	writeU32(&buf, 1) // value count
	writeName(&buf, "wasmcompose-linker")
	writeName(&buf, "0.1.0")

	return CustomSection{Name: "producers", Payload: buf.Bytes()}
}

func writeU32(buf *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

func writeName(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}
