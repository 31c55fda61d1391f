package guest

// A minimal binary encoder for the guest modules used in tests. Every value
// is an i32.

const (
	opUnreachable = 0x00
	opEnd         = 0x0B
	opCall        = 0x10
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opI32Const    = 0x41
	valI32        = 0x7F
)

type funcType struct{ params, results int }

type wasmImport struct {
	name string
	typ  int
}

type wasmFunc struct {
	export string
	typ    int
	body   []byte
}

type wasmData struct {
	offset int32
	bytes  string
}

type wasmModule struct {
	types   []funcType
	imports []wasmImport
	funcs   []wasmFunc
	memory  bool
	data    []wasmData
}

func uleb(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func sleb(b []byte, v int32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func wasmName(b []byte, s string) []byte {
	return append(uleb(b, uint32(len(s))), s...)
}

func section(out []byte, id byte, content []byte) []byte {
	out = append(out, id)
	out = uleb(out, uint32(len(content)))
	return append(out, content...)
}

func (m wasmModule) encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	s := uleb(nil, uint32(len(m.types)))
	for _, t := range m.types {
		s = append(s, 0x60)
		s = uleb(s, uint32(t.params))
		for i := 0; i < t.params; i++ {
			s = append(s, valI32)
		}
		s = uleb(s, uint32(t.results))
		for i := 0; i < t.results; i++ {
			s = append(s, valI32)
		}
	}
	out = section(out, 1, s)

	if len(m.imports) > 0 {
		s = uleb(nil, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = wasmName(s, HostModule)
			s = wasmName(s, imp.name)
			s = append(s, 0x00)
			s = uleb(s, uint32(imp.typ))
		}
		out = section(out, 2, s)
	}

	s = uleb(nil, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		s = uleb(s, uint32(f.typ))
	}
	out = section(out, 3, s)

	if m.memory {
		out = section(out, 5, []byte{0x01, 0x00, 0x01})
	}

	var exports [][]byte
	for i, f := range m.funcs {
		if f.export == "" {
			continue
		}
		e := wasmName(nil, f.export)
		e = append(e, 0x00)
		exports = append(exports, uleb(e, uint32(len(m.imports)+i)))
	}
	if m.memory {
		exports = append(exports, append(wasmName(nil, "memory"), 0x02, 0x00))
	}
	s = uleb(nil, uint32(len(exports)))
	for _, e := range exports {
		s = append(s, e...)
	}
	out = section(out, 7, s)

	s = uleb(nil, uint32(len(m.funcs)))
	for _, f := range m.funcs {
		body := append([]byte{0x00}, f.body...)
		body = append(body, opEnd)
		s = uleb(s, uint32(len(body)))
		s = append(s, body...)
	}
	out = section(out, 10, s)

	if len(m.data) > 0 {
		s = uleb(nil, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00, opI32Const)
			s = sleb(s, d.offset)
			s = append(s, opEnd)
			s = wasmName(s, d.bytes)
		}
		out = section(out, 11, s)
	}
	return out
}

func code(ops ...[]byte) []byte {
	var b []byte
	for _, op := range ops {
		b = append(b, op...)
	}
	return b
}

func localGet(i byte) []byte { return []byte{opLocalGet, i} }
func i32Const(v int32) []byte { return sleb([]byte{opI32Const}, v) }
func call(fn uint32) []byte { return uleb([]byte{opCall}, fn) }
func drop() []byte { return []byte{opDrop} }
