package wat

import (
	"encoding/binary"
	"math"
)

// buffer accumulates binary encoding.
type buffer struct {
	b []byte
}

func (w *buffer) byte(v byte) { w.b = append(w.b, v) }

func (w *buffer) bytes(v []byte) { w.b = append(w.b, v...) }

// u32 writes unsigned LEB128.
func (w *buffer) u32(v uint32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		w.byte(c)
		if v == 0 {
			return
		}
	}
}

// s64 writes signed LEB128; i32 and s33 values use it too.
func (w *buffer) s64(v int64) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			w.byte(c)
			return
		}
		w.byte(c | 0x80)
	}
}

func (w *buffer) f32(v float32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, math.Float32bits(v))
}

func (w *buffer) f64(v float64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v))
}

func (w *buffer) name(s string) {
	w.u32(uint32(len(s)))
	w.b = append(w.b, s...)
}

func (w *buffer) limits(l limits) {
	if l.max != nil {
		w.byte(0x01)
		w.u32(l.min)
		w.u32(*l.max)
		return
	}
	w.byte(0x00)
	w.u32(l.min)
}

func (w *buffer) section(id byte, body *buffer) {
	w.byte(id)
	w.u32(uint32(len(body.b)))
	w.bytes(body.b)
}

const (
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

var preamble = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// encode writes the sections of a resolved module in binary order.
func (m *module) encode() []byte {
	var out buffer
	out.bytes(preamble)

	if len(m.types) > 0 {
		var s buffer
		s.u32(uint32(len(m.types)))
		for _, t := range m.types {
			s.byte(0x60)
			s.valTypes(t.params)
			s.valTypes(t.results)
		}
		out.section(secType, &s)
	}

	if len(m.imports) > 0 {
		var s buffer
		s.u32(uint32(len(m.imports)))
		for _, imp := range m.imports {
			s.name(imp.module)
			s.name(imp.name)
			s.byte(imp.kind)
			switch imp.kind {
			case kindFunc:
				s.u32(imp.typeIdx)
			case kindTable:
				s.byte(byte(imp.table.ref))
				s.limits(imp.table.lim)
			case kindMemory:
				s.limits(imp.mem)
			case kindGlobal:
				s.globalType(imp.global)
			}
		}
		out.section(secImport, &s)
	}

	if len(m.funcs) > 0 {
		var s buffer
		s.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s.u32(f.typeIdx)
		}
		out.section(secFunction, &s)
	}

	if len(m.tables) > 0 {
		var s buffer
		s.u32(uint32(len(m.tables)))
		for _, t := range m.tables {
			s.byte(byte(t.ref))
			s.limits(t.lim)
		}
		out.section(secTable, &s)
	}

	if len(m.mems) > 0 {
		var s buffer
		s.u32(uint32(len(m.mems)))
		for _, l := range m.mems {
			s.limits(l)
		}
		out.section(secMemory, &s)
	}

	if len(m.globals) > 0 {
		var s buffer
		s.u32(uint32(len(m.globals)))
		for _, g := range m.globals {
			s.globalType(g.typ)
			s.bytes(g.init)
		}
		out.section(secGlobal, &s)
	}

	if len(m.exports) > 0 {
		var s buffer
		s.u32(uint32(len(m.exports)))
		for _, e := range m.exports {
			s.name(e.name)
			s.byte(e.kind)
			s.u32(e.idx)
		}
		out.section(secExport, &s)
	}

	if m.start != nil {
		var s buffer
		s.u32(*m.start)
		out.section(secStart, &s)
	}

	if len(m.elems) > 0 {
		var s buffer
		s.u32(uint32(len(m.elems)))
		for _, e := range m.elems {
			if e.table == 0 {
				s.byte(0x00)
				s.bytes(e.offset)
			} else {
				s.byte(0x02)
				s.u32(e.table)
				s.bytes(e.offset)
				s.byte(0x00)
			}
			s.u32(uint32(len(e.funcs)))
			for _, f := range e.funcs {
				s.u32(f)
			}
		}
		out.section(secElement, &s)
	}

	if len(m.funcs) > 0 {
		var s buffer
		s.u32(uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body buffer
			body.locals(f.locals)
			body.bytes(f.code)
			s.u32(uint32(len(body.b)))
			s.bytes(body.b)
		}
		out.section(secCode, &s)
	}

	if len(m.data) > 0 {
		var s buffer
		s.u32(uint32(len(m.data)))
		for _, d := range m.data {
			if d.mem == 0 {
				s.byte(0x00)
			} else {
				s.byte(0x02)
				s.u32(d.mem)
			}
			s.bytes(d.offset)
			s.u32(uint32(len(d.data)))
			s.bytes(d.data)
		}
		out.section(secData, &s)
	}

	return out.b
}

func (w *buffer) valTypes(ts []valType) {
	w.u32(uint32(len(ts)))
	for _, t := range ts {
		w.byte(byte(t))
	}
}

func (w *buffer) globalType(g globalType) {
	w.byte(byte(g.typ))
	if g.mut {
		w.byte(0x01)
	} else {
		w.byte(0x00)
	}
}

// locals groups runs of equal types.
func (w *buffer) locals(ts []valType) {
	type run struct {
		n uint32
		t valType
	}
	var runs []run
	for _, t := range ts {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].n++
			continue
		}
		runs = append(runs, run{1, t})
	}
	w.u32(uint32(len(runs)))
	for _, r := range runs {
		w.u32(r.n)
		w.byte(byte(r.t))
	}
}
