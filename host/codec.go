package host

import (
	"context"
	"strconv"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

// codec converts between component values and the guest's flat values and
// linear memory.
type codec struct {
	ctx     context.Context
	mem     api.Memory
	realloc api.Function
	errs    *errorTable
	phase   errors.Phase
}

func (c *codec) fail(kind errors.Kind, path []string, format string, args ...any) error {
	return errors.New(c.phase, kind).Path(path...).Detail(format, args...).Build()
}

func (c *codec) alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	if c.realloc == nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("component exports no realloc function").
			Build()
	}
	res, err := c.realloc.Call(c.ctx, 0, 0, uint64(align), uint64(size))
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("realloc(%d, %d)", size, align).
			Cause(err).
			Build()
	}
	ptr := uint32(res[0])
	if ptr%align != 0 {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Detail("realloc returned unaligned pointer %d for alignment %d", ptr, align).
			Build()
	}
	if uint64(ptr)+uint64(size) > c.memSize() {
		return 0, errors.OutOfBounds(errors.PhaseEncode, nil, ptr, size)
	}
	return ptr, nil
}

// cursor walks flat values in order.
type cursor struct {
	vals []uint64
	pos  int
}

func (c *cursor) next() (uint64, bool) {
	if c.pos >= len(c.vals) {
		return 0, false
	}
	v := c.vals[c.pos]
	c.pos++
	return v, true
}

func validChar(r uint32) bool {
	return r < 0x110000 && (r < 0xD800 || r > 0xDFFF)
}

// liftFlat reads one value of type t from flat values.
func (c *codec) liftFlat(t value.Type, cur *cursor, path []string) (value.Value, error) {
	if t.Kind() == value.KindOption {
		disc, ok := cur.next()
		if !ok {
			return nil, c.fail(errors.KindInvalidData, path, "missing flat value")
		}
		elem := value.Elem(t)
		switch uint32(disc) {
		case 0:
			cur.pos += len(flatten(elem))
			return value.None(elem), nil
		case 1:
			v, err := c.liftFlat(elem, cur, sub(path, "some"))
			if err != nil {
				return nil, err
			}
			return value.MakeSome(elem, v), nil
		}
		return nil, c.fail(errors.KindInvalidData, path, "invalid option discriminant %d", uint32(disc))
	}

	raw, ok := cur.next()
	if !ok {
		return nil, c.fail(errors.KindInvalidData, path, "missing flat value")
	}

	switch t.Kind() {
	case value.KindBool:
		return value.Bool(uint32(raw) != 0), nil
	case value.KindU8:
		return value.U8(uint8(raw)), nil
	case value.KindU16:
		return value.U16(uint16(raw)), nil
	case value.KindU32:
		return value.U32(uint32(raw)), nil
	case value.KindU64:
		return value.U64(raw), nil
	case value.KindS8:
		return value.S8(int8(raw)), nil
	case value.KindS16:
		return value.S16(int16(raw)), nil
	case value.KindS32:
		return value.S32(int32(uint32(raw))), nil
	case value.KindS64:
		return value.S64(int64(raw)), nil
	case value.KindF32:
		return value.F32(api.DecodeF32(raw)), nil
	case value.KindF64:
		return value.F64(api.DecodeF64(raw)), nil
	case value.KindChar:
		r := uint32(raw)
		if !validChar(r) {
			return nil, c.fail(errors.KindInvalidData, path, "invalid char U+%X", r)
		}
		return value.Char(rune(r)), nil
	case value.KindErrorContext:
		return c.liftErrorContext(uint32(raw), path)
	case value.KindString, value.KindList:
		length, ok := cur.next()
		if !ok {
			return nil, c.fail(errors.KindInvalidData, path, "missing flat value")
		}
		if t.Kind() == value.KindString {
			return c.loadString(uint32(raw), uint32(length), path)
		}
		return c.loadList(value.Elem(t), uint32(raw), uint32(length), path)
	}
	return nil, errors.Unsupported(c.phase, "lift "+t.String())
}

// lowerFlat appends the flat representation of v.
func (c *codec) lowerFlat(out []uint64, t value.Type, v value.Value, path []string) ([]uint64, error) {
	switch x := v.(type) {
	case value.Bool:
		if x {
			return append(out, 1), nil
		}
		return append(out, 0), nil
	case value.U8:
		return append(out, uint64(x)), nil
	case value.U16:
		return append(out, uint64(x)), nil
	case value.U32:
		return append(out, uint64(x)), nil
	case value.U64:
		return append(out, uint64(x)), nil
	case value.S8:
		return append(out, api.EncodeI32(int32(x))), nil
	case value.S16:
		return append(out, api.EncodeI32(int32(x))), nil
	case value.S32:
		return append(out, api.EncodeI32(int32(x))), nil
	case value.S64:
		return append(out, api.EncodeI64(int64(x))), nil
	case value.F32:
		return append(out, api.EncodeF32(float32(x))), nil
	case value.F64:
		return append(out, api.EncodeF64(float64(x))), nil
	case value.Char:
		if !validChar(uint32(x)) {
			return nil, c.fail(errors.KindInvalidData, path, "invalid char U+%X", uint32(x))
		}
		return append(out, uint64(uint32(x))), nil
	case value.ErrorContext:
		return append(out, uint64(c.errs.insert(x.Err))), nil
	case value.String:
		ptr, n, err := c.storeString(string(x), path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(ptr), uint64(n)), nil
	case value.List:
		ptr, n, err := c.storeList(value.Elem(t), x, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(ptr), uint64(n)), nil
	case value.Option:
		elem := value.Elem(t)
		inner, some := x.Get()
		if !some {
			out = append(out, 0)
			for range flatten(elem) {
				out = append(out, 0)
			}
			return out, nil
		}
		return c.lowerFlat(append(out, 1), elem, inner, sub(path, "some"))
	}
	return nil, c.fail(errors.KindTypeMismatch, path, "cannot lower %s as %s", value.Describe(v), t)
}

// load reads one value of type t stored at ptr.
func (c *codec) load(t value.Type, ptr uint32, path []string) (value.Value, error) {
	size := sizeOf(t)
	if uint64(ptr)+uint64(size) > c.memSize() {
		return nil, errors.OutOfBounds(c.phase, path, ptr, size)
	}
	if ptr%alignOf(t) != 0 {
		return nil, c.fail(errors.KindInvalidData, path, "unaligned pointer %d for %s", ptr, t)
	}

	m := c.mem
	switch t.Kind() {
	case value.KindBool:
		b, _ := m.ReadByte(ptr)
		return value.Bool(b != 0), nil
	case value.KindU8:
		b, _ := m.ReadByte(ptr)
		return value.U8(b), nil
	case value.KindS8:
		b, _ := m.ReadByte(ptr)
		return value.S8(int8(b)), nil
	case value.KindU16:
		x, _ := m.ReadUint16Le(ptr)
		return value.U16(x), nil
	case value.KindS16:
		x, _ := m.ReadUint16Le(ptr)
		return value.S16(int16(x)), nil
	case value.KindU32:
		x, _ := m.ReadUint32Le(ptr)
		return value.U32(x), nil
	case value.KindS32:
		x, _ := m.ReadUint32Le(ptr)
		return value.S32(int32(x)), nil
	case value.KindU64:
		x, _ := m.ReadUint64Le(ptr)
		return value.U64(x), nil
	case value.KindS64:
		x, _ := m.ReadUint64Le(ptr)
		return value.S64(int64(x)), nil
	case value.KindF32:
		x, _ := m.ReadFloat32Le(ptr)
		return value.F32(x), nil
	case value.KindF64:
		x, _ := m.ReadFloat64Le(ptr)
		return value.F64(x), nil
	case value.KindChar:
		x, _ := m.ReadUint32Le(ptr)
		if !validChar(x) {
			return nil, c.fail(errors.KindInvalidData, path, "invalid char U+%X", x)
		}
		return value.Char(rune(x)), nil
	case value.KindErrorContext:
		x, _ := m.ReadUint32Le(ptr)
		return c.liftErrorContext(x, path)
	case value.KindString, value.KindList:
		p, _ := m.ReadUint32Le(ptr)
		n, _ := m.ReadUint32Le(ptr + 4)
		if t.Kind() == value.KindString {
			return c.loadString(p, n, path)
		}
		return c.loadList(value.Elem(t), p, n, path)
	case value.KindOption:
		disc, _ := m.ReadByte(ptr)
		elem := value.Elem(t)
		switch disc {
		case 0:
			return value.None(elem), nil
		case 1:
			v, err := c.load(elem, ptr+payloadOffset(t), sub(path, "some"))
			if err != nil {
				return nil, err
			}
			return value.MakeSome(elem, v), nil
		}
		return nil, c.fail(errors.KindInvalidData, path, "invalid option discriminant %d", disc)
	}
	return nil, errors.Unsupported(c.phase, "load "+t.String())
}

// store writes v of type t at ptr.
func (c *codec) store(t value.Type, v value.Value, ptr uint32, path []string) error {
	size := sizeOf(t)
	if uint64(ptr)+uint64(size) > c.memSize() {
		return errors.OutOfBounds(c.phase, path, ptr, size)
	}

	m := c.mem
	switch x := v.(type) {
	case value.Bool:
		var b byte
		if x {
			b = 1
		}
		m.WriteByte(ptr, b)
	case value.U8:
		m.WriteByte(ptr, uint8(x))
	case value.S8:
		m.WriteByte(ptr, uint8(x))
	case value.U16:
		m.WriteUint16Le(ptr, uint16(x))
	case value.S16:
		m.WriteUint16Le(ptr, uint16(x))
	case value.U32:
		m.WriteUint32Le(ptr, uint32(x))
	case value.S32:
		m.WriteUint32Le(ptr, uint32(x))
	case value.U64:
		m.WriteUint64Le(ptr, uint64(x))
	case value.S64:
		m.WriteUint64Le(ptr, uint64(x))
	case value.F32:
		m.WriteFloat32Le(ptr, float32(x))
	case value.F64:
		m.WriteFloat64Le(ptr, float64(x))
	case value.Char:
		if !validChar(uint32(x)) {
			return c.fail(errors.KindInvalidData, path, "invalid char U+%X", uint32(x))
		}
		m.WriteUint32Le(ptr, uint32(x))
	case value.ErrorContext:
		m.WriteUint32Le(ptr, c.errs.insert(x.Err))
	case value.String:
		p, n, err := c.storeString(string(x), path)
		if err != nil {
			return err
		}
		m.WriteUint32Le(ptr, p)
		m.WriteUint32Le(ptr+4, n)
	case value.List:
		p, n, err := c.storeList(value.Elem(t), x, path)
		if err != nil {
			return err
		}
		m.WriteUint32Le(ptr, p)
		m.WriteUint32Le(ptr+4, n)
	case value.Option:
		inner, some := x.Get()
		if !some {
			m.WriteByte(ptr, 0)
			return nil
		}
		m.WriteByte(ptr, 1)
		return c.store(value.Elem(t), inner, ptr+payloadOffset(t), sub(path, "some"))
	default:
		return c.fail(errors.KindTypeMismatch, path, "cannot store %s as %s", value.Describe(v), t)
	}
	return nil
}

func (c *codec) loadString(ptr, n uint32, path []string) (value.Value, error) {
	if n == 0 {
		return value.String(""), nil
	}
	if uint64(ptr)+uint64(n) > c.memSize() {
		return nil, errors.OutOfBounds(c.phase, path, ptr, n)
	}
	b, ok := c.mem.Read(ptr, n)
	if !ok {
		return nil, errors.OutOfBounds(c.phase, path, ptr, n)
	}
	if !utf8.Valid(b) {
		return nil, errors.InvalidUTF8(c.phase, path, b)
	}
	return value.String(string(b)), nil
}

func (c *codec) storeString(s string, path []string) (uint32, uint32, error) {
	if !utf8.ValidString(s) {
		return 0, 0, errors.InvalidUTF8(errors.PhaseEncode, path, []byte(s))
	}
	n := uint32(len(s))
	ptr, err := c.alloc(n, 1)
	if err != nil {
		return 0, 0, err
	}
	if n > 0 && !c.mem.WriteString(ptr, s) {
		return 0, 0, errors.OutOfBounds(errors.PhaseEncode, path, ptr, n)
	}
	return ptr, n, nil
}

func (c *codec) loadList(elem value.Type, ptr, n uint32, path []string) (value.Value, error) {
	stride := sizeOf(elem)
	if uint64(ptr)+uint64(stride)*uint64(n) > c.memSize() {
		return nil, errors.OutOfBounds(c.phase, path, ptr, stride*n)
	}
	items := make([]value.Value, n)
	for i := uint32(0); i < n; i++ {
		v, err := c.load(elem, ptr+i*stride, sub(path, "["+strconv.Itoa(int(i))+"]"))
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	return value.MakeList(elem, items), nil
}

func (c *codec) storeList(elem value.Type, l value.List, path []string) (uint32, uint32, error) {
	n := uint32(l.Len())
	stride := sizeOf(elem)
	ptr, err := c.alloc(stride*n, alignOf(elem))
	if err != nil {
		return 0, 0, err
	}
	for i, it := range l.Items() {
		if err := c.store(elem, it, ptr+uint32(i)*stride, sub(path, "["+strconv.Itoa(i)+"]")); err != nil {
			return 0, 0, err
		}
	}
	return ptr, n, nil
}

func (c *codec) liftErrorContext(handle uint32, path []string) (value.Value, error) {
	err, ok := c.errs.lookup(handle)
	if !ok {
		return nil, c.fail(errors.KindInvalidData, path, "unknown error-context handle %d", handle)
	}
	return value.ErrorContext{Err: err}, nil
}

// liftValues reads values of types ts from flat values, or from memory
// when they were spilled.
func (c *codec) liftValues(ts []value.Type, flat []uint64, limit int, path []string) ([]value.Value, error) {
	out := make([]value.Value, len(ts))
	if len(flattenAll(ts)) > limit {
		if len(flat) == 0 {
			return nil, c.fail(errors.KindInvalidData, path, "missing spill pointer")
		}
		base := uint32(flat[0])
		offsets, _, _ := tupleLayout(ts)
		for i, t := range ts {
			v, err := c.load(t, base+offsets[i], sub(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	cur := &cursor{vals: flat}
	for i, t := range ts {
		v, err := c.liftFlat(t, cur, sub(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lowerParams produces the flat arguments for a call into the guest,
// spilling them to guest memory when they exceed MaxFlatParams.
func (c *codec) lowerParams(ts []value.Type, vs []value.Value, path []string) ([]uint64, error) {
	if len(flattenAll(ts)) > MaxFlatParams {
		offsets, size, align := tupleLayout(ts)
		base, err := c.alloc(size, align)
		if err != nil {
			return nil, err
		}
		for i, t := range ts {
			if err := c.store(t, vs[i], base+offsets[i], sub(path, strconv.Itoa(i))); err != nil {
				return nil, err
			}
		}
		return []uint64{uint64(base)}, nil
	}
	var out []uint64
	for i, t := range ts {
		var err error
		out, err = c.lowerFlat(out, t, vs[i], sub(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// storeValues writes vs as a record at ptr.
func (c *codec) storeValues(ts []value.Type, vs []value.Value, ptr uint32, path []string) error {
	offsets, _, align := tupleLayout(ts)
	if ptr%align != 0 {
		return c.fail(errors.KindInvalidData, path, "unaligned return pointer %d", ptr)
	}
	for i, t := range ts {
		if err := c.store(t, vs[i], ptr+offsets[i], sub(path, strconv.Itoa(i))); err != nil {
			return err
		}
	}
	return nil
}

func sub(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func (c *codec) memSize() uint64 {
	if c.mem == nil {
		return 0
	}
	return uint64(c.mem.Size())
}
