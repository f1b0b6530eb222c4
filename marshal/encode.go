package marshal

import (
	"github.com/wippyai/witbind/value"
)

func EncodeBool(x bool) value.Value { return value.Bool(x) }
func EncodeU8(x uint8) value.Value { return value.U8(x) }
func EncodeU16(x uint16) value.Value { return value.U16(x) }
func EncodeU32(x uint32) value.Value { return value.U32(x) }
func EncodeU64(x uint64) value.Value { return value.U64(x) }
func EncodeS8(x int8) value.Value { return value.S8(x) }
func EncodeS16(x int16) value.Value { return value.S16(x) }
func EncodeS32(x int32) value.Value { return value.S32(x) }
func EncodeS64(x int64) value.Value { return value.S64(x) }
func EncodeF32(x float32) value.Value { return value.F32(x) }
func EncodeF64(x float64) value.Value { return value.F64(x) }
func EncodeChar(x rune) value.Value { return value.Char(x) }
func EncodeString(x string) value.Value { return value.String(x) }

// EncodeErrorContext wraps a host error for the component boundary.
func EncodeErrorContext(err error) value.Value {
	return value.ErrorContext{Err: err}
}

// EncodeList encodes xs element by element into a list of type elem.
func EncodeList[T any](elem value.Type, xs []T, enc func(T) value.Value) value.Value {
	items := make([]value.Value, len(xs))
	for i, x := range xs {
		items[i] = enc(x)
	}
	return value.MakeList(elem, items)
}

// EncodeOption encodes a nil pointer as none and anything else as some.
func EncodeOption[T any](elem value.Type, p *T, enc func(T) value.Value) value.Value {
	if p == nil {
		return value.None(elem)
	}
	return value.MakeSome(elem, enc(*p))
}
