package marshal

import (
	"strconv"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

func mismatch(goType string, want value.Type, got value.Value) error {
	return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		GoType(goType).
		WitType(want.String()).
		Detail("got %s", value.Describe(got)).
		Build()
}

// DecodeBool extracts a bool from a bool-tagged value.
func DecodeBool(v value.Value) (bool, error) {
	x, ok := v.(value.Bool)
	if !ok {
		return false, mismatch("bool", value.BoolType, v)
	}
	return bool(x), nil
}

func DecodeU8(v value.Value) (uint8, error) {
	x, ok := v.(value.U8)
	if !ok {
		return 0, mismatch("uint8", value.U8Type, v)
	}
	return uint8(x), nil
}

func DecodeU16(v value.Value) (uint16, error) {
	x, ok := v.(value.U16)
	if !ok {
		return 0, mismatch("uint16", value.U16Type, v)
	}
	return uint16(x), nil
}

func DecodeU32(v value.Value) (uint32, error) {
	x, ok := v.(value.U32)
	if !ok {
		return 0, mismatch("uint32", value.U32Type, v)
	}
	return uint32(x), nil
}

func DecodeU64(v value.Value) (uint64, error) {
	x, ok := v.(value.U64)
	if !ok {
		return 0, mismatch("uint64", value.U64Type, v)
	}
	return uint64(x), nil
}

func DecodeS8(v value.Value) (int8, error) {
	x, ok := v.(value.S8)
	if !ok {
		return 0, mismatch("int8", value.S8Type, v)
	}
	return int8(x), nil
}

func DecodeS16(v value.Value) (int16, error) {
	x, ok := v.(value.S16)
	if !ok {
		return 0, mismatch("int16", value.S16Type, v)
	}
	return int16(x), nil
}

func DecodeS32(v value.Value) (int32, error) {
	x, ok := v.(value.S32)
	if !ok {
		return 0, mismatch("int32", value.S32Type, v)
	}
	return int32(x), nil
}

func DecodeS64(v value.Value) (int64, error) {
	x, ok := v.(value.S64)
	if !ok {
		return 0, mismatch("int64", value.S64Type, v)
	}
	return int64(x), nil
}

func DecodeF32(v value.Value) (float32, error) {
	x, ok := v.(value.F32)
	if !ok {
		return 0, mismatch("float32", value.F32Type, v)
	}
	return float32(x), nil
}

func DecodeF64(v value.Value) (float64, error) {
	x, ok := v.(value.F64)
	if !ok {
		return 0, mismatch("float64", value.F64Type, v)
	}
	return float64(x), nil
}

func DecodeChar(v value.Value) (rune, error) {
	x, ok := v.(value.Char)
	if !ok {
		return 0, mismatch("rune", value.CharType, v)
	}
	return rune(x), nil
}

func DecodeString(v value.Value) (string, error) {
	x, ok := v.(value.String)
	if !ok {
		return "", mismatch("string", value.StringType, v)
	}
	return string(x), nil
}

// DecodeErrorContext extracts the host error carried by an error-context
// value. The first result is the carried error and may be nil.
func DecodeErrorContext(v value.Value) (error, error) {
	x, ok := v.(value.ErrorContext)
	if !ok {
		return nil, mismatch("error", value.ErrorContextType, v)
	}
	return x.Err, nil
}

// DecodeList decodes every element of a list value with elem. Element
// failures carry the element index in their path.
func DecodeList[T any](v value.Value, elem func(value.Value) (T, error)) ([]T, error) {
	l, ok := v.(value.List)
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			WitType("list").
			Detail("got %s", value.Describe(v)).
			Build()
	}
	out := make([]T, l.Len())
	for i, it := range l.Items() {
		x, err := elem(it)
		if err != nil {
			return nil, withPath(err, "["+strconv.Itoa(i)+"]")
		}
		out[i] = x
	}
	return out, nil
}

// DecodeOption decodes an option value. None decodes to nil.
func DecodeOption[T any](v value.Value, elem func(value.Value) (T, error)) (*T, error) {
	o, ok := v.(value.Option)
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			WitType("option").
			Detail("got %s", value.Describe(v)).
			Build()
	}
	inner, some := o.Get()
	if !some {
		return nil, nil
	}
	x, err := elem(inner)
	if err != nil {
		return nil, withPath(err, "some")
	}
	return &x, nil
}

func withPath(err error, prefix ...string) error {
	if e, ok := err.(*errors.Error); ok {
		return e.WithPath(prefix...)
	}
	return err
}

// ParamError attaches the interface, function and parameter names to a
// decode failure inside an import trampoline.
func ParamError(iface, fn, param string, err error) error {
	return withPath(err, iface, fn, param)
}

// ResultError attaches the interface and function names to a failure to
// decode a function result.
func ResultError(iface, fn string, err error) error {
	return withPath(err, iface, fn, "result")
}
