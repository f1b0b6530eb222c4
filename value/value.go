package value

import (
	"fmt"
)

// Value is a dynamically tagged component value. Host functions and typed
// function handles exchange slices of Value; the tag of each is its Type.
type Value interface {
	Type() Type
	isValue()
}

type (
	Bool   bool
	U8     uint8
	U16    uint16
	U32    uint32
	U64    uint64
	S8     int8
	S16    int16
	S32    int32
	S64    int64
	F32    float32
	F64    float64
	Char   rune
	String string
)

func (Bool) Type() Type { return BoolType }
func (U8) Type() Type { return U8Type }
func (U16) Type() Type { return U16Type }
func (U32) Type() Type { return U32Type }
func (U64) Type() Type { return U64Type }
func (S8) Type() Type { return S8Type }
func (S16) Type() Type { return S16Type }
func (S32) Type() Type { return S32Type }
func (S64) Type() Type { return S64Type }
func (F32) Type() Type { return F32Type }
func (F64) Type() Type { return F64Type }
func (Char) Type() Type { return CharType }
func (String) Type() Type { return StringType }

func (Bool) isValue() {}
func (U8) isValue() {}
func (U16) isValue() {}
func (U32) isValue() {}
func (U64) isValue() {}
func (S8) isValue() {}
func (S16) isValue() {}
func (S32) isValue() {}
func (S64) isValue() {}
func (F32) isValue() {}
func (F64) isValue() {}
func (Char) isValue() {}
func (String) isValue() {}

// ErrorContext carries a host error across the component boundary.
type ErrorContext struct {
	Err error
}

func (ErrorContext) Type() Type { return ErrorContextType }
func (ErrorContext) isValue() {}

// List is a homogeneous sequence of values.
type List struct {
	elem  Type
	items []Value
}

// NewList builds a list, checking that every item has type elem.
func NewList(elem Type, items ...Value) (List, error) {
	for i, it := range items {
		if it == nil || !Equal(it.Type(), elem) {
			return List{}, fmt.Errorf("list<%s> item %d: %s", elem, i, describe(it))
		}
	}
	return List{elem: elem, items: items}, nil
}

// MakeList builds a list without checking item types. Callers must only
// pass items of type elem.
func MakeList(elem Type, items []Value) List {
	return List{elem: elem, items: items}
}

func (l List) Type() Type { return ListOf(l.elem) }
func (List) isValue() {}
func (l List) Elem() Type { return l.elem }
func (l List) Len() int { return len(l.items) }
func (l List) Index(i int) Value { return l.items[i] }

// Items returns the list contents. The slice must not be modified.
func (l List) Items() []Value { return l.items }

// Option is an optional value.
type Option struct {
	elem Type
	val  Value
}

// Some wraps v, checking that it has type elem.
func Some(elem Type, v Value) (Option, error) {
	if v == nil || !Equal(v.Type(), elem) {
		return Option{}, fmt.Errorf("option<%s>: %s", elem, describe(v))
	}
	return Option{elem: elem, val: v}, nil
}

// MakeSome wraps v without checking its type.
func MakeSome(elem Type, v Value) Option {
	return Option{elem: elem, val: v}
}

// None returns the empty option of type elem.
func None(elem Type) Option {
	return Option{elem: elem}
}

func (o Option) Type() Type { return OptionOf(o.elem) }
func (Option) isValue() {}
func (o Option) Elem() Type { return o.elem }
func (o Option) IsSome() bool { return o.val != nil }

// Get returns the wrapped value and whether it is present.
func (o Option) Get() (Value, bool) { return o.val, o.val != nil }

// Zero returns the zero value of t. Lists are empty and options are none.
func Zero(t Type) Value {
	switch t.Kind() {
	case KindBool:
		return Bool(false)
	case KindU8:
		return U8(0)
	case KindU16:
		return U16(0)
	case KindU32:
		return U32(0)
	case KindU64:
		return U64(0)
	case KindS8:
		return S8(0)
	case KindS16:
		return S16(0)
	case KindS32:
		return S32(0)
	case KindS64:
		return S64(0)
	case KindF32:
		return F32(0)
	case KindF64:
		return F64(0)
	case KindChar:
		return Char(0)
	case KindString:
		return String("")
	case KindErrorContext:
		return ErrorContext{}
	case KindList:
		return MakeList(Elem(t), nil)
	case KindOption:
		return None(Elem(t))
	}
	return nil
}

// Check reports an error unless v has type t.
func Check(v Value, t Type) error {
	if v == nil || !Equal(v.Type(), t) {
		return fmt.Errorf("expected %s, got %s", t, describe(v))
	}
	return nil
}

func describe(v Value) string {
	if v == nil {
		return "nil"
	}
	return v.Type().String() + " value"
}

// Describe names the tag of v for diagnostics.
func Describe(v Value) string { return describe(v) }
