package value

import "strings"

// Kind identifies a component value type
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindU8
	KindU16
	KindU32
	KindU64
	KindS8
	KindS16
	KindS32
	KindS64
	KindF32
	KindF64
	KindChar
	KindString
	KindErrorContext
	KindList
	KindOption
)

var kindNames = [...]string{
	KindBool:         "bool",
	KindU8:           "u8",
	KindU16:          "u16",
	KindU32:          "u32",
	KindU64:          "u64",
	KindS8:           "s8",
	KindS16:          "s16",
	KindS32:          "s32",
	KindS64:          "s64",
	KindF32:          "f32",
	KindF64:          "f64",
	KindChar:         "char",
	KindString:       "string",
	KindErrorContext: "error-context",
	KindList:         "list",
	KindOption:       "option",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "invalid"
}

// Type is the runtime tag of a Value. The set of implementations is closed:
// the primitive singletons below, ListOf and OptionOf.
type Type interface {
	Kind() Kind
	String() string
	isType()
}

type primitive Kind

func (p primitive) Kind() Kind { return Kind(p) }
func (p primitive) String() string { return Kind(p).String() }
func (primitive) isType() {}

var (
	BoolType         Type = primitive(KindBool)
	U8Type           Type = primitive(KindU8)
	U16Type          Type = primitive(KindU16)
	U32Type          Type = primitive(KindU32)
	U64Type          Type = primitive(KindU64)
	S8Type           Type = primitive(KindS8)
	S16Type          Type = primitive(KindS16)
	S32Type          Type = primitive(KindS32)
	S64Type          Type = primitive(KindS64)
	F32Type          Type = primitive(KindF32)
	F64Type          Type = primitive(KindF64)
	CharType         Type = primitive(KindChar)
	StringType       Type = primitive(KindString)
	ErrorContextType Type = primitive(KindErrorContext)
)

type listType struct{ elem Type }

func (listType) Kind() Kind { return KindList }
func (t listType) String() string { return "list<" + t.elem.String() + ">" }
func (listType) isType() {}

type optionType struct{ elem Type }

func (optionType) Kind() Kind { return KindOption }
func (t optionType) String() string { return "option<" + t.elem.String() + ">" }
func (optionType) isType() {}

// ListOf returns the type of lists with elements of type elem.
func ListOf(elem Type) Type { return listType{elem: elem} }

// OptionOf returns the type of optional values of type elem.
func OptionOf(elem Type) Type { return optionType{elem: elem} }

// Elem returns the element type of a list or option type, nil otherwise.
func Elem(t Type) Type {
	switch t := t.(type) {
	case listType:
		return t.elem
	case optionType:
		return t.elem
	}
	return nil
}

// Equal reports whether a and b describe the same type.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case KindList, KindOption:
		return Equal(Elem(a), Elem(b))
	}
	return true
}

// IsPrimitive reports whether t is one of the scalar or string types.
func IsPrimitive(t Type) bool {
	_, ok := t.(primitive)
	return ok
}

// TypeList renders a parameter list like "(u32, string)".
func TypeList(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
