package witmodel

import "fmt"

// Type is a WIT type reference. The set of implementations is closed:
// Primitive, List, Option and Named.
type Type interface {
	String() string
	isType()
}

// Primitive is a built-in scalar or string type.
type Primitive uint8

const (
	Bool Primitive = iota + 1
	U8
	U16
	U32
	U64
	S8
	S16
	S32
	S64
	F32
	F64
	Char
	String
	ErrorContext
)

var primitiveNames = [...]string{
	Bool:         "bool",
	U8:           "u8",
	U16:          "u16",
	U32:          "u32",
	U64:          "u64",
	S8:           "s8",
	S16:          "s16",
	S32:          "s32",
	S64:          "s64",
	F32:          "f32",
	F64:          "f64",
	Char:         "char",
	String:       "string",
	ErrorContext: "error-context",
}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) && primitiveNames[p] != "" {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

func (Primitive) isType() {}

// List is an anonymous list<T>.
type List struct {
	Elem Type
}

func (l List) String() string { return "list<" + l.Elem.String() + ">" }
func (List) isType() {}

// Option is an anonymous option<T>.
type Option struct {
	Elem Type
}

func (o Option) String() string { return "option<" + o.Elem.String() + ">" }
func (Option) isType() {}

// TypeID indexes Model.TypeDefs.
type TypeID int

// Named refers to a type definition by id. Name is informational.
type Named struct {
	ID   TypeID
	Name string
}

func (n Named) String() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("type#%d", int(n.ID))
}

func (Named) isType() {}

// TypeDefKind classifies a type definition.
type TypeDefKind uint8

const (
	KindAlias TypeDefKind = iota + 1
	KindList
	KindOption
	KindRecord
	KindVariant
	KindEnum
	KindFlags
	KindResource
	KindHandle
	KindTuple
	KindResult
	KindFuture
	KindStream
)

var typeDefKindNames = [...]string{
	KindAlias:    "alias",
	KindList:     "list",
	KindOption:   "option",
	KindRecord:   "record",
	KindVariant:  "variant",
	KindEnum:     "enum",
	KindFlags:    "flags",
	KindResource: "resource",
	KindHandle:   "handle",
	KindTuple:    "tuple",
	KindResult:   "result",
	KindFuture:   "future",
	KindStream:   "stream",
}

func (k TypeDefKind) String() string {
	if int(k) < len(typeDefKindNames) && typeDefKindNames[k] != "" {
		return typeDefKindNames[k]
	}
	return "unknown"
}

// TypeDef is a type definition. Target is set for aliases, lists and
// options; the remaining kinds carry no structure because they are never
// mapped.
type TypeDef struct {
	ID     TypeID
	Name   string // empty for anonymous definitions
	Kind   TypeDefKind
	Target Type
	Owner  *Interface // nil for world-owned or anonymous definitions
}

// Describe names the definition for diagnostics, e.g. "record point".
func (d *TypeDef) Describe() string {
	if d.Name == "" {
		return d.Kind.String()
	}
	return d.Kind.String() + " " + d.Name
}
