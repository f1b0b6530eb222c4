package typemap

import (
	"strconv"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
	"github.com/wippyai/witbind/witmodel"
)

type shape uint8

const (
	shapeScalar shape = iota
	shapeList
	shapeOption
)

// Mapping is the Go rendering of one WIT type: the native Go type, the
// dynamic value tag and the marshal expressions generated code uses to
// convert between them.
type Mapping struct {
	WIT    witmodel.Type
	GoType string
	Tag    value.Type

	shape  shape
	suffix string // marshal/value identifier suffix for scalars, e.g. "U32"
	elem   *Mapping
}

// Elem returns the element mapping of a list or option, nil otherwise.
func (m Mapping) Elem() *Mapping { return m.elem }

// IsScalar reports whether the mapping is a primitive with direct marshal
// helpers.
func (m Mapping) IsScalar() bool { return m.shape == shapeScalar }

// DecodeFunc renders an expression of type func(value.Value) (GoType, error).
func (m Mapping) DecodeFunc() string {
	if m.shape == shapeScalar {
		return "marshal.Decode" + m.suffix
	}
	return "func(v value.Value) (" + m.GoType + ", error) { return " + m.DecodeExpr("v") + " }"
}

// DecodeExpr renders a call decoding arg, of type (GoType, error).
func (m Mapping) DecodeExpr(arg string) string {
	switch m.shape {
	case shapeList:
		return "marshal.DecodeList(" + arg + ", " + m.elem.DecodeFunc() + ")"
	case shapeOption:
		return "marshal.DecodeOption(" + arg + ", " + m.elem.DecodeFunc() + ")"
	}
	return m.DecodeFunc() + "(" + arg + ")"
}

// EncodeFunc renders an expression of type func(GoType) value.Value.
func (m Mapping) EncodeFunc() string {
	if m.shape == shapeScalar {
		return "marshal.Encode" + m.suffix
	}
	return "func(x " + m.GoType + ") value.Value { return " + m.EncodeExpr("x") + " }"
}

// EncodeExpr renders a call encoding arg, of type value.Value.
func (m Mapping) EncodeExpr(arg string) string {
	switch m.shape {
	case shapeList:
		return "marshal.EncodeList(" + m.elem.TagExpr() + ", " + arg + ", " + m.elem.EncodeFunc() + ")"
	case shapeOption:
		return "marshal.EncodeOption(" + m.elem.TagExpr() + ", " + arg + ", " + m.elem.EncodeFunc() + ")"
	}
	return m.EncodeFunc() + "(" + arg + ")"
}

// TagExpr renders an expression of type value.Type.
func (m Mapping) TagExpr() string {
	switch m.shape {
	case shapeList:
		return "value.ListOf(" + m.elem.TagExpr() + ")"
	case shapeOption:
		return "value.OptionOf(" + m.elem.TagExpr() + ")"
	}
	return "value." + m.suffix + "Type"
}

type scalar struct {
	goType string
	suffix string
	tag    value.Type
}

var scalars = map[witmodel.Primitive]scalar{
	witmodel.Bool:         {"bool", "Bool", value.BoolType},
	witmodel.U8:           {"uint8", "U8", value.U8Type},
	witmodel.U16:          {"uint16", "U16", value.U16Type},
	witmodel.U32:          {"uint32", "U32", value.U32Type},
	witmodel.U64:          {"uint64", "U64", value.U64Type},
	witmodel.S8:           {"int8", "S8", value.S8Type},
	witmodel.S16:          {"int16", "S16", value.S16Type},
	witmodel.S32:          {"int32", "S32", value.S32Type},
	witmodel.S64:          {"int64", "S64", value.S64Type},
	witmodel.F32:          {"float32", "F32", value.F32Type},
	witmodel.F64:          {"float64", "F64", value.F64Type},
	witmodel.Char:         {"rune", "Char", value.CharType},
	witmodel.String:       {"string", "String", value.StringType},
	witmodel.ErrorContext: {"error", "ErrorContext", value.ErrorContextType},
}

// Map maps t without memoization. It is total over primitives, list<T>,
// option<T> and aliases of those, and fails with a map-phase unsupported
// error for every other type.
func Map(model *witmodel.Model, t witmodel.Type) (Mapping, error) {
	return (&Mapper{model: model}).mapType(t, 0)
}

// Mapper memoizes mappings for one generation run. It is not safe for
// concurrent use.
type Mapper struct {
	model *witmodel.Model
	cache map[string]Mapping
}

// New returns a Mapper over model.
func New(model *witmodel.Model) *Mapper {
	return &Mapper{model: model, cache: make(map[string]Mapping)}
}

// Map maps t, reusing earlier results for identical types.
func (m *Mapper) Map(t witmodel.Type) (Mapping, error) {
	if t == nil {
		return Mapping{}, errors.InvalidInput(errors.PhaseMap, "nil type")
	}
	key := typeKey(t)
	if cached, ok := m.cache[key]; ok {
		return cached, nil
	}
	mapping, err := m.mapType(t, 0)
	if err != nil {
		return Mapping{}, err
	}
	if m.cache != nil {
		m.cache[key] = mapping
	}
	return mapping, nil
}

// Len returns the number of memoized mappings.
func (m *Mapper) Len() int { return len(m.cache) }

const maxDepth = 64

func (m *Mapper) mapType(t witmodel.Type, depth int) (Mapping, error) {
	if depth > maxDepth {
		return Mapping{}, errors.New(errors.PhaseMap, errors.KindInvalidData).
			WitType(t.String()).
			Detail("type nesting exceeds %d levels", maxDepth).
			Build()
	}

	switch t := t.(type) {
	case witmodel.Primitive:
		s, ok := scalars[t]
		if !ok {
			return Mapping{}, errors.New(errors.PhaseMap, errors.KindUnsupported).
				WitType(t.String()).
				Detail("unknown primitive").
				Build()
		}
		return Mapping{WIT: t, GoType: s.goType, Tag: s.tag, shape: shapeScalar, suffix: s.suffix}, nil

	case witmodel.List:
		elem, err := m.mapType(t.Elem, depth+1)
		if err != nil {
			return Mapping{}, err
		}
		return Mapping{WIT: t, GoType: "[]" + elem.GoType, Tag: value.ListOf(elem.Tag), shape: shapeList, elem: &elem}, nil

	case witmodel.Option:
		elem, err := m.mapType(t.Elem, depth+1)
		if err != nil {
			return Mapping{}, err
		}
		return Mapping{WIT: t, GoType: "*" + elem.GoType, Tag: value.OptionOf(elem.Tag), shape: shapeOption, elem: &elem}, nil

	case witmodel.Named:
		return m.mapNamed(t, depth)

	case nil:
		return Mapping{}, errors.InvalidInput(errors.PhaseMap, "nil type")
	}

	return Mapping{}, errors.Unsupported(errors.PhaseMap, "unknown type "+t.String())
}

func (m *Mapper) mapNamed(n witmodel.Named, depth int) (Mapping, error) {
	if m.model == nil {
		return Mapping{}, errors.NotFound(errors.PhaseMap, "type", n.String())
	}
	def := m.model.TypeDef(n.ID)
	if def == nil {
		return Mapping{}, errors.NotFound(errors.PhaseMap, "type", n.String())
	}

	switch def.Kind {
	case witmodel.KindAlias:
		if def.Target == nil {
			return Mapping{}, errors.InvalidData(errors.PhaseMap, nil, "alias "+def.Name+" has no target")
		}
		return m.mapType(def.Target, depth+1)
	case witmodel.KindList:
		return m.mapType(witmodel.List{Elem: def.Target}, depth+1)
	case witmodel.KindOption:
		return m.mapType(witmodel.Option{Elem: def.Target}, depth+1)
	}

	return Mapping{}, errors.New(errors.PhaseMap, errors.KindUnsupported).
		WitType(def.Describe()).
		Detail("%s types have no Go mapping; supported are primitives, list<T> and option<T>", def.Kind).
		Build()
}

func typeKey(t witmodel.Type) string {
	switch t := t.(type) {
	case witmodel.Named:
		return "#" + strconv.Itoa(int(t.ID))
	case witmodel.List:
		return "list<" + typeKey(t.Elem) + ">"
	case witmodel.Option:
		return "option<" + typeKey(t.Elem) + ">"
	}
	return t.String()
}
