package typemap

import (
	stderrors "errors"
	"go/parser"
	"strings"
	"testing"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
	"github.com/wippyai/witbind/witmodel"
)

func TestMapPrimitives(t *testing.T) {
	tests := []struct {
		wit    witmodel.Primitive
		goType string
		tag    value.Type
		decode string
	}{
		{witmodel.Bool, "bool", value.BoolType, "marshal.DecodeBool(v)"},
		{witmodel.U8, "uint8", value.U8Type, "marshal.DecodeU8(v)"},
		{witmodel.U16, "uint16", value.U16Type, "marshal.DecodeU16(v)"},
		{witmodel.U32, "uint32", value.U32Type, "marshal.DecodeU32(v)"},
		{witmodel.U64, "uint64", value.U64Type, "marshal.DecodeU64(v)"},
		{witmodel.S8, "int8", value.S8Type, "marshal.DecodeS8(v)"},
		{witmodel.S16, "int16", value.S16Type, "marshal.DecodeS16(v)"},
		{witmodel.S32, "int32", value.S32Type, "marshal.DecodeS32(v)"},
		{witmodel.S64, "int64", value.S64Type, "marshal.DecodeS64(v)"},
		{witmodel.F32, "float32", value.F32Type, "marshal.DecodeF32(v)"},
		{witmodel.F64, "float64", value.F64Type, "marshal.DecodeF64(v)"},
		{witmodel.Char, "rune", value.CharType, "marshal.DecodeChar(v)"},
		{witmodel.String, "string", value.StringType, "marshal.DecodeString(v)"},
		{witmodel.ErrorContext, "error", value.ErrorContextType, "marshal.DecodeErrorContext(v)"},
	}

	for _, tt := range tests {
		t.Run(tt.wit.String(), func(t *testing.T) {
			m, err := Map(nil, tt.wit)
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			if m.GoType != tt.goType {
				t.Errorf("GoType = %q, want %q", m.GoType, tt.goType)
			}
			if !value.Equal(m.Tag, tt.tag) {
				t.Errorf("Tag = %s, want %s", m.Tag, tt.tag)
			}
			if got := m.DecodeExpr("v"); got != tt.decode {
				t.Errorf("DecodeExpr = %q, want %q", got, tt.decode)
			}
			if !m.IsScalar() {
				t.Error("IsScalar = false")
			}
		})
	}
}

func TestMapComposite(t *testing.T) {
	tests := []struct {
		name   string
		wit    witmodel.Type
		goType string
		tag    value.Type
		decode string
		encode string
		tagExp string
	}{
		{
			name:   "list",
			wit:    witmodel.List{Elem: witmodel.U32},
			goType: "[]uint32",
			tag:    value.ListOf(value.U32Type),
			decode: "marshal.DecodeList(r, marshal.DecodeU32)",
			encode: "marshal.EncodeList(value.U32Type, p, marshal.EncodeU32)",
			tagExp: "value.ListOf(value.U32Type)",
		},
		{
			name:   "option",
			wit:    witmodel.Option{Elem: witmodel.String},
			goType: "*string",
			tag:    value.OptionOf(value.StringType),
			decode: "marshal.DecodeOption(r, marshal.DecodeString)",
			encode: "marshal.EncodeOption(value.StringType, p, marshal.EncodeString)",
			tagExp: "value.OptionOf(value.StringType)",
		},
		{
			name:   "list of option",
			wit:    witmodel.List{Elem: witmodel.Option{Elem: witmodel.S64}},
			goType: "[]*int64",
			tag:    value.ListOf(value.OptionOf(value.S64Type)),
			decode: "marshal.DecodeList(r, func(v value.Value) (*int64, error) { return marshal.DecodeOption(v, marshal.DecodeS64) })",
			encode: "marshal.EncodeList(value.OptionOf(value.S64Type), p, func(x *int64) value.Value { return marshal.EncodeOption(value.S64Type, x, marshal.EncodeS64) })",
			tagExp: "value.ListOf(value.OptionOf(value.S64Type))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Map(nil, tt.wit)
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			if m.GoType != tt.goType {
				t.Errorf("GoType = %q, want %q", m.GoType, tt.goType)
			}
			if !value.Equal(m.Tag, tt.tag) {
				t.Errorf("Tag = %s, want %s", m.Tag, tt.tag)
			}
			if got := m.DecodeExpr("r"); got != tt.decode {
				t.Errorf("DecodeExpr = %q\nwant %q", got, tt.decode)
			}
			if got := m.EncodeExpr("p"); got != tt.encode {
				t.Errorf("EncodeExpr = %q\nwant %q", got, tt.encode)
			}
			if got := m.TagExpr(); got != tt.tagExp {
				t.Errorf("TagExpr = %q, want %q", got, tt.tagExp)
			}
			for _, expr := range []string{m.DecodeFunc(), m.EncodeFunc(), m.DecodeExpr("r"), m.EncodeExpr("p")} {
				if _, err := parser.ParseExpr(expr); err != nil {
					t.Errorf("expression %q does not parse: %v", expr, err)
				}
			}
		})
	}
}

func TestMapNamed(t *testing.T) {
	model := &witmodel.Model{}
	count := model.AddTypeDef(&witmodel.TypeDef{Name: "count", Kind: witmodel.KindAlias, Target: witmodel.U64})
	ids := model.AddTypeDef(&witmodel.TypeDef{Name: "ids", Kind: witmodel.KindList, Target: witmodel.Named{ID: count}})
	maybe := model.AddTypeDef(&witmodel.TypeDef{Name: "maybe", Kind: witmodel.KindOption, Target: witmodel.Char})

	tests := []struct {
		id     witmodel.TypeID
		goType string
	}{
		{count, "uint64"},
		{ids, "[]uint64"},
		{maybe, "*rune"},
	}
	for _, tt := range tests {
		m, err := Map(model, witmodel.Named{ID: tt.id})
		if err != nil {
			t.Errorf("Map(%d): %v", tt.id, err)
			continue
		}
		if m.GoType != tt.goType {
			t.Errorf("Map(%d).GoType = %q, want %q", tt.id, m.GoType, tt.goType)
		}
	}
}

func TestMapUnsupported(t *testing.T) {
	kinds := []witmodel.TypeDefKind{
		witmodel.KindRecord, witmodel.KindVariant, witmodel.KindEnum, witmodel.KindFlags,
		witmodel.KindResource, witmodel.KindHandle, witmodel.KindTuple, witmodel.KindResult,
		witmodel.KindFuture, witmodel.KindStream,
	}
	target := &errors.Error{Phase: errors.PhaseMap, Kind: errors.KindUnsupported}

	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			model := &witmodel.Model{}
			id := model.AddTypeDef(&witmodel.TypeDef{Name: "thing", Kind: k})

			for _, typ := range []witmodel.Type{
				witmodel.Named{ID: id},
				witmodel.List{Elem: witmodel.Named{ID: id}},
				witmodel.Option{Elem: witmodel.Named{ID: id}},
			} {
				_, err := Map(model, typ)
				if !stderrors.Is(err, target) {
					t.Fatalf("Map(%s) = %v, want unsupported", typ, err)
				}
				if !strings.Contains(err.Error(), k.String()+" thing") {
					t.Errorf("error %q does not name the type", err)
				}
			}
		})
	}
}

func TestMapNotFound(t *testing.T) {
	_, err := Map(&witmodel.Model{}, witmodel.Named{ID: 5})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMap, Kind: errors.KindNotFound}) {
		t.Errorf("err = %v", err)
	}
}

func TestMapperMemoizes(t *testing.T) {
	m := New(&witmodel.Model{})

	a, err := m.Map(witmodel.List{Elem: witmodel.U8})
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Map(witmodel.List{Elem: witmodel.U8})
	if err != nil {
		t.Fatal(err)
	}
	if a.GoType != b.GoType || m.Len() != 1 {
		t.Errorf("cache size = %d", m.Len())
	}

	if _, err := m.Map(witmodel.U8); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Errorf("cache size = %d, want 2", m.Len())
	}

	if _, err := m.Map(nil); err == nil {
		t.Error("Map(nil) should fail")
	}
}
