package host

import (
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/value"
)

func TestFlatten(t *testing.T) {
	i32, i64, f32, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64
	tests := []struct {
		typ  value.Type
		want []api.ValueType
	}{
		{value.BoolType, []api.ValueType{i32}},
		{value.U8Type, []api.ValueType{i32}},
		{value.S16Type, []api.ValueType{i32}},
		{value.U32Type, []api.ValueType{i32}},
		{value.U64Type, []api.ValueType{i64}},
		{value.S64Type, []api.ValueType{i64}},
		{value.F32Type, []api.ValueType{f32}},
		{value.F64Type, []api.ValueType{f64}},
		{value.CharType, []api.ValueType{i32}},
		{value.ErrorContextType, []api.ValueType{i32}},
		{value.StringType, []api.ValueType{i32, i32}},
		{value.ListOf(value.U64Type), []api.ValueType{i32, i32}},
		{value.OptionOf(value.U32Type), []api.ValueType{i32, i32}},
		{value.OptionOf(value.F64Type), []api.ValueType{i32, f64}},
		{value.OptionOf(value.StringType), []api.ValueType{i32, i32, i32}},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			got := flatten(tt.typ)
			if !valueTypesEqual(got, tt.want) {
				t.Errorf("flatten(%s) = %s, want %s", tt.typ, valueTypesString(got), valueTypesString(tt.want))
			}
		})
	}
}

func TestLiftLowerSignature(t *testing.T) {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64
	many := make([]value.Type, 17)
	for i := range many {
		many[i] = value.U8Type
	}

	tests := []struct {
		name  string
		ty    FuncType
		lift  coreSignature
		lower coreSignature
	}{
		{
			name:  "scalar",
			ty:    FuncType{Params: []value.Type{value.S32Type, value.S32Type}, Results: []value.Type{value.S32Type}},
			lift:  coreSignature{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
			lower: coreSignature{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
		},
		{
			name:  "no results",
			ty:    FuncType{Params: []value.Type{value.StringType}},
			lift:  coreSignature{Params: []api.ValueType{i32, i32}},
			lower: coreSignature{Params: []api.ValueType{i32, i32}},
		},
		{
			name:  "string result",
			ty:    FuncType{Params: []value.Type{value.U64Type}, Results: []value.Type{value.StringType}},
			lift:  coreSignature{Params: []api.ValueType{i64}, Results: []api.ValueType{i32}},
			lower: coreSignature{Params: []api.ValueType{i64, i32}},
		},
		{
			name:  "spilled params",
			ty:    FuncType{Params: many, Results: []value.Type{value.U32Type}},
			lift:  coreSignature{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
			lower: coreSignature{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
		},
		{
			name:  "spilled params and results",
			ty:    FuncType{Params: many, Results: []value.Type{value.OptionOf(value.U8Type)}},
			lift:  coreSignature{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}},
			lower: coreSignature{Params: []api.ValueType{i32, i32}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := liftSignature(tt.ty); !got.equal(tt.lift) {
				t.Errorf("liftSignature = %s, want %s", got, tt.lift)
			}
			if got := lowerSignature(tt.ty); !got.equal(tt.lower) {
				t.Errorf("lowerSignature = %s, want %s", got, tt.lower)
			}
		})
	}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		typ           value.Type
		size, align   uint32
		payloadOffset uint32
	}{
		{typ: value.BoolType, size: 1, align: 1},
		{typ: value.U16Type, size: 2, align: 2},
		{typ: value.U32Type, size: 4, align: 4},
		{typ: value.F64Type, size: 8, align: 8},
		{typ: value.CharType, size: 4, align: 4},
		{typ: value.StringType, size: 8, align: 4},
		{typ: value.ListOf(value.U64Type), size: 8, align: 4},
		{typ: value.OptionOf(value.U8Type), size: 2, align: 1, payloadOffset: 1},
		{typ: value.OptionOf(value.U32Type), size: 8, align: 4, payloadOffset: 4},
		{typ: value.OptionOf(value.U64Type), size: 16, align: 8, payloadOffset: 8},
		{typ: value.OptionOf(value.StringType), size: 12, align: 4, payloadOffset: 4},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := sizeOf(tt.typ); got != tt.size {
				t.Errorf("sizeOf = %d, want %d", got, tt.size)
			}
			if got := alignOf(tt.typ); got != tt.align {
				t.Errorf("alignOf = %d, want %d", got, tt.align)
			}
			if tt.typ.Kind() == value.KindOption {
				if got := payloadOffset(tt.typ); got != tt.payloadOffset {
					t.Errorf("payloadOffset = %d, want %d", got, tt.payloadOffset)
				}
			}
		})
	}
}

func TestTupleLayout(t *testing.T) {
	offsets, size, align := tupleLayout([]value.Type{value.U8Type, value.U64Type, value.U16Type, value.StringType})
	want := []uint32{0, 8, 16, 20}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offset[%d] = %d, want %d", i, offsets[i], want[i])
		}
	}
	if size != 32 || align != 8 {
		t.Errorf("size, align = %d, %d; want 32, 8", size, align)
	}

	_, size, align = tupleLayout(nil)
	if size != 0 || align != 1 {
		t.Errorf("empty tuple size, align = %d, %d", size, align)
	}
}

func TestErrorTable(t *testing.T) {
	var tab errorTable
	if _, ok := tab.lookup(0); ok {
		t.Error("handle 0 must not resolve")
	}
	h1 := tab.insert(errTest("a"))
	h2 := tab.insert(errTest("b"))
	if h1 == 0 || h2 == h1 {
		t.Fatalf("handles %d, %d", h1, h2)
	}
	if err, ok := tab.lookup(h2); !ok || err.Error() != "b" {
		t.Errorf("lookup(%d) = %v, %v", h2, err, ok)
	}
	if _, ok := tab.lookup(99); ok {
		t.Error("unknown handle resolved")
	}
	if tab.len() != 2 {
		t.Errorf("len = %d", tab.len())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
