package value

import (
	"errors"
	"testing"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{BoolType, "bool"},
		{S64Type, "s64"},
		{ErrorContextType, "error-context"},
		{ListOf(U8Type), "list<u8>"},
		{OptionOf(ListOf(StringType)), "option<list<string>>"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"same primitive", U32Type, U32Type, true},
		{"different primitive", U32Type, S32Type, false},
		{"same list", ListOf(U8Type), ListOf(U8Type), true},
		{"list elem differs", ListOf(U8Type), ListOf(S8Type), false},
		{"list vs option", ListOf(U8Type), OptionOf(U8Type), false},
		{"nested", OptionOf(ListOf(CharType)), OptionOf(ListOf(CharType)), true},
		{"nil vs type", nil, U8Type, false},
		{"nil vs nil", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewList(t *testing.T) {
	l, err := NewList(U16Type, U16(1), U16(2), U16(3))
	if err != nil {
		t.Fatalf("NewList: %v", err)
	}
	if l.Len() != 3 || l.Index(2) != U16(3) {
		t.Errorf("unexpected list %v", l.Items())
	}
	if !Equal(l.Type(), ListOf(U16Type)) {
		t.Errorf("Type() = %s", l.Type())
	}

	if _, err := NewList(U16Type, U16(1), U32(2)); err == nil {
		t.Error("mixed element tags should fail")
	}
	if _, err := NewList(U16Type, nil); err == nil {
		t.Error("nil element should fail")
	}
}

func TestOption(t *testing.T) {
	some, err := Some(StringType, String("x"))
	if err != nil {
		t.Fatalf("Some: %v", err)
	}
	if v, ok := some.Get(); !ok || v != String("x") {
		t.Errorf("Get() = %v, %v", v, ok)
	}
	if _, err := Some(StringType, Char('x')); err == nil {
		t.Error("Some with wrong tag should fail")
	}

	none := None(StringType)
	if none.IsSome() {
		t.Error("None reports a value")
	}
	if !Equal(none.Type(), OptionOf(StringType)) {
		t.Errorf("Type() = %s", none.Type())
	}
}

func TestZero(t *testing.T) {
	types := []Type{
		BoolType, U8Type, U16Type, U32Type, U64Type,
		S8Type, S16Type, S32Type, S64Type, F32Type, F64Type,
		CharType, StringType, ErrorContextType,
		ListOf(U8Type), OptionOf(S32Type),
	}
	for _, typ := range types {
		t.Run(typ.String(), func(t *testing.T) {
			z := Zero(typ)
			if z == nil {
				t.Fatal("Zero returned nil")
			}
			if err := Check(z, typ); err != nil {
				t.Errorf("Check(Zero) = %v", err)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	if err := Check(S32(1), S32Type); err != nil {
		t.Errorf("Check matching tag: %v", err)
	}
	if err := Check(U32(1), S32Type); err == nil {
		t.Error("Check should reject u32 for s32")
	}
	if err := Check(nil, S32Type); err == nil {
		t.Error("Check should reject nil")
	}
	ec := ErrorContext{Err: errors.New("boom")}
	if err := Check(ec, ErrorContextType); err != nil {
		t.Errorf("Check error-context: %v", err)
	}
}

func TestTypeList(t *testing.T) {
	got := TypeList([]Type{U32Type, ListOf(StringType)})
	if got != "(u32, list<string>)" {
		t.Errorf("TypeList = %q", got)
	}
	if TypeList(nil) != "()" {
		t.Errorf("TypeList(nil) = %q", TypeList(nil))
	}
}
