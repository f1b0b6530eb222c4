package witmodel

import (
	"fmt"
	"testing"

	"github.com/coreos/go-semver/semver"
)

func TestQualifiedName(t *testing.T) {
	pkg := &Package{Name: PackageName{Namespace: "example", Name: "calculator", Version: semver.New("0.1.0")}}
	iface := &Interface{Name: "math", Package: pkg}
	world := &World{Name: "calculator", Package: pkg}

	if got := iface.QualifiedName(); got != "example:calculator/math@0.1.0" {
		t.Errorf("interface = %q", got)
	}
	if got := world.QualifiedName(); got != "example:calculator/calculator" {
		t.Errorf("world = %q", got)
	}
	if got := pkg.Name.String(); got != "example:calculator@0.1.0" {
		t.Errorf("package = %q", got)
	}

	unversioned := PackageName{Namespace: "local", Name: "demo"}
	if got := unversioned.String(); got != "local:demo" {
		t.Errorf("unversioned = %q", got)
	}

	inline := &Interface{Name: "host"}
	if got := inline.QualifiedName(); got != "host" {
		t.Errorf("inline = %q", got)
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{U32, "u32"},
		{ErrorContext, "error-context"},
		{List{Elem: String}, "list<string>"},
		{Option{Elem: List{Elem: U8}}, "option<list<u8>>"},
		{Named{ID: 3, Name: "point"}, "point"},
		{Named{ID: 3}, "type#3"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	m := &Model{}
	base := m.AddTypeDef(&TypeDef{Name: "count", Kind: KindAlias, Target: U32})
	outer := m.AddTypeDef(&TypeDef{Name: "total", Kind: KindAlias, Target: Named{ID: base}})
	rec := m.AddTypeDef(&TypeDef{Name: "point", Kind: KindRecord})

	got, def := m.Resolve(Named{ID: outer})
	if got != U32 {
		t.Errorf("Resolve(total) = %v, want u32", got)
	}
	if def == nil || def.Name != "count" {
		t.Errorf("last def = %+v", def)
	}

	got, def = m.Resolve(Named{ID: rec})
	if _, ok := got.(Named); !ok || def.Kind != KindRecord {
		t.Errorf("Resolve(point) = %v, %+v", got, def)
	}

	got, def = m.Resolve(S8)
	if got != S8 || def != nil {
		t.Errorf("Resolve(s8) = %v, %+v", got, def)
	}

	if m.TypeDef(99) != nil || m.TypeDef(-1) != nil {
		t.Error("out of range TypeDef should be nil")
	}
}

func TestResolveCycle(t *testing.T) {
	m := &Model{}
	a := m.AddTypeDef(&TypeDef{Name: "a", Kind: KindAlias})
	b := m.AddTypeDef(&TypeDef{Name: "b", Kind: KindAlias, Target: Named{ID: a}})
	m.TypeDefs[a].Target = Named{ID: b}

	// must terminate
	if _, def := m.Resolve(Named{ID: a}); def == nil {
		t.Error("expected a definition")
	}
}

type recorder struct{ seen []string }

func (r *recorder) VisitInterface(key string, it *InterfaceItem) error {
	r.seen = append(r.seen, "interface:"+key)
	return nil
}

func (r *recorder) VisitFunction(key string, it *FunctionItem) error {
	r.seen = append(r.seen, "function:"+key)
	return nil
}

func (r *recorder) VisitType(key string, it *TypeItem) error {
	r.seen = append(r.seen, "type:"+key)
	if key == "stop" {
		return fmt.Errorf("stop")
	}
	return nil
}

func TestWalk(t *testing.T) {
	entries := []WorldEntry{
		{Key: "b", Item: &InterfaceItem{Interface: &Interface{Name: "b"}}},
		{Key: "a", Item: &FunctionItem{Function: &Function{Name: "a"}}},
		{Key: "t", Item: &TypeItem{Type: 0}},
		{Key: "stop", Item: &TypeItem{Type: 1}},
		{Key: "never", Item: &FunctionItem{Function: &Function{Name: "never"}}},
	}

	r := &recorder{}
	if err := Walk(entries, r); err == nil {
		t.Error("expected error from visitor")
	}
	want := []string{"interface:b", "function:a", "type:t", "type:stop"}
	if fmt.Sprint(r.seen) != fmt.Sprint(want) {
		t.Errorf("visited %v, want %v", r.seen, want)
	}
}

func TestWorldLookup(t *testing.T) {
	fn := &FunctionItem{Function: &Function{Name: "run"}}
	w := &World{
		Name:    "app",
		Imports: []WorldEntry{{Key: "run", Item: fn}},
	}
	if it, ok := w.Import("run"); !ok || it != fn {
		t.Errorf("Import(run) = %v, %v", it, ok)
	}
	if _, ok := w.Export("run"); ok {
		t.Error("Export(run) should be absent")
	}
}

func TestInterfaceFunction(t *testing.T) {
	iface := &Interface{Functions: []*Function{{Name: "add"}, {Name: "multiply"}}}
	if f := iface.Function("multiply"); f == nil || f.Name != "multiply" {
		t.Errorf("Function(multiply) = %v", f)
	}
	if iface.Function("divide") != nil {
		t.Error("Function(divide) should be nil")
	}
}
