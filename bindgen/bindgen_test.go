package bindgen

import (
	"bytes"
	goerrors "errors"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

const calculatorWIT = `package example:calculator@0.1.0;

interface math {
    add: func(a: s32, b: s32) -> s32;
    multiply: func(a: s32, b: s32) -> s32;
}

interface console {
    print: func(line: string);
}

world calculator {
    import console;
    export math;
}
`

func newPackage(ns, name, version string) *witmodel.Package {
	p := &witmodel.Package{Name: witmodel.PackageName{Namespace: ns, Name: name}}
	if version != "" {
		p.Name.Version = semver.New(version)
	}
	return p
}

func newInterface(pkg *witmodel.Package, name string, fns ...*witmodel.Function) *witmodel.Interface {
	iface := &witmodel.Interface{Name: name, Package: pkg, Functions: fns}
	if pkg != nil {
		pkg.Interfaces = append(pkg.Interfaces, iface)
	}
	return iface
}

func fn(name string, result witmodel.Type, params ...witmodel.Param) *witmodel.Function {
	return &witmodel.Function{Name: name, Params: params, Result: result}
}

func param(name string, t witmodel.Type) witmodel.Param {
	return witmodel.Param{Name: name, Type: t}
}

func ifaceEntry(iface *witmodel.Interface) witmodel.WorldEntry {
	key := iface.QualifiedName()
	return witmodel.WorldEntry{Key: key, Item: &witmodel.InterfaceItem{Interface: iface}}
}

func funcEntry(f *witmodel.Function) witmodel.WorldEntry {
	return witmodel.WorldEntry{Key: f.Name, Item: &witmodel.FunctionItem{Function: f}}
}

func calculator() (*witmodel.Model, *witmodel.World) {
	pkg := newPackage("example", "calculator", "0.1.0")
	math := newInterface(pkg, "math",
		fn("add", witmodel.S32, param("a", witmodel.S32), param("b", witmodel.S32)),
		fn("multiply", witmodel.S32, param("a", witmodel.S32), param("b", witmodel.S32)),
	)
	console := newInterface(pkg, "console", fn("print", nil, param("line", witmodel.String)))
	world := &witmodel.World{
		Name:    "calculator",
		Package: pkg,
		Imports: []witmodel.WorldEntry{ifaceEntry(console)},
		Exports: []witmodel.WorldEntry{ifaceEntry(math)},
	}
	pkg.Worlds = append(pkg.Worlds, world)
	model := &witmodel.Model{
		Packages:   []*witmodel.Package{pkg},
		Worlds:     []*witmodel.World{world},
		Interfaces: []*witmodel.Interface{math, console},
	}
	return model, world
}

func isKind(err error, phase errors.Phase, kind errors.Kind) bool {
	return goerrors.Is(err, &errors.Error{Phase: phase, Kind: kind})
}

// parsed is the declaration surface of a generated file.
type parsed struct {
	pkg     string
	imports []string
	types   map[string]*ast.TypeSpec
	funcs   map[string]*ast.FuncDecl
}

func parse(t *testing.T, src []byte) *parsed {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), "bindings.go", src, parser.ParseComments)
	if err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, src)
	}
	p := &parsed{
		pkg:   f.Name.Name,
		types: map[string]*ast.TypeSpec{},
		funcs: map[string]*ast.FuncDecl{},
	}
	for _, imp := range f.Imports {
		path, _ := strconv.Unquote(imp.Path.Value)
		p.imports = append(p.imports, path)
	}
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					p.types[ts.Name.Name] = ts
				}
			}
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil {
				name = recvName(d.Recv.List[0].Type) + "." + name
			}
			p.funcs[name] = d
		}
	}
	return p
}

func recvName(expr ast.Expr) string {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch e := expr.(type) {
	case *ast.IndexExpr:
		return e.X.(*ast.Ident).Name
	case *ast.Ident:
		return e.Name
	}
	return ""
}

// exportedFields counts the exported fields of a struct type.
func (p *parsed) exportedFields(t *testing.T, name string) []string {
	t.Helper()
	ts, ok := p.types[name]
	if !ok {
		t.Fatalf("type %s not declared", name)
	}
	st, ok := ts.Type.(*ast.StructType)
	if !ok {
		t.Fatalf("%s is not a struct", name)
	}
	var out []string
	for _, f := range st.Fields.List {
		for _, n := range f.Names {
			if n.IsExported() {
				out = append(out, n.Name)
			}
		}
	}
	return out
}

func (p *parsed) methods(t *testing.T, name string) []string {
	t.Helper()
	ts, ok := p.types[name]
	if !ok {
		t.Fatalf("type %s not declared", name)
	}
	it, ok := ts.Type.(*ast.InterfaceType)
	if !ok {
		t.Fatalf("%s is not an interface", name)
	}
	var out []string
	for _, m := range it.Methods.List {
		out = append(out, m.Names[0].Name)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerate_Calculator(t *testing.T) {
	model, world := calculator()
	out, err := Generate(model, world, Options{
		Sources: []witmodel.SourceFile{{Name: "calculator.wit", Text: calculatorWIT}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.HasPrefix(out, []byte(Header+"\n")) {
		t.Errorf("missing header:\n%s", out)
	}

	typeCheck(t, out)
	p := parse(t, out)
	if p.pkg != "calculator" {
		t.Errorf("package = %q", p.pkg)
	}
	wantImports := []string{
		"context",
		"sync",
		"github.com/wippyai/witbind/errors",
		"github.com/wippyai/witbind/host",
		"github.com/wippyai/witbind/marshal",
		"github.com/wippyai/witbind/value",
	}
	if !equalStrings(p.imports, wantImports) {
		t.Errorf("imports = %v, want %v", p.imports, wantImports)
	}

	for _, name := range []string{"WITSource", "Console", "Math", "Imports", "Exports", "mathExports"} {
		if _, ok := p.types[name]; !ok {
			t.Errorf("type %s not declared", name)
		}
	}
	for _, name := range []string{
		"Sources", "Instantiate", "registerConsole", "newMathExports",
		"Exports.Store", "Exports.Instance", "Exports.Close",
		"mathExports.Add", "mathExports.Multiply",
	} {
		if _, ok := p.funcs[name]; !ok {
			t.Errorf("func %s not declared", name)
		}
	}

	if got := p.exportedFields(t, "Imports"); !equalStrings(got, []string{"Console"}) {
		t.Errorf("Imports fields = %v", got)
	}
	if got := p.exportedFields(t, "Exports"); !equalStrings(got, []string{"Math"}) {
		t.Errorf("Exports fields = %v", got)
	}
	if got := p.methods(t, "Math"); !equalStrings(got, []string{"Add", "Multiply"}) {
		t.Errorf("Math methods = %v", got)
	}

	src := string(out)
	for _, want := range []string{
		"Add(ctx context.Context, a int32, b int32) (int32, error)",
		"Print(ctx context.Context, line string) error",
		`host.MustParseInterfaceID("example:calculator/console@0.1.0")`,
		`host.MustParseInterfaceID("example:calculator/math@0.1.0")`,
		"{Name: \"calculator.wit\", Text: `" + calculatorWIT + "`}",
		"// World: example:calculator/calculator",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	model, world := calculator()
	opts := Options{Sources: []witmodel.SourceFile{{Name: "calculator.wit", Text: calculatorWIT}}}
	first, err := Generate(model, world, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Generate(model, world, opts)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("output differs between runs")
		}
	}
}

func TestGenerate_EmptyWorld(t *testing.T) {
	pkg := newPackage("local", "empty", "")
	world := &witmodel.World{Name: "nothing", Package: pkg}
	out, err := Generate(&witmodel.Model{}, world, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	typeCheck(t, out)
	p := parse(t, out)
	if !equalStrings(p.imports, []string{"context", "github.com/wippyai/witbind/host"}) {
		t.Errorf("imports = %v", p.imports)
	}
	if got := p.exportedFields(t, "Imports"); len(got) != 0 {
		t.Errorf("Imports fields = %v", got)
	}
	if got := p.exportedFields(t, "Exports"); len(got) != 0 {
		t.Errorf("Exports fields = %v", got)
	}
	if _, ok := p.funcs["Instantiate"]; !ok {
		t.Error("Instantiate not declared")
	}
}

func TestGenerate_SourceQuoting(t *testing.T) {
	model, world := calculator()
	text := "// uses `backticks`\r\npackage a:b;\n"
	out, err := Generate(model, world, Options{Sources: []witmodel.SourceFile{
		{Name: "a.wit", Text: text},
		{Name: "b.wit", Text: "package a:b;\n"},
	}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	parse(t, out)
	typeCheck(t, out)
	if !strings.Contains(string(out), strconv.Quote(text)) {
		t.Error("text with a backtick was not quoted")
	}
	if !strings.Contains(string(out), "Text: `package a:b;\n`") {
		t.Error("plain text was not emitted raw")
	}
}

func TestGenerate_AllTypes(t *testing.T) {
	pkg := newPackage("test", "echo", "1.0.0")
	echo := newInterface(pkg, "echo",
		fn("echo-bool", witmodel.Bool, param("x", witmodel.Bool)),
		fn("echo-char", witmodel.Char, param("x", witmodel.Char)),
		fn("echo-f64", witmodel.F64, param("x", witmodel.F64)),
		fn("echo-list", witmodel.List{Elem: witmodel.U64}, param("xs", witmodel.List{Elem: witmodel.U64})),
		fn("echo-option", witmodel.Option{Elem: witmodel.String}, param("x", witmodel.Option{Elem: witmodel.String})),
		fn("nested", witmodel.List{Elem: witmodel.Option{Elem: witmodel.S8}}),
		fn("fail", witmodel.ErrorContext, param("type", witmodel.ErrorContext)),
		fn("reset", nil),
	)
	host := newInterface(pkg, "host",
		fn("lookup", witmodel.Option{Elem: witmodel.List{Elem: witmodel.U8}}, param("key", witmodel.String)),
		fn("tick", nil),
	)
	world := &witmodel.World{
		Name:    "echoer",
		Package: pkg,
		Imports: []witmodel.WorldEntry{ifaceEntry(host)},
		Exports: []witmodel.WorldEntry{ifaceEntry(echo), funcEntry(fn("ping", witmodel.U32))},
	}
	out, err := Generate(&witmodel.Model{}, world, Options{Package: "echobind"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	typeCheck(t, out)
	p := parse(t, out)
	if p.pkg != "echobind" {
		t.Errorf("package = %q", p.pkg)
	}
	if got := p.exportedFields(t, "Exports"); !equalStrings(got, []string{"Echo", "Funcs"}) {
		t.Errorf("Exports fields = %v", got)
	}
	if got := p.methods(t, "EchoerFuncs"); !equalStrings(got, []string{"Ping"}) {
		t.Errorf("root methods = %v", got)
	}
	src := string(out)
	for _, want := range []string{
		"EchoOption(ctx context.Context, x *string) (*string, error)",
		"EchoList(ctx context.Context, xs []uint64) ([]uint64, error)",
		"Fail(ctx context.Context, type_ error) (error, error)",
		"Lookup(ctx context.Context, key string) (*[]uint8, error)",
		"host.RootInterface",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("output lacks %q", want)
		}
	}
}

func TestBuildPlan_Errors(t *testing.T) {
	pkg := newPackage("test", "bad", "1.0.0")

	recordModel := &witmodel.Model{}
	point := recordModel.AddTypeDef(&witmodel.TypeDef{Name: "point", Kind: witmodel.KindRecord})

	dup := newInterface(pkg, "dup", fn("f", nil))
	shared := newInterface(pkg, "shared", fn("f", nil))

	tests := []struct {
		name  string
		model *witmodel.Model
		world *witmodel.World
		opts  Options
		phase errors.Phase
		kind  errors.Kind
	}{
		{
			name:  "record parameter",
			model: recordModel,
			world: &witmodel.World{Name: "w", Package: pkg, Exports: []witmodel.WorldEntry{
				ifaceEntry(newInterface(nil, "geo", fn("move", nil, param("p", witmodel.Named{ID: point, Name: "point"})))),
			}},
			phase: errors.PhaseMap,
			kind:  errors.KindUnsupported,
		},
		{
			name: "duplicate import",
			world: &witmodel.World{Name: "w", Package: pkg, Imports: []witmodel.WorldEntry{
				ifaceEntry(dup), ifaceEntry(dup),
			}},
			phase: errors.PhasePlan,
			kind:  errors.KindDuplicate,
		},
		{
			name: "imported and exported",
			world: &witmodel.World{
				Name:    "w",
				Package: pkg,
				Imports: []witmodel.WorldEntry{ifaceEntry(shared)},
				Exports: []witmodel.WorldEntry{ifaceEntry(shared)},
			},
			phase: errors.PhasePlan,
			kind:  errors.KindConflict,
		},
		{
			name: "duplicate function",
			world: &witmodel.World{Name: "w", Package: pkg, Exports: []witmodel.WorldEntry{
				ifaceEntry(newInterface(nil, "twice", fn("f", nil), fn("f", nil))),
			}},
			phase: errors.PhasePlan,
			kind:  errors.KindDuplicate,
		},
		{
			name: "method collision",
			world: &witmodel.World{Name: "w", Package: pkg, Exports: []witmodel.WorldEntry{
				ifaceEntry(newInterface(nil, "ids", fn("get-id", nil), fn("get-ID", nil))),
			}},
			phase: errors.PhasePlan,
			kind:  errors.KindConflict,
		},
		{
			name: "parameter collision",
			world: &witmodel.World{Name: "w", Package: pkg, Exports: []witmodel.WorldEntry{
				ifaceEntry(newInterface(nil, "p", fn("f", nil, param("user-id", witmodel.U8), param("user-ID", witmodel.U8)))),
			}},
			phase: errors.PhasePlan,
			kind:  errors.KindDuplicate,
		},
		{
			name:  "invalid package",
			world: &witmodel.World{Name: "w", Package: pkg},
			opts:  Options{Package: "not-a-name"},
			phase: errors.PhasePlan,
			kind:  errors.KindInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := tt.model
			if model == nil {
				model = &witmodel.Model{}
			}
			_, err := Generate(model, tt.world, tt.opts)
			if !isKind(err, tt.phase, tt.kind) {
				t.Fatalf("err = %v, want %s/%s", err, tt.phase, tt.kind)
			}
		})
	}
}

func TestBuildPlan_RecordPath(t *testing.T) {
	model := &witmodel.Model{}
	point := model.AddTypeDef(&witmodel.TypeDef{Name: "point", Kind: witmodel.KindRecord})
	world := &witmodel.World{Name: "w", Imports: []witmodel.WorldEntry{
		ifaceEntry(newInterface(nil, "geo", fn("origin", witmodel.Named{ID: point, Name: "point"}))),
	}}
	_, err := BuildPlan(model, world, Options{})
	var e *errors.Error
	if !goerrors.As(err, &e) {
		t.Fatalf("err = %v", err)
	}
	if got := strings.Join(e.Path, "/"); got != "geo/origin/result" {
		t.Errorf("path = %q", got)
	}
}

func TestBuildPlan_Naming(t *testing.T) {
	a := newPackage("alpha", "store", "1.0.0")
	b := newPackage("beta", "cache", "1.0.0")
	c := newPackage("gamma", "store", "1.0.0")

	world := &witmodel.World{
		Name:    "app",
		Package: a,
		Imports: []witmodel.WorldEntry{
			ifaceEntry(newInterface(a, "types", fn("a", nil))),
			ifaceEntry(newInterface(b, "types", fn("b", nil))),
			ifaceEntry(newInterface(c, "types", fn("c", nil))),
			ifaceEntry(newInterface(b, "exports", fn("d", nil))),
			funcEntry(fn("log", nil, param("msg", witmodel.String))),
		},
		Exports: []witmodel.WorldEntry{
			funcEntry(fn("run", witmodel.U32)),
		},
	}
	plan, err := BuildPlan(&witmodel.Model{}, world, Options{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	var contracts, fields []string
	for _, ip := range plan.Imports {
		contracts = append(contracts, ip.Contract)
		fields = append(fields, ip.Field)
	}
	wantContracts := []string{"AlphaStoreTypes", "CacheTypes", "GammaStoreTypes", "ExportsInterface", "ImportAppFuncs"}
	if !equalStrings(contracts, wantContracts) {
		t.Errorf("contracts = %v, want %v", contracts, wantContracts)
	}
	wantFields := []string{"AlphaStoreTypes", "CacheTypes", "GammaStoreTypes", "ExportsInterface", "Funcs"}
	if !equalStrings(fields, wantFields) {
		t.Errorf("fields = %v, want %v", fields, wantFields)
	}
	if got := plan.Exports[0].Contract; got != "ExportAppFuncs" {
		t.Errorf("export root contract = %q", got)
	}
	if got := plan.Exports[0].Impl(); got != "exportAppFuncsExports" {
		t.Errorf("impl = %q", got)
	}

	out, err := plan.Emit()
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	p := parse(t, out)
	for _, name := range []string{"registerImportAppFuncs", "newExportAppFuncsExports"} {
		if _, ok := p.funcs[name]; !ok {
			t.Errorf("func %s not declared", name)
		}
	}
}

func TestBuildPlan_InlineInterface(t *testing.T) {
	inline := newInterface(nil, "", fn("emit", nil, param("event", witmodel.String)))
	world := &witmodel.World{
		Name:    "w",
		Imports: []witmodel.WorldEntry{{Key: "events", Item: &witmodel.InterfaceItem{Interface: inline}}},
	}
	plan, err := BuildPlan(&witmodel.Model{}, world, Options{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	ip := plan.Imports[0]
	if ip.ID != "events" || ip.Contract != "Events" {
		t.Errorf("inline = %q %q", ip.ID, ip.Contract)
	}
}

func TestBuildPlan_Types(t *testing.T) {
	model := &witmodel.Model{}
	id := model.AddTypeDef(&witmodel.TypeDef{Name: "count", Kind: witmodel.KindAlias, Target: witmodel.U32})
	world := &witmodel.World{
		Name:    "w",
		Imports: []witmodel.WorldEntry{{Key: "count", Item: &witmodel.TypeItem{Type: id}}},
	}
	plan, err := BuildPlan(model, world, Options{})
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Types) != 1 || plan.Types[0].Type != id || plan.Types[0].Direction != Import {
		t.Errorf("types = %+v", plan.Types)
	}
	if !plan.Empty() {
		t.Error("plan with only types should be empty")
	}
}
