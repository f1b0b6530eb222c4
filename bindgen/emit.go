package bindgen

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"golang.org/x/tools/imports"

	"github.com/wippyai/witbind/errors"
)

// Header is the first line of every generated file.
const Header = "// Code generated by witbind. DO NOT EDIT."

// Emit renders the plan as one formatted Go source file. The output is a
// pure function of the plan.
func (p *Plan) Emit() ([]byte, error) {
	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, p); err != nil {
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "render bindings")
	}

	out, err := imports.Process("bindings.go", buf.Bytes(), &imports.Options{
		FormatOnly: true,
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
	})
	if err != nil {
		Logger().Debug("unformatted output", zap.ByteString("source", buf.Bytes()))
		return nil, errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "format generated source")
	}
	return out, nil
}

var fileTemplate = template.Must(template.New("bindings").Funcs(template.FuncMap{
	"quote":    strconv.Quote,
	"literal":  literal,
	"funcType": funcType,
	"params":   paramList,
	"args":     encodedArgs,
	"header":   func() string { return Header },
}).Parse(fileText))

// literal renders s as a raw string when it can be one.
func literal(s string) string {
	if strings.ContainsAny(s, "`\r") {
		return strconv.Quote(s)
	}
	return "`" + s + "`"
}

// funcType renders the host.FuncType literal of fn.
func funcType(fn *FunctionPlan) string {
	var b strings.Builder
	b.WriteString("host.FuncType{")
	if len(fn.Params) > 0 {
		b.WriteString("Params: []value.Type{")
		for i, p := range fn.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Mapping.TagExpr())
		}
		b.WriteString("}")
	}
	if fn.Result != nil {
		if len(fn.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("Results: []value.Type{" + fn.Result.TagExpr() + "}")
	}
	b.WriteString("}")
	return b.String()
}

// paramList renders the Go parameter list of a contract method.
func paramList(fn *FunctionPlan) string {
	parts := []string{"ctx context.Context"}
	for _, p := range fn.Params {
		parts = append(parts, p.Name+" "+p.Mapping.GoType)
	}
	return strings.Join(parts, ", ")
}

// encodedArgs renders the encoded arguments of an export call, each
// preceded by a comma.
func encodedArgs(fn *FunctionPlan) string {
	var b strings.Builder
	for _, p := range fn.Params {
		b.WriteString(", ")
		b.WriteString(p.Mapping.EncodeExpr(p.Name))
	}
	return b.String()
}

const fileText = `{{header}}
// World: {{.World}}

package {{.Package}}

import (
	"context"
{{- if .HasImportFuncs}}
	"sync"
{{- end}}
{{if .Imports}}
	"github.com/wippyai/witbind/errors"
{{- end}}
	"github.com/wippyai/witbind/host"
{{- if .NeedsMarshal}}
	"github.com/wippyai/witbind/marshal"
{{- end}}
{{- if .NeedsValue}}
	"github.com/wippyai/witbind/value"
{{- end}}
)

// WITSource is one WIT file the bindings were generated from.
type WITSource struct {
	Name string
	Text string
}

// Sources returns the WIT text the bindings were generated from.
func Sources() []WITSource {
	return []WITSource{
{{- range .Sources}}
		{Name: {{quote .Name}}, Text: {{literal .Text}}},
{{- end}}
	}
}
{{range .Imports}}
{{- if .Root}}
// {{.Contract}} is implemented by the host for the world's imported functions.
{{- else}}
// {{.Contract}} is implemented by the host for the imported interface {{.ID}}.
{{- end}}
type {{.Contract}} interface {
{{- range .Functions}}
	{{.Method}}({{params .}}) {{if .Result}}({{.Result.GoType}}, error){{else}}error{{end}}
{{- end}}
}
{{end}}
{{- range .Exports}}
{{- if .Root}}
// {{.Contract}} calls the functions the guest exports at world level.
{{- else}}
// {{.Contract}} calls the guest's exported interface {{.ID}}.
{{- end}}
type {{.Contract}} interface {
{{- range .Functions}}
	{{.Method}}({{params .}}) {{if .Result}}({{.Result.GoType}}, error){{else}}error{{end}}
{{- end}}
}
{{end}}
{{- if not .Empty}}
// Interface identities as the component names them.
var (
{{- range .Imports}}
	{{.IDVar}} = {{if .Root}}host.RootInterface{{else}}host.MustParseInterfaceID({{quote .ID}}){{end}}
{{- end}}
{{- range .Exports}}
	{{.IDVar}} = {{if .Root}}host.RootInterface{{else}}host.MustParseInterfaceID({{quote .ID}}){{end}}
{{- end}}
)
{{end}}
// Imports holds the host implementations of the world's imports. Every
// field must be set.
type Imports struct {
{{- range .Imports}}
	{{.Field}} {{.Contract}}
{{- end}}
}

// Exports holds the guest's exports bound to one instance.
type Exports[T any] struct {
{{- range .Exports}}
	{{.Field}} {{.Contract}}
{{- end}}

	store    *host.Store[T]
	instance *host.Instance
}

// Store returns the store the exports call into.
func (e *Exports[T]) Store() *host.Store[T] { return e.store }

// Instance returns the underlying component instance.
func (e *Exports[T]) Instance() *host.Instance { return e.instance }

// Close releases the store and its instance.
func (e *Exports[T]) Close(ctx context.Context) error { return e.store.Close(ctx) }
{{range .Imports}}
{{- $ip := .}}
func {{.Register}}(linker *host.Linker, impl {{.Contract}}) error {
{{- if .Functions}}
	li, err := linker.DefineInstance({{.IDVar}})
	if err != nil {
		return err
	}
	var mu sync.Mutex
{{range .Functions}}
	if err := li.DefineFunc({{quote .WIT}}, host.NewFunc(
		{{funcType .}},
		func(ctx context.Context, params []value.Value, results []value.Value) error {
{{- $fn := .}}
{{- range $i, $p := .Params}}
			{{$p.Name}}, err := {{$p.Mapping.DecodeExpr (printf "params[%d]" $i)}}
			if err != nil {
				return marshal.ParamError({{$ip.IDVar}}.String(), {{quote $fn.WIT}}, {{quote $p.WIT}}, err)
			}
{{- end}}
			mu.Lock()
			defer mu.Unlock()
{{- if .Result}}
			r, err := impl.{{.Method}}(ctx{{range .Params}}, {{.Name}}{{end}})
			if err != nil {
				return err
			}
			results[0] = {{.Result.EncodeExpr "r"}}
			return nil
{{- else}}
			return impl.{{.Method}}(ctx{{range .Params}}, {{.Name}}{{end}})
{{- end}}
		},
	)); err != nil {
		return err
	}
{{- end}}
	return nil
{{- else}}
	_, err := linker.DefineInstance({{.IDVar}})
	return err
{{- end}}
}
{{end}}
{{- range .Exports}}
{{- $ip := .}}
type {{.Impl}}[T any] struct {
	store *host.Store[T]
{{- range .Functions}}
	{{.Handle}} *host.TypedFunc
{{- end}}
}

func {{.Constructor}}[T any](store *host.Store[T], inst *host.Instance) (*{{.Impl}}[T], error) {
{{- if .Functions}}
	exp, err := inst.Export({{.IDVar}})
	if err != nil {
		return nil, err
	}
	e := &{{.Impl}}[T]{store: store}
{{- range .Functions}}
	if e.{{.Handle}}, err = exp.Typed({{quote .WIT}}, {{funcType .}}); err != nil {
		return nil, err
	}
{{- end}}
	return e, nil
{{- else}}
	if _, err := inst.Export({{.IDVar}}); err != nil {
		return nil, err
	}
	return &{{.Impl}}[T]{store: store}, nil
{{- end}}
}
{{range .Functions}}
func (e *{{$ip.Impl}}[T]) {{.Method}}({{params .}}) {{if .Result}}({{.Result.GoType}}, error){{else}}error{{end}} {
{{- if .Result}}
	results, err := e.store.Call(ctx, e.{{.Handle}}{{args .}})
	if err != nil {
		var zero {{.Result.GoType}}
		return zero, err
	}
	r, err := {{.Result.DecodeExpr "results[0]"}}
	if err != nil {
		var zero {{.Result.GoType}}
		return zero, marshal.ResultError({{$ip.IDVar}}.String(), {{quote .WIT}}, err)
	}
	return r, nil
{{- else}}
	_, err := e.store.Call(ctx, e.{{.Handle}}{{args .}})
	return err
{{- end}}
}
{{end}}
{{- end}}
// Instantiate links imports, instantiates component in store and binds
// its exports. A nil import fails before anything is instantiated.
func Instantiate[T any](ctx context.Context, store *host.Store[T], component *host.Component, imports Imports) (*Exports[T], error) {
{{- range .Imports}}
	if imports.{{.Field}} == nil {
		return nil, errors.New(errors.PhaseLink, errors.KindMissingImport).
			Path({{.IDVar}}.String()).
			Detail("no implementation of {{.Contract}} provided").
			Build()
	}
{{- end}}

	linker := host.NewLinker()
{{- range .Imports}}
	if err := {{.Register}}(linker, imports.{{.Field}}); err != nil {
		return nil, err
	}
{{- end}}

	inst, err := linker.Instantiate(ctx, store, component)
	if err != nil {
		return nil, err
	}

	exports := &Exports[T]{store: store, instance: inst}
{{- range .Exports}}
	if exports.{{.Field}}, err = {{.Constructor}}(store, inst); err != nil {
		_ = inst.Close(ctx)
		return nil, err
	}
{{- end}}
	return exports, nil
}
`
