// Package testguest compiles canonical ABI guest modules used by tests
// and the calculator example. Every guest is produced for either naming
// scheme so both code paths of the host runtime run against real wasm.
package testguest

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/wippyai/witbind/host"
	"github.com/wippyai/witbind/internal/wat"
)

// Interface identities used by the guests.
var (
	ConsoleInterface = host.MustParseInterfaceID("example:calculator/console@0.1.0")
	MathInterface    = host.MustParseInterfaceID("example:calculator/math@0.1.0")
	EchoInterface    = host.MustParseInterfaceID("test:echo/echo@1.0.0")
	HostInterface    = host.MustParseInterfaceID("test:echo/host@1.0.0")
	RelayInterface   = host.MustParseInterfaceID("test:echo/relay@1.0.0")
)

// Fixed guest memory locations.
const (
	AddMessageAddr      = 16
	MultiplyMessageAddr = 32
	ReturnArea          = 512
	RelayReturnArea     = 2048
	HeapStart           = 1024
)

// Messages the calculator prints through its console import.
const (
	AddMessage      = "in add"
	MultiplyMessage = "in multiply"
)

// guest is the template data: scheme-dependent names plus the constants.
type guest struct {
	scheme host.NameScheme

	Console, Math, Echo, Host, Relay, Root host.InterfaceID

	AddMessageAddr, MultiplyMessageAddr int
	ReturnArea, RelayReturnArea         int
	HeapStart                           int
	AddMessage, MultiplyMessage         string
}

func newGuest(scheme host.NameScheme) *guest {
	return &guest{
		scheme:              scheme,
		Console:             ConsoleInterface,
		Math:                MathInterface,
		Echo:                EchoInterface,
		Host:                HostInterface,
		Relay:               RelayInterface,
		Root:                host.RootInterface,
		AddMessageAddr:      AddMessageAddr,
		MultiplyMessageAddr: MultiplyMessageAddr,
		ReturnArea:          ReturnArea,
		RelayReturnArea:     RelayReturnArea,
		HeapStart:           HeapStart,
		AddMessage:          AddMessage,
		MultiplyMessage:     MultiplyMessage,
	}
}

// Quoted names for the templates.

func (g *guest) Memory() string     { return quote(g.scheme.MemoryExport()) }
func (g *guest) Realloc() string    { return quote(g.scheme.ReallocExport()) }
func (g *guest) Initialize() string { return quote(g.scheme.InitializeExport()) }

func (g *guest) Module(id host.InterfaceID) string { return quote(g.scheme.ImportModule(id)) }

func (g *guest) Export(id host.InterfaceID, fn string) string {
	return quote(g.scheme.ExportName(id, fn))
}

func (g *guest) Post(id host.InterfaceID, fn string) string {
	return quote(g.scheme.PostReturnName(g.scheme.ExportName(id, fn)))
}

func (g *guest) Text(s string) string { return quote(s) }

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

var guests = template.Must(template.New("guests").Parse(`
{{define "helpers"}}
  (memory (export {{.Memory}}) 1)
  (global $heap (mut i32) (i32.const {{.HeapStart}}))

  ;; bump allocation, never frees
  (func (export {{.Realloc}})
      (param $old i32) (param $old_size i32) (param $align i32) (param $size i32)
      (result i32)
      (local $ptr i32)
    (local.set $ptr
      (i32.and
        (i32.sub (i32.add (global.get $heap) (local.get $align)) (i32.const 1))
        (i32.sub (i32.const 0) (local.get $align))))
    (global.set $heap (i32.add (local.get $ptr) (local.get $size)))
    (local.get $ptr))
{{end}}

{{define "calculator"}}
(module
  (import {{.Module .Console}} "print" (func $print (param i32 i32)))
  {{template "helpers" .}}
  (data (i32.const {{.AddMessageAddr}}) {{.Text .AddMessage}})
  (data (i32.const {{.MultiplyMessageAddr}}) {{.Text .MultiplyMessage}})

  (func (export {{.Export .Math "add"}}) (param i32 i32) (result i32)
    (call $print (i32.const {{.AddMessageAddr}}) (i32.const {{len .AddMessage}}))
    (i32.add (local.get 0) (local.get 1)))

  (func (export {{.Export .Math "multiply"}}) (param i32 i32) (result i32)
    (call $print (i32.const {{.MultiplyMessageAddr}}) (i32.const {{len .MultiplyMessage}}))
    (i32.mul (local.get 0) (local.get 1)))

  (func (export {{.Initialize}})
    (global.set $heap (i32.const {{.HeapStart}}))))
{{end}}

{{define "echo"}}
(module
  {{template "helpers" .}}
  (global $posts (mut i32) (i32.const 0))

  (func (export {{.Export .Echo "echo-bool"}}) (export {{.Export .Echo "echo-s8"}})
        (export {{.Export .Echo "echo-char"}}) (export {{.Export .Echo "echo-error"}})
      (param i32) (result i32)
    local.get 0)
  (func (export {{.Export .Echo "echo-u64"}}) (param i64) (result i64) local.get 0)
  (func (export {{.Export .Echo "echo-f32"}}) (param f32) (result f32) local.get 0)
  (func (export {{.Export .Echo "echo-f64"}}) (param f64) (result f64) local.get 0)

  ;; (ptr, len) stored to the return area
  (func (export {{.Export .Echo "echo-string"}}) (export {{.Export .Echo "echo-list"}})
      (param $ptr i32) (param $len i32) (result i32)
    (i32.store (i32.const {{.ReturnArea}}) (local.get $ptr))
    (i32.store offset=4 (i32.const {{.ReturnArea}}) (local.get $len))
    (i32.const {{.ReturnArea}}))

  ;; option<u32>: discriminant byte at 0, payload at 4
  (func (export {{.Export .Echo "echo-option"}}) (param $tag i32) (param $val i32) (result i32)
    (i32.store8 (i32.const {{.ReturnArea}}) (local.get $tag))
    (i32.store offset=4 (i32.const {{.ReturnArea}}) (local.get $val))
    (i32.const {{.ReturnArea}}))

  ;; seventeen u8 params spilled to memory
  (func (export {{.Export .Echo "sum17"}}) (param $p i32) (result i32)
      (local $i i32) (local $acc i32)
    (block $done
      (loop $next
        (br_if $done (i32.eq (local.get $i) (i32.const 17)))
        (local.set $acc
          (i32.add (local.get $acc)
            (i32.load8_u (i32.add (local.get $p) (local.get $i)))))
        (local.set $i (i32.add (local.get $i) (i32.const 1)))
        (br $next)))
    (local.get $acc))

  (func (export {{.Post .Echo "echo-string"}}) (param i32)
    (global.set $posts (i32.add (global.get $posts) (i32.const 1))))
  (func (export {{.Export .Echo "post-count"}}) (result i32)
    (global.get $posts))

  (func (export {{.Export .Root "ping"}}) (result i32)
    (i32.const 42)))
{{end}}

{{define "relay"}}
(module
  (import {{.Module .Host}} "transform" (func $transform (param i32 i32 i32)))
  (import {{.Module .Host}} "length" (func $length (param i32 i32) (result i32)))
  {{template "helpers" .}}

  (func (export {{.Export .Relay "relay"}}) (param i32 i32) (result i32)
    (call $transform (local.get 0) (local.get 1) (i32.const {{.RelayReturnArea}}))
    (i32.const {{.RelayReturnArea}}))

  (func (export {{.Export .Relay "measure"}}) (param i32 i32) (result i32)
    (call $length (local.get 0) (local.get 1))))
{{end}}

{{define "wide"}}
(module
  {{template "helpers" .}}

  ;; seventeen u64 params spilled to memory
  (func (export {{.Export .Echo "sum-wide"}}) (param $p i32) (result i64)
      (local $i i32) (local $acc i64)
    (block $done
      (loop $next
        (br_if $done (i32.eq (local.get $i) (i32.const 17)))
        (local.set $acc
          (i64.add (local.get $acc)
            (i64.load (i32.add (local.get $p) (i32.shl (local.get $i) (i32.const 3))))))
        (local.set $i (i32.add (local.get $i) (i32.const 1)))
        (br $next)))
    (local.get $acc)))
{{end}}
`))

// source renders the named guest for scheme.
func source(name string, scheme host.NameScheme) string {
	var b strings.Builder
	if err := guests.ExecuteTemplate(&b, name, newGuest(scheme)); err != nil {
		panic(fmt.Sprintf("testguest: render %s: %v", name, err))
	}
	return b.String()
}

// compile builds guest text that is fixed at compile time, so failures
// are programming errors.
func compile(name, src string) []byte {
	wasm, err := wat.Compile(src)
	if err != nil {
		panic(fmt.Sprintf("testguest: compile %s: %v", name, err))
	}
	return wasm
}

func build(name string, scheme host.NameScheme) []byte {
	return compile(name, source(name, scheme))
}

// Calculator implements example:calculator: it imports console.print and
// exports math.add and math.multiply. Each export prints a message before
// computing its result. The initializer sets the heap start.
func Calculator(scheme host.NameScheme) []byte {
	return build("calculator", scheme)
}

// Echo exports test:echo/echo, whose functions return their argument.
// echo-string has a post-return that counts invocations, readable through
// post-count. sum17 takes seventeen u8 params, which spill to memory. The
// world also exports a root function ping returning 42.
func Echo(scheme host.NameScheme) []byte {
	return build("echo", scheme)
}

// Relay imports test:echo/host and exports test:echo/relay. relay(s) passes
// s to host.transform and returns its result; measure(s) returns
// host.length(s).
func Relay(scheme host.NameScheme) []byte {
	return build("relay", scheme)
}

// Wide exports test:echo/echo sum-wide(u64 x 17) -> u64, whose params spill.
func Wide(scheme host.NameScheme) []byte {
	return build("wide", scheme)
}
