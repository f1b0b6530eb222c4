package testguest

import (
	"github.com/wippyai/witbind/host"
	wb "github.com/wippyai/witbind/internal/wasmbuild"
)

// The shim owns the table the main module's lowered imports go through;
// the fixup fills it once the lowered function exists.
const (
	shimWAT = `(module
  (type $print (func (param i32 i32)))
  (table (export "$imports") 1 1 funcref)
  (func (export "0") (param i32 i32)
    (call_indirect (type $print) (local.get 0) (local.get 1) (i32.const 0))))`

	fixupWAT = `(module
  (type $print (func (param i32 i32)))
  (import "" "0" (func $print (type $print)))
  (import "" "$imports" (table 1 1 funcref))
  (elem (i32.const 0) $print))`
)

// Component function types shared by the fixtures.
var (
	printFuncType  = wb.FuncType([]wb.Param{{Name: "message", Type: wb.String}})
	binaryFuncType = wb.FuncType([]wb.Param{{Name: "a", Type: wb.S32}, {Name: "b", Type: wb.S32}}, wb.S32)
	stringFuncType = wb.FuncType([]wb.Param{{Name: "s", Type: wb.String}}, wb.String)
	countFuncType  = wb.FuncType(nil, wb.U32)
)

// CalculatorComponent is the calculator laid out the way component
// toolchains emit it. console.print reaches the main module through the
// shim's table, which the fixup fills with the lowered import once the
// main module's memory and allocator exist. math is lifted from the main
// module's exports.
func CalculatorComponent() []byte {
	console := ConsoleInterface.String()
	math := MathInterface.String()
	consoleType := wb.InstanceType(
		wb.TypeDecl(printFuncType),
		wb.ExportDecl("print", wb.ExternFunc(0)),
	)
	lift := []wb.Opt{wb.UTF8, wb.Memory(0), wb.Realloc(1)}

	return wb.New().
		Types(consoleType, binaryFuncType).
		Import(console, wb.ExternInstance(0)).
		CoreModule(Calculator(host.SchemeLegacy)).
		CoreModule(compile("shim", shimWAT)).
		CoreModule(compile("fixup", fixupWAT)).
		CoreInstantiate(1).
		AliasCoreExport(0, wb.CoreFunc, "0").
		CoreInstanceFromExports(wb.Arg{Name: "print", Sort: wb.CoreFunc, Index: 0}).
		CoreInstantiate(0, wb.Arg{Name: console, Index: 1}).
		AliasCoreExport(2, wb.CoreMemory, "memory").
		AliasCoreExport(2, wb.CoreFunc, "cabi_realloc").
		AliasExport(0, wb.Func, "print").
		Lower(0, wb.UTF8, wb.Memory(0), wb.Realloc(1)).
		AliasCoreExport(0, wb.CoreTable, "$imports").
		CoreInstanceFromExports(
			wb.Arg{Name: "$imports", Sort: wb.CoreTable, Index: 0},
			wb.Arg{Name: "0", Sort: wb.CoreFunc, Index: 2},
		).
		CoreInstantiate(2, wb.Arg{Name: "", Index: 3}).
		AliasCoreExport(2, wb.CoreFunc, math+"#add").
		AliasCoreExport(2, wb.CoreFunc, math+"#multiply").
		Lift(3, 1, lift...).
		Lift(4, 1, lift...).
		InstanceFromExports(
			wb.Arg{Name: "add", Sort: wb.Func, Index: 1},
			wb.Arg{Name: "multiply", Sort: wb.Func, Index: 2},
		).
		Export(math, wb.Instance, 1).
		Bytes()
}

// EchoComponent lifts echo-string, post-count and ping from the echo
// guest. The echo interface is exported through a nested component that
// takes the lifted functions as imports and re-exports them as an
// instance; it names its types by outer aliases. echo-string carries a
// post-return option.
func EchoComponent() []byte {
	echo := EchoInterface.String()
	post := host.SchemeLegacy.PostReturnName(echo + "#echo-string")

	nested := wb.New().
		AliasOuter(1, wb.Type, 0).
		AliasOuter(1, wb.Type, 1).
		Import("echo-string", wb.ExternFunc(0)).
		Import("post-count", wb.ExternFunc(1)).
		InstanceFromExports(
			wb.Arg{Name: "echo-string", Sort: wb.Func, Index: 0},
			wb.Arg{Name: "post-count", Sort: wb.Func, Index: 1},
		).
		Export("echo", wb.Instance, 0).
		Bytes()

	return wb.New().
		Types(stringFuncType, countFuncType).
		CoreModule(Echo(host.SchemeLegacy)).
		CoreInstantiate(0).
		AliasCoreExport(0, wb.CoreMemory, "memory").
		AliasCoreExport(0, wb.CoreFunc, "cabi_realloc").
		AliasCoreExport(0, wb.CoreFunc, echo+"#echo-string").
		AliasCoreExport(0, wb.CoreFunc, post).
		AliasCoreExport(0, wb.CoreFunc, echo+"#post-count").
		AliasCoreExport(0, wb.CoreFunc, "ping").
		Lift(1, 0, wb.UTF8, wb.Memory(0), wb.Realloc(0), wb.PostReturn(2)).
		Lift(3, 1).
		Lift(4, 1).
		Component(nested).
		Instantiate(0,
			wb.Arg{Name: "echo-string", Sort: wb.Func, Index: 0},
			wb.Arg{Name: "post-count", Sort: wb.Func, Index: 1},
		).
		AliasExport(0, wb.Instance, "echo").
		Export(echo, wb.Instance, 1).
		Export("ping", wb.Func, 2).
		Bytes()
}
