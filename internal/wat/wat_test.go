package wat

import (
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func instantiate(t *testing.T, src string, hosts ...func(wazero.Runtime)) api.Module {
	t.Helper()
	wasm, err := Compile(src)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { r.Close(ctx) })
	for _, h := range hosts {
		h(r)
	}
	mod, err := r.Instantiate(ctx, wasm)
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	return mod
}

func TestCompile_Empty(t *testing.T) {
	wasm, err := Compile("(module)")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if string(wasm) != string(preamble) {
		t.Errorf("got % x, want preamble only", wasm)
	}
}

func TestCompile_Run(t *testing.T) {
	tests := []struct {
		name string
		src  string
		fn   string
		args []uint64
		want uint64
	}{
		{
			name: "folded add",
			src: `(module (func (export "f") (param i32 i32) (result i32)
				(i32.add (local.get 0) (local.get 1))))`,
			fn: "f", args: []uint64{3, 4}, want: 7,
		},
		{
			name: "flat loop",
			src: `(module
				;; sums 1..n
				(func (export "f") (param $n i32) (result i32) (local $acc i32)
					block $done
						loop $next
							local.get $n
							i32.eqz
							br_if $done
							local.get $acc
							local.get $n
							i32.add
							local.set $acc
							local.get $n
							i32.const 1
							i32.sub
							local.set $n
							br $next
						end
					end
					local.get $acc))`,
			fn: "f", args: []uint64{10}, want: 55,
		},
		{
			name: "folded if",
			src: `(module (func (export "f") (param $x i32) (result i32)
				(if (result i32) (i32.lt_s (local.get $x) (i32.const 0))
					(then (i32.sub (i32.const 0) (local.get $x)))
					(else (local.get $x)))))`,
			fn: "f", args: []uint64{uint64(uint32(0xfffffff6))}, want: 10,
		},
		{
			name: "data and loads",
			src: `(module
				(memory 1)
				(data (i32.const 16) "\01\02" "\ff")
				(func (export "f") (result i32)
					(i32.add
						(i32.load8_u offset=1 (i32.const 16))
						(i32.load8_u (i32.const 18)))))`,
			fn: "f", want: 257,
		},
		{
			name: "store with offset",
			src: `(module
				(memory $m (export "memory") 1)
				(func (export "f") (param i64) (result i64)
					(i64.store offset=8 align=8 (i32.const 0) (local.get 0))
					(i64.load (i32.const 8))))`,
			fn: "f", args: []uint64{1 << 40}, want: 1 << 40,
		},
		{
			name: "globals",
			src: `(module
				(global $count (mut i32) (i32.const 5))
				(func $bump (i32.const 1) (global.get $count) (i32.add) (global.set $count))
				(func (export "f") (result i32)
					(call $bump)
					(call $bump)
					(global.get $count)))`,
			fn: "f", want: 7,
		},
		{
			name: "call_indirect",
			src: `(module
				(type $unary (func (param i32) (result i32)))
				(table $t 2 funcref)
				(elem (i32.const 0) $double $square)
				(func $double (type $unary) (i32.shl (local.get 0) (i32.const 1)))
				(func $square (param i32) (result i32) (i32.mul (local.get 0) (local.get 0)))
				(func (export "f") (param $slot i32) (param $x i32) (result i32)
					(call_indirect (type $unary) (local.get $x) (local.get $slot))))`,
			fn: "f", args: []uint64{1, 9}, want: 81,
		},
		{
			name: "i64 and select",
			src: `(module (func (export "f") (param i32) (result i64)
				(select
					(i64.extend_i32_u (local.get 0))
					(i64.const -1)
					(i32.ne (local.get 0) (i32.const 0)))))`,
			fn: "f", args: []uint64{0}, want: ^uint64(0),
		},
		{
			name: "f64",
			src: `(module (func (export "f") (result i64)
				(i64.trunc_f64_s (f64.mul (f64.const 2.5) (f64.const 4)))))`,
			fn: "f", want: 10,
		},
		{
			name: "br_table",
			src: `(module (func (export "f") (param i32) (result i32)
				(block $b (block $a
					(br_table $a $b (local.get 0)))
					(return (i32.const 100)))
				(i32.const 200)))`,
			fn: "f", args: []uint64{0}, want: 100,
		},
		{
			name: "memory grow",
			src: `(module (memory 1) (func (export "f") (result i32)
				(drop (memory.grow (i32.const 2)))
				(memory.size)))`,
			fn: "f", want: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := instantiate(t, tt.src)
			got, err := mod.ExportedFunction(tt.fn).Call(context.Background(), tt.args...)
			if err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("got %v, want %d", got, tt.want)
			}
		})
	}
}

func TestCompile_Imports(t *testing.T) {
	var seen []uint32
	env := func(r wazero.Runtime) {
		_, err := r.NewHostModuleBuilder("env").
			NewFunctionBuilder().
			WithFunc(func(_ context.Context, v uint32) { seen = append(seen, v) }).
			Export("note").
			Instantiate(context.Background())
		if err != nil {
			t.Fatal(err)
		}
	}
	mod := instantiate(t, `(module
		(import "env" "note" (func $note (param i32)))
		(memory (export "memory") 1)
		(func $init (call $note (i32.const 1)))
		(start $init)
		(func (export "run") (call $note (i32.const 2))))`, env)

	if _, err := mod.ExportedFunction("run").Call(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("seen = %v, want [1 2]", seen)
	}
	if mod.ExportedMemory("memory") == nil {
		t.Error("memory not exported")
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name, wat, wantErr string
	}{
		{"missing module", "(func)", "expected 'module'"},
		{"unclosed", "(module", "unexpected end"},
		{"stray paren", "(module))", "unexpected ')'"},
		{"unknown instruction", "(module (func (bogus)))", "unknown instruction"},
		{"unknown value type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown label", "(module (func (block (br $x))))", "unknown label"},
		{"unknown local", "(module (func (drop (local.get $y))))", "unknown local"},
		{"unknown func", "(module (func (call $nope)))", "unknown func"},
		{"import order", `(module (func) (import "a" "b" (func)))`, "import after definition"},
		{"bad escape", `(module (data (i32.const 0) "\q"))`, "unknown escape"},
		{"missing end", "(module (func block))", "without end"},
		{"bad alignment", "(module (memory 1) (func (drop (i32.load align=3 (i32.const 0)))))", "power of two"},
		{"comment", "(module (; open", "unterminated block comment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.wat)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}
