// Package wat compiles the WebAssembly text format into binary modules.
//
// It covers the subset the host tests and examples write their guests in:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1))))`)
//
// Supported:
//   - type, import, func, table, memory, global, export, start, elem and
//     data fields, with $names and inline exports
//   - folded and flat instructions, block/loop/if with labels
//   - integer and float numeric, comparison and conversion operators
//   - loads and stores with offset= and align=
//   - call, call_indirect, memory.size/grow/copy/fill
//   - line (;;) and block (; ;) comments
//
// Not supported: SIMD, reference type instructions, multi-value blocks,
// passive segments.
package wat
