// Package host runs WebAssembly components on wazero and exposes them
// through dynamic, tagged values.
//
// The moving parts mirror the component model embedding API:
//
//	engine := host.NewEngine(nil)
//	comp, err := host.NewComponent(ctx, engine, wasmBytes)
//	store := host.NewStore(ctx, engine, myState)
//
//	linker := host.NewLinker()
//	console, _ := linker.DefineInstance(host.MustParseInterfaceID("example:calculator/console@0.1.0"))
//	console.DefineFunc("print", host.NewFunc(host.FuncType{Params: []value.Type{value.StringType}},
//		func(ctx context.Context, params, results []value.Value) error { ... }))
//
//	inst, err := linker.Instantiate(ctx, store, comp)
//	math, _ := inst.Export(host.MustParseInterfaceID("example:calculator/math@0.1.0"))
//	add, err := math.Typed("add", host.FuncType{
//		Params:  []value.Type{value.S32Type, value.S32Type},
//		Results: []value.Type{value.S32Type},
//	})
//	results, err := store.Call(ctx, add, value.S32(7), value.S32(8))
//
// # Guests
//
// A guest is a core module that follows the canonical ABI, named with
// either the cm32p2 convention or the legacy wit-bindgen convention, or a
// component binary embedding exactly one such module. Component binaries
// that compose several core modules are rejected.
//
// # Canonical ABI
//
// Supported value types are the scalars, string, error-context, list<T> and
// option<T>. Parameters flatten to at most 16 core values before spilling
// to memory; results flatten to one core value before using a return
// pointer. Strings are UTF-8 and validated in both directions.
//
// # Concurrency
//
// A Store serializes calls with one mutex held for the whole call,
// including nested host functions. Host functions calling back into the
// same store with the context they were given fail with a reentrant error.
// A callback made with an unrelated context blocks on the store mutex.
package host
