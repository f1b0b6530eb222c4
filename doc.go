// Package witbind generates typed Go host bindings for WebAssembly
// components described in WIT, and provides the runtime those bindings
// call into.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	witbind/
//	├── cmd/witbind/     CLI: generate, inspect, schema, version
//	├── config/          Layered generator configuration (file, env, flags)
//	├── witload/         WIT sources to witmodel, world selection
//	├── witmodel/        Resolved WIT packages, worlds, interfaces and types
//	├── typemap/         WIT type to Go type and marshal expressions
//	├── bindgen/         Binding plan and Go source emission
//	├── host/            wazero based canonical ABI runtime
//	├── value/           Tagged dynamic component values
//	├── marshal/         Native Go values to and from value.Value
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Generate bindings for a world:
//
//	witbind generate --path wit --world calculator --out bindings/calculator.go
//
// Then instantiate a component through them:
//
//	engine := host.NewEngine(nil)
//	defer engine.Close(ctx)
//
//	comp, err := host.NewComponent(ctx, engine, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := host.NewStore(ctx, engine, myData)
//	exports, err := calculator.Instantiate(ctx, store, comp, calculator.Imports{
//	    Console: &Console{},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exports.Close(ctx)
//
//	sum, err := exports.Math.Add(ctx, 7, 8) // 15
//
// # Supported Types
//
// Generated signatures cover the scalar subset of WIT:
//
//   - Primitives: bool, u8-u64, s8-s64, f32, f64, char, string
//   - Compound: list<T>, option<T>
//   - Named aliases of the above
//   - error-context, surfaced as a Go error
//
// Records, variants, enums, flags, tuples, results and resources are
// rejected at generation time with a map-phase unsupported error that names
// the offending type.
//
// # Thread Safety
//
// Engine and Component are safe for concurrent use. A Store serializes
// every export call on its mutex; import implementations are additionally
// serialized per implementation. Calling back into the same store from an
// import implementation with the call's context fails with a reentrant
// error.
package witbind
