// Package errors provides the structured error type shared by the binding
// generator, the loader and the host runtime.
//
// Errors are categorized by Phase (which stage failed) and Kind (what went
// wrong). The Error type carries the WIT path of the offending item, the Go
// and WIT type names involved and an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMap, errors.KindUnsupported).
//		Path("math", "add", "p").
//		WitType("record point").
//		Detail("structural types are not supported").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseDecode, path, "int32", "string")
//	err := errors.NotFound(errors.PhaseSelect, "world", "calculator")
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when Phase and Kind are equal.
package errors
