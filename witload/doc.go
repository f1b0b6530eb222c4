// Package witload reads WIT documents and adapts them into the immutable
// witmodel representation the generator consumes.
//
// Parsing and resolution are delegated to go.bytecodealliance.org/wit.
// Load returns the model together with the WIT text it was read from so
// that generated bindings can embed their sources verbatim.
package witload
