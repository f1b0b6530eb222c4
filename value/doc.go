// Package value defines the dynamic, tagged value representation exchanged
// with component instances.
//
// Every Value reports its Type. Scalars are plain named Go types (value.U32,
// value.String, ...), sequences are List and optional values are Option.
// Types are compared structurally with Equal:
//
//	l, err := value.NewList(value.U8Type, value.U8(1), value.U8(2))
//	value.Equal(l.Type(), value.ListOf(value.U8Type)) // true
//
// The package never converts between tags; a value whose tag differs from the
// expected type is rejected by Check and by the marshal package.
package value
