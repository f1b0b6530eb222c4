// Package typemap maps WIT types to Go types.
//
// Each Mapping names the Go type, the value tag and the marshal expressions
// the binding emitter splices into generated code:
//
//	m, _ := typemap.Map(model, witmodel.List{Elem: witmodel.U32})
//	m.GoType            // []uint32
//	m.DecodeExpr("v")   // marshal.DecodeList(v, marshal.DecodeU32)
//
// Records, variants, enums, flags, tuples, results, resources and the async
// types are rejected with an unsupported error that names the type.
package typemap
