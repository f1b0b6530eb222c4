// Package witmodel is the resolved interface model the binding generator
// consumes: packages, worlds, interfaces, functions and types.
//
// The model is immutable once built. Every ordered collection keeps
// declaration order so that anything derived from it is deterministic.
// Named types are referenced by TypeID and looked up with Model.TypeDef.
//
// World items form a closed sum dispatched through ItemVisitor:
//
//	err := witmodel.Walk(world.Imports, visitor)
package witmodel
