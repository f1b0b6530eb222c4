// Package bindgen generates Go host bindings for a WIT world.
//
// Generation runs in two steps. BuildPlan walks the world's imports and
// exports, maps every parameter and result type and settles all Go names.
// Plan.Emit renders the plan through a template and formats the result.
//
// A generated file declares:
//
//   - one contract interface per imported or exported interface, and one
//     for world-level functions in each direction;
//   - Imports, the host implementations a caller supplies;
//   - Exports[T], the typed guest exports bound to an instance;
//   - Instantiate, which links Imports and binds Exports for a component;
//   - Sources, the WIT text the file was generated from.
//
// Generated code depends only on the host, marshal, value and errors
// packages of this module.
package bindgen
