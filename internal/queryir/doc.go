// Package queryir provides the query plan intermediate representation
// passed in-process between query translators (the fluent builder, the
// plan file parser) and the engine.
//
// A Plan is an entity type, an ordered list of steps, an optional terminal
// operator with its argument, include paths and bound parameters:
//
//	[builder / plan file] → [Plan] → [engine.Compile] → [Program.Run]
//
// PLANS ARE IMMUTABLE:
//
// AddStep, WithTerminal, Include and WithParams return new plans. Steps are
// held in a persistent linked list, so two plans branched from a common
// prefix share that prefix and neither can observe the other's steps.
//
// SEALED INTERFACES:
//
// Step and Expr are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so the engine's compiler can
// switch exhaustively and reject anything else with NotSupported.
//
// STEPS:
//
//	Filter(predicate)                      keep matching elements
//	Project(selector)                      map to a new shape
//	Sort(key, descending, subsequent)      stable sort / tie-break refinement
//	Skip(count), Take(count)               pagination, replayed in order
//	FlattenJoin(collection, result)        one result per (outer, inner)
//	LeftOuterJoin(inner, keys..., result)  grouped join, nil default inner
//
// TERMINALS:
//
// Count, LongCount, Any, All, First, FirstOrDefault, Single and
// SingleOrDefault take an optional predicate (All requires one). Min, Max,
// Sum and Average take an optional selector.
package queryir
