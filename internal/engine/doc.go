// Package engine compiles query plans into programs and runs them against
// the effective rows of a table store.
//
// ARCHITECTURE:
//
// Compilation:
// Engine.Compile validates a plan, resolves the root entity descriptor and
// turns every lambda into a closure. The compiler tracks a static shape for
// each expression (entity, tuple, scalar, collection or unknown) so that
// member access against a known entity or tuple is checked before any row
// is read. Navigations (p.Blog, b.Posts, x->Rel) compile to correlated
// sub-plans over the target entity; those are compiled once per relation
// and cached on the Engine.
//
// Execution:
// Program.Run builds a pipeline of iter.Seq2 stages:
//  1. source: Table.EffectiveRows, materialized through the identity map
//  2. steps, in recorded order (never reordered or fused)
//  3. navigation fix-up of root-type entities, for includes
//  4. the terminal operator, if any
//
// Sequence results are lazy and re-enumerable. Terminal results are
// computed inside Run.
//
// CRITICAL PATTERNS:
//
// Identity:
// Every entity a run yields, including those reached through navigations,
// comes from Runtime.Identity. Two rows with the same key are the same
// instance for the lifetime of that identity map.
//
// Determinism:
// Rows are read in ascending key order and Sort is stable, so equal keys
// keep their source order. Skip and Take apply exactly where they were
// recorded: Skip(1).Take(2) and Take(2).Skip(1) differ.
//
// Nulls:
// null == null is true; ordering comparisons with null are false; member
// access on null yields null; arithmetic with null yields null.
package engine
