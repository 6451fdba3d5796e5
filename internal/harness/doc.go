// Package harness runs declarative scenarios against a database: a CUE
// schema, seed rows, a sequence of queries and mutations with expected
// outcomes, and assertions over the final state.
//
// # Scenario Format
//
//	name: price_update
//	description: "Updates are visible to later queries"
//	schema: shop.cue
//	seed:
//	  - entity: Product
//	    rows:
//	      - {Name: pen, Price: 10}
//	steps:
//	  - update: {entity: Product, key: [1], set: {Price: 12}}
//	  - query:
//	      from: Product
//	      steps:
//	        - where: p => p.Price > 11
//	    expect:
//	      rows:
//	        - {Name: pen}
//	  - remove: {entity: Product, key: [9]}
//	    expect: {error: NOT_FOUND}
//	assertions:
//	  - type: row_count
//	    table: Product
//	    count: 1
//
// Queries use the plan file format of package planfile. Expected rows
// match by subset: only the fields named in the expectation are compared,
// numbers compare by value, and the row count must match exactly.
//
// # Assertion Types
//
//   - row_count: the table holds exactly Count effective rows
//   - final_state: exactly one row matches Where and carries Expect
//   - trace_count: Op appears exactly Count times in the trace
//
// # Deterministic Testing
//
// Every scenario runs against a fresh database with a fixed session ID
// and a trace clock starting at 1, so traces are stable for golden file
// comparison (see RunWithGolden).
package harness
