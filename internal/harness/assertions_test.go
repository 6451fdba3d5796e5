package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/testutil"
)

func TestMatchValue(t *testing.T) {
	tests := []struct {
		name string
		want any
		got  any
		ok   bool
	}{
		{"equal ints", 3, int64(3), true},
		{"int matches float", 10, 10.0, true},
		{"different numbers", 10, 10.5, false},
		{"strings", "pen", "pen", true},
		{"nulls", nil, nil, true},
		{"null vs value", nil, "x", false},
		{"value vs null", 0, nil, false},
		{"map subset", map[string]any{"Name": "pen"}, map[string]any{"Name": "pen", "Price": 2.5}, true},
		{"map missing key", map[string]any{"Stock": 1}, map[string]any{"Name": "pen"}, false},
		{"map explicit null", map[string]any{"C": nil}, map[string]any{"C": nil}, true},
		{"map vs scalar", map[string]any{"a": 1}, 1, false},
		{"scalar vs map", 1, map[string]any{"a": 1}, false},
		{"lists", []any{1, "a"}, []any{int64(1), "a"}, true},
		{"list length", []any{1}, []any{int64(1), int64(2)}, false},
		{"nested", []any{map[string]any{"n": 1}}, []any{map[string]any{"n": int64(1), "m": 2}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, matchValue(tt.want, tt.got))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	db := testutil.NewDatabase(t)
	testutil.SeedProducts(t, db)
	trace := []TraceEvent{{Seq: 1, Op: OpSeed}, {Seq: 2, Op: OpQuery}, {Seq: 3, Op: OpQuery}}

	passing := []Assertion{
		{Type: AssertRowCount, Table: "Product", Count: 5},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Name": "lamp"}, Expect: map[string]any{"Price": 40, "Category": "home"}},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Id": 5}, Expect: map[string]any{"Category": nil}},
		{Type: AssertTraceCount, Op: OpQuery, Count: 2},
	}
	assert.Empty(t, EvaluateAssertions(db, trace, passing))

	failing := []Assertion{
		{Type: AssertRowCount, Table: "Product", Count: 4},
		{Type: AssertRowCount, Table: "Nope", Count: 0},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Name": "sofa"}, Expect: map[string]any{"Price": 1}},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Price": 20}, Expect: map[string]any{"Stock": 0}},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Id": 1}, Expect: map[string]any{"Colour": "red"}},
		{Type: AssertFinalState, Table: "Product", Where: map[string]any{"Id": 1}, Expect: map[string]any{"Price": 11}},
		{Type: AssertTraceCount, Op: OpAdd, Count: 1},
		{Type: "vibes"},
	}
	msgs := EvaluateAssertions(db, trace, failing)
	require.Len(t, msgs, len(failing))
	assert.Contains(t, msgs[0], "assertions[0]: assertion failed: row_count: expected 4 rows in Product, got 5 rows")
	assert.Contains(t, msgs[1], "UNKNOWN_ENTITY")
	assert.Contains(t, msgs[2], "row not found")
	assert.Contains(t, msgs[3], "2 rows (assertion is ambiguous)")
	assert.Contains(t, msgs[4], `field "Colour" to exist`)
	assert.Contains(t, msgs[5], "expected Price = 11, got Price = 10")
	assert.Contains(t, msgs[6], "expected 1 add events, got 0")
	assert.Contains(t, msgs[7], `unknown assertion type "vibes"`)
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Type: AssertRowCount, Expected: "3 rows", Actual: "2 rows"}
	assert.Equal(t, "assertion failed: row_count: expected 3 rows, got 2 rows", err.Error())
}
