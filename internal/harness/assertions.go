package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/store"
)

// AssertionError is returned when an assertion or expectation fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the trace and the
// database's effective rows, returning one message per failure.
func EvaluateAssertions(db *store.Database, trace []TraceEvent, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRowCount:
			err = assertRowCount(db, a)
		case AssertFinalState:
			err = assertFinalState(db, a)
		case AssertTraceCount:
			err = assertTraceCount(trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func assertRowCount(db *store.Database, a Assertion) error {
	table, err := db.GetTable(a.Table)
	if err != nil {
		return err
	}
	if n := table.Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// assertFinalState requires exactly one row matching Where, then checks
// Expect against it by subset.
func assertFinalState(db *store.Database, a Assertion) error {
	table, err := db.GetTable(a.Table)
	if err != nil {
		return err
	}
	var matched []map[string]any
	for row := range table.EffectiveRows() {
		fields := make(map[string]any, len(row.Snapshot))
		for name, v := range row.Snapshot {
			fields[name] = ir.ToGo(v)
		}
		if a.Where == nil || matchValue(a.Where, fields) {
			matched = append(matched, fields)
		}
	}
	switch len(matched) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatFields(a.Where)),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatFields(a.Where)),
			Actual:   fmt.Sprintf("%d rows (assertion is ambiguous)", len(matched)),
		}
	}
	for _, name := range sortedNames(a.Expect) {
		got, ok := matched[0][name]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", name),
				Actual:   fmt.Sprintf("fields %s", formatFields(matched[0])),
			}
		}
		if !matchValue(a.Expect[name], got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s = %v", name, a.Expect[name]),
				Actual:   fmt.Sprintf("%s = %v", name, got),
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Op == a.Op {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// matchValue reports whether got satisfies want. Maps match by subset,
// lists element-wise with equal length, scalars by ir.Equal so that 10
// and 10.0 are the same number.
func matchValue(want, got any) bool {
	switch w := want.(type) {
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, ok := g[k]
			if !ok || !matchValue(wv, gv) {
				return false
			}
		}
		return true
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !matchValue(w[i], g[i]) {
				return false
			}
		}
		return true
	}
	if _, isMap := got.(map[string]any); isMap {
		return false
	}
	if _, isList := got.([]any); isList {
		return false
	}
	wv, err := ir.FromGo(want)
	if err != nil {
		return false
	}
	gv, err := ir.FromGo(got)
	if err != nil {
		return false
	}
	if ir.IsNull(wv) || ir.IsNull(gv) {
		return ir.IsNull(wv) && ir.IsNull(gv)
	}
	return ir.Equal(wv, gv)
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func formatFields(m map[string]any) string {
	if len(m) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedNames(m) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return strings.Join(parts, " AND ")
}
