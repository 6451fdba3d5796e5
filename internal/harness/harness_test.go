package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopSchema(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs("testdata/shop.cue")
	require.NoError(t, err)
	return path
}

// inline parses scenario YAML and points it at the shop schema.
func inline(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte("schema: shop.cue\n" + src))
	require.NoError(t, err)
	s.Schema = shopSchema(t)
	return s
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{"catalog", "transactions"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, s.Name)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/catalog.yaml")
	require.NoError(t, err)

	first, err := Run(t.Context(), s)
	require.NoError(t, err)
	second, err := Run(t.Context(), s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := inline(t, `
name: failing
seed:
  - entity: Category
    rows:
      - {Id: 1, Name: office}
steps:
  - query:
      from: Category
    expect:
      rows:
        - {Name: garden}
  - query:
      from: Category
      terminal: Count
    expect: {value: 5}
  - remove: {entity: Category, key: [1]}
    expect: {error: NOT_FOUND}
  - remove: {entity: Category, key: [1]}
  - begin: true
assertions:
  - type: row_count
    table: Category
    count: 1
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 6)
	assert.Contains(t, result.Errors[0], "steps[0] (query): rows[0]")
	assert.Contains(t, result.Errors[1], "value: expected 5, got 1")
	assert.Contains(t, result.Errors[2], "expected error NOT_FOUND, step succeeded")
	assert.Contains(t, result.Errors[3], "steps[3] (remove): unexpected error")
	assert.Contains(t, result.Errors[4], "transaction left open")
	assert.Contains(t, result.Errors[5], "assertions[0]")

	assert.Equal(t, "NOT_FOUND", result.Trace[4].Error, "the second remove misses")
}

func TestRun_QueryErrors(t *testing.T) {
	s := inline(t, `
name: errors
steps:
  - query:
      from: Category
      terminal: First
    expect: {error: SEQUENCE}
  - query:
      from: Nope
    expect: {error: UNKNOWN_ENTITY}
  - add: {entity: Category, row: {Id: 1, Name: a}}
  - add: {entity: Category, row: {Id: 1, Name: b}}
    expect: {error: DUPLICATE_KEY}
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_Params(t *testing.T) {
	s := inline(t, `
name: params
seed:
  - entity: Product
    rows:
      - {Name: pen, Price: 2}
      - {Name: desk, Price: 90}
steps:
  - query:
      from: Product
      params: {min: 50}
      steps:
        - where: p => p.Price >= @min
        - select: p => p.Name
    expect:
      rows: [desk]
  - query:
      from: Product
      params: {min: 50}
      steps:
        - where: p => p.Price >= @min
        - select: p => p.Name
    params: {min: 1}
    expect:
      rows: [pen, desk]
`)
	result, err := Run(t.Context(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BadSchemaOrSeed(t *testing.T) {
	s := inline(t, "name: x\nsteps:\n  - save: true\n")
	s.Schema = filepath.Join(t.TempDir(), "missing.cue")
	_, err := Run(t.Context(), s)
	assert.ErrorContains(t, err, "failed to load schema")

	s = inline(t, "name: x\nseed:\n  - entity: Nope\n    rows: [{}]\nsteps:\n  - save: true\n")
	_, err = Run(t.Context(), s)
	assert.ErrorContains(t, err, "failed to apply seed")
}

func TestRun_CancelledContext(t *testing.T) {
	s := inline(t, "name: x\nsteps:\n  - save: true\n")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := Run(ctx, s)
	assert.Error(t, err)
}
