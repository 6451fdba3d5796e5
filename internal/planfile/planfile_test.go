package planfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/testutil"
)

const shopPlans = `
plans:
  - name: cheap
    from: Product
    params: {max: 25}
    steps:
      - where: p => p.Price <= @max
      - orderByDescending: p => p.Price
      - thenBy: p => p.Name
      - take: 2
    terminal: Count
  - name: page
    from: Product
    steps:
      - orderBy: p => p.Name
      - skip: "@offset"
      - take: 2
      - select: "p => {name: p.Name, total: p.Price * p.Stock}"
  - name: posts
    from: Blog
    steps:
      - selectMany: b => b->Posts
        result: "(b, p) => {blog: b.Title, post: p.Title}"
  - name: comments
    from: Post
    steps:
      - leftJoin:
          inner:
            from: Comment
            steps:
              - where: c => c.Score != null
          outerKey: p => p.Id
          innerKey: c => c.PostId
          result: "(p, c) => {post: p.Title, comment: c}"
    include: [Blog]
`

func buildPlan(t *testing.T, f *File, name string) *queryir.Plan {
	t.Helper()
	spec, err := f.Plan(name)
	require.NoError(t, err)
	plan, err := spec.Build()
	require.NoError(t, err)
	return plan
}

func TestBuild_MatchesBuilder(t *testing.T) {
	f, err := Parse([]byte(shopPlans))
	require.NoError(t, err)

	built := buildPlan(t, f, "cheap")
	want, err := queryir.From("Product").
		Where(queryir.L("p", queryir.Le(queryir.Path("p.Price"), queryir.P("max")))).
		OrderByDescending(queryir.L("p", queryir.Path("p.Price"))).
		ThenBy(queryir.L("p", queryir.Path("p.Name"))).
		Take(2).
		Count().
		WithParams(map[string]any{"max": 25})
	require.NoError(t, err)
	assert.Equal(t, queryir.Format(want), queryir.Format(built))
}

func TestBuild_RunsThroughEngine(t *testing.T) {
	f, err := Parse([]byte(shopPlans))
	require.NoError(t, err)
	db := testutil.NewDatabase(t)
	testutil.SeedBlogs(t, db)
	testutil.SeedProducts(t, db)
	e := engine.New(db.Model(), engine.WithLogger(testutil.DiscardLogger()))
	ctx := t.Context()

	res, err := e.Execute(ctx, buildPlan(t, f, "cheap"), engine.Runtime{Tables: db})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Value())

	res, err = e.Execute(ctx, buildPlan(t, f, "page"), engine.Runtime{Tables: db, Params: map[string]any{"offset": 1}})
	require.NoError(t, err)
	page, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, page, 2)
	name, _ := page[0].(*engine.Tuple).Get("name")
	total, _ := page[0].(*engine.Tuple).Get("total")
	assert.Equal(t, "ink", name)
	assert.Equal(t, 0.0, total)

	res, err = e.Execute(ctx, buildPlan(t, f, "posts"), engine.Runtime{Tables: db})
	require.NoError(t, err)
	posts, err := res.Collect()
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	res, err = e.Execute(ctx, buildPlan(t, f, "comments"), engine.Runtime{Tables: db})
	require.NoError(t, err)
	rows, err := res.Collect()
	require.NoError(t, err)
	// Intro has one scored comment, Generics none, Ownership one.
	require.Len(t, rows, 3)
	c, _ := rows[1].(*engine.Tuple).Get("comment")
	assert.Nil(t, c)
}

func TestDescribe_RoundTrip(t *testing.T) {
	f, err := Parse([]byte(shopPlans))
	require.NoError(t, err)

	for _, spec := range f.Plans {
		t.Run(spec.Name, func(t *testing.T) {
			plan, err := spec.Build()
			require.NoError(t, err)

			described, err := Describe(plan)
			require.NoError(t, err)
			out, err := Marshal(&File{Plans: []PlanSpec{described}})
			require.NoError(t, err)

			reparsed, err := Parse(out)
			require.NoError(t, err)
			again := buildPlan(t, reparsed, "")
			assert.Equal(t, queryir.Format(plan), queryir.Format(again))
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "plans:\n  - from: Product\n    wher: x\n", "field wher not found"},
		{"two operations", "plans:\n  - from: Product\n    steps:\n      - {where: p => true, take: 1}\n", "exactly one operation"},
		{"bad count", "plans:\n  - from: Product\n    steps:\n      - take: many\n", "integer or @param"},
		{"negative count", "plans:\n  - from: Product\n    steps:\n      - skip: -1\n", "negative"},
		{"bad terminal", "plans:\n  - from: Product\n    terminal: Median\n", "unknown terminal"},
		{"stray argument", "plans:\n  - from: Product\n    argument: p => true\n", "without a terminal"},
		{"stray result", "plans:\n  - from: Product\n    steps:\n      - {where: p => true, result: \"(a, b) => a\"}\n", "only valid with selectMany"},
		{"missing from", "plans:\n  - name: x\n", "from is required"},
		{"bad lambda", "plans:\n  - from: Product\n    steps:\n      - where: p => q\n", "unknown identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.yaml))
			if err == nil {
				var spec *PlanSpec
				spec, err = f.Plan("")
				require.NoError(t, err)
				_, err = spec.Build()
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFile_Plan(t *testing.T) {
	f, err := Parse([]byte(shopPlans))
	require.NoError(t, err)

	_, err = f.Plan("")
	assert.ErrorContains(t, err, "has 4 plans")
	_, err = f.Plan("nope")
	assert.ErrorContains(t, err, `no plan named "nope"`)
}
