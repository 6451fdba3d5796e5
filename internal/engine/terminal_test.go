package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/testutil"
)

func TestTerminals(t *testing.T) {
	e, db := setupEngine(t)
	products := from("Product")
	none := products.Where(L("p", lit(false)))
	price := L("p", path("p.Price"))
	stock := L("p", path("p.Stock"))

	tests := []struct {
		name string
		plan *queryir.Plan
		want any
	}{
		{"count", products.Count(), 5},
		{"count predicate", products.Count(L("p", queryir.Gt(path("p.Price"), lit(20)))), 2},
		{"long count", products.LongCount(), int64(5)},
		{"count empty", none.Count(), 0},
		{"any", products.Any(), true},
		{"any empty", none.Any(), false},
		{"any predicate", products.Any(L("p", queryir.Gt(path("p.Price"), lit(100)))), false},
		{"all", products.All(L("p", queryir.Gt(path("p.Price"), lit(5)))), true},
		{"all fails", products.All(L("p", queryir.Gt(path("p.Stock"), lit(0)))), false},
		{"all vacuous", none.All(L("p", lit(false))), true},
		{"min", products.Min(price), 10.0},
		{"max", products.Max(price), 50.0},
		{"max projected", products.Select(price).Max(), 50.0},
		{"sum ints", products.Sum(stock), int64(111)},
		{"sum floats", products.Sum(price), 140.0},
		{"sum empty", none.Sum(stock), int64(0)},
		{"sum floats empty", none.Sum(price), 0.0},
		{"sum projected floats empty", none.Select(price).Sum(), 0.0},
		{"average", products.Average(price), 28.0},
		{"average ints", products.Average(stock), 22.2},
		{"first or default entity", none.FirstOrDefault(), nil},
		{"first or default int", none.Select(stock).FirstOrDefault(), int64(0)},
		{"single or default empty", none.SingleOrDefault(), nil},
		{"max time", from("Post").Max(L("p", path("p.Created"))), testutil.Day(3)},
		{"min skips nulls", from("Comment").Min(L("c", path("c.Score"))), int64(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Execute(t.Context(), tt.plan, Runtime{Tables: db})
			require.NoError(t, err)
			assert.True(t, res.IsScalar())
			assert.Equal(t, tt.want, res.Value())
		})
	}
}

func TestTerminals_ElementResults(t *testing.T) {
	e, db := setupEngine(t)
	products := from("Product")

	res, err := e.Execute(t.Context(), products.OrderByDescending(L("p", path("p.Price"))).First(), Runtime{Tables: db})
	require.NoError(t, err)
	assert.Equal(t, "desk", res.Value().(*testutil.Product).Name)

	res, err = e.Execute(t.Context(), products.First(L("p", queryir.Eq(path("p.Price"), lit(20)))), Runtime{Tables: db})
	require.NoError(t, err)
	assert.Equal(t, "ink", res.Value().(*testutil.Product).Name)

	res, err = e.Execute(t.Context(), products.Single(L("p", queryir.Eq(path("p.Id"), lit(3)))), Runtime{Tables: db})
	require.NoError(t, err)
	assert.Equal(t, "mug", res.Value().(*testutil.Product).Name)

	res, err = e.Execute(t.Context(), products.Where(L("p", queryir.Eq(path("p.Name"), lit("lamp")))).SingleOrDefault(), Runtime{Tables: db})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Value().(*testutil.Product).Id)
}

func TestTerminals_SequenceErrors(t *testing.T) {
	e, db := setupEngine(t)
	products := from("Product")
	none := products.Where(L("p", lit(false)))

	tests := []struct {
		name string
		plan *queryir.Plan
		many bool
	}{
		{"first empty", none.First(), false},
		{"single empty", none.Single(), false},
		{"single many", products.Single(), true},
		{"single or default many", products.Where(L("p", queryir.Eq(path("p.Price"), lit(20)))).SingleOrDefault(), true},
		{"min empty", none.Min(L("p", path("p.Price"))), false},
		{"max empty", none.Max(L("p", path("p.Price"))), false},
		{"average empty", none.Average(L("p", path("p.Price"))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(t.Context(), tt.plan, Runtime{Tables: db})
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.Sequence))
			assert.Equal(t, tt.many, IsMoreThanOneElement(err))
			assert.Equal(t, !tt.many, IsNoElements(err))
		})
	}
}

func TestTerminals_ElementsEmptyForScalars(t *testing.T) {
	e, db := setupEngine(t)
	res, err := e.Execute(t.Context(), from("Product").Count(), Runtime{Tables: db})
	require.NoError(t, err)

	got, err := res.Collect()
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, queryir.Count, res.Terminal())
}
