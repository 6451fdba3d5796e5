package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
	"github.com/roach88/tabula/internal/testutil"
)

type oracleCase struct {
	name   string
	plan   *queryir.Plan
	params map[string]any
}

func seeded(t *testing.T) *store.Database {
	t.Helper()
	db := testutil.NewDatabase(t)
	testutil.SeedBlogs(t, db)
	testutil.SeedProducts(t, db)
	return db
}

func openOracle(t *testing.T, db *store.Database) *Oracle {
	t.Helper()
	o, err := Open(t.Context(), db)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o
}

// normalize maps a value from either executor onto the canonical Go form.
func normalize(t *testing.T, v any) any {
	t.Helper()
	val, err := ir.FromGo(v)
	require.NoError(t, err, "value %#v", v)
	return ir.ToGo(val)
}

// engineRows flattens engine elements into column values: entities by
// descriptor field order, tuples by field order, scalars as one column.
func engineRows(t *testing.T, model *schema.Model, elems []any) [][]any {
	t.Helper()
	rows := make([][]any, 0, len(elems))
	for _, el := range elems {
		switch x := el.(type) {
		case *engine.Tuple:
			vals := x.Values()
			for i := range vals {
				vals[i] = normalize(t, vals[i])
			}
			rows = append(rows, vals)
		default:
			desc, err := model.DescriptorOf(el)
			if err != nil {
				rows = append(rows, []any{normalize(t, el)})
				continue
			}
			snap, err := desc.Snapshot(el)
			require.NoError(t, err)
			vals := make([]any, len(desc.Fields))
			for i, f := range desc.Fields {
				vals[i] = ir.ToGo(snap.Get(f.Name))
			}
			rows = append(rows, vals)
		}
	}
	return rows
}

func sqlValue(t *testing.T, want, got any) any {
	t.Helper()
	// SQLite answers EXISTS with an integer.
	if _, ok := want.(bool); ok {
		if n, isInt := got.(int64); isInt {
			return n != 0
		}
	}
	return normalize(t, got)
}

func runBoth(t *testing.T, db *store.Database, o *Oracle, tc oracleCase) (any, any) {
	t.Helper()
	e := engine.New(db.Model(), engine.WithLogger(testutil.DiscardLogger()))
	res, err := e.Execute(t.Context(), tc.plan, engine.Runtime{Tables: db, Params: tc.params})
	require.NoError(t, err)
	got, err := o.Query(t.Context(), tc.plan, tc.params)
	require.NoError(t, err)

	if res.IsScalar() {
		want := normalize(t, res.Value())
		return want, sqlValue(t, want, got.Value)
	}
	elems, err := res.Collect()
	require.NoError(t, err)
	rows := make([][]any, len(got.Rows))
	for i, r := range got.Rows {
		rows[i] = make([]any, len(r))
		for j, v := range r {
			rows[i][j] = normalize(t, v)
		}
	}
	return engineRows(t, db.Model(), elems), rows
}

func TestOracle_AgreesWithEngine(t *testing.T) {
	db := seeded(t)
	o := openOracle(t, db)

	cheap := queryir.Gt(path("p.Price"), lit(15))
	inStock := queryir.Gt(path("p.Stock"), lit(0))

	cases := []oracleCase{
		{name: "all products", plan: from("Product").Plan()},
		{name: "filter", plan: from("Product").Where(L("p", cheap)).Plan()},
		{name: "filter param", plan: from("Product").Where(L("p", queryir.Ge(path("p.Price"), queryir.P("min")))).Plan(), params: map[string]any{"min": 30}},
		{name: "null equality", plan: from("Comment").Where(L("c", queryir.Eq(path("c.Score"), lit(nil)))).Plan()},
		{name: "null inequality", plan: from("Comment").Where(L("c", queryir.Ne(path("c.Score"), lit(nil)))).Plan()},
		{name: "negated comparison with null", plan: from("Comment").Where(L("c", queryir.Negate(queryir.Gt(path("c.Score"), lit(3))))).Plan()},
		{name: "and or", plan: from("Product").Where(L("p", queryir.AllOf(
			queryir.AnyOf(queryir.Lt(path("p.Price"), lit(15)), queryir.Eq(path("p.Category"), lit("home"))),
			inStock,
		))).Plan()},
		{name: "stable descending sort", plan: from("Product").OrderByDescending(L("p", path("p.Price"))).Plan()},
		{name: "then by descending", plan: from("Product").OrderBy(L("p", path("p.Price"))).ThenByDescending(L("p", path("p.Name"))).Plan()},
		{name: "nulls sort first", plan: from("Product").OrderBy(L("p", path("p.Category"))).Plan()},
		{name: "string order", plan: from("Product").OrderBy(L("p", path("p.Name"))).Plan()},
		{name: "time order", plan: from("Post").OrderByDescending(L("p", path("p.Created"))).Plan()},
		{name: "skip take", plan: from("Product").OrderBy(L("p", path("p.Name"))).Skip(1).Take(2).Plan()},
		{name: "take then filter", plan: from("Product").Take(3).Where(L("p", inStock)).Plan()},
		{name: "take param", plan: from("Product").OrderByDescending(L("p", path("p.Stock"))).TakeParam("n").Plan(), params: map[string]any{"n": 2}},
		{name: "tuple", plan: from("Product").OrderBy(L("p", path("p.Name"))).Select(L("p", queryir.Tuple(
			queryir.F("name", path("p.Name")),
			queryir.F("total", queryir.Arith{Op: queryir.OpMul, Left: path("p.Price"), Right: path("p.Stock")}),
		))).Plan()},
		{name: "scalar call", plan: from("Product").Select(L("p", queryir.Fn("upper", path("p.Name")))).Plan()},
		{name: "concatenation", plan: from("Product").Select(L("p", queryir.Arith{Op: queryir.OpAdd, Left: path("p.Name"), Right: lit("!")})).Plan()},
		{name: "length filter", plan: from("Product").Where(L("p", queryir.Eq(queryir.Fn("len", path("p.Name")), lit(3)))).Plan()},
		{name: "sort projected scalar", plan: from("Product").Select(L("p", path("p.Stock"))).OrderBy(L("s", queryir.V("s"))).Plan()},

		{name: "count", plan: from("Product").Count()},
		{name: "count predicate", plan: from("Product").Count(L("p", inStock))},
		{name: "long count", plan: from("Comment").LongCount()},
		{name: "any", plan: from("Product").Any(L("p", queryir.Gt(path("p.Price"), lit(45))))},
		{name: "any empty", plan: from("Product").Where(L("p", queryir.Gt(path("p.Price"), lit(100)))).Any()},
		{name: "all true", plan: from("Product").All(L("p", queryir.Gt(path("p.Price"), lit(5))))},
		{name: "all false", plan: from("Product").All(L("p", inStock))},
		{name: "sum int", plan: from("Product").Sum(L("p", path("p.Stock")))},
		{name: "sum float", plan: from("Product").Sum(L("p", path("p.Price")))},
		{name: "sum empty", plan: from("Product").Where(L("p", queryir.Gt(path("p.Price"), lit(100)))).Sum(L("p", path("p.Stock")))},
		{name: "sum skips null", plan: from("Comment").Sum(L("c", path("c.Score")))},
		{name: "max projected", plan: from("Product").Select(L("p", path("p.Price"))).Max()},
		{name: "min selector", plan: from("Product").Min(L("p", path("p.Price")))},
		{name: "min skips null", plan: from("Comment").Min(L("c", path("c.Score")))},
		{name: "max string", plan: from("Product").Max(L("p", path("p.Name")))},
		{name: "average", plan: from("Product").Average(L("p", path("p.Price")))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want, got := runBoth(t, db, o, tc)
			assert.Equal(t, want, got)
		})
	}
}

func TestOracle_AverageOfIntegers(t *testing.T) {
	db := seeded(t)
	o := openOracle(t, db)

	want, got := runBoth(t, db, o, oracleCase{plan: from("Product").Average(L("p", path("p.Stock")))})
	require.IsType(t, float64(0), got)
	assert.InDelta(t, want.(float64), got.(float64), 1e-9)
}

func TestOracle_CopiesPendingChanges(t *testing.T) {
	db := seeded(t)
	products, err := db.GetTable("Product")
	require.NoError(t, err)
	require.NoError(t, products.Add(&testutil.Product{Name: "cup", Price: 5}))

	o := openOracle(t, db)
	res, err := o.Query(t.Context(), from("Product").Count(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Value, "pending adds are part of the effective rows")
}

func TestOracle_Columns(t *testing.T) {
	o := openOracle(t, seeded(t))

	res, err := o.Query(t.Context(), from("Product").Select(L("p", queryir.Tuple(
		queryir.F("name", path("p.Name")),
		queryir.F("price", path("p.Price")),
	))).Take(1).Plan(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, res.Columns)
	assert.Equal(t, [][]any{{"pen", 10.0}}, res.Rows)
}

func TestOracle_UnsupportedPlan(t *testing.T) {
	o := openOracle(t, seeded(t))
	_, err := o.Query(t.Context(), from("Blog").Include("Posts").Plan(), nil)
	assert.ErrorContains(t, err, "not supported")
}
