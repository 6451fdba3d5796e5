package store

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
)

type Product struct {
	Id    int64
	Name  string
	Price float64
}

type OrderLine struct {
	OrderId  int `tabula:"key"`
	LineId   int `tabula:"key"`
	Quantity int
}

type Widget struct {
	Id   int64 `tabula:"key,generated"`
	Name string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestDB creates an empty database over the test entity types.
func createTestDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	model := schema.MustModel(&Product{}, &OrderLine{}, &Widget{})
	db, err := NewDatabase("test", model, append([]Option{WithLogger(discardLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("NewDatabase() failed: %v", err)
	}
	return db
}

// table returns the visible table for entity or fails the test.
func table(t *testing.T, db *Database, entity string) *Table {
	t.Helper()
	tbl, err := db.GetTable(entity)
	if err != nil {
		t.Fatalf("GetTable(%q) failed: %v", entity, err)
	}
	return tbl
}

// cachingMaterializer is a minimal identity-resolving materializer.
type cachingMaterializer struct {
	seen map[string]any
}

func newCachingMaterializer() *cachingMaterializer {
	return &cachingMaterializer{seen: map[string]any{}}
}

func (m *cachingMaterializer) Materialize(desc *schema.Descriptor, row Row) (any, error) {
	id := desc.Name + row.Key.Encode()
	if obj, ok := m.seen[id]; ok {
		return obj, nil
	}
	obj := desc.Accessor.New()
	if err := desc.Apply(obj, row.Snapshot); err != nil {
		return nil, err
	}
	m.seen[id] = obj
	return obj, nil
}

// seedProducts adds and commits products with the given ids.
func seedProducts(t *testing.T, db *Database, ids ...int64) {
	t.Helper()
	tbl := table(t, db, "Product")
	for _, id := range ids {
		if err := tbl.Add(&Product{Id: id, Name: "p", Price: float64(id)}); err != nil {
			t.Fatalf("Add(%d) failed: %v", id, err)
		}
	}
	tbl.Commit()
}

func keysOf(tbl *Table) []int64 {
	var out []int64
	for row := range tbl.EffectiveRows() {
		out = append(out, int64(row.Key[0].(ir.Int)))
	}
	return out
}
