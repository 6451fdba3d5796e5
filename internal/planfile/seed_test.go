package planfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/testutil"
)

const seedYAML = `
seed:
  - entity: Blog
    rows:
      - {Id: 1, Title: Go, Rating: 4}
  - entity: Post
    rows:
      - {Id: 1, BlogId: 1, Title: Intro, Created: 2024-01-01T00:00:00Z}
  - entity: Product
    rows:
      - {Name: pen, Price: 10, Category: office}
      - {Name: desk, Price: 50}
`

func TestApplySeed(t *testing.T) {
	f, err := Parse([]byte(seedYAML))
	require.NoError(t, err)
	db := testutil.NewDatabase(t)

	n, err := ApplySeed(t.Context(), db, f.Seed)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	posts, err := db.GetTable("Post")
	require.NoError(t, err)
	row, ok := posts.Lookup(ir.MustKey(1))
	require.True(t, ok)
	assert.Equal(t, ir.String("2024-01-01T00:00:00Z"), row.Snapshot.Get("Created"))

	products, err := db.GetTable("Product")
	require.NoError(t, err)
	desk, ok := products.Lookup(ir.MustKey(2))
	require.True(t, ok, "generated keys are assigned in file order")
	assert.Equal(t, ir.String("desk"), desk.Snapshot.Get("Name"))
	assert.True(t, ir.IsNull(desk.Snapshot.Get("Category")))
}

func TestApplySeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		sets []SeedSet
		want string
	}{
		{"unknown entity", []SeedSet{{Entity: "Nope", Rows: []map[string]any{{}}}}, "entity is not part of the model"},
		{"unknown field", []SeedSet{{Entity: "Blog", Rows: []map[string]any{{"Id": 1, "Color": "red"}}}}, `no field "Color"`},
		{"wrong kind", []SeedSet{{Entity: "Blog", Rows: []map[string]any{{"Id": "one"}}}}, "cannot store"},
		{"duplicate", []SeedSet{{Entity: "Blog", Rows: []map[string]any{{"Id": 1}, {"Id": 1}}}}, "rows[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewDatabase(t)
			_, err := ApplySeed(t.Context(), db, tt.sets)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInstantiate_StructFields(t *testing.T) {
	db := testutil.NewDatabase(t)
	desc, err := db.Model().Descriptor("Comment")
	require.NoError(t, err)

	obj, err := Instantiate(desc, map[string]any{"Id": 3, "PostId": 1, "Author": "cy", "Score": 2})
	require.NoError(t, err)
	c := obj.(*testutil.Comment)
	assert.Equal(t, "cy", c.Author)
	require.NotNil(t, c.Score)
	assert.Equal(t, 2, *c.Score)

	table, err := db.GetTable("Comment")
	require.NoError(t, err)
	obj, err = Instantiate(desc, map[string]any{"Author": "x"})
	require.NoError(t, err)
	assert.NoError(t, table.Add(obj), "an unset int key is zero, not null")
	assert.True(t, errs.Is(table.Add(obj), errs.DuplicateKey))
}
