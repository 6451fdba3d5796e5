// Package testutil holds fixture entity types and seeded databases shared
// by package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// Blog owns Posts.
type Blog struct {
	Id     int64
	Title  string
	Rating float64
	Posts  []*Post `tabula:"inverse=Blog"`
}

// Post belongs to a Blog and owns Comments.
type Post struct {
	Id       int64
	BlogId   int64
	Title    string
	Views    int
	Created  time.Time
	Blog     *Blog      `tabula:"inverse=Posts"`
	Comments []*Comment `tabula:"inverse=Post"`
}

// Comment belongs to a Post. Score is nullable.
type Comment struct {
	Id     int64
	PostId int64
	Author string
	Score  *int
	Post   *Post `tabula:"inverse=Comments"`
}

// Product has a generated key and no relations.
type Product struct {
	Id       int64 `tabula:"key,generated"`
	Name     string
	Price    float64
	Stock    int
	Category *string
}

// Model returns a finalized model over the fixture types.
func Model() *schema.Model {
	return schema.MustModel(&Blog{}, &Post{}, &Comment{}, &Product{})
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewDatabase returns an empty database over Model.
func NewDatabase(t testing.TB) *store.Database {
	t.Helper()
	db, err := store.NewDatabase("test", Model(), store.WithLogger(DiscardLogger()))
	require.NoError(t, err)
	return db
}

// Seed adds objs and commits them.
func Seed(t testing.TB, db *store.Database, objs ...any) {
	t.Helper()
	for _, obj := range objs {
		table, err := db.TableFor(obj)
		require.NoError(t, err)
		require.NoError(t, table.Add(obj))
	}
	_, err := db.SaveChanges(context.Background())
	require.NoError(t, err)
}

// Day returns midnight UTC of 2024-01-d.
func Day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

// SeedBlogs seeds three blogs, three posts and three comments:
//
//	Blog 1 "Go"    -> Post 1 "Intro" (comments 1, 2), Post 2 "Generics"
//	Blog 2 "Rust"  -> Post 3 "Ownership" (comment 3)
//	Blog 3 "Empty" -> no posts
func SeedBlogs(t testing.TB, db *store.Database) {
	t.Helper()
	Seed(t, db,
		&Blog{Id: 1, Title: "Go", Rating: 4.5},
		&Blog{Id: 2, Title: "Rust", Rating: 3},
		&Blog{Id: 3, Title: "Empty", Rating: 1},
		&Post{Id: 1, BlogId: 1, Title: "Intro", Views: 10, Created: Day(1)},
		&Post{Id: 2, BlogId: 1, Title: "Generics", Views: 30, Created: Day(3)},
		&Post{Id: 3, BlogId: 2, Title: "Ownership", Views: 20, Created: Day(2)},
		&Comment{Id: 1, PostId: 1, Author: "ann", Score: intPtr(5)},
		&Comment{Id: 2, PostId: 1, Author: "bob"},
		&Comment{Id: 3, PostId: 3, Author: "cy", Score: intPtr(2)},
	)
}

// SeedProducts seeds products 1..5 with prices 10, 20, 20, 40, 50.
// Products 2 and 3 tie on price; product 5 has no category.
func SeedProducts(t testing.TB, db *store.Database) {
	t.Helper()
	Seed(t, db,
		&Product{Id: 1, Name: "pen", Price: 10, Stock: 100, Category: strPtr("office")},
		&Product{Id: 2, Name: "ink", Price: 20, Stock: 0, Category: strPtr("office")},
		&Product{Id: 3, Name: "mug", Price: 20, Stock: 7, Category: strPtr("kitchen")},
		&Product{Id: 4, Name: "lamp", Price: 40, Stock: 3, Category: strPtr("home")},
		&Product{Id: 5, Name: "desk", Price: 50, Stock: 1},
	)
}
