package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_FixtureRelations(t *testing.T) {
	m := Model()

	blog, err := m.Descriptor("Blog")
	require.NoError(t, err)
	posts, ok := blog.Relation("Posts")
	require.True(t, ok)
	assert.True(t, posts.Collection)
	assert.Equal(t, []string{"BlogId"}, posts.ForeignKey)
	assert.False(t, posts.OwnerHoldsKey)

	post, err := m.Descriptor("Post")
	require.NoError(t, err)
	ref, ok := post.Relation("Blog")
	require.True(t, ok)
	assert.True(t, ref.OwnerHoldsKey)
	assert.Equal(t, "Posts", ref.Inverse)
}

func TestSeedBlogs(t *testing.T) {
	db := NewDatabase(t)
	SeedBlogs(t, db)

	for entity, want := range map[string]int{"Blog": 3, "Post": 3, "Comment": 3, "Product": 0} {
		table, err := db.GetTable(entity)
		require.NoError(t, err)
		assert.Equal(t, want, table.Len(), entity)
		assert.Zero(t, table.PendingCount(), entity)
	}
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Equal(t, "b", gen.Generate(), "last ID repeats")

	assert.Equal(t, "test-session", NewFixedIDGenerator().Generate())
}
