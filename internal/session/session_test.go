package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/testutil"
)

var (
	from = queryir.From
	L    = queryir.L
	path = queryir.Path
	lit  = queryir.Lit
)

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	db := testutil.NewDatabase(t)
	testutil.SeedBlogs(t, db)
	testutil.SeedProducts(t, db)
	opts = append([]Option{
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(testutil.NewFixedIDGenerator("s-1")),
	}, opts...)
	return New(db, opts...)
}

func TestNew_AssignsID(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, "s-1", s.ID())

	db := testutil.NewDatabase(t)
	a := New(db, WithLogger(testutil.DiscardLogger()))
	b := New(db, WithLogger(testutil.DiscardLogger()))
	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestFind_SameInstanceAsQuery(t *testing.T) {
	s := newSession(t)

	found, ok, err := s.Find("Blog", 1)
	require.NoError(t, err)
	require.True(t, ok)

	blogs, err := s.List(t.Context(), from("Blog").Where(L("b", queryir.Eq(path("b.Title"), lit("Go")))).Plan())
	require.NoError(t, err)
	require.Len(t, blogs, 1)
	assert.Same(t, found, blogs[0])

	again, _, err := s.Find("Blog", int64(1))
	require.NoError(t, err)
	assert.Same(t, found, again)
}

func TestFind_Miss(t *testing.T) {
	s := newSession(t)

	got, ok, err := s.Find("Blog", 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	_, _, err = s.Find("Nope", 1)
	assert.True(t, errs.Is(err, errs.UnknownEntity))

	_, _, err = s.Find("Blog")
	assert.Error(t, err)
}

func TestAdd_RegistersInstanceAndAssignsKey(t *testing.T) {
	s := newSession(t)
	p := &testutil.Product{Name: "tape", Price: 3}

	require.NoError(t, s.Add(p))
	assert.Equal(t, int64(6), p.Id)

	got, err := ListOf[*testutil.Product](t.Context(), s, from("Product").Where(L("p", queryir.Eq(path("p.Name"), lit("tape")))).Plan())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, p, got[0], "a pending Added entity is the instance queries yield")

	n, err := s.SaveChanges(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, ok, err := FindOf[*testutil.Product](s, 6)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, p, found)
}

func TestAdd_DuplicateKey(t *testing.T) {
	s := newSession(t)
	err := s.Add(&testutil.Blog{Id: 1, Title: "again"})
	assert.True(t, errs.Is(err, errs.DuplicateKey))
}

func TestUpdate_VisibleToQueries(t *testing.T) {
	s := newSession(t)
	mug, _, err := FindOf[*testutil.Product](s, 3)
	require.NoError(t, err)

	mug.Price = 99
	require.NoError(t, s.Update(mug))

	top, err := s.Scalar(t.Context(), from("Product").OrderByDescending(L("p", path("p.Price"))).First())
	require.NoError(t, err)
	assert.Same(t, mug, top)

	err = s.Update(&testutil.Product{Id: 42})
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestRemove_ForgetsInstance(t *testing.T) {
	s := newSession(t)
	pen, _, err := FindOf[*testutil.Product](s, 1)
	require.NoError(t, err)

	require.NoError(t, s.Remove(pen))
	_, ok, err := s.Find("Product", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := s.Scalar(t.Context(), from("Product").Count())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	err = s.Remove(pen)
	assert.True(t, errs.Is(err, errs.NotFound))
}

func TestListAndScalar_RejectWrongPlanShape(t *testing.T) {
	s := newSession(t)

	_, err := s.List(t.Context(), from("Product").Count())
	assert.True(t, errs.Is(err, errs.NotSupported))

	_, err = s.Scalar(t.Context(), from("Product").Plan())
	assert.True(t, errs.Is(err, errs.NotSupported))

	_, err = s.List(t.Context(), nil)
	assert.True(t, errs.Is(err, errs.NullArgument))
}

func TestListOf_WrongType(t *testing.T) {
	s := newSession(t)
	_, err := ListOf[*testutil.Blog](t.Context(), s, from("Product").Plan())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not *testutil.Blog")
}

func TestFindOf_UnknownType(t *testing.T) {
	s := newSession(t)
	_, _, err := FindOf[*testing.T](s, 1)
	assert.True(t, errs.Is(err, errs.UnknownEntity))
}

func TestWithParams_BindsQueries(t *testing.T) {
	s := newSession(t, WithParams(map[string]any{"min": 30}))

	got, err := ListOf[*testutil.Product](t.Context(), s, from("Product").Where(L("p", queryir.Ge(path("p.Price"), queryir.P("min")))).Plan())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lamp", got[0].Name)
}

func TestTransaction_RollbackDiscardsChanges(t *testing.T) {
	s := newSession(t)
	ctx := t.Context()

	tx, err := s.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, s.Add(&testutil.Blog{Id: 10, Title: "Draft"}))
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)

	count, err := s.Scalar(ctx, from("Blog").Count())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	require.NoError(t, tx.Rollback())
	count, err = s.Scalar(ctx, from("Blog").Count())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSaveChanges_CancelledContext(t *testing.T) {
	s := newSession(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := s.SaveChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_IncludesShareSessionIdentity(t *testing.T) {
	s := newSession(t)
	intro, _, err := FindOf[*testutil.Post](s, 1)
	require.NoError(t, err)

	blogs, err := ListOf[*testutil.Blog](t.Context(), s, from("Blog").Include("Posts").Plan())
	require.NoError(t, err)
	require.NotEmpty(t, blogs[0].Posts)
	assert.Same(t, intro, blogs[0].Posts[0])
	assert.Same(t, blogs[0], intro.Blog)
}
