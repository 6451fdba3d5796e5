package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/schema"
)

func TestTransaction_RollbackIsolation(t *testing.T) {
	db := createTestDB(t)
	seedProducts(t, db, 1, 2, 3)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	assert.Equal(t, TxActive, tx.State())

	overlay := table(t, db, "Product")
	require.NoError(t, overlay.Add(&Product{Id: 4}))
	assert.Equal(t, 4, overlay.Len())

	base, err := db.BaseTable("Product")
	require.NoError(t, err)
	assert.Equal(t, 3, base.Len(), "base readers do not see overlay writes")

	require.NoError(t, tx.Rollback())
	assert.Equal(t, TxRolledBack, tx.State())
	assert.Nil(t, db.Transaction())
	assert.Equal(t, 3, table(t, db, "Product").Len())
}

func TestTransaction_CommitReplaysOverlay(t *testing.T) {
	db := createTestDB(t)
	seedProducts(t, db, 1, 2, 3)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)

	overlay := table(t, db, "Product")
	require.NoError(t, overlay.Add(&Product{Id: 4}))
	require.NoError(t, overlay.Remove(&Product{Id: 1}))
	assert.Same(t, overlay, table(t, db, "Product"), "overlay is created once")

	n, err := tx.Commit()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, TxCommitted, tx.State())

	base := table(t, db, "Product")
	assert.Equal(t, []int64{2, 3, 4}, keysOf(base))
	assert.Equal(t, 0, base.PendingCount())
}

func TestTransaction_CommitAddsOneRow(t *testing.T) {
	db := createTestDB(t)
	seedProducts(t, db, 1, 2, 3)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, table(t, db, "Product").Add(&Product{Id: 10}))
	_, err = tx.Commit()
	require.NoError(t, err)

	assert.Equal(t, 4, table(t, db, "Product").Len())
}

func TestTransaction_UntouchedTablesAreKept(t *testing.T) {
	db := createTestDB(t)
	seedProducts(t, db, 1)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, table(t, db, "Widget").Add(&Widget{Name: "w"}))
	_, err = tx.Commit()
	require.NoError(t, err)

	assert.Equal(t, 1, table(t, db, "Product").Len())
	assert.Equal(t, 1, table(t, db, "Widget").Len())
}

func TestTransaction_StateErrors(t *testing.T) {
	db := createTestDB(t)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)

	_, err = db.BeginTransaction()
	require.Error(t, err)
	assert.True(t, errs.IsTransactionState(err))
	assert.Contains(t, err.Error(), "state=Active")

	_, err = tx.Commit()
	require.NoError(t, err)

	_, err = tx.Commit()
	assert.True(t, errs.IsTransactionState(err))
	assert.Contains(t, err.Error(), "state=Committed")

	err = tx.Rollback()
	assert.True(t, errs.IsTransactionState(err))

	// A new transaction may begin once the previous one ended.
	tx2, err := db.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())
	assert.NotEqual(t, tx.ID(), tx2.ID())
}

func TestSaveChanges_SumsAllTables(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, table(t, db, "Product").Add(&Product{Id: 1}))
	require.NoError(t, table(t, db, "Product").Add(&Product{Id: 2}))
	require.NoError(t, table(t, db, "OrderLine").Add(&OrderLine{OrderId: 1, LineId: 1}))

	n, err := db.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = db.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSaveChanges_CanceledContext(t *testing.T) {
	db := createTestDB(t)
	require.NoError(t, table(t, db, "Product").Add(&Product{Id: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.SaveChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, table(t, db, "Product").PendingCount())
}

func TestGetTable_UnknownEntity(t *testing.T) {
	db := createTestDB(t)
	_, err := db.GetTable("Nope")
	assert.Equal(t, errs.UnknownEntity, errs.CodeOf(err))

	_, err = db.TableFor(&struct{ Id int }{})
	assert.Equal(t, errs.UnknownEntity, errs.CodeOf(err))

	tbl, err := db.TableFor(&Product{})
	require.NoError(t, err)
	assert.Equal(t, "Product", tbl.Entity())
}

func TestDatabase_DigestTracksTransactions(t *testing.T) {
	db := createTestDB(t)
	seedProducts(t, db, 1)
	before, err := db.Digest()
	require.NoError(t, err)

	tx, err := db.BeginTransaction()
	require.NoError(t, err)
	require.NoError(t, table(t, db, "Product").Add(&Product{Id: 2}))
	during, err := db.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, before, during)

	require.NoError(t, tx.Rollback())
	after, err := db.Digest()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRegistry_SameNameSameInstance(t *testing.T) {
	r := NewRegistry()
	model := schema.MustModel(&Product{})

	a, err := r.Open("shop", model, WithLogger(discardLogger()))
	require.NoError(t, err)
	b, err := r.Open("shop", nil)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := r.Open("other", model, WithLogger(discardLogger()))
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"other", "shop"}, r.Names())

	assert.True(t, r.Drop("shop"))
	assert.False(t, r.Drop("shop"))
}

func TestAllocator_ConcurrentNextIsUnique(t *testing.T) {
	a := NewAllocator()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := a.Next("Widget", "Id")
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
	assert.Equal(t, int64(800), a.Current("Widget", "Id"))

	a.Observe("Widget", "Id", 5)
	assert.Equal(t, int64(800), a.Current("Widget", "Id"), "observing a lower value is a no-op")
	assert.Equal(t, int64(1), a.Next("Widget", "Other"))
}
