package materialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

type Item struct {
	Id    int64
	Name  string
	Count int16
}

func itemDescriptor(t *testing.T) *schema.Descriptor {
	t.Helper()
	d, err := schema.Describe(&Item{})
	require.NoError(t, err)
	return d
}

func TestMaterialize_MissCreatesAndRegisters(t *testing.T) {
	desc := itemDescriptor(t)
	identity := NewIdentityMap()
	m := New(identity)

	row := store.Row{Key: ir.MustKey(1), Snapshot: ir.Snapshot{"Id": ir.Int(1), "Name": ir.String("a"), "Count": ir.Float(3)}}
	obj, err := m.Materialize(desc, row)
	require.NoError(t, err)
	assert.Equal(t, &Item{Id: 1, Name: "a", Count: 3}, obj)

	registered, ok := identity.TryGet("Item", ir.MustKey(1))
	require.True(t, ok)
	assert.Same(t, obj, registered)
}

func TestMaterialize_HitReturnsSameReference(t *testing.T) {
	desc := itemDescriptor(t)
	m := New(NewIdentityMap())

	row := store.Row{Key: ir.MustKey(1), Snapshot: ir.Snapshot{"Id": ir.Int(1), "Name": ir.String("a")}}
	first, err := m.Materialize(desc, row)
	require.NoError(t, err)

	// A newer snapshot of the same row does not overwrite the tracked instance.
	row.Snapshot = ir.Snapshot{"Id": ir.Int(1), "Name": ir.String("b")}
	second, err := m.Materialize(desc, row)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "a", second.(*Item).Name)

	created, hits := m.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, hits)
}

func TestMaterialize_CoercionFailure(t *testing.T) {
	desc := itemDescriptor(t)
	m := New(NewIdentityMap())

	row := store.Row{Key: ir.MustKey(1), Snapshot: ir.Snapshot{"Id": ir.Int(1), "Count": ir.Int(1 << 20)}}
	_, err := m.Materialize(desc, row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "materialize Item [1]")

	_, ok := m.Identity().TryGet("Item", ir.MustKey(1))
	assert.False(t, ok, "failed rows are not registered")
}

func TestIdentityMap_LoadedMarks(t *testing.T) {
	identity := NewIdentityMap()
	owner := &Item{Id: 1}
	other := &Item{Id: 1}

	identity.Register("Item", ir.MustKey(1), owner)
	identity.MarkLoaded(owner, "Parts")

	assert.True(t, identity.IsLoaded(owner, "Parts"))
	assert.False(t, identity.IsLoaded(owner, "Other"))
	assert.False(t, identity.IsLoaded(other, "Parts"), "marks are per instance, not per value")

	identity.Forget("Item", ir.MustKey(1))
	_, ok := identity.TryGet("Item", ir.MustKey(1))
	assert.False(t, ok)
	assert.False(t, identity.IsLoaded(owner, "Parts"))
}

func TestIdentityMap_EntityScopedKeys(t *testing.T) {
	identity := NewIdentityMap()
	a, b := &Item{Id: 1}, &Item{Id: 1}
	identity.Register("A", ir.MustKey(1), a)
	identity.Register("B", ir.MustKey(1), b)

	got, _ := identity.TryGet("A", ir.MustKey(1))
	assert.Same(t, a, got)
	got, _ = identity.TryGet("B", ir.MustKey(1))
	assert.Same(t, b, got)
}
