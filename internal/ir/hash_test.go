package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowDigestDeterminism(t *testing.T) {
	key := Key{Int(1)}
	snap := Snapshot{"Id": Int(1), "Name": String("Widget")}

	d1, err := RowDigest("Product", key, snap)
	require.NoError(t, err)
	d2, err := RowDigest("Product", key, snap.Clone())
	require.NoError(t, err)

	assert.Equal(t, d1, d2, "RowDigest must be deterministic")
	assert.Len(t, d1, 64, "SHA-256 hex is 64 characters")
}

func TestRowDigestChangesWithInput(t *testing.T) {
	snap := Snapshot{"Id": Int(1), "Name": String("Widget")}

	base, err := RowDigest("Product", Key{Int(1)}, snap)
	require.NoError(t, err)

	otherEntity, err := RowDigest("Order", Key{Int(1)}, snap)
	require.NoError(t, err)
	otherKey, err := RowDigest("Product", Key{Int(2)}, snap)
	require.NoError(t, err)
	otherSnap, err := RowDigest("Product", Key{Int(1)}, Snapshot{"Id": Int(1), "Name": String("Gadget")})
	require.NoError(t, err)

	assert.NotEqual(t, base, otherEntity)
	assert.NotEqual(t, base, otherKey)
	assert.NotEqual(t, base, otherSnap)
}

func TestCombineDigestsOrderSensitive(t *testing.T) {
	a := CombineDigests("T", []string{"x", "y"})
	b := CombineDigests("T", []string{"y", "x"})
	c := CombineDigests("T", []string{"x", "y"})

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestCombineDigestsEmpty(t *testing.T) {
	assert.NotEqual(t, CombineDigests("A", nil), CombineDigests("B", nil))
}
