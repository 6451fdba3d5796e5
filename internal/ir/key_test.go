package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyEqualityIsOrderSensitive(t *testing.T) {
	a := MustKey(5, 1001)
	b := MustKey(5, 1001)
	c := MustKey(1001, 5)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, a.Encode(), b.Encode())
	assert.NotEqual(t, a.Encode(), c.Encode())
}

func TestKeyEncodeDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t, MustKey(1).Encode(), MustKey("1").Encode())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "[5, 1001]", MustKey(5, 1001).String())
	assert.Equal(t, `["a", null]`, Key{String("a"), Null{}}.String())
}

func TestKeyHasNull(t *testing.T) {
	assert.False(t, MustKey(1, "x").HasNull())
	assert.True(t, Key{Int(1), Null{}}.HasNull())
}

func TestCompareKeys(t *testing.T) {
	assert.Equal(t, -1, CompareKeys(MustKey(1, 2), MustKey(1, 3)))
	assert.Equal(t, 1, CompareKeys(MustKey(2), MustKey(1, 9)))
	assert.Equal(t, -1, CompareKeys(MustKey(1), MustKey(1, 0)))
	assert.Equal(t, 0, CompareKeys(MustKey("a"), MustKey("a")))
}

func TestNewKeyRejectsUnsupported(t *testing.T) {
	_, err := NewKey(1, []int{2})
	require.Error(t, err)
}

func TestKeyGo(t *testing.T) {
	assert.Equal(t, []any{int64(1), "x"}, MustKey(1, "x").Go())
}
