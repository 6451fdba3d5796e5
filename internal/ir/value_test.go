package ir

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Compile-time check that every variant implements Value.
	var _ Value = Null{}
	var _ Value = Bool(true)
	var _ Value = Int(42)
	var _ Value = Float(1.5)
	var _ Value = String("x")
}

type status string

func TestFromGo(t *testing.T) {
	id := uuid.MustParse("0190d3c4-8b7a-7c3e-9f00-000000000001")
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 7
	var nilPtr *int

	tests := []struct {
		name  string
		input any
		want  Value
	}{
		{"nil", nil, Null{}},
		{"bool", true, Bool(true)},
		{"int", 3, Int(3)},
		{"int32", int32(-4), Int(-4)},
		{"uint16", uint16(9), Int(9)},
		{"float32", float32(1.5), Float(1.5)},
		{"string", "abc", String("abc")},
		{"named string", status("open"), String("open")},
		{"time", when, String("2024-05-01T12:00:00Z")},
		{"uuid", id, String(id.String())},
		{"pointer", &n, Int(7)},
		{"nil pointer", nilPtr, Null{}},
		{"value passthrough", Int(5), Int(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromGoRejectsUnsupported(t *testing.T) {
	_, err := FromGo(struct{ A int }{1})
	assert.Error(t, err)

	_, err = FromGo(uint64(1 << 63))
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	assert.Nil(t, ToGo(Null{}))
	assert.Equal(t, true, ToGo(Bool(true)))
	assert.Equal(t, int64(2), ToGo(Int(2)))
	assert.Equal(t, 2.5, ToGo(Float(2.5)))
	assert.Equal(t, "s", ToGo(String("s")))
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(Int(1), Int(2)))
	assert.Equal(t, 0, Compare(Int(2), Float(2)))
	assert.Equal(t, 1, Compare(Float(2.5), Int(2)))
	assert.Equal(t, -1, Compare(String("a"), String("b")))
	assert.Equal(t, -1, Compare(Bool(false), Bool(true)))

	// Cross-family: Null < Bool < number < String
	assert.Equal(t, -1, Compare(Null{}, Bool(false)))
	assert.Equal(t, -1, Compare(Bool(true), Int(0)))
	assert.Equal(t, -1, Compare(Int(100), String("0")))
}

func TestComparable(t *testing.T) {
	assert.True(t, Comparable(Int(1), Float(2.5)))
	assert.True(t, Comparable(String("a"), String("b")))
	assert.True(t, Comparable(Null{}, String("a")))
	assert.True(t, Comparable(Bool(true), Null{}))
	assert.False(t, Comparable(Float(1), String("abc")))
	assert.False(t, Comparable(Bool(true), Int(1)))
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	orig := Snapshot{"Name": String("a")}
	clone := orig.Clone()
	clone["Name"] = String("b")

	assert.Equal(t, String("a"), orig["Name"])
	assert.True(t, Snapshot{"x": Int(1)}.Equal(Snapshot{"x": Int(1)}))
	assert.False(t, Snapshot{"x": Int(1)}.Equal(Snapshot{"x": String("1")}))
	assert.False(t, Snapshot{"x": Int(1)}.Equal(Snapshot{"y": Int(1)}))
}

func TestSnapshotGetMissingIsNull(t *testing.T) {
	assert.Equal(t, Null{}, Snapshot{}.Get("missing"))
}

func TestSnapshotSortedKeysUTF16Order(t *testing.T) {
	snap := Snapshot{"b": Null{}, "a": Null{}, "B": Null{}}
	assert.Equal(t, []string{"B", "a", "b"}, snap.SortedKeys())
}
