package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(math.MaxInt64), "9223372036854775807"},
		{"bool true", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"integral float keeps fraction", Float(2), "2.0"},
		{"float", Float(9.5), "9.5"},
		{"empty key", Key{}, "[]"},
		{"composite key", Key{Int(5), Int(1001)}, "[5,1001]"},
		{"snapshot", Snapshot{"b": Int(1), "a": String("x")}, `{"a":"x","b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// e + combining acute accent normalizes to the precomposed form.
	decomposed := String("e\u0301")
	composed := String("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(result))

	literal, err := MarshalCanonical(String(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(literal))
}

func TestMarshalCanonicalRejectsNonFinite(t *testing.T) {
	_, err := MarshalCanonical(Float(math.Inf(1)))
	assert.Error(t, err)

	_, err = MarshalCanonical(Float(math.NaN()))
	assert.Error(t, err)
}

func TestMarshalCanonicalUnsupported(t *testing.T) {
	_, err := MarshalCanonical(struct{}{})
	assert.Error(t, err)
}

func TestSnapshotMarshalJSONIsCanonical(t *testing.T) {
	snap := Snapshot{"zeta": Int(1), "Alpha": Bool(false)}
	b, err := snap.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"Alpha":false,"zeta":1}`, string(b))
}
