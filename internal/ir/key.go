package ir

import (
	"fmt"
	"strings"
)

// Key is an ordered tuple of scalar values forming a (possibly composite)
// primary key. Equality is elementwise and order-sensitive.
type Key []Value

// NewKey builds a Key from host values.
func NewKey(vals ...any) (Key, error) {
	k := make(Key, len(vals))
	for i, v := range vals {
		val, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("key[%d]: %w", i, err)
		}
		k[i] = val
	}
	return k, nil
}

// MustKey is like NewKey but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustKey(vals ...any) Key {
	k, err := NewKey(vals...)
	if err != nil {
		panic(err)
	}
	return k
}

// Encode returns the canonical encoding of the key. Two keys are equal iff
// their encodings are equal, so the encoding is used as the map identity of
// a row. Int(1) and Float(1) encode differently; key fields have a fixed
// declared kind so that never matters in practice.
func (k Key) Encode() string {
	b, err := marshalCanonicalArray(k)
	if err != nil {
		// Keys only hold sealed scalar values, all of which encode.
		panic(fmt.Sprintf("ir: encode key: %v", err))
	}
	return string(b)
}

// Equal reports elementwise equality.
func (k Key) Equal(other Key) bool {
	return k.Encode() == other.Encode()
}

// HasNull reports whether any component is Null.
func (k Key) HasNull() bool {
	for _, v := range k {
		if IsNull(v) {
			return true
		}
	}
	return false
}

// Go returns the key components as natural Go values.
func (k Key) Go() []any {
	out := make([]any, len(k))
	for i, v := range k {
		out[i] = ToGo(v)
	}
	return out
}

// String renders the key for messages, e.g. [5, 1001].
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		b, err := marshalCanonical(v)
		if err != nil {
			parts[i] = "?"
			continue
		}
		parts[i] = string(b)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// CompareKeys orders keys elementwise; a shorter key that is a prefix of a
// longer one sorts first.
func CompareKeys(a, b Key) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}
