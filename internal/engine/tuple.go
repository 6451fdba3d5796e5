package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Tuple is the value produced by a Construct expression: named fields in
// declaration order. Tuples hold references, so an entity placed in a tuple
// is the same instance the identity map tracks.
type Tuple struct {
	names  []string
	values []any
}

// NewTuple pairs names with values. It panics on a length mismatch.
func NewTuple(names []string, values []any) *Tuple {
	if len(names) != len(values) {
		panic(fmt.Sprintf("engine: tuple has %d names and %d values", len(names), len(values)))
	}
	return &Tuple{names: names, values: values}
}

// Get returns the named field.
func (t *Tuple) Get(name string) (any, bool) {
	for i, n := range t.names {
		if n == name {
			return t.values[i], true
		}
	}
	return nil, false
}

// Names returns the field names in declaration order.
func (t *Tuple) Names() []string { return append([]string(nil), t.names...) }

// Values returns the field values in declaration order.
func (t *Tuple) Values() []any { return append([]any(nil), t.values...) }

// Len returns the number of fields.
func (t *Tuple) Len() int { return len(t.names) }

func (t *Tuple) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, n := range t.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", n, t.values[i])
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON renders the tuple as an object with fields in declaration
// order.
func (t *Tuple) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range t.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		val, err := json.Marshal(t.values[i])
		if err != nil {
			return nil, fmt.Errorf("tuple field %q: %w", n, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
