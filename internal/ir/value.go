package ir

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Value is a sealed interface representing a stored scalar.
// Only Null, Bool, Int, Float and String implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents an absent value.
// Using an explicit type ensures all Values satisfy the sealed interface.
type Null struct{}

func (Null) irValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) irValue() {}

// Int represents an integer value. Always int64 regardless of the host
// field width.
type Int int64

func (Int) irValue() {}

// Float represents a floating point value.
type Float float64

func (Float) irValue() {}

// String represents a string value. Time and UUID fields are stored as
// String and coerced back on materialization.
type String string

func (String) irValue() {}

// TimeLayout is the layout used to store time.Time fields.
const TimeLayout = time.RFC3339Nano

// IsNull reports whether v is Null (or a nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// FromGo converts a host Go value to a Value.
//
// Supported inputs: nil, bool, all int/uint widths, float32/64, string,
// time.Time, uuid.UUID, Value itself, and pointers to any of these (nil
// pointers become Null). Named types over these kinds are accepted.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("uint %d overflows int64", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case string:
		return String(val), nil
	case time.Time:
		return String(val.UTC().Format(TimeLayout)), nil
	case uuid.UUID:
		return String(val.String()), nil
	}
	return fromReflect(reflect.ValueOf(v))
}

// fromReflect handles pointers and named types over supported kinds.
func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return FromGo(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return Int(u), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	default:
		if !rv.IsValid() {
			return Null{}, nil
		}
		return nil, fmt.Errorf("unsupported scalar type: %s", rv.Type())
	}
}

// MustFromGo is like FromGo but panics on error.
// Use only in tests or for literals known to be valid.
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ToGo returns the natural Go representation of v: nil, bool, int64,
// float64 or string.
func ToGo(v Value) any {
	switch val := v.(type) {
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	default:
		return nil
	}
}

// rank orders values of different families: Null < Bool < number < String.
func rank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case String:
		return 3
	default:
		return 4
	}
}

// Comparable reports whether a and b belong to the same family (bool,
// number or string). Null is comparable with everything.
func Comparable(a, b Value) bool {
	ra, rb := rank(a), rank(b)
	return ra == rb || ra == 0 || rb == 0
}

// Compare returns -1, 0 or +1 ordering a against b.
// Int and Float compare numerically with each other.
// Values of different families compare by family rank.
func Compare(a, b Value) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch x := a.(type) {
	case Bool:
		y := b.(Bool)
		switch {
		case x == y:
			return 0
		case !bool(x):
			return -1
		default:
			return 1
		}
	case Int:
		switch y := b.(type) {
		case Int:
			return cmpInt(int64(x), int64(y))
		case Float:
			return cmpFloat(float64(x), float64(y))
		}
	case Float:
		switch y := b.(type) {
		case Int:
			return cmpFloat(float64(x), float64(y))
		case Float:
			return cmpFloat(float64(x), float64(y))
		}
	case String:
		return strings.Compare(string(x), string(b.(String)))
	}
	return 0
}

// Equal reports whether a and b are the same scalar.
// Int(1) and Float(1) are equal.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpInt[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN sorts first, deterministically.
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	default:
		return 1
	}
}

// Snapshot is an immutable-by-convention copy of an entity's scalar fields.
// Storage hands out clones; callers must not mutate a snapshot they did not
// create.
type Snapshot map[string]Value

// Clone returns a shallow copy. Values are immutable scalars so a shallow
// copy is a full copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the value for name, or Null when absent.
func (s Snapshot) Get(name string) Value {
	if v, ok := s[name]; ok && v != nil {
		return v
	}
	return Null{}
}

// SortedKeys returns field names in canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (s Snapshot) SortedKeys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// Equal reports whether two snapshots hold the same field set and values.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		w, ok := other[k]
		if !ok || rank(v) != rank(w) || !Equal(v, w) {
			return false
		}
	}
	return true
}

// compareKeysUTF16 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt(len(a16), len(b16))
}
