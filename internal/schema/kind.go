package schema

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/ir"
)

// Kind is the declared scalar type of a field.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindUUID
)

var kindNames = map[Kind]string{
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindTime:   "time",
	KindUUID:   "uuid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses a kind name as written in schema files.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown field kind %q", s)
}

// Normalize converts a stored or host-supplied value into the canonical
// stored representation for kind k. Null passes through; the caller decides
// whether null is acceptable.
func Normalize(k Kind, v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	switch k {
	case KindBool:
		if b, ok := v.(ir.Bool); ok {
			return b, nil
		}
	case KindInt:
		switch x := v.(type) {
		case ir.Int:
			return x, nil
		case ir.Float:
			if float64(x) == math.Trunc(float64(x)) && math.Abs(float64(x)) <= math.MaxInt64 {
				return ir.Int(int64(x)), nil
			}
		}
	case KindFloat:
		switch x := v.(type) {
		case ir.Float:
			return x, nil
		case ir.Int:
			return ir.Float(float64(x)), nil
		}
	case KindString:
		if s, ok := v.(ir.String); ok {
			return s, nil
		}
	case KindTime:
		if s, ok := v.(ir.String); ok {
			t, err := time.Parse(ir.TimeLayout, string(s))
			if err != nil {
				return nil, fmt.Errorf("invalid time %q: %w", s, err)
			}
			return ir.String(t.UTC().Format(ir.TimeLayout)), nil
		}
	case KindUUID:
		if s, ok := v.(ir.String); ok {
			id, err := uuid.Parse(string(s))
			if err != nil {
				return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
			}
			return ir.String(id.String()), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, k)
}

// natural returns the Go value a dynamic Record holds for a stored value of
// kind k.
func natural(k Kind, v ir.Value) (any, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	switch k {
	case KindTime:
		return time.Parse(ir.TimeLayout, string(v.(ir.String)))
	case KindUUID:
		return uuid.Parse(string(v.(ir.String)))
	default:
		return ir.ToGo(v), nil
	}
}
