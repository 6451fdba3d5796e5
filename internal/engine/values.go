package engine

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// Runtime values flowing through a program are nil, bool, int64, float64,
// string, time.Time, uuid.UUID, *Tuple, entity instances and []any
// (collection navigations).

// scalarOf converts a runtime value to a stored scalar. ok is false for
// tuples, entities and collections.
func scalarOf(v any) (ir.Value, bool) {
	switch v.(type) {
	case *Tuple, []any:
		return nil, false
	}
	sv, err := ir.FromGo(v)
	if err != nil {
		return nil, false
	}
	return sv, true
}

// asTime reads v as an instant. Strings are parsed as RFC 3339.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

// compareValues orders two scalars of one family. Instants compare
// chronologically, numbers numerically across int and float. Mixing
// families is an error.
func compareValues(a, b any) (int, error) {
	_, at := a.(time.Time)
	_, bt := b.(time.Time)
	if at || bt {
		ta, okA := asTime(a)
		tb, okB := asTime(b)
		if okA && okB {
			return ta.Compare(tb), nil
		}
	}
	sa, okA := scalarOf(a)
	sb, okB := scalarOf(b)
	if !okA || !okB || !ir.Comparable(sa, sb) {
		return 0, notSupported("cannot compare %s with %s", typeName(a), typeName(b))
	}
	return ir.Compare(sa, sb), nil
}

// equalValues is the equality used by ==, != and join keys. Null equals
// null. Entities and tuples compare by reference.
func equalValues(a, b any) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	if isReference(a) || isReference(b) {
		if isReference(a) && isReference(b) {
			return a == b, nil
		}
		return false, nil
	}
	c, err := compareValues(a, b)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

func isReference(v any) bool {
	switch v.(type) {
	case *Tuple:
		return true
	case []any, time.Time, uuid.UUID:
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.Pointer
}

func typeName(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

// compare evaluates a comparison. Ordering comparisons involving null are
// false.
func compare(op queryir.CompareOp, a, b any) (bool, error) {
	switch op {
	case queryir.OpEq:
		return equalValues(a, b)
	case queryir.OpNe:
		eq, err := equalValues(a, b)
		return !eq, err
	}
	if a == nil || b == nil {
		return false, nil
	}
	c, err := compareValues(a, b)
	if err != nil {
		return false, err
	}
	switch op {
	case queryir.OpLt:
		return c < 0, nil
	case queryir.OpLe:
		return c <= 0, nil
	case queryir.OpGt:
		return c > 0, nil
	case queryir.OpGe:
		return c >= 0, nil
	}
	return false, notSupported("unknown comparison operator %d", op)
}

// number reads v as an int64 or float64.
func number(v any) (i int64, f float64, isInt bool, ok bool) {
	sv, valid := scalarOf(v)
	if !valid {
		return 0, 0, false, false
	}
	switch n := sv.(type) {
	case ir.Int:
		return int64(n), float64(n), true, true
	case ir.Float:
		return 0, float64(n), false, true
	}
	return 0, 0, false, false
}

// arith evaluates a binary arithmetic operator. Null operands propagate.
// Integer operands stay integral; any float operand widens both.
func arith(op queryir.ArithOp, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	if op == queryir.OpAdd {
		if sa, ok := a.(string); ok {
			if sb, ok := b.(string); ok {
				return sa + sb, nil
			}
		}
	}
	ai, af, aInt, okA := number(a)
	bi, bf, bInt, okB := number(b)
	if !okA || !okB {
		return nil, notSupported("arithmetic on %s and %s", typeName(a), typeName(b))
	}
	if aInt && bInt {
		switch op {
		case queryir.OpAdd:
			return ai + bi, nil
		case queryir.OpSub:
			return ai - bi, nil
		case queryir.OpMul:
			return ai * bi, nil
		case queryir.OpDiv, queryir.OpMod:
			if bi == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			if op == queryir.OpDiv {
				return ai / bi, nil
			}
			return ai % bi, nil
		}
	}
	switch op {
	case queryir.OpAdd:
		return af + bf, nil
	case queryir.OpSub:
		return af - bf, nil
	case queryir.OpMul:
		return af * bf, nil
	case queryir.OpDiv:
		return af / bf, nil
	case queryir.OpMod:
		return math.Mod(af, bf), nil
	}
	return nil, notSupported("unknown arithmetic operator %d", op)
}

// truthy reads a predicate result. Null is false.
func truthy(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	}
	return false, notSupported("predicate produced %s, want bool", typeName(v))
}

// joinKey encodes a join key for hashing. Null keys never match; integral
// floats encode like ints so 1 and 1.0 join.
func joinKey(v any) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	var parts ir.Key
	if err := appendKeyParts(&parts, v); err != nil {
		return "", false, err
	}
	return parts.Encode(), true, nil
}

func appendKeyParts(parts *ir.Key, v any) error {
	if t, ok := v.(*Tuple); ok {
		for _, elem := range t.values {
			if err := appendKeyParts(parts, elem); err != nil {
				return err
			}
		}
		return nil
	}
	sv, ok := scalarOf(v)
	if !ok {
		return notSupported("join key of type %s", typeName(v))
	}
	if f, isFloat := sv.(ir.Float); isFloat && f == ir.Float(math.Trunc(float64(f))) && math.Abs(float64(f)) < 1<<53 {
		sv = ir.Int(int64(f))
	}
	*parts = append(*parts, sv)
	return nil
}

// zeroFor is the default element a *OrDefault terminal yields for a shape.
func zeroFor(sh *shape) any {
	if sh == nil || sh.kind != shapeScalar {
		return nil
	}
	switch sh.scalar {
	case schema.KindInt:
		return int64(0)
	case schema.KindFloat:
		return float64(0)
	case schema.KindBool:
		return false
	}
	return nil
}

// constValue converts a literal to its runtime form.
func constValue(v ir.Value) any {
	return ir.ToGo(v)
}
