package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/tabula/internal/schema"
)

// Func is a host function callable from plan expressions through Call.
type Func struct {
	// Arity is the required argument count; -1 accepts any count.
	Arity int

	// Result is the kind of value returned, or KindInvalid when it varies.
	Result schema.Kind

	// Fn evaluates the call. Arguments are runtime values.
	Fn func(args []any) (any, error)
}

func stringFunc(name string, fn func(string) any, result schema.Kind) Func {
	return Func{Arity: 1, Result: result, Fn: func(args []any) (any, error) {
		switch s := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return fn(s), nil
		}
		return nil, fmt.Errorf("%s: want string, got %s", name, typeName(args[0]))
	}}
}

func stringPairFunc(name string, fn func(s, sub string) bool) Func {
	return Func{Arity: 2, Result: schema.KindBool, Fn: func(args []any) (any, error) {
		if args[0] == nil || args[1] == nil {
			return false, nil
		}
		s, ok1 := args[0].(string)
		sub, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%s: want strings, got %s and %s", name, typeName(args[0]), typeName(args[1]))
		}
		return fn(s, sub), nil
	}}
}

// builtins are available to every engine.
var builtins = map[string]Func{
	"lower":      stringFunc("lower", func(s string) any { return strings.ToLower(s) }, schema.KindString),
	"upper":      stringFunc("upper", func(s string) any { return strings.ToUpper(s) }, schema.KindString),
	"trim":       stringFunc("trim", func(s string) any { return strings.TrimSpace(s) }, schema.KindString),
	"contains":   stringPairFunc("contains", strings.Contains),
	"startsWith": stringPairFunc("startsWith", strings.HasPrefix),
	"endsWith":   stringPairFunc("endsWith", strings.HasSuffix),
	"len": {Arity: 1, Result: schema.KindInt, Fn: func(args []any) (any, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return int64(utf8.RuneCountInString(v)), nil
		case []any:
			return int64(len(v)), nil
		}
		return nil, fmt.Errorf("len: want string or collection, got %s", typeName(args[0]))
	}},
	"abs": {Arity: 1, Fn: func(args []any) (any, error) {
		if args[0] == nil {
			return nil, nil
		}
		i, f, isInt, ok := number(args[0])
		if !ok {
			return nil, fmt.Errorf("abs: want number, got %s", typeName(args[0]))
		}
		if isInt {
			return max(i, -i), nil
		}
		return max(f, -f), nil
	}},
	"coalesce": {Arity: -1, Fn: func(args []any) (any, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	}},
}
