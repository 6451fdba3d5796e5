package engine

import (
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// reducer folds a stream into a terminal value.
type reducer func(x *execCtx, in elements) (any, error)

func yieldsElement(t queryir.Terminal) bool {
	switch t {
	case queryir.First, queryir.FirstOrDefault, queryir.Single, queryir.SingleOrDefault:
		return true
	}
	return false
}

// terminal compiles the plan's terminal operator against the element shape
// produced by its steps.
func (c *compiler) terminal(p *queryir.Plan, elem *shape) (queryir.Terminal, reducer, error) {
	term, arg := p.Terminal()
	if term == queryir.None {
		return term, nil, nil
	}
	name := term.String()

	var fn evalFn
	out := elem
	if arg != nil {
		var err error
		if fn, out, err = c.lambda(*arg, elem); err != nil {
			return term, nil, notSupportedIn(name, err)
		}
	}

	switch term {
	case queryir.Count, queryir.LongCount:
		long := term == queryir.LongCount
		return term, func(x *execCtx, in elements) (any, error) {
			var n int64
			for _, err := range matching(x, in, fn) {
				if err != nil {
					return nil, err
				}
				n++
			}
			if long {
				return n, nil
			}
			return int(n), nil
		}, nil

	case queryir.Any:
		return term, func(x *execCtx, in elements) (any, error) {
			for _, err := range matching(x, in, fn) {
				if err != nil {
					return nil, err
				}
				return true, nil
			}
			return false, nil
		}, nil

	case queryir.All:
		if fn == nil {
			return term, nil, notSupported("terminal All: predicate is required")
		}
		return term, func(x *execCtx, in elements) (any, error) {
			for v, err := range in {
				if err != nil {
					return nil, err
				}
				ok, err := evalBool(x, fn, v)
				if err != nil {
					return nil, err
				}
				if !ok {
					return false, nil
				}
			}
			return true, nil
		}, nil

	case queryir.First, queryir.FirstOrDefault:
		orDefault := term == queryir.FirstOrDefault
		return term, func(x *execCtx, in elements) (any, error) {
			for v, err := range matching(x, in, fn) {
				if err != nil {
					return nil, err
				}
				return v, nil
			}
			if orDefault {
				return zeroFor(elem), nil
			}
			return nil, errNoElements(name)
		}, nil

	case queryir.Single, queryir.SingleOrDefault:
		orDefault := term == queryir.SingleOrDefault
		return term, func(x *execCtx, in elements) (any, error) {
			var (
				found any
				n     int
			)
			for v, err := range matching(x, in, fn) {
				if err != nil {
					return nil, err
				}
				if n++; n > 1 {
					return nil, errManyElements(name)
				}
				found = v
			}
			if n == 0 {
				if orDefault {
					return zeroFor(elem), nil
				}
				return nil, errNoElements(name)
			}
			return found, nil
		}, nil

	case queryir.Min, queryir.Max:
		if !out.orderable() {
			return term, nil, notSupported("terminal %s over %s requires a scalar selector", name, out)
		}
		sign := 1
		if term == queryir.Max {
			sign = -1
		}
		return term, func(x *execCtx, in elements) (any, error) {
			var (
				best  any
				empty = true
			)
			for v, err := range selected(x, in, fn) {
				if err != nil {
					return nil, err
				}
				empty = false
				if v == nil {
					continue
				}
				if best == nil {
					best = v
					continue
				}
				r, err := compareValues(v, best)
				if err != nil {
					return nil, err
				}
				if r*sign < 0 {
					best = v
				}
			}
			if empty {
				return nil, errNoElements(name)
			}
			return best, nil
		}, nil

	case queryir.Sum, queryir.Average:
		if !out.numeric() {
			return term, nil, notSupported("terminal %s over %s: non-numeric aggregate", name, out)
		}
		average := term == queryir.Average
		// A float selector sums to float64 even over no rows.
		floatSel := out.kind == shapeScalar && out.scalar == schema.KindFloat
		return term, func(x *execCtx, in elements) (any, error) {
			var (
				isum     int64
				fsum     float64
				allInt   = !floatSel
				n, count int
			)
			for v, err := range selected(x, in, fn) {
				if err != nil {
					return nil, err
				}
				n++
				if v == nil {
					continue
				}
				i, f, isInt, ok := number(v)
				if !ok {
					return nil, notSupported("terminal %s over %s: non-numeric aggregate", name, typeName(v))
				}
				count++
				fsum += f
				if isInt {
					isum += i
				} else {
					allInt = false
				}
			}
			if !average {
				if allInt {
					return isum, nil
				}
				return fsum, nil
			}
			if n == 0 {
				return nil, errNoElements(name)
			}
			if count == 0 {
				return nil, nil
			}
			return fsum / float64(count), nil
		}, nil
	}
	return term, nil, notSupported("terminal %s", name)
}

func notSupportedIn(term string, err error) error {
	return notSupported("terminal %s", term).Wrap(err)
}

// matching filters in by an optional predicate.
func matching(x *execCtx, in elements, pred evalFn) elements {
	if pred == nil {
		return in
	}
	return func(yield func(any, error) bool) {
		for v, err := range in {
			if err != nil {
				yield(nil, err)
				return
			}
			ok, err := evalBool(x, pred, v)
			if err != nil {
				yield(nil, err)
				return
			}
			if ok && !yield(v, nil) {
				return
			}
		}
	}
}

// selected maps in through an optional selector.
func selected(x *execCtx, in elements, sel evalFn) elements {
	if sel == nil {
		return in
	}
	return mapElements(in, func(v any) (any, error) { return sel(x, []any{v}) })
}
