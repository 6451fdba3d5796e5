package engine

import (
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// evalFn evaluates a compiled expression. args holds the values bound to
// the enclosing lambda's parameters, in declaration order.
type evalFn func(x *execCtx, args []any) (any, error)

// scope maps lambda parameter names to argument slots.
type scope struct {
	names  []string
	shapes []*shape
}

func (s scope) lookup(name string) (int, bool) {
	for i, n := range s.names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// lambda compiles l against the shapes of its arguments.
func (c *compiler) lambda(l queryir.Lambda, in ...*shape) (evalFn, *shape, error) {
	if l.Arity() != len(in) {
		return nil, nil, notSupported("lambda %s takes %d parameter(s), want %d", queryir.FormatLambda(l), l.Arity(), len(in))
	}
	if l.Body == nil {
		return nil, nil, notSupported("lambda has no body")
	}
	return c.expr(l.Body, scope{names: l.Params, shapes: in})
}

func (c *compiler) expr(e queryir.Expr, sc scope) (evalFn, *shape, error) {
	switch n := e.(type) {
	case queryir.Var:
		idx, ok := sc.lookup(n.Name)
		if !ok {
			return nil, nil, notSupported("unbound variable %q", n.Name)
		}
		return func(_ *execCtx, args []any) (any, error) { return args[idx], nil }, sc.shapes[idx], nil

	case queryir.Param:
		name := n.Name
		c.params[name] = struct{}{}
		return func(x *execCtx, _ []any) (any, error) { return x.params[name], nil }, unknownShape, nil

	case queryir.Const:
		v := constValue(n.Value)
		return func(*execCtx, []any) (any, error) { return v, nil }, constShape(n.Value), nil

	case queryir.Member:
		return c.member(n, sc)

	case queryir.Navigate:
		return c.navigate(n, sc)

	case queryir.Compare:
		left, _, err := c.expr(n.Left, sc)
		if err != nil {
			return nil, nil, err
		}
		right, _, err := c.expr(n.Right, sc)
		if err != nil {
			return nil, nil, err
		}
		op := n.Op
		return func(x *execCtx, args []any) (any, error) {
			a, err := left(x, args)
			if err != nil {
				return nil, err
			}
			b, err := right(x, args)
			if err != nil {
				return nil, err
			}
			return compare(op, a, b)
		}, boolShape, nil

	case queryir.And:
		return c.logical(n.Terms, sc, false)

	case queryir.Or:
		return c.logical(n.Terms, sc, true)

	case queryir.Not:
		operand, _, err := c.expr(n.Operand, sc)
		if err != nil {
			return nil, nil, err
		}
		return func(x *execCtx, args []any) (any, error) {
			v, err := operand(x, args)
			if err != nil {
				return nil, err
			}
			b, err := truthy(v)
			return !b, err
		}, boolShape, nil

	case queryir.Arith:
		left, ls, err := c.expr(n.Left, sc)
		if err != nil {
			return nil, nil, err
		}
		right, rs, err := c.expr(n.Right, sc)
		if err != nil {
			return nil, nil, err
		}
		op := n.Op
		return func(x *execCtx, args []any) (any, error) {
			a, err := left(x, args)
			if err != nil {
				return nil, err
			}
			b, err := right(x, args)
			if err != nil {
				return nil, err
			}
			return arith(op, a, b)
		}, arithShape(op, ls, rs), nil

	case queryir.Construct:
		return c.construct(n, sc)

	case queryir.Call:
		return c.call(n, sc)
	}
	return nil, nil, notSupported("expression %T", e)
}

func constShape(v ir.Value) *shape {
	switch v.(type) {
	case ir.Bool:
		return scalarShape(schema.KindBool)
	case ir.Int:
		return scalarShape(schema.KindInt)
	case ir.Float:
		return scalarShape(schema.KindFloat)
	case ir.String:
		return scalarShape(schema.KindString)
	}
	return scalarShape(schema.KindInvalid)
}

func arithShape(op queryir.ArithOp, a, b *shape) *shape {
	if a.kind != shapeScalar || b.kind != shapeScalar {
		return unknownShape
	}
	switch {
	case a.scalar == schema.KindInt && b.scalar == schema.KindInt:
		return scalarShape(schema.KindInt)
	case op == queryir.OpAdd && a.scalar == schema.KindString && b.scalar == schema.KindString:
		return scalarShape(schema.KindString)
	case a.numeric() && b.numeric():
		if a.scalar == schema.KindFloat || b.scalar == schema.KindFloat {
			return scalarShape(schema.KindFloat)
		}
	}
	return scalarShape(schema.KindInvalid)
}

// logical compiles a short-circuiting conjunction (short=false) or
// disjunction (short=true). An empty And is true, an empty Or is false.
func (c *compiler) logical(terms []queryir.Expr, sc scope, short bool) (evalFn, *shape, error) {
	fns := make([]evalFn, len(terms))
	for i, t := range terms {
		fn, _, err := c.expr(t, sc)
		if err != nil {
			return nil, nil, err
		}
		fns[i] = fn
	}
	return func(x *execCtx, args []any) (any, error) {
		for _, fn := range fns {
			v, err := fn(x, args)
			if err != nil {
				return nil, err
			}
			b, err := truthy(v)
			if err != nil {
				return nil, err
			}
			if b == short {
				return short, nil
			}
		}
		return !short, nil
	}, boolShape, nil
}

func (c *compiler) member(m queryir.Member, sc scope) (evalFn, *shape, error) {
	target, ts, err := c.expr(m.Target, sc)
	if err != nil {
		return nil, nil, err
	}
	name := m.Name

	switch ts.kind {
	case shapeEntity:
		desc := ts.desc
		if f, ok := desc.Field(name); ok {
			return func(x *execCtx, args []any) (any, error) {
				obj, err := target(x, args)
				if err != nil || obj == nil {
					return nil, err
				}
				return desc.Natural(obj, f)
			}, scalarShape(f.Kind), nil
		}
		if _, ok := desc.Relation(name); ok {
			return c.navigation(target, desc, name)
		}
		return nil, nil, notSupported("%s has no member %q", desc.Name, name).WithEntity(desc.Name)

	case shapeTuple:
		fs, ok := ts.fields[name]
		if !ok {
			return nil, nil, notSupported("tuple has no field %q", name)
		}
		return func(x *execCtx, args []any) (any, error) {
			v, err := target(x, args)
			if err != nil || v == nil {
				return nil, err
			}
			return tupleField(v, name)
		}, fs, nil

	case shapeUnknown:
		return func(x *execCtx, args []any) (any, error) {
			v, err := target(x, args)
			if err != nil || v == nil {
				return nil, err
			}
			return c.e.dynamicMember(x, v, name)
		}, unknownShape, nil
	}
	return nil, nil, notSupported("member %q on %s", name, ts)
}

func tupleField(v any, name string) (any, error) {
	t, ok := v.(*Tuple)
	if !ok {
		return nil, notSupported("member %q on %s", name, typeName(v))
	}
	fv, ok := t.Get(name)
	if !ok {
		return nil, notSupported("tuple has no field %q", name)
	}
	return fv, nil
}

// dynamicMember reads name from a value whose shape was unknown at compile
// time.
func (e *Engine) dynamicMember(x *execCtx, v any, name string) (any, error) {
	if _, ok := v.(*Tuple); ok {
		return tupleField(v, name)
	}
	desc, err := e.model.DescriptorOf(v)
	if err != nil {
		return nil, notSupported("member %q on %s", name, typeName(v))
	}
	if f, ok := desc.Field(name); ok {
		return desc.Natural(v, f)
	}
	nav, err := e.navigation(desc, name)
	if err != nil {
		return nil, err
	}
	return nav.value(x, v)
}

func (c *compiler) navigate(n queryir.Navigate, sc scope) (evalFn, *shape, error) {
	target, ts, err := c.expr(n.Target, sc)
	if err != nil {
		return nil, nil, err
	}
	switch ts.kind {
	case shapeEntity:
		return c.navigation(target, ts.desc, n.Relation)
	case shapeUnknown:
		name := n.Relation
		return func(x *execCtx, args []any) (any, error) {
			v, err := target(x, args)
			if err != nil || v == nil {
				return nil, err
			}
			nav, err := c.e.dynamicNavigation(v, name)
			if err != nil {
				return nil, err
			}
			return nav.value(x, v)
		}, unknownShape, nil
	}
	return nil, nil, notSupported("navigation %q on %s", n.Relation, ts)
}

// navigation compiles owner.name as a correlated sub-plan.
func (c *compiler) navigation(target evalFn, owner *schema.Descriptor, name string) (evalFn, *shape, error) {
	nav, err := c.e.navigation(owner, name)
	if err != nil {
		return nil, nil, err
	}
	sh := entityShape(nav.target)
	if nav.rel.Collection {
		sh = collectionShape(nav.target)
	}
	return func(x *execCtx, args []any) (any, error) {
		obj, err := target(x, args)
		if err != nil || obj == nil {
			return nil, err
		}
		return nav.value(x, obj)
	}, sh, nil
}

func (c *compiler) construct(n queryir.Construct, sc scope) (evalFn, *shape, error) {
	names := make([]string, len(n.Fields))
	fns := make([]evalFn, len(n.Fields))
	shapes := make([]*shape, len(n.Fields))
	for i, f := range n.Fields {
		fn, sh, err := c.expr(f.Value, sc)
		if err != nil {
			return nil, nil, err
		}
		names[i], fns[i], shapes[i] = f.Name, fn, sh
	}
	return func(x *execCtx, args []any) (any, error) {
		values := make([]any, len(fns))
		for i, fn := range fns {
			v, err := fn(x, args)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return NewTuple(names, values), nil
	}, tupleShape(names, shapes), nil
}

func (c *compiler) call(n queryir.Call, sc scope) (evalFn, *shape, error) {
	fn, ok := c.e.lookupFunc(n.Func)
	if !ok {
		return nil, nil, notSupported("unknown function %q", n.Func)
	}
	if fn.Arity >= 0 && fn.Arity != len(n.Args) {
		return nil, nil, notSupported("function %q takes %d argument(s), got %d", n.Func, fn.Arity, len(n.Args))
	}
	argFns := make([]evalFn, len(n.Args))
	for i, a := range n.Args {
		f, _, err := c.expr(a, sc)
		if err != nil {
			return nil, nil, err
		}
		argFns[i] = f
	}
	sh := unknownShape
	if fn.Result != schema.KindInvalid {
		sh = scalarShape(fn.Result)
	}
	return func(x *execCtx, args []any) (any, error) {
		vals := make([]any, len(argFns))
		for i, f := range argFns {
			v, err := f(x, args)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		return fn.Fn(vals)
	}, sh, nil
}
