package engine

import (
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// elements is the stream passed between stages.
type elements = iter.Seq2[any, error]

// stage transforms a stream. Stages are built once at compile time and
// applied per run.
type stage func(x *execCtx, in elements) elements

// compiler carries per-compilation state shared by a plan and its inner
// plans.
type compiler struct {
	e        *Engine
	params   map[string]struct{}
	defaults map[string]ir.Value
}

func newCompiler(e *Engine) *compiler {
	return &compiler{
		e:        e,
		params:   make(map[string]struct{}),
		defaults: make(map[string]ir.Value),
	}
}

// Compile validates plan and compiles it into a Program. Plans the engine
// cannot execute fail with NotSupported; unknown entity names fail with
// UnknownEntity.
func (e *Engine) Compile(plan *queryir.Plan) (*Program, error) {
	if plan == nil {
		return nil, errs.New(errs.NullArgument, "plan is nil")
	}
	if res := queryir.Validate(plan); !res.Valid {
		return nil, notSupported("invalid plan").Wrap(res.Err())
	}
	c := newCompiler(e)
	prog, err := c.program(plan)
	if err != nil {
		return nil, err
	}
	if prog.includes, err = e.compileIncludes(prog.root, plan.Includes()); err != nil {
		return nil, err
	}
	if prog.terminal, prog.reduce, err = c.terminal(plan, prog.out); err != nil {
		return nil, err
	}
	prog.params = c.params
	prog.defaults = c.defaults
	prog.seq = e.clock.Next()

	e.logger.Debug("program compiled",
		"entity", prog.root.Name,
		"steps", len(prog.stages),
		"terminal", prog.terminal.String(),
		"includes", len(prog.includes),
		"program", prog.seq,
	)
	return prog, nil
}

// program compiles the source and steps of p. Terminal and includes are
// handled by Compile for the root plan only.
func (c *compiler) program(p *queryir.Plan) (*Program, error) {
	root, err := c.e.model.Descriptor(p.Entity())
	if err != nil {
		return nil, err
	}
	for name, v := range p.Params() {
		if _, ok := c.defaults[name]; !ok {
			c.defaults[name] = v
		}
	}

	prog := &Program{engine: c.e, plan: p, root: root}
	cur := entityShape(root)
	steps := p.Steps()
	for i := 0; i < len(steps); i++ {
		var (
			st  stage
			err error
		)
		switch s := steps[i].(type) {
		case queryir.Filter:
			st, err = c.filter(s, cur)
		case queryir.Project:
			st, cur, err = c.project(s, cur)
		case queryir.Sort:
			if s.Subsequent {
				return nil, notSupported("step %d (%s): no preceding sort to refine", i+1, queryir.StepName(s))
			}
			keys := []queryir.Sort{s}
			for i+1 < len(steps) {
				next, ok := steps[i+1].(queryir.Sort)
				if !ok || !next.Subsequent {
					break
				}
				keys = append(keys, next)
				i++
			}
			st, err = c.sort(keys, cur)
		case queryir.Skip:
			st, err = c.page(s.Count, true)
		case queryir.Take:
			st, err = c.page(s.Count, false)
		case queryir.FlattenJoin:
			st, cur, err = c.flatten(s, cur)
		case queryir.LeftOuterJoin:
			st, cur, err = c.leftJoin(s, cur)
		default:
			err = notSupported("step %T", s)
		}
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, queryir.StepName(steps[i]), err)
		}
		prog.stages = append(prog.stages, st)
	}
	prog.out = cur
	return prog, nil
}

func (c *compiler) filter(s queryir.Filter, in *shape) (stage, error) {
	pred, _, err := c.lambda(s.Predicate, in)
	if err != nil {
		return nil, err
	}
	return func(x *execCtx, src elements) elements {
		return func(yield func(any, error) bool) {
			for v, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				keep, err := evalBool(x, pred, v)
				if err != nil {
					yield(nil, err)
					return
				}
				if keep && !yield(v, nil) {
					return
				}
			}
		}
	}, nil
}

func evalBool(x *execCtx, fn evalFn, args ...any) (bool, error) {
	v, err := fn(x, args)
	if err != nil {
		return false, err
	}
	return truthy(v)
}

func (c *compiler) project(s queryir.Project, in *shape) (stage, *shape, error) {
	sel, out, err := c.lambda(s.Selector, in)
	if err != nil {
		return nil, nil, err
	}
	return func(x *execCtx, src elements) elements {
		return mapElements(src, func(v any) (any, error) { return sel(x, []any{v}) })
	}, out, nil
}

func mapElements(src elements, fn func(any) (any, error)) elements {
	return func(yield func(any, error) bool) {
		for v, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			out, err := fn(v)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
	}
}

type sortKey struct {
	fn         evalFn
	descending bool
}

// sort compiles a primary sort and its refinements into one stable sort.
// Null keys order first ascending and last descending.
func (c *compiler) sort(keys []queryir.Sort, in *shape) (stage, error) {
	compiled := make([]sortKey, len(keys))
	for i, k := range keys {
		fn, sh, err := c.lambda(k.Key, in)
		if err != nil {
			return nil, err
		}
		if !sh.orderable() {
			return nil, notSupported("sort key of shape %s", sh)
		}
		compiled[i] = sortKey{fn: fn, descending: k.Descending}
	}
	return func(x *execCtx, src elements) elements {
		return func(yield func(any, error) bool) {
			type entry struct {
				elem any
				keys []any
			}
			var entries []entry
			for v, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				e := entry{elem: v, keys: make([]any, len(compiled))}
				for i, k := range compiled {
					kv, err := k.fn(x, []any{v})
					if err != nil {
						yield(nil, err)
						return
					}
					e.keys[i] = kv
				}
				entries = append(entries, e)
			}

			var sortErr error
			slices.SortStableFunc(entries, func(a, b entry) int {
				for i, k := range compiled {
					r, err := compareKeys(a.keys[i], b.keys[i])
					if err != nil && sortErr == nil {
						sortErr = err
					}
					if k.descending {
						r = -r
					}
					if r != 0 {
						return r
					}
				}
				return 0
			})
			if sortErr != nil {
				yield(nil, sortErr)
				return
			}
			for _, e := range entries {
				if !yield(e.elem, nil) {
					return
				}
			}
		}
	}, nil
}

func compareKeys(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return compareValues(a, b)
}

// page compiles Skip (skip=true) or Take. The count is read once per run.
func (c *compiler) page(count queryir.Expr, skip bool) (stage, error) {
	var resolve func(x *execCtx) (int64, error)
	switch n := count.(type) {
	case queryir.Const:
		v, ok := n.Value.(ir.Int)
		if !ok || v < 0 {
			return nil, notSupported("count must be a non-negative integer")
		}
		resolve = func(*execCtx) (int64, error) { return int64(v), nil }
	case queryir.Param:
		name := n.Name
		c.params[name] = struct{}{}
		resolve = func(x *execCtx) (int64, error) {
			i, _, isInt, ok := number(x.params[name])
			if !ok || !isInt || i < 0 {
				return 0, notSupported("parameter %q must be a non-negative integer, got %v", name, x.params[name])
			}
			return i, nil
		}
	default:
		return nil, notSupported("count must be a constant or parameter")
	}
	return func(x *execCtx, src elements) elements {
		return func(yield func(any, error) bool) {
			n, err := resolve(x)
			if err != nil {
				yield(nil, err)
				return
			}
			if !skip && n == 0 {
				return
			}
			var seen int64
			for v, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				seen++
				if skip {
					if seen <= n {
						continue
					}
				} else if seen > n {
					return
				}
				if !yield(v, nil) {
					return
				}
				if !skip && seen == n {
					return
				}
			}
		}
	}, nil
}

func (c *compiler) flatten(s queryir.FlattenJoin, in *shape) (stage, *shape, error) {
	coll, cs, err := c.lambda(s.Collection, in)
	if err != nil {
		return nil, nil, err
	}
	if cs.kind != shapeCollection && cs.kind != shapeUnknown {
		return nil, nil, notSupported("collection selector yields %s", cs)
	}
	elem := cs.element()
	var result evalFn
	out := elem
	if !s.Result.IsZero() {
		if result, out, err = c.lambda(s.Result, in, elem); err != nil {
			return nil, nil, fmt.Errorf("result: %w", err)
		}
	}
	return func(x *execCtx, src elements) elements {
		return func(yield func(any, error) bool) {
			for outer, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				cv, err := coll(x, []any{outer})
				if err != nil {
					yield(nil, err)
					return
				}
				items, ok := cv.([]any)
				if cv != nil && !ok {
					yield(nil, notSupported("collection selector produced %s", typeName(cv)))
					return
				}
				for _, inner := range items {
					v := inner
					if result != nil {
						if v, err = result(x, []any{outer, inner}); err != nil {
							yield(nil, err)
							return
						}
					}
					if !yield(v, nil) {
						return
					}
				}
			}
		}
	}, out, nil
}

func (c *compiler) leftJoin(s queryir.LeftOuterJoin, in *shape) (stage, *shape, error) {
	if s.Inner == nil {
		return nil, nil, notSupported("left join has no inner plan")
	}
	if len(s.Inner.Includes()) > 0 {
		return nil, nil, notSupported("includes on an inner plan")
	}
	inner, err := c.program(s.Inner)
	if err != nil {
		return nil, nil, fmt.Errorf("inner: %w", err)
	}
	outerKey, _, err := c.lambda(s.OuterKey, in)
	if err != nil {
		return nil, nil, fmt.Errorf("outer key: %w", err)
	}
	innerKey, _, err := c.lambda(s.InnerKey, inner.out)
	if err != nil {
		return nil, nil, fmt.Errorf("inner key: %w", err)
	}
	result, out, err := c.lambda(s.Result, in, inner.out)
	if err != nil {
		return nil, nil, fmt.Errorf("result: %w", err)
	}

	return func(x *execCtx, src elements) elements {
		return func(yield func(any, error) bool) {
			groups := make(map[string][]any)
			for v, err := range inner.pipeline(x) {
				if err != nil {
					yield(nil, err)
					return
				}
				kv, err := innerKey(x, []any{v})
				if err != nil {
					yield(nil, err)
					return
				}
				k, ok, err := joinKey(kv)
				if err != nil {
					yield(nil, err)
					return
				}
				if ok {
					groups[k] = append(groups[k], v)
				}
			}

			for outer, err := range src {
				if err != nil {
					yield(nil, err)
					return
				}
				kv, err := outerKey(x, []any{outer})
				if err != nil {
					yield(nil, err)
					return
				}
				k, ok, err := joinKey(kv)
				if err != nil {
					yield(nil, err)
					return
				}
				var matches []any
				if ok {
					matches = groups[k]
				}
				if len(matches) == 0 {
					matches = []any{nil}
				}
				for _, m := range matches {
					v, err := result(x, []any{outer, m})
					if err != nil {
						yield(nil, err)
						return
					}
					if !yield(v, nil) {
						return
					}
				}
			}
		}
	}, out, nil
}

// entitySource is the first stage of every program: the effective rows of
// the root table, materialized through the run's identity map.
func entitySource(x *execCtx, root *schema.Descriptor) elements {
	return func(yield func(any, error) bool) {
		table, err := x.tables.GetTable(root.Name)
		if err != nil {
			yield(nil, err)
			return
		}
		for row := range table.EffectiveRows() {
			if err := x.ctx.Err(); err != nil {
				yield(nil, fmt.Errorf("context cancelled: %w", err))
				return
			}
			obj, err := x.mat.Materialize(root, row)
			if !yield(obj, err) || err != nil {
				return
			}
		}
	}
}
