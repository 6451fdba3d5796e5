package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/materialize"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// Program is a compiled plan. It holds no per-run state and may be run
// any number of times.
type Program struct {
	engine *Engine
	plan   *queryir.Plan
	seq    int64

	root   *schema.Descriptor
	stages []stage
	out    *shape

	terminal queryir.Terminal
	reduce   reducer
	includes []*include

	params   map[string]struct{}
	defaults map[string]ir.Value
}

// Plan returns the plan the program was compiled from.
func (p *Program) Plan() *queryir.Plan { return p.plan }

// Seq returns the program's compile stamp.
func (p *Program) Seq() int64 { return p.seq }

// Parameters returns the names of the parameters the program reads, sorted.
func (p *Program) Parameters() []string {
	return slices.Sorted(maps.Keys(p.params))
}

// execCtx is the per-run state threaded through compiled closures.
type execCtx struct {
	ctx    context.Context
	tables Tables
	mat    *materialize.Materializer
	params map[string]any
}

func (x *execCtx) withParams(params map[string]any) *execCtx {
	child := *x
	child.params = params
	return &child
}

// Run executes the program. Sequence results are lazy: rows are read,
// materialized and fixed up as the caller iterates, and every iteration
// re-reads the effective rows. Terminal results are computed before Run
// returns.
func (p *Program) Run(ctx context.Context, rt Runtime) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if rt.Tables == nil {
		return nil, errs.New(errs.NullArgument, "runtime has no tables")
	}
	identity := rt.Identity
	if identity == nil {
		identity = materialize.NewIdentityMap()
	}
	params, err := p.bind(rt.Params)
	if err != nil {
		return nil, err
	}

	x := &execCtx{
		ctx:    ctx,
		tables: rt.Tables,
		mat:    materialize.New(identity),
		params: params,
	}
	res := &Result{seq: p.engine.clock.Next(), terminal: p.terminal}
	p.engine.logger.Debug("program run",
		"entity", p.root.Name,
		"terminal", p.terminal.String(),
		"program", p.seq,
		"run", res.seq,
	)

	if p.terminal == queryir.None {
		res.elems = p.fixed(x)
		return res, nil
	}
	if res.value, err = p.reduce(x, p.pipeline(x)); err != nil {
		return nil, err
	}
	// Only the chosen element is fixed up, never the rows a terminal
	// predicate rejected.
	if yieldsElement(p.terminal) && len(p.includes) > 0 {
		if err := p.fixup(x, res.value); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// bind merges plan defaults with runtime parameters and checks that every
// referenced parameter has a value.
func (p *Program) bind(overrides map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(p.defaults)+len(overrides))
	for name, v := range p.defaults {
		params[name] = constValue(v)
	}
	for name, v := range overrides {
		rv, err := paramValue(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		params[name] = rv
	}
	for name := range p.params {
		if _, ok := params[name]; !ok {
			return nil, errs.New(errs.NullArgument, "parameter %q is not bound", name)
		}
	}
	return params, nil
}

func paramValue(v any) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case uuid.UUID:
		return t, nil
	}
	sv, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return constValue(sv), nil
}

// pipeline is the source followed by every stage, without fix-up.
func (p *Program) pipeline(x *execCtx) elements {
	seq := entitySource(x, p.root)
	for _, st := range p.stages {
		seq = st(x, seq)
	}
	return seq
}

// fixed is the pipeline with navigation fix-up applied to each element.
func (p *Program) fixed(x *execCtx) elements {
	seq := p.pipeline(x)
	if len(p.includes) == 0 {
		return seq
	}
	return mapElements(seq, func(v any) (any, error) {
		return v, p.fixup(x, v)
	})
}

// Result is the outcome of a run: a lazy sequence of elements, or the
// value of a terminal operator.
type Result struct {
	seq      int64
	terminal queryir.Terminal
	elems    elements
	value    any
}

// Seq returns the run stamp.
func (r *Result) Seq() int64 { return r.seq }

// Terminal returns the terminal operator the value came from, or None for
// sequence results.
func (r *Result) Terminal() queryir.Terminal { return r.terminal }

// IsScalar reports whether the result is a terminal value.
func (r *Result) IsScalar() bool { return r.terminal != queryir.None }

// Value returns the terminal value: int for Count, int64 for LongCount,
// bool for Any and All, float64 for Average, an element (or its default)
// for First and Single, and a scalar for Min, Max and Sum.
func (r *Result) Value() any { return r.value }

// Elements returns the element sequence. It is empty for terminal results.
func (r *Result) Elements() elements {
	if r.elems == nil {
		return func(func(any, error) bool) {}
	}
	return r.elems
}

// Collect drains the element sequence.
func (r *Result) Collect() ([]any, error) {
	out := []any{}
	for v, err := range r.Elements() {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
