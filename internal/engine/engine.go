package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/materialize"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// DefaultMaxIncludeDepth bounds the length of an include path.
// Longer paths are almost always accidental cycles (Blog.Posts.Blog.Posts...).
const DefaultMaxIncludeDepth = 8

// Tables resolves entity names to the tables a run reads. *store.Database
// implements it, returning transaction overlays while a transaction is
// active.
type Tables interface {
	GetTable(entity string) (*store.Table, error)
}

// Runtime is what a program reads from when it runs.
type Runtime struct {
	// Tables supplies the effective rows. Required.
	Tables Tables

	// Identity resolves rows to instances. A nil Identity gives the run a
	// private identity map, so results share no instances with other runs.
	Identity materialize.IdentityMap

	// Params binds or overrides plan parameters by name.
	Params map[string]any
}

// Engine compiles plans into programs. An Engine is safe for concurrent
// use; the programs it returns may be run concurrently against different
// runtimes.
//
// INVARIANTS:
//   - Steps execute in recorded order; the engine never reorders them.
//   - Every entity a program yields comes from the run's identity map.
//   - Correlated navigation plans are compiled once per (entity, relation).
type Engine struct {
	model           *schema.Model
	logger          *slog.Logger
	clock           *Clock
	funcs           map[string]Func
	maxIncludeDepth int

	mu   sync.Mutex
	navs map[navKey]*navigation
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithFunc registers a host function under name. Host functions shadow
// builtins of the same name.
func WithFunc(name string, fn Func) EngineOption {
	return func(e *Engine) {
		e.funcs[name] = fn
	}
}

// WithMaxIncludeDepth bounds include path length.
//
// Default: 8 (DefaultMaxIncludeDepth)
func WithMaxIncludeDepth(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxIncludeDepth = n
		}
	}
}

// WithClock sets the clock used to stamp compiled programs and runs.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an Engine over model. The model must be finalized.
func New(model *schema.Model, opts ...EngineOption) *Engine {
	e := &Engine{
		model:           model,
		logger:          slog.Default(),
		clock:           NewClock(),
		funcs:           make(map[string]Func),
		maxIncludeDepth: DefaultMaxIncludeDepth,
		navs:            make(map[navKey]*navigation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Model returns the schema model the engine compiles against.
func (e *Engine) Model() *schema.Model { return e.model }

// Clock returns the engine's stamp clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Execute compiles plan and runs it.
func (e *Engine) Execute(ctx context.Context, plan *queryir.Plan, rt Runtime) (*Result, error) {
	prog, err := e.Compile(plan)
	if err != nil {
		return nil, err
	}
	return prog.Run(ctx, rt)
}

// lookupFunc resolves a Call target, host functions first.
func (e *Engine) lookupFunc(name string) (Func, bool) {
	if fn, ok := e.funcs[name]; ok {
		return fn, true
	}
	fn, ok := builtins[name]
	return fn, ok
}

type navKey struct {
	entity   string
	relation string
}

// navigation is a relation compiled to a correlated sub-plan over the
// target entity: rows whose correlated fields equal the owner's values.
type navigation struct {
	owner   *schema.Descriptor
	rel     schema.Relation
	target  *schema.Descriptor
	inverse *schema.Relation

	// ownerFields are read from the owner and bound to k0..kn.
	ownerFields []schema.Field
	prog        *Program
}

func navParam(i int) string { return fmt.Sprintf("k%d", i) }

// navigation returns the compiled navigation for owner.name.
func (e *Engine) navigation(owner *schema.Descriptor, name string) (*navigation, error) {
	key := navKey{owner.Name, name}
	e.mu.Lock()
	nav, ok := e.navs[key]
	e.mu.Unlock()
	if ok {
		return nav, nil
	}

	rel, ok := owner.Relation(name)
	if !ok {
		return nil, notSupported("%s has no relation %q", owner.Name, name).WithEntity(owner.Name)
	}
	target, err := e.model.Descriptor(rel.Target)
	if err != nil {
		return nil, err
	}

	nav = &navigation{owner: owner, rel: rel, target: target}
	var ownerCols, targetCols []string
	if rel.OwnerHoldsKey {
		ownerCols, targetCols = rel.ForeignKey, target.Key
	} else {
		ownerCols, targetCols = owner.Key, rel.ForeignKey
	}
	if len(ownerCols) != len(targetCols) {
		return nil, notSupported("relation %s.%s: %d key field(s) against %d", owner.Name, name, len(ownerCols), len(targetCols))
	}
	terms := make([]queryir.Expr, len(targetCols))
	for i, col := range targetCols {
		f, ok := owner.Field(ownerCols[i])
		if !ok {
			return nil, notSupported("relation %s.%s: owner has no field %q", owner.Name, name, ownerCols[i])
		}
		nav.ownerFields = append(nav.ownerFields, f)
		terms[i] = queryir.Eq(queryir.Path("t."+col), queryir.P(navParam(i)))
	}
	if rel.Inverse != "" {
		if inv, ok := target.Relation(rel.Inverse); ok {
			nav.inverse = &inv
		}
	}

	plan := queryir.From(target.Name).Where(queryir.L("t", queryir.AllOf(terms...))).Plan()
	if nav.prog, err = newCompiler(e).program(plan); err != nil {
		return nil, fmt.Errorf("relation %s.%s: %w", owner.Name, name, err)
	}

	e.mu.Lock()
	if existing, ok := e.navs[key]; ok {
		nav = existing
	} else {
		e.navs[key] = nav
	}
	e.mu.Unlock()
	return nav, nil
}

// load runs the correlated sub-plan for owner. A null correlated value
// matches nothing.
func (n *navigation) load(x *execCtx, owner any) ([]any, error) {
	params := make(map[string]any, len(n.ownerFields))
	for i, f := range n.ownerFields {
		v, err := n.owner.Natural(owner, f)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		params[navParam(i)] = v
	}
	child := x.withParams(params)
	var items []any
	for obj, err := range n.prog.pipeline(child) {
		if err != nil {
			return nil, err
		}
		items = append(items, obj)
	}
	return items, nil
}

// value evaluates the navigation as an expression: the collection, or the
// single referenced instance.
func (n *navigation) value(x *execCtx, owner any) (any, error) {
	items, err := n.load(x, owner)
	if err != nil {
		return nil, err
	}
	if n.rel.Collection {
		if items == nil {
			items = []any{}
		}
		return items, nil
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	}
	return nil, errManyElements(n.owner.Name + "." + n.rel.Name)
}

// current returns the targets already assigned on owner.
func (n *navigation) current(owner any) ([]any, error) {
	acc := n.owner.Accessor
	if n.rel.Collection {
		return acc.Collection(owner, n.rel)
	}
	ref, err := acc.Reference(owner, n.rel)
	if err != nil || ref == nil {
		return nil, err
	}
	return []any{ref}, nil
}

// setInverse points target's inverse navigation back at owner.
func (n *navigation) setInverse(target, owner any) error {
	if n.inverse == nil {
		return nil
	}
	acc := n.target.Accessor
	if !n.inverse.Collection {
		return acc.SetReference(target, *n.inverse, owner)
	}
	items, err := acc.Collection(target, *n.inverse)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it == owner {
			return nil
		}
	}
	return acc.SetCollection(target, *n.inverse, append(items, owner))
}

// dynamicNavigation resolves a navigation on a value whose type was not
// known at compile time.
func (e *Engine) dynamicNavigation(obj any, name string) (*navigation, error) {
	desc, err := e.model.DescriptorOf(obj)
	if err != nil {
		if errs.Is(err, errs.UnknownEntity) {
			return nil, notSupported("navigation %q on %s", name, typeName(obj))
		}
		return nil, err
	}
	return e.navigation(desc, name)
}
