// Package session is the host-side unit of work: one database, one
// identity map, one engine. Entities added, found or queried through the
// same Session are the same instances for its lifetime.
//
// A Session is not safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/materialize"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// IDGenerator produces session IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The engine inherits it unless an
// engine is supplied with WithEngine.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator replaces the UUIDv7 generator, for deterministic output.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithIdentity shares an existing identity map.
func WithIdentity(m materialize.IdentityMap) Option {
	return func(s *Session) {
		if m != nil {
			s.identity = m
		}
	}
}

// WithEngine uses a prebuilt engine. Its model must be the database's.
func WithEngine(e *engine.Engine) Option {
	return func(s *Session) { s.engine = e }
}

// WithEngineOptions configures the engine the session builds.
func WithEngineOptions(opts ...engine.EngineOption) Option {
	return func(s *Session) { s.engineOpts = append(s.engineOpts, opts...) }
}

// WithParams binds parameters for every query the session runs.
func WithParams(params map[string]any) Option {
	return func(s *Session) {
		for k, v := range params {
			s.params[k] = v
		}
	}
}

// Session is a unit of work over one Database.
type Session struct {
	id         string
	db         *store.Database
	identity   materialize.IdentityMap
	mat        *materialize.Materializer
	engine     *engine.Engine
	engineOpts []engine.EngineOption
	params     map[string]any
	ids        IDGenerator
	logger     *slog.Logger
}

// New opens a unit of work over db.
func New(db *store.Database, opts ...Option) *Session {
	s := &Session{
		db:     db,
		params: map[string]any{},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.identity == nil {
		s.identity = materialize.NewIdentityMap()
	}
	if s.engine == nil {
		eopts := append([]engine.EngineOption{engine.WithLogger(s.logger)}, s.engineOpts...)
		s.engine = engine.New(db.Model(), eopts...)
	}
	s.mat = materialize.New(s.identity)
	s.id = s.ids.Generate()
	s.logger = s.logger.With("session", s.id)
	s.logger.Debug("session opened", "db", db.Name())
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Database returns the underlying database.
func (s *Session) Database() *store.Database { return s.db }

// Identity returns the session's identity map.
func (s *Session) Identity() materialize.IdentityMap { return s.identity }

// Engine returns the session's query engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Stats reports materializer activity: instances created and identity map
// hits for lookups made through Find.
func (s *Session) Stats() (created, hits int) { return s.mat.Stats() }

func (s *Session) tableFor(entity any) (*store.Table, *schema.Descriptor, error) {
	table, err := s.db.TableFor(entity)
	if err != nil {
		return nil, nil, err
	}
	return table, table.Descriptor(), nil
}

// Add records entity as pending Added and registers it in the identity map.
// Generated key fields are assigned on entity before it is registered.
func (s *Session) Add(entity any) error {
	table, desc, err := s.tableFor(entity)
	if err != nil {
		return err
	}
	if err := table.Add(entity); err != nil {
		return err
	}
	key, err := desc.KeyOf(entity)
	if err != nil {
		return err
	}
	s.identity.Register(desc.Name, key, entity)
	s.logger.Debug("entity added", "entity", desc.Name, "key", key.String())
	return nil
}

// Update records entity as pending Modified.
func (s *Session) Update(entity any) error {
	table, desc, err := s.tableFor(entity)
	if err != nil {
		return err
	}
	if err := table.Update(entity); err != nil {
		return err
	}
	s.logger.Debug("entity updated", "entity", desc.Name)
	return nil
}

// Remove records entity as pending Deleted and forgets it in the identity
// map.
func (s *Session) Remove(entity any) error {
	table, desc, err := s.tableFor(entity)
	if err != nil {
		return err
	}
	key, err := desc.KeyOf(entity)
	if err != nil {
		return err
	}
	if err := table.RemoveKey(key); err != nil {
		return err
	}
	s.identity.Forget(desc.Name, key)
	s.logger.Debug("entity removed", "entity", desc.Name, "key", key.String())
	return nil
}

// Find returns the instance for the entity row whose key is keyValues, in
// key order. A miss returns (nil, false, nil).
func (s *Session) Find(entity string, keyValues ...any) (any, bool, error) {
	desc, err := s.db.Model().Descriptor(entity)
	if err != nil {
		return nil, false, err
	}
	return s.find(desc, keyValues)
}

func (s *Session) find(desc *schema.Descriptor, keyValues []any) (any, bool, error) {
	key, err := desc.KeyFromValues(keyValues...)
	if err != nil {
		return nil, false, err
	}
	table, err := s.db.GetTable(desc.Name)
	if err != nil {
		return nil, false, err
	}
	return table.Find(key, s.mat)
}

func (s *Session) runtime() engine.Runtime {
	return engine.Runtime{Tables: s.db, Identity: s.identity, Params: s.params}
}

// Query runs plan in this unit of work.
func (s *Session) Query(ctx context.Context, plan *queryir.Plan) (*engine.Result, error) {
	return s.engine.Execute(ctx, plan, s.runtime())
}

// List runs a sequence plan and collects its elements.
func (s *Session) List(ctx context.Context, plan *queryir.Plan) ([]any, error) {
	if plan == nil {
		return nil, errs.New(errs.NullArgument, "plan is nil")
	}
	if t, _ := plan.Terminal(); t != queryir.None {
		return nil, errs.New(errs.NotSupported, "List needs a sequence plan, got terminal %s", t).WithEntity(plan.Entity())
	}
	res, err := s.Query(ctx, plan)
	if err != nil {
		return nil, err
	}
	return res.Collect()
}

// Scalar runs a plan ending in a terminal operator and returns its value.
func (s *Session) Scalar(ctx context.Context, plan *queryir.Plan) (any, error) {
	if plan == nil {
		return nil, errs.New(errs.NullArgument, "plan is nil")
	}
	if t, _ := plan.Terminal(); t == queryir.None {
		return nil, errs.New(errs.NotSupported, "Scalar needs a terminal operator").WithEntity(plan.Entity())
	}
	res, err := s.Query(ctx, plan)
	if err != nil {
		return nil, err
	}
	return res.Value(), nil
}

// SaveChanges commits every pending change and returns how many applied.
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	n, err := s.db.SaveChanges(ctx)
	if err != nil {
		return n, fmt.Errorf("session %s: %w", s.id, err)
	}
	s.logger.Debug("session saved", "changes", n)
	return n, nil
}

// BeginTransaction starts a transaction on the database.
func (s *Session) BeginTransaction() (*store.Transaction, error) {
	return s.db.BeginTransaction()
}

// ListOf runs a sequence plan whose elements are T.
func ListOf[T any](ctx context.Context, s *Session, plan *queryir.Plan) ([]T, error) {
	items, err := s.List(ctx, plan)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		v, ok := item.(T)
		if !ok {
			return nil, fmt.Errorf("element %d: %T is not %s", i, item, reflect.TypeFor[T]())
		}
		out = append(out, v)
	}
	return out, nil
}

// FindOf is Find for the entity registered with type T (a struct pointer).
func FindOf[T any](s *Session, keyValues ...any) (T, bool, error) {
	var zero T
	desc, err := s.db.Model().DescriptorFor(reflect.TypeFor[T]())
	if err != nil {
		return zero, false, err
	}
	obj, ok, err := s.find(desc, keyValues)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, ok := obj.(T)
	if !ok {
		return zero, false, fmt.Errorf("%s: %T is not %s", desc.Name, obj, reflect.TypeFor[T]())
	}
	return v, true, nil
}
