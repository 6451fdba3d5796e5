package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
)

// Option configures a Database.
type Option func(*Database)

// WithAllocator injects the surrogate key allocator.
func WithAllocator(a *Allocator) Option {
	return func(db *Database) { db.alloc = a }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) { db.logger = l }
}

// Database is a named logical database owning one table per entity type
// of its model, plus at most one active transaction.
type Database struct {
	name   string
	model  *schema.Model
	alloc  *Allocator
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string]*Table
	tx     *Transaction
}

// NewDatabase creates a database with an empty table for every entity of
// model. The model is finalized if it is not already.
func NewDatabase(name string, model *schema.Model, opts ...Option) (*Database, error) {
	if model == nil {
		return nil, errs.New(errs.NullArgument, "model is nil")
	}
	if err := model.Finalize(); err != nil {
		return nil, err
	}
	db := &Database{
		name:   name,
		model:  model,
		alloc:  NewAllocator(),
		logger: slog.Default(),
		tables: make(map[string]*Table),
	}
	for _, opt := range opts {
		opt(db)
	}
	for _, entity := range model.Entities() {
		desc, _ := model.Lookup(entity)
		db.tables[entity] = newTable(desc, db.alloc, db.logger)
	}
	return db, nil
}

// Name returns the logical database name.
func (db *Database) Name() string { return db.name }

// Model returns the entity model.
func (db *Database) Model() *schema.Model { return db.model }

// Allocator returns the surrogate key allocator.
func (db *Database) Allocator() *Allocator { return db.alloc }

// Entities returns the entity names, sorted.
func (db *Database) Entities() []string { return db.model.Entities() }

// GetTable returns the table for entity: the base table, or while a
// transaction is active its overlay, created on first access by cloning
// the base table's committed rows.
func (db *Database) GetTable(entity string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tableLocked(entity)
}

func (db *Database) tableLocked(entity string) (*Table, error) {
	base, ok := db.tables[entity]
	if !ok {
		return nil, errs.New(errs.UnknownEntity, "entity is not part of the model").WithEntity(entity)
	}
	if db.tx == nil {
		return base, nil
	}
	return db.tx.overlay(entity, base), nil
}

// TableFor returns the table storing obj's entity type.
func (db *Database) TableFor(obj any) (*Table, error) {
	desc, err := db.model.DescriptorOf(obj)
	if err != nil {
		return nil, err
	}
	return db.GetTable(desc.Name)
}

// BaseTable returns the base table for entity, bypassing any active
// transaction's overlay.
func (db *Database) BaseTable(entity string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	base, ok := db.tables[entity]
	if !ok {
		return nil, errs.New(errs.UnknownEntity, "entity is not part of the model").WithEntity(entity)
	}
	return base, nil
}

// BeginTransaction starts a transaction. Only one may be active per
// database; a second Begin fails with TransactionState.
func (db *Database) BeginTransaction() (*Transaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tx != nil {
		return nil, errs.New(errs.TransactionState, "a transaction is already active").WithState(db.tx.state)
	}
	tx, err := newTransaction(db)
	if err != nil {
		return nil, err
	}
	db.tx = tx
	db.logger.Debug("transaction started", "db", db.name, "tx", tx.id)
	return tx, nil
}

// Transaction returns the active transaction, or nil.
func (db *Database) Transaction() *Transaction {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tx
}

// SaveChanges commits the pending changes of every visible table (the
// overlays while a transaction is active) and returns the total applied.
// The context is checked once before any table is touched.
func (db *Database) SaveChanges(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	total := 0
	for _, entity := range db.model.Entities() {
		t, err := db.tableLocked(entity)
		if err != nil {
			return total, err
		}
		total += t.Commit()
	}
	db.logger.Info("changes saved", "db", db.name, "changes", total, "transactional", db.tx != nil)
	return total, nil
}

// Clear empties every base table.
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, t := range db.tables {
		t.Clear()
	}
}

// Digest combines the digests of every visible table.
func (db *Database) Digest() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var digests []string
	for _, entity := range db.model.Entities() {
		t, err := db.tableLocked(entity)
		if err != nil {
			return "", err
		}
		d, err := t.Digest()
		if err != nil {
			return "", fmt.Errorf("digest %s: %w", entity, err)
		}
		digests = append(digests, d)
	}
	return ir.CombineDigests(db.name, digests), nil
}
