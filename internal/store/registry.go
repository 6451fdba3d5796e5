package store

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/tabula/internal/schema"
)

// Registry maps logical database names to databases. Opening the same name
// twice returns the same instance, so independent sessions share state.
type Registry struct {
	mu  sync.Mutex
	dbs map[string]*Database
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dbs: make(map[string]*Database)}
}

// Open returns the database registered under name, creating it from model
// and opts on first use. Later calls ignore model and opts.
func (r *Registry) Open(name string, model *schema.Model, opts ...Option) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[name]; ok {
		return db, nil
	}
	db, err := NewDatabase(name, model, opts...)
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	return db, nil
}

// Drop forgets the named database. It reports whether one was registered.
func (r *Registry) Drop(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.dbs[name]
	delete(r.dbs, name)
	return ok
}

// Names returns the registered database names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.dbs))
}
