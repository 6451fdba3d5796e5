// Package materialize turns stored rows into live entity instances whose
// identity is stable within one unit of work.
package materialize

import (
	"fmt"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// IdentityMap is the per-unit-of-work cache guaranteeing one instance per
// (entity, key). It also records which relations have been loaded on which
// owner instances, for navigation fix-up.
type IdentityMap interface {
	// TryGet returns the instance registered for (entity, key).
	TryGet(entity string, key ir.Key) (any, bool)

	// Register records obj as the instance for (entity, key).
	Register(entity string, key ir.Key, obj any)

	// Forget removes (entity, key) and any loaded marks on its instance.
	Forget(entity string, key ir.Key)

	// MarkLoaded records that relation has been populated on owner.
	MarkLoaded(owner any, relation string)

	// IsLoaded reports whether relation has been populated on owner.
	IsLoaded(owner any, relation string) bool
}

type identityKey struct {
	entity string
	key    string
}

type loadedKey struct {
	owner    any
	relation string
}

// identityMap is the default IdentityMap. It is not safe for concurrent
// use; a unit of work is single-threaded.
type identityMap struct {
	objects map[identityKey]any
	loaded  map[loadedKey]struct{}
}

// NewIdentityMap returns an empty identity map.
func NewIdentityMap() IdentityMap {
	return &identityMap{
		objects: make(map[identityKey]any),
		loaded:  make(map[loadedKey]struct{}),
	}
}

func (m *identityMap) TryGet(entity string, key ir.Key) (any, bool) {
	obj, ok := m.objects[identityKey{entity, key.Encode()}]
	return obj, ok
}

func (m *identityMap) Register(entity string, key ir.Key, obj any) {
	m.objects[identityKey{entity, key.Encode()}] = obj
}

func (m *identityMap) Forget(entity string, key ir.Key) {
	id := identityKey{entity, key.Encode()}
	obj, ok := m.objects[id]
	if !ok {
		return
	}
	delete(m.objects, id)
	for lk := range m.loaded {
		if lk.owner == obj {
			delete(m.loaded, lk)
		}
	}
}

// Entity instances are pointers, so they are comparable map keys.
func (m *identityMap) MarkLoaded(owner any, relation string) {
	m.loaded[loadedKey{owner, relation}] = struct{}{}
}

func (m *identityMap) IsLoaded(owner any, relation string) bool {
	_, ok := m.loaded[loadedKey{owner, relation}]
	return ok
}

// Materializer resolves rows through an identity map. It populates scalar
// fields only; navigations are left to fix-up.
type Materializer struct {
	identity IdentityMap
	created  int
	hits     int
}

// New returns a Materializer over identity.
func New(identity IdentityMap) *Materializer {
	return &Materializer{identity: identity}
}

// Identity returns the identity map.
func (m *Materializer) Identity() IdentityMap { return m.identity }

// Materialize returns the instance for row: the registered one on a hit,
// otherwise a new instance with scalar fields copied from the snapshot.
func (m *Materializer) Materialize(desc *schema.Descriptor, row store.Row) (any, error) {
	if obj, ok := m.identity.TryGet(desc.Name, row.Key); ok {
		m.hits++
		return obj, nil
	}
	obj := desc.Accessor.New()
	if err := desc.Apply(obj, row.Snapshot); err != nil {
		return nil, fmt.Errorf("materialize %s %s: %w", desc.Name, row.Key, err)
	}
	m.identity.Register(desc.Name, row.Key, obj)
	m.created++
	return obj, nil
}

// Stats reports how many instances were created and how many lookups hit
// the identity map.
func (m *Materializer) Stats() (created, hits int) { return m.created, m.hits }
