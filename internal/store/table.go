package store

import (
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
)

// ChangeKind classifies a pending change.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	}
	return "Unknown"
}

// Row is one effective stored row.
type Row struct {
	Key      ir.Key
	Snapshot ir.Snapshot
}

// Change is one pending mutation. Deleted changes carry no snapshot.
type Change struct {
	Key      ir.Key
	Kind     ChangeKind
	Snapshot ir.Snapshot
}

// Materializer turns a stored row into a live entity instance.
type Materializer interface {
	Materialize(desc *schema.Descriptor, row Row) (any, error)
}

// Table holds the committed rows and pending changes of one entity type.
//
// Rows are keyed by ir.Key.Encode. Tables are not safe for concurrent use;
// callers serialize access within one unit of work.
type Table struct {
	desc      *schema.Descriptor
	alloc     *Allocator
	logger    *slog.Logger
	committed map[string]Row
	pending   map[string]Change
}

func newTable(desc *schema.Descriptor, alloc *Allocator, logger *slog.Logger) *Table {
	return &Table{
		desc:      desc,
		alloc:     alloc,
		logger:    logger,
		committed: make(map[string]Row),
		pending:   make(map[string]Change),
	}
}

// clone returns a table holding a copy of t's committed rows and no
// pending changes.
func (t *Table) clone() *Table {
	c := newTable(t.desc, t.alloc, t.logger)
	for k, row := range t.committed {
		c.committed[k] = Row{Key: row.Key, Snapshot: row.Snapshot.Clone()}
	}
	return c
}

// Descriptor returns the schema of the stored entity type.
func (t *Table) Descriptor() *schema.Descriptor { return t.desc }

// Entity returns the stored entity type name.
func (t *Table) Entity() string { return t.desc.Name }

// present reports whether key k is in the effective view.
func (t *Table) present(k string) bool {
	if c, ok := t.pending[k]; ok {
		return c.Kind != Deleted
	}
	_, ok := t.committed[k]
	return ok
}

// capture snapshots entity, assigning generated key values first.
func (t *Table) capture(entity any) (ir.Key, ir.Snapshot, error) {
	snap, err := t.desc.Snapshot(entity)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range t.desc.KeyFields() {
		if !f.Generated || t.alloc == nil {
			continue
		}
		v, _ := snap.Get(f.Name).(ir.Int)
		if v != 0 {
			t.alloc.Observe(t.desc.Name, f.Name, int64(v))
			continue
		}
		next := ir.Int(t.alloc.Next(t.desc.Name, f.Name))
		if err := t.desc.Accessor.Set(entity, f, next); err != nil {
			return nil, nil, err
		}
		snap[f.Name] = next
	}
	key, err := t.desc.KeyOfSnapshot(snap)
	if err != nil {
		return nil, nil, err
	}
	return key, snap, nil
}

// Add records a pending Added change for entity.
// Fails DuplicateKey if the key is already effectively present.
func (t *Table) Add(entity any) error {
	key, snap, err := t.capture(entity)
	if err != nil {
		return err
	}
	k := key.Encode()
	if t.present(k) {
		return errs.New(errs.DuplicateKey, "key already present").WithEntity(t.desc.Name).WithKey(key)
	}
	t.pending[k] = Change{Key: key, Kind: Added, Snapshot: snap}
	return nil
}

// Update records a pending Modified change for entity. A pending Added
// change stays Added with the new snapshot.
// Fails NotFound if the key is not effectively present.
func (t *Table) Update(entity any) error {
	snap, err := t.desc.Snapshot(entity)
	if err != nil {
		return err
	}
	key, err := t.desc.KeyOfSnapshot(snap)
	if err != nil {
		return err
	}
	k := key.Encode()
	if !t.present(k) {
		return errs.New(errs.NotFound, "key not present").WithEntity(t.desc.Name).WithKey(key)
	}
	kind := Modified
	if c, ok := t.pending[k]; ok && c.Kind == Added {
		kind = Added
	}
	t.pending[k] = Change{Key: key, Kind: kind, Snapshot: snap}
	return nil
}

// Remove records a pending Deleted change for entity.
// Fails NotFound if the key is not effectively present.
func (t *Table) Remove(entity any) error {
	key, err := t.desc.KeyOf(entity)
	if err != nil {
		return err
	}
	return t.RemoveKey(key)
}

// RemoveKey is Remove by key.
func (t *Table) RemoveKey(key ir.Key) error {
	if key == nil {
		return errs.New(errs.NullArgument, "key is nil").WithEntity(t.desc.Name)
	}
	k := key.Encode()
	if !t.present(k) {
		return errs.New(errs.NotFound, "key not present").WithEntity(t.desc.Name).WithKey(key)
	}
	t.pending[k] = Change{Key: key, Kind: Deleted}
	return nil
}

// Lookup returns the effective row for key.
func (t *Table) Lookup(key ir.Key) (Row, bool) {
	k := key.Encode()
	if c, ok := t.pending[k]; ok {
		if c.Kind == Deleted {
			return Row{}, false
		}
		return Row{Key: c.Key, Snapshot: c.Snapshot.Clone()}, true
	}
	if row, ok := t.committed[k]; ok {
		return Row{Key: row.Key, Snapshot: row.Snapshot.Clone()}, true
	}
	return Row{}, false
}

// Find materializes the effective row for key, or returns (nil, false).
func (t *Table) Find(key ir.Key, m Materializer) (any, bool, error) {
	if key == nil {
		return nil, false, errs.New(errs.NullArgument, "key is nil").WithEntity(t.desc.Name)
	}
	row, ok := t.Lookup(key)
	if !ok {
		return nil, false, nil
	}
	obj, err := m.Materialize(t.desc, row)
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

// EffectiveRows yields committed rows overlaid with pending changes in
// ascending key order. The view is recomputed on every call.
func (t *Table) EffectiveRows() iter.Seq[Row] {
	return func(yield func(Row) bool) {
		for _, row := range t.effective() {
			if !yield(Row{Key: row.Key, Snapshot: row.Snapshot.Clone()}) {
				return
			}
		}
	}
}

func (t *Table) effective() []Row {
	merged := make(map[string]Row, len(t.committed)+len(t.pending))
	maps.Copy(merged, t.committed)
	for k, c := range t.pending {
		if c.Kind == Deleted {
			delete(merged, k)
			continue
		}
		merged[k] = Row{Key: c.Key, Snapshot: c.Snapshot}
	}
	rows := slices.Collect(maps.Values(merged))
	slices.SortFunc(rows, func(a, b Row) int { return ir.CompareKeys(a.Key, b.Key) })
	return rows
}

// Len returns the number of effective rows.
func (t *Table) Len() int {
	n := len(t.committed)
	for k, c := range t.pending {
		_, inBase := t.committed[k]
		switch {
		case c.Kind == Deleted && inBase:
			n--
		case c.Kind != Deleted && !inBase:
			n++
		}
	}
	return n
}

// PendingCount returns the number of pending changes.
func (t *Table) PendingCount() int { return len(t.pending) }

// Changes returns the pending changes in key order.
func (t *Table) Changes() []Change {
	out := slices.Collect(maps.Values(t.pending))
	slices.SortFunc(out, func(a, b Change) int { return ir.CompareKeys(a.Key, b.Key) })
	return out
}

// Commit applies every pending change to the committed rows, clears the
// pending set and returns the number of changes applied.
func (t *Table) Commit() int {
	n := len(t.pending)
	for k, c := range t.pending {
		if c.Kind == Deleted {
			delete(t.committed, k)
			continue
		}
		t.committed[k] = Row{Key: c.Key, Snapshot: c.Snapshot}
	}
	clear(t.pending)
	if n > 0 {
		t.logger.Debug("table committed", "entity", t.desc.Name, "changes", n, "rows", len(t.committed))
	}
	return n
}

// Clear empties both committed rows and pending changes.
func (t *Table) Clear() {
	clear(t.committed)
	clear(t.pending)
}

// Digest returns a content digest of the effective rows. Equal effective
// views produce equal digests.
func (t *Table) Digest() (string, error) {
	rows := t.effective()
	digests := make([]string, len(rows))
	for i, row := range rows {
		d, err := ir.RowDigest(t.desc.Name, row.Key, row.Snapshot)
		if err != nil {
			return "", err
		}
		digests[i] = d
	}
	return ir.CombineDigests(t.desc.Name, digests), nil
}
