package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/ir"
)

// Record is a dynamic entity instance for types declared in schema files
// rather than as Go structs. Scalar values are held in their natural Go
// form (int64, float64, string, bool, time.Time, uuid.UUID or nil).
type Record struct {
	entity string
	values map[string]any
	refs   map[string]*Record
	colls  map[string][]*Record
}

// NewRecord returns an empty record of the named entity type.
func NewRecord(entity string) *Record {
	return &Record{
		entity: entity,
		values: map[string]any{},
		refs:   map[string]*Record{},
		colls:  map[string][]*Record{},
	}
}

// Entity returns the record's entity type name.
func (r *Record) Entity() string { return r.entity }

// Get returns a scalar value, a reference (*Record) or a collection
// ([]*Record) by member name.
func (r *Record) Get(name string) any {
	if v, ok := r.values[name]; ok {
		return v
	}
	if ref, ok := r.refs[name]; ok {
		return ref
	}
	if items, ok := r.colls[name]; ok {
		return items
	}
	return nil
}

// Set assigns a scalar value. Callers building seed data use this; the
// store normalizes the value against the declared kind on write.
func (r *Record) Set(name string, v any) *Record {
	r.values[name] = v
	return r
}

// Ref returns the loaded reference navigation, or nil.
func (r *Record) Ref(name string) *Record { return r.refs[name] }

// Items returns the loaded collection navigation.
func (r *Record) Items(name string) []*Record { return r.colls[name] }

// Fields returns the scalar values as a plain map, for output encoding.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// String renders the record's scalar fields in name order.
func (r *Record) String() string {
	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	slices.Sort(names)
	var b strings.Builder
	b.WriteString(r.entity)
	b.WriteString("{")
	for i, k := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", k, r.values[k])
	}
	b.WriteString("}")
	return b.String()
}

// recordAccessor implements Accessor for one dynamic entity type.
type recordAccessor struct {
	entity string
}

// RecordAccessor returns the Accessor for dynamic records of the named type.
func RecordAccessor(entity string) Accessor {
	return recordAccessor{entity: entity}
}

func (a recordAccessor) New() any { return NewRecord(a.entity) }

func (a recordAccessor) Owns(obj any) bool {
	r, ok := obj.(*Record)
	return ok && r != nil && r.entity == a.entity
}

func (a recordAccessor) Get(obj any, f Field) (any, error) {
	return obj.(*Record).values[f.Name], nil
}

func (a recordAccessor) Set(obj any, f Field, v ir.Value) error {
	nv, err := Normalize(f.Kind, v)
	if err != nil {
		return err
	}
	g, err := natural(f.Kind, nv)
	if err != nil {
		return err
	}
	obj.(*Record).values[f.Name] = g
	return nil
}

func (a recordAccessor) Reference(obj any, rel Relation) (any, error) {
	ref := obj.(*Record).refs[rel.Name]
	if ref == nil {
		return nil, nil
	}
	return ref, nil
}

func (a recordAccessor) SetReference(obj any, rel Relation, target any) error {
	r := obj.(*Record)
	if target == nil {
		delete(r.refs, rel.Name)
		return nil
	}
	t, ok := target.(*Record)
	if !ok || t.entity != rel.Target {
		return fmt.Errorf("cannot assign %T to %s.%s", target, a.entity, rel.Name)
	}
	r.refs[rel.Name] = t
	return nil
}

func (a recordAccessor) Collection(obj any, rel Relation) ([]any, error) {
	items := obj.(*Record).colls[rel.Name]
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out, nil
}

func (a recordAccessor) SetCollection(obj any, rel Relation, items []any) error {
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		t, ok := item.(*Record)
		if !ok || t.entity != rel.Target {
			return fmt.Errorf("cannot add %T to %s.%s", item, a.entity, rel.Name)
		}
		out = append(out, t)
	}
	obj.(*Record).colls[rel.Name] = out
	return nil
}
