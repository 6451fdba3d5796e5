package schema

import (
	"fmt"
	"slices"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
)

// Field describes one scalar field of an entity type.
type Field struct {
	Name      string
	Kind      Kind
	Nullable  bool
	Generated bool // surrogate key assigned by the store when zero
}

// Relation describes a navigation from an owner entity to a target entity.
//
// ForeignKey names the fields holding the related key. They live on the
// owner when OwnerHoldsKey is set (a reference to a principal, e.g.
// Post.Blog) and on the target otherwise (collections and one-to-one
// principal-side references, e.g. Blog.Posts).
type Relation struct {
	Name          string
	Target        string
	Collection    bool
	ForeignKey    []string
	OwnerHoldsKey bool
	Inverse       string
}

// Accessor reads and writes the fields of live entity instances.
// Implementations exist for reflected Go structs and for dynamic Records.
type Accessor interface {
	// New allocates a zero instance.
	New() any

	// Owns reports whether obj is an instance of this entity type.
	Owns(obj any) bool

	// Get returns a scalar field as a Go value.
	Get(obj any, field Field) (any, error)

	// Set assigns a stored value to a scalar field, coercing it to the
	// field's declared Go type.
	Set(obj any, field Field, v ir.Value) error

	// Reference returns the current target of a reference navigation, or nil.
	Reference(obj any, rel Relation) (any, error)

	// SetReference assigns a reference navigation (nil clears it).
	SetReference(obj any, rel Relation, target any) error

	// Collection returns the items of a collection navigation.
	Collection(obj any, rel Relation) ([]any, error)

	// SetCollection replaces the items of a collection navigation.
	SetCollection(obj any, rel Relation, items []any) error
}

// Descriptor is the host-supplied schema of one entity type: the ordered
// key, the scalar fields to snapshot and the navigations. It is built once
// per type and never mutated after Model.Finalize.
type Descriptor struct {
	Name      string
	Key       []string
	Fields    []Field
	Relations []Relation
	Accessor  Accessor

	fieldIdx map[string]int
	relIdx   map[string]int
}

// NewDescriptor validates the parts and builds a Descriptor.
// An empty key fails with NoPrimaryKey.
func NewDescriptor(name string, key []string, fields []Field, rels []Relation, acc Accessor) (*Descriptor, error) {
	if name == "" {
		return nil, errs.New(errs.InvalidSchema, "entity name is required")
	}
	if len(key) == 0 {
		return nil, errs.New(errs.NoPrimaryKey, "no primary key could be derived").WithEntity(name)
	}
	d := &Descriptor{
		Name:      name,
		Key:       slices.Clone(key),
		Fields:    slices.Clone(fields),
		Relations: slices.Clone(rels),
		Accessor:  acc,
		fieldIdx:  make(map[string]int, len(fields)),
		relIdx:    make(map[string]int, len(rels)),
	}
	for i, f := range d.Fields {
		if _, dup := d.fieldIdx[f.Name]; dup {
			return nil, errs.New(errs.InvalidSchema, "duplicate field %q", f.Name).WithEntity(name)
		}
		if f.Kind == KindInvalid {
			return nil, errs.New(errs.InvalidSchema, "field %q has no kind", f.Name).WithEntity(name)
		}
		d.fieldIdx[f.Name] = i
	}
	for _, k := range d.Key {
		f, ok := d.Field(k)
		if !ok {
			return nil, errs.New(errs.NoPrimaryKey, "key field %q is not a scalar field", k).WithEntity(name)
		}
		if f.Generated && f.Kind != KindInt {
			return nil, errs.New(errs.InvalidSchema, "generated key field %q must be int", k).WithEntity(name)
		}
	}
	for i, r := range d.Relations {
		if _, dup := d.relIdx[r.Name]; dup {
			return nil, errs.New(errs.InvalidSchema, "duplicate relation %q", r.Name).WithEntity(name)
		}
		if _, clash := d.fieldIdx[r.Name]; clash {
			return nil, errs.New(errs.InvalidSchema, "relation %q shadows a field", r.Name).WithEntity(name)
		}
		d.relIdx[r.Name] = i
	}
	return d, nil
}

// Field returns the named scalar field.
func (d *Descriptor) Field(name string) (Field, bool) {
	i, ok := d.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// Relation returns the named navigation.
func (d *Descriptor) Relation(name string) (Relation, bool) {
	i, ok := d.relIdx[name]
	if !ok {
		return Relation{}, false
	}
	return d.Relations[i], true
}

// KeyFields returns the key fields in key order.
func (d *Descriptor) KeyFields() []Field {
	out := make([]Field, len(d.Key))
	for i, k := range d.Key {
		out[i], _ = d.Field(k)
	}
	return out
}

func (d *Descriptor) checkInstance(obj any) error {
	if obj == nil || isNilPointer(obj) {
		return errs.New(errs.NullArgument, "entity is nil").WithEntity(d.Name)
	}
	if !d.Accessor.Owns(obj) {
		return errs.New(errs.NotSupported, "value of type %T is not a %s entity", obj, d.Name).WithEntity(d.Name)
	}
	return nil
}

// Value reads one scalar field as a normalized stored value.
func (d *Descriptor) Value(obj any, f Field) (ir.Value, error) {
	raw, err := d.Accessor.Get(obj, f)
	if err != nil {
		return nil, err
	}
	v, err := ir.FromGo(raw)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
	}
	v, err = Normalize(f.Kind, v)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
	}
	return v, nil
}

// Natural reads one scalar field as its natural Go value: nil, bool,
// int64, float64, string, time.Time or uuid.UUID.
func (d *Descriptor) Natural(obj any, f Field) (any, error) {
	v, err := d.Value(obj, f)
	if err != nil {
		return nil, err
	}
	return natural(f.Kind, v)
}

// KeyOf extracts the row key of obj.
// Fails NullArgument on nil and NullPrimaryKeyValue when a key field is null.
func (d *Descriptor) KeyOf(obj any) (ir.Key, error) {
	if err := d.checkInstance(obj); err != nil {
		return nil, err
	}
	key := make(ir.Key, len(d.Key))
	for i, f := range d.KeyFields() {
		v, err := d.Value(obj, f)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			return nil, errs.New(errs.NullPrimaryKeyValue, "key field %q is null", f.Name).WithEntity(d.Name)
		}
		key[i] = v
	}
	return key, nil
}

// KeyOfSnapshot extracts the row key from a stored snapshot.
func (d *Descriptor) KeyOfSnapshot(snap ir.Snapshot) (ir.Key, error) {
	key := make(ir.Key, len(d.Key))
	for i, name := range d.Key {
		v := snap.Get(name)
		if ir.IsNull(v) {
			return nil, errs.New(errs.NullPrimaryKeyValue, "key field %q is null", name).WithEntity(d.Name)
		}
		key[i] = v
	}
	return key, nil
}

// KeyFromValues builds a key from host values in key order, normalizing
// each component to the declared field kind.
func (d *Descriptor) KeyFromValues(vals ...any) (ir.Key, error) {
	if len(vals) != len(d.Key) {
		return nil, fmt.Errorf("%s: key has %d component(s), got %d", d.Name, len(d.Key), len(vals))
	}
	key := make(ir.Key, len(vals))
	for i, f := range d.KeyFields() {
		v, err := ir.FromGo(vals[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
		if ir.IsNull(v) {
			return nil, errs.New(errs.NullArgument, "key component %q is null", f.Name).WithEntity(d.Name)
		}
		if key[i], err = Normalize(f.Kind, v); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
	}
	return key, nil
}

// Snapshot copies every scalar field of obj into a fresh Snapshot.
func (d *Descriptor) Snapshot(obj any) (ir.Snapshot, error) {
	if err := d.checkInstance(obj); err != nil {
		return nil, err
	}
	snap := make(ir.Snapshot, len(d.Fields))
	for _, f := range d.Fields {
		v, err := d.Value(obj, f)
		if err != nil {
			return nil, err
		}
		snap[f.Name] = v
	}
	return snap, nil
}

// Apply copies a snapshot's scalar fields onto obj. Fields missing from the
// snapshot are set to null (zero).
func (d *Descriptor) Apply(obj any, snap ir.Snapshot) error {
	for _, f := range d.Fields {
		if err := d.Accessor.Set(obj, f, snap.Get(f.Name)); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
	}
	return nil
}

// Get returns a scalar field or loaded navigation of obj by name.
func (d *Descriptor) Get(obj any, name string) (any, error) {
	if f, ok := d.Field(name); ok {
		return d.Accessor.Get(obj, f)
	}
	if r, ok := d.Relation(name); ok {
		if r.Collection {
			return d.Accessor.Collection(obj, r)
		}
		return d.Accessor.Reference(obj, r)
	}
	return nil, errs.New(errs.NotSupported, "%s has no member %q", d.Name, name).WithEntity(d.Name)
}

// Member reports whether name is a field or relation of d.
func (d *Descriptor) Member(name string) bool {
	_, f := d.fieldIdx[name]
	_, r := d.relIdx[name]
	return f || r
}
