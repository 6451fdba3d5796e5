package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/errs"
)

// Model is the set of entity descriptors known to one database. It is
// built by registering descriptors and then frozen with Finalize, which
// resolves every relation against its target.
type Model struct {
	byName    map[string]*Descriptor
	byType    map[reflect.Type]*Descriptor
	finalized bool
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		byName: map[string]*Descriptor{},
		byType: map[reflect.Type]*Descriptor{},
	}
}

// Register adds a prebuilt descriptor.
func (m *Model) Register(d *Descriptor) error {
	if m.finalized {
		return errs.New(errs.InvalidSchema, "model is finalized").WithEntity(d.Name)
	}
	if _, dup := m.byName[d.Name]; dup {
		return errs.New(errs.InvalidSchema, "entity registered twice").WithEntity(d.Name)
	}
	m.byName[d.Name] = d
	if sa, ok := d.Accessor.(*structAccessor); ok {
		m.byType[sa.typ] = d
	}
	return nil
}

// RegisterType describes each sample's struct type and registers it.
func (m *Model) RegisterType(samples ...any) error {
	for _, s := range samples {
		d, err := Describe(s)
		if err != nil {
			return err
		}
		if err := m.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Finalize resolves relations. A reference whose foreign key fields live
// on the owner is marked OwnerHoldsKey; otherwise the fields must exist on
// the target. Foreign key arity must match the referenced key.
func (m *Model) Finalize() error {
	if m.finalized {
		return nil
	}
	var problems []string
	for _, name := range m.Entities() {
		d := m.byName[name]
		for i := range d.Relations {
			rel := &d.Relations[i]
			target, ok := m.byName[rel.Target]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s.%s: unknown target %q", d.Name, rel.Name, rel.Target))
				continue
			}
			rel.OwnerHoldsKey = !rel.Collection && hasFields(d, rel.ForeignKey)
			switch {
			case rel.OwnerHoldsKey:
				if len(rel.ForeignKey) != len(target.Key) {
					problems = append(problems, fmt.Sprintf("%s.%s: foreign key %v does not match key of %s", d.Name, rel.Name, rel.ForeignKey, target.Name))
				}
			case hasFields(target, rel.ForeignKey):
				if len(rel.ForeignKey) != len(d.Key) {
					problems = append(problems, fmt.Sprintf("%s.%s: foreign key %v does not match key of %s", d.Name, rel.Name, rel.ForeignKey, d.Name))
				}
			default:
				problems = append(problems, fmt.Sprintf("%s.%s: foreign key %v not found on %s or %s", d.Name, rel.Name, rel.ForeignKey, d.Name, target.Name))
			}
			if rel.Inverse != "" {
				if _, ok := target.Relation(rel.Inverse); !ok {
					problems = append(problems, fmt.Sprintf("%s.%s: inverse %q not found on %s", d.Name, rel.Name, rel.Inverse, target.Name))
				}
			}
		}
	}
	if len(problems) > 0 {
		return errs.New(errs.InvalidSchema, "%s", strings.Join(problems, "; "))
	}
	m.finalized = true
	return nil
}

func hasFields(d *Descriptor, names []string) bool {
	for _, n := range names {
		if _, ok := d.Field(n); !ok {
			return false
		}
	}
	return len(names) > 0
}

// Descriptor returns the named entity's descriptor or fails UnknownEntity.
func (m *Model) Descriptor(name string) (*Descriptor, error) {
	d, ok := m.byName[name]
	if !ok {
		return nil, errs.New(errs.UnknownEntity, "entity is not part of the model").WithEntity(name)
	}
	return d, nil
}

// Lookup returns the named entity's descriptor.
func (m *Model) Lookup(name string) (*Descriptor, bool) {
	d, ok := m.byName[name]
	return d, ok
}

// DescriptorOf returns the descriptor for a live instance (*T or *Record).
func (m *Model) DescriptorOf(obj any) (*Descriptor, error) {
	if obj == nil || isNilPointer(obj) {
		return nil, errs.New(errs.NullArgument, "entity is nil")
	}
	if r, ok := obj.(*Record); ok {
		return m.Descriptor(r.Entity())
	}
	t := reflect.TypeOf(obj)
	if t.Kind() == reflect.Pointer {
		if d, ok := m.byType[t.Elem()]; ok {
			return d, nil
		}
		return nil, errs.New(errs.UnknownEntity, "type %s is not part of the model", t.Elem()).WithEntity(t.Elem().Name())
	}
	return nil, errs.New(errs.UnknownEntity, "entities must be pointers, got %s", t)
}

// DescriptorFor returns the descriptor registered for struct type t. A
// pointer type resolves to its element.
func (m *Model) DescriptorFor(t reflect.Type) (*Descriptor, error) {
	if t == nil {
		return nil, errs.New(errs.NullArgument, "type is nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if d, ok := m.byType[t]; ok {
		return d, nil
	}
	return nil, errs.New(errs.UnknownEntity, "type %s is not part of the model", t).WithEntity(t.Name())
}

// Entities returns the registered entity names, sorted.
func (m *Model) Entities() []string {
	names := make([]string, 0, len(m.byName))
	for n := range m.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// MustModel registers the sample struct types and finalizes, panicking on
// error. For tests and fixtures.
func MustModel(samples ...any) *Model {
	m := NewModel()
	if err := m.RegisterType(samples...); err != nil {
		panic(err)
	}
	if err := m.Finalize(); err != nil {
		panic(err)
	}
	return m
}
