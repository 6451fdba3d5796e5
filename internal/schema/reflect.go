package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
)

// TagName is the struct tag read by Describe.
//
//	Id     int64   `tabula:"key,generated"`
//	LineId int     `tabula:"key,order=1"`
//	Blog   *Blog   `tabula:"fk=BlogId,inverse=Posts"`
//	Posts  []*Post `tabula:"fk=BlogId,inverse=Blog"`
//	Cache  string  `tabula:"-"`
const TagName = "tabula"

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

type tagOptions struct {
	skip      bool
	key       bool
	order     int
	generated bool
	fk        []string
	inverse   string
}

func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		name, value, _ := strings.Cut(part, "=")
		switch name {
		case "":
		case "key":
			opts.key = true
		case "generated":
			opts.generated = true
		case "order":
			n, err := strconv.Atoi(value)
			if err != nil {
				return opts, fmt.Errorf("invalid order %q", value)
			}
			opts.order = n
		case "fk":
			opts.fk = strings.Split(value, "+")
		case "inverse":
			opts.inverse = value
		default:
			return opts, fmt.Errorf("unknown tag option %q", name)
		}
	}
	return opts, nil
}

// kindOf maps a Go field type to a scalar Kind. Pointer types are nullable.
func kindOf(t reflect.Type) (Kind, bool) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		nullable = true
		t = t.Elem()
	}
	switch t {
	case timeType:
		return KindTime, nullable
	case uuidType:
		return KindUUID, nullable
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool, nullable
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return KindInt, nullable
	case reflect.Float32, reflect.Float64:
		return KindFloat, nullable
	case reflect.String:
		return KindString, nullable
	}
	return KindInvalid, false
}

// navTarget returns the struct type a navigation field points at.
func navTarget(t reflect.Type) (reflect.Type, bool, bool) {
	switch {
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		return t.Elem(), false, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Pointer && t.Elem().Elem().Kind() == reflect.Struct:
		return t.Elem().Elem(), true, true
	}
	return nil, false, false
}

type keyCandidate struct {
	name  string
	order int
}

// Describe builds a Descriptor for the struct type of sample (a T or *T).
//
// Keys come from `key` tags, ordered by `order=` and then by field name.
// Without tags the conventional names Id, ID, <Type>Id and <Type>ID are
// tried. A type with no derivable key fails with NoPrimaryKey.
func Describe(sample any) (*Descriptor, error) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, errs.New(errs.NullArgument, "cannot describe nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errs.New(errs.InvalidSchema, "entity type must be a struct, got %s", t)
	}
	return describeStruct(t)
}

func describeStruct(t reflect.Type) (*Descriptor, error) {
	name := t.Name()
	acc := &structAccessor{typ: t, fields: map[string][]int{}, navs: map[string][]int{}}

	var (
		fields []Field
		rels   []Relation
		keys   []keyCandidate
	)
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		opts, err := parseTag(sf.Tag.Get(TagName))
		if err != nil {
			return nil, errs.New(errs.InvalidSchema, "field %s: %v", sf.Name, err).WithEntity(name)
		}
		if opts.skip {
			continue
		}

		if kind, nullable := kindOf(sf.Type); kind != KindInvalid {
			fields = append(fields, Field{
				Name:      sf.Name,
				Kind:      kind,
				Nullable:  nullable,
				Generated: opts.generated,
			})
			acc.fields[sf.Name] = sf.Index
			if opts.key {
				keys = append(keys, keyCandidate{name: sf.Name, order: opts.order})
			}
			continue
		}

		target, collection, ok := navTarget(sf.Type)
		if !ok {
			return nil, errs.New(errs.InvalidSchema, "field %s has unsupported type %s", sf.Name, sf.Type).WithEntity(name)
		}
		fk := opts.fk
		if len(fk) == 0 {
			// Conventional foreign key: Blog.Posts -> Post.BlogId, Post.Blog -> Post.BlogId
			if collection {
				fk = []string{name + "Id"}
			} else {
				fk = []string{sf.Name + "Id"}
			}
		}
		rels = append(rels, Relation{
			Name:       sf.Name,
			Target:     target.Name(),
			Collection: collection,
			ForeignKey: fk,
			Inverse:    opts.inverse,
		})
		acc.navs[sf.Name] = sf.Index
	}

	key := orderKeys(keys)
	if len(key) == 0 {
		for _, candidate := range []string{"Id", "ID", name + "Id", name + "ID"} {
			if _, ok := acc.fields[candidate]; ok {
				key = []string{candidate}
				break
			}
		}
	}
	return NewDescriptor(name, key, fields, rels, acc)
}

// orderKeys sorts explicitly ordered keys first, then the rest by name.
func orderKeys(keys []keyCandidate) []string {
	slices.SortStableFunc(keys, func(a, b keyCandidate) int {
		switch {
		case a.order != 0 && b.order == 0:
			return -1
		case a.order == 0 && b.order != 0:
			return 1
		case a.order != b.order:
			return a.order - b.order
		default:
			return strings.Compare(a.name, b.name)
		}
	})
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.name
	}
	return out
}

// structAccessor reads and writes *T instances through field indexes
// computed once by Describe.
type structAccessor struct {
	typ    reflect.Type
	fields map[string][]int
	navs   map[string][]int
}

func (a *structAccessor) New() any {
	return reflect.New(a.typ).Interface()
}

func (a *structAccessor) Owns(obj any) bool {
	t := reflect.TypeOf(obj)
	return t != nil && t.Kind() == reflect.Pointer && t.Elem() == a.typ
}

func (a *structAccessor) elem(obj any) reflect.Value {
	return reflect.ValueOf(obj).Elem()
}

func (a *structAccessor) Get(obj any, f Field) (any, error) {
	idx, ok := a.fields[f.Name]
	if !ok {
		return nil, fmt.Errorf("no field %q on %s", f.Name, a.typ.Name())
	}
	fv := a.elem(obj).FieldByIndex(idx)
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return nil, nil
	}
	return fv.Interface(), nil
}

func (a *structAccessor) Set(obj any, f Field, v ir.Value) error {
	idx, ok := a.fields[f.Name]
	if !ok {
		return fmt.Errorf("no field %q on %s", f.Name, a.typ.Name())
	}
	return assign(a.elem(obj).FieldByIndex(idx), f.Kind, v)
}

// assign coerces a stored value into a reflected field.
func assign(dst reflect.Value, kind Kind, v ir.Value) error {
	if dst.Kind() == reflect.Pointer {
		if ir.IsNull(v) {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), kind, v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
	if ir.IsNull(v) {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	v, err := Normalize(kind, v)
	if err != nil {
		return err
	}

	switch dst.Type() {
	case timeType:
		t, err := time.Parse(ir.TimeLayout, string(v.(ir.String)))
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
		return nil
	case uuidType:
		id, err := uuid.Parse(string(v.(ir.String)))
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(id))
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		dst.SetBool(bool(v.(ir.Bool)))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int64(v.(ir.Int))
		if dst.OverflowInt(n) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		n := int64(v.(ir.Int))
		if n < 0 || dst.OverflowUint(uint64(n)) {
			return fmt.Errorf("value %d overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(float64(v.(ir.Float)))
	case reflect.String:
		dst.SetString(string(v.(ir.String)))
	default:
		return fmt.Errorf("cannot assign to %s", dst.Type())
	}
	return nil
}

func (a *structAccessor) nav(obj any, rel Relation) (reflect.Value, error) {
	idx, ok := a.navs[rel.Name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("no navigation %q on %s", rel.Name, a.typ.Name())
	}
	return a.elem(obj).FieldByIndex(idx), nil
}

func (a *structAccessor) Reference(obj any, rel Relation) (any, error) {
	fv, err := a.nav(obj, rel)
	if err != nil {
		return nil, err
	}
	if fv.IsNil() {
		return nil, nil
	}
	return fv.Interface(), nil
}

func (a *structAccessor) SetReference(obj any, rel Relation, target any) error {
	fv, err := a.nav(obj, rel)
	if err != nil {
		return err
	}
	if target == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	tv := reflect.ValueOf(target)
	if !tv.Type().AssignableTo(fv.Type()) {
		return fmt.Errorf("cannot assign %s to %s.%s", tv.Type(), a.typ.Name(), rel.Name)
	}
	fv.Set(tv)
	return nil
}

func (a *structAccessor) Collection(obj any, rel Relation) ([]any, error) {
	fv, err := a.nav(obj, rel)
	if err != nil {
		return nil, err
	}
	out := make([]any, fv.Len())
	for i := range out {
		out[i] = fv.Index(i).Interface()
	}
	return out, nil
}

func (a *structAccessor) SetCollection(obj any, rel Relation, items []any) error {
	fv, err := a.nav(obj, rel)
	if err != nil {
		return err
	}
	s := reflect.MakeSlice(fv.Type(), 0, len(items))
	for _, item := range items {
		iv := reflect.ValueOf(item)
		if !iv.Type().AssignableTo(fv.Type().Elem()) {
			return fmt.Errorf("cannot add %s to %s.%s", iv.Type(), a.typ.Name(), rel.Name)
		}
		s = reflect.Append(s, iv)
	}
	fv.Set(s)
	return nil
}

func isNilPointer(obj any) bool {
	v := reflect.ValueOf(obj)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
