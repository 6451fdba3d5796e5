package harness

import (
	"fmt"
	"reflect"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
)

// Render converts a query result element to plain data: an entity becomes
// a map of its scalar fields, a tuple a map of its rendered fields, a
// slice a list, and a scalar its canonical Go form (times as RFC 3339
// strings). Navigations are never followed, so cyclic graphs render
// finitely.
func Render(model *schema.Model, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *engine.Tuple:
		out := make(map[string]any, x.Len())
		vals := x.Values()
		for i, name := range x.Names() {
			r, err := Render(model, vals[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			out[name] = r
		}
		return out, nil
	}

	if desc, err := model.DescriptorOf(v); err == nil {
		snap, err := desc.Snapshot(v)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(snap))
		for name, val := range snap {
			out[name] = ir.ToGo(val)
		}
		return out, nil
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			r, err := Render(model, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}

	val, err := ir.FromGo(v)
	if err != nil {
		return nil, err
	}
	return ir.ToGo(val), nil
}

// RenderAll renders each element of elems.
func RenderAll(model *schema.Model, elems []any) ([]any, error) {
	out := make([]any, len(elems))
	for i, el := range elems {
		r, err := Render(model, el)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}
