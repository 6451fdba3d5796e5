package planfile

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/schema"
	"github.com/roach88/tabula/internal/store"
)

// Instantiate builds a new entity instance from a row of host values.
// Every name must be a scalar field of desc.
func Instantiate(desc *schema.Descriptor, row map[string]any) (any, error) {
	obj := desc.Accessor.New()
	if err := Assign(desc, obj, row); err != nil {
		return nil, err
	}
	return obj, nil
}

// Assign normalizes each value of row against its field kind and sets it
// on obj, in field name order.
func Assign(desc *schema.Descriptor, obj any, row map[string]any) error {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		f, ok := desc.Field(name)
		if !ok {
			return fmt.Errorf("%s has no field %q", desc.Name, name)
		}
		v, err := ir.FromGo(row[name])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", desc.Name, name, err)
		}
		if v, err = schema.Normalize(f.Kind, v); err != nil {
			return fmt.Errorf("%s.%s: %w", desc.Name, name, err)
		}
		if err := desc.Accessor.Set(obj, f, v); err != nil {
			return fmt.Errorf("%s.%s: %w", desc.Name, name, err)
		}
	}
	return nil
}

// ApplySeed adds every row of sets to db, in order, then saves. It returns
// the number of changes saved.
func ApplySeed(ctx context.Context, db *store.Database, sets []SeedSet) (int, error) {
	for i, set := range sets {
		table, err := db.GetTable(set.Entity)
		if err != nil {
			return 0, fmt.Errorf("seed[%d]: %w", i, err)
		}
		for j, row := range set.Rows {
			obj, err := Instantiate(table.Descriptor(), row)
			if err != nil {
				return 0, fmt.Errorf("seed[%d].rows[%d]: %w", i, j, err)
			}
			if err := table.Add(obj); err != nil {
				return 0, fmt.Errorf("seed[%d].rows[%d]: %w", i, j, err)
			}
		}
	}
	return db.SaveChanges(ctx)
}
