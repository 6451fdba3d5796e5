package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tabula/internal/schema"
)

// CompileEntity parses a CUE value into a descriptor for a dynamic
// (Record-backed) entity type.
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entities: Blog: { key: ["Id"], fields: { ... } }`)
//	d, err := CompileEntity(v.LookupPath(cue.ParsePath("entities.Blog")))
//
// Fields may be written as a kind name ("int"), a CUE type (int) or a
// struct { type, nullable, generated }.
func CompileEntity(v cue.Value) (*schema.Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, &CompileError{Field: "entity", Message: "entity must be a labelled struct", Pos: v.Pos()}
	}

	fields, err := parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, &CompileError{Field: name + ".fields", Message: "at least one field is required", Pos: v.Pos()}
	}

	key, err := parseStringList(v.LookupPath(cue.ParsePath("key")), name+".key")
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		key = conventionalKey(name, fields)
	}

	rels, err := parseRelations(v, name)
	if err != nil {
		return nil, err
	}

	return schema.NewDescriptor(name, key, fields, rels, schema.RecordAccessor(name))
}

func conventionalKey(entity string, fields []schema.Field) []string {
	for _, candidate := range []string{"Id", "ID", entity + "Id", entity + "ID"} {
		for _, f := range fields {
			if f.Name == candidate {
				return []string{candidate}
			}
		}
	}
	return nil
}

func parseFields(v cue.Value) ([]schema.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []schema.Field
	for iter.Next() {
		f := schema.Field{Name: iter.Label()}
		fv := iter.Value()

		if fv.IncompleteKind() == cue.StructKind {
			typeVal := fv.LookupPath(cue.ParsePath("type"))
			if !typeVal.Exists() {
				return nil, &CompileError{Field: f.Name, Message: "type is required", Pos: fv.Pos()}
			}
			if f.Kind, err = extractKind(typeVal); err != nil {
				return nil, err
			}
			if f.Nullable, err = optionalBool(fv, "nullable"); err != nil {
				return nil, err
			}
			if f.Generated, err = optionalBool(fv, "generated"); err != nil {
				return nil, err
			}
		} else if f.Kind, err = extractKind(fv); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// extractKind converts a kind name or a bare CUE type to a field kind.
func extractKind(v cue.Value) (schema.Kind, error) {
	if s, err := v.String(); err == nil {
		k, err := schema.ParseKind(s)
		if err != nil {
			return schema.KindInvalid, &CompileError{Field: "type", Message: err.Error(), Pos: v.Pos()}
		}
		return k, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return schema.KindString, nil
	case cue.IntKind:
		return schema.KindInt, nil
	case cue.FloatKind, cue.NumberKind:
		return schema.KindFloat, nil
	case cue.BoolKind:
		return schema.KindBool, nil
	default:
		return schema.KindInvalid, &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func optionalBool(v cue.Value, path string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(path))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	// A single string is accepted for one-field keys.
	if s, err := v.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a string or list of strings", Pos: v.Pos()}
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseRelations(v cue.Value, owner string) ([]schema.Relation, error) {
	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if !relsVal.Exists() {
		return nil, nil
	}
	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []schema.Relation
	for iter.Next() {
		rel := schema.Relation{Name: iter.Label()}
		rv := iter.Value()
		where := owner + ".relations." + rel.Name

		targetVal := rv.LookupPath(cue.ParsePath("target"))
		if !targetVal.Exists() {
			return nil, &CompileError{Field: where, Message: "target is required", Pos: rv.Pos()}
		}
		if rel.Target, err = targetVal.String(); err != nil {
			return nil, formatCUEError(err)
		}
		if rel.Collection, err = optionalBool(rv, "collection"); err != nil {
			return nil, err
		}
		if rel.ForeignKey, err = parseStringList(rv.LookupPath(cue.ParsePath("foreignKey")), where+".foreignKey"); err != nil {
			return nil, err
		}
		if len(rel.ForeignKey) == 0 {
			if rel.Collection {
				rel.ForeignKey = []string{owner + "Id"}
			} else {
				rel.ForeignKey = []string{rel.Name + "Id"}
			}
		}
		if inv := rv.LookupPath(cue.ParsePath("inverse")); inv.Exists() {
			if rel.Inverse, err = inv.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	list := errors.Errors(err)
	if len(list) == 0 {
		return err
	}

	first := list[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: strings.TrimSpace(first.Error()),
			Pos:     positions[0],
		}
	}
	return err
}
