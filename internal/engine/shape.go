package engine

import (
	"github.com/roach88/tabula/internal/schema"
)

// shapeKind classifies what the compiler knows statically about a value.
type shapeKind int

const (
	shapeUnknown shapeKind = iota
	shapeScalar
	shapeEntity
	shapeTuple
	shapeCollection
)

// shape is the static type of an expression. Member access against a known
// entity or tuple shape is checked at compile time; an unknown shape defers
// the check to run time.
type shape struct {
	kind   shapeKind
	scalar schema.Kind        // shapeScalar; KindInvalid when unknown
	desc   *schema.Descriptor // shapeEntity, or the element of shapeCollection
	names  []string           // shapeTuple
	fields map[string]*shape  // shapeTuple
}

var (
	unknownShape = &shape{kind: shapeUnknown}
	boolShape    = &shape{kind: shapeScalar, scalar: schema.KindBool}
)

func scalarShape(k schema.Kind) *shape { return &shape{kind: shapeScalar, scalar: k} }

func entityShape(d *schema.Descriptor) *shape { return &shape{kind: shapeEntity, desc: d} }

func collectionShape(d *schema.Descriptor) *shape { return &shape{kind: shapeCollection, desc: d} }

func tupleShape(names []string, fields []*shape) *shape {
	sh := &shape{kind: shapeTuple, names: names, fields: make(map[string]*shape, len(names))}
	for i, n := range names {
		sh.fields[n] = fields[i]
	}
	return sh
}

// element returns the element shape of a collection shape.
func (s *shape) element() *shape {
	if s.kind == shapeCollection && s.desc != nil {
		return entityShape(s.desc)
	}
	return unknownShape
}

// numeric reports whether s may hold a number.
func (s *shape) numeric() bool {
	switch s.kind {
	case shapeUnknown:
		return true
	case shapeScalar:
		switch s.scalar {
		case schema.KindInvalid, schema.KindInt, schema.KindFloat:
			return true
		}
	}
	return false
}

// orderable reports whether values of s may be compared for Min and Max.
func (s *shape) orderable() bool {
	return s.kind == shapeUnknown || s.kind == shapeScalar
}

func (s *shape) String() string {
	switch s.kind {
	case shapeScalar:
		if s.scalar == schema.KindInvalid {
			return "scalar"
		}
		return s.scalar.String()
	case shapeEntity:
		return s.desc.Name
	case shapeTuple:
		return "tuple"
	case shapeCollection:
		return "collection of " + s.desc.Name
	}
	return "unknown"
}
