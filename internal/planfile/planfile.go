// Package planfile reads query plans and seed data from YAML.
//
// A plan file names plans built from the same operations as the fluent
// queryir builder, with lambdas written in a small expression language:
//
//	plans:
//	  - name: cheap
//	    from: Product
//	    params: {max: 25}
//	    steps:
//	      - where: p => p.Price <= @max
//	      - orderByDescending: p => p.Price
//	      - take: 2
//	    terminal: Count
//
// Seed sets list rows per entity, applied in file order:
//
//	seed:
//	  - entity: Product
//	    rows:
//	      - {Id: 1, Name: pen, Price: 10}
package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabula/internal/queryir"
)

// File is the top level of a plan file.
type File struct {
	Schema string     `yaml:"schema,omitempty"`
	Seed   []SeedSet  `yaml:"seed,omitempty"`
	Plans  []PlanSpec `yaml:"plans,omitempty"`
}

// PlanSpec describes one plan.
type PlanSpec struct {
	Name     string         `yaml:"name,omitempty"`
	From     string         `yaml:"from"`
	Params   map[string]any `yaml:"params,omitempty"`
	Steps    []StepSpec     `yaml:"steps,omitempty"`
	Terminal string         `yaml:"terminal,omitempty"`
	Argument string         `yaml:"argument,omitempty"`
	Include  []string       `yaml:"include,omitempty"`
}

// StepSpec is one step. Exactly one operation field is set; Result only
// accompanies selectMany.
type StepSpec struct {
	Where             string    `yaml:"where,omitempty"`
	Select            string    `yaml:"select,omitempty"`
	OrderBy           string    `yaml:"orderBy,omitempty"`
	OrderByDescending string    `yaml:"orderByDescending,omitempty"`
	ThenBy            string    `yaml:"thenBy,omitempty"`
	ThenByDescending  string    `yaml:"thenByDescending,omitempty"`
	Skip              any       `yaml:"skip,omitempty"`
	Take              any       `yaml:"take,omitempty"`
	SelectMany        string    `yaml:"selectMany,omitempty"`
	Result            string    `yaml:"result,omitempty"`
	LeftJoin          *JoinSpec `yaml:"leftJoin,omitempty"`
}

// JoinSpec describes a left outer join against an inner plan.
type JoinSpec struct {
	Inner    PlanSpec `yaml:"inner"`
	OuterKey string   `yaml:"outerKey"`
	InnerKey string   `yaml:"innerKey"`
	Result   string   `yaml:"result"`
}

// SeedSet is a batch of rows for one entity.
type SeedSet struct {
	Entity string           `yaml:"entity"`
	Rows   []map[string]any `yaml:"rows"`
}

// Load reads and parses a plan file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes plan file YAML, rejecting unknown fields.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// Plan returns the named plan spec. An empty name selects the only plan.
func (f *File) Plan(name string) (*PlanSpec, error) {
	if name == "" {
		if len(f.Plans) != 1 {
			return nil, fmt.Errorf("file has %d plans; name one", len(f.Plans))
		}
		return &f.Plans[0], nil
	}
	for i := range f.Plans {
		if f.Plans[i].Name == name {
			return &f.Plans[i], nil
		}
	}
	return nil, fmt.Errorf("no plan named %q", name)
}

// Build translates the spec into a plan.
func (s *PlanSpec) Build() (*queryir.Plan, error) {
	if s.From == "" {
		return nil, errors.New("from is required")
	}
	q := queryir.From(s.From)
	for i, st := range s.Steps {
		var err error
		if q, err = st.apply(q); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for _, path := range s.Include {
		q = q.Include(path)
	}

	plan := q.Plan()
	if s.Terminal != "" {
		t, err := queryir.ParseTerminal(s.Terminal)
		if err != nil {
			return nil, err
		}
		var arg *queryir.Lambda
		if s.Argument != "" {
			l, err := ParseLambda(s.Argument)
			if err != nil {
				return nil, fmt.Errorf("argument: %w", err)
			}
			arg = &l
		}
		plan = plan.WithTerminal(t, arg)
	} else if s.Argument != "" {
		return nil, errors.New("argument given without a terminal")
	}

	if len(s.Params) > 0 {
		var err error
		if plan, err = plan.WithParams(s.Params); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

func (st StepSpec) apply(q queryir.Query) (queryir.Query, error) {
	ops := 0
	for _, set := range []bool{
		st.Where != "", st.Select != "", st.OrderBy != "", st.OrderByDescending != "",
		st.ThenBy != "", st.ThenByDescending != "", st.Skip != nil, st.Take != nil,
		st.SelectMany != "", st.LeftJoin != nil,
	} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return q, fmt.Errorf("expected exactly one operation, got %d", ops)
	}
	if st.Result != "" && st.SelectMany == "" {
		return q, errors.New("result is only valid with selectMany")
	}

	switch {
	case st.Where != "":
		l, err := ParseLambda(st.Where)
		return q.Where(l), err
	case st.Select != "":
		l, err := ParseLambda(st.Select)
		return q.Select(l), err
	case st.OrderBy != "":
		l, err := ParseLambda(st.OrderBy)
		return q.OrderBy(l), err
	case st.OrderByDescending != "":
		l, err := ParseLambda(st.OrderByDescending)
		return q.OrderByDescending(l), err
	case st.ThenBy != "":
		l, err := ParseLambda(st.ThenBy)
		return q.ThenBy(l), err
	case st.ThenByDescending != "":
		l, err := ParseLambda(st.ThenByDescending)
		return q.ThenByDescending(l), err
	case st.Skip != nil:
		c, err := count(st.Skip)
		return queryir.Of(q.Plan().AddStep(queryir.Skip{Count: c})), err
	case st.Take != nil:
		c, err := count(st.Take)
		return queryir.Of(q.Plan().AddStep(queryir.Take{Count: c})), err
	case st.SelectMany != "":
		coll, err := ParseLambda(st.SelectMany)
		if err != nil {
			return q, err
		}
		if st.Result == "" {
			return q.SelectMany(coll), nil
		}
		res, err := ParseLambda(st.Result)
		return q.SelectManyWith(coll, res), err
	}
	return st.LeftJoin.apply(q)
}

func (j *JoinSpec) apply(q queryir.Query) (queryir.Query, error) {
	inner, err := j.Inner.Build()
	if err != nil {
		return q, fmt.Errorf("leftJoin.inner: %w", err)
	}
	var ls [3]queryir.Lambda
	for i, src := range []string{j.OuterKey, j.InnerKey, j.Result} {
		if ls[i], err = ParseLambda(src); err != nil {
			return q, fmt.Errorf("leftJoin: %w", err)
		}
	}
	return q.LeftJoin(queryir.Of(inner), ls[0], ls[1], ls[2]), nil
}

// count reads a skip/take count: a non-negative integer or "@param".
func count(v any) (queryir.Expr, error) {
	switch c := v.(type) {
	case int:
		if c < 0 {
			return nil, fmt.Errorf("count %d is negative", c)
		}
		return queryir.Lit(c), nil
	case string:
		if len(c) > 1 && c[0] == '@' {
			return queryir.P(c[1:]), nil
		}
	}
	return nil, fmt.Errorf("count must be an integer or @param, got %v", v)
}
