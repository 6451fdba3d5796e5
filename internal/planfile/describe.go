package planfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
)

// Describe translates a plan back into a spec. Build(Describe(p)) formats
// identically to p.
func Describe(p *queryir.Plan) (PlanSpec, error) {
	spec := PlanSpec{From: p.Entity(), Include: p.Includes()}
	if params := p.Params(); len(params) > 0 {
		spec.Params = make(map[string]any, len(params))
		for name, v := range params {
			spec.Params[name] = ir.ToGo(v)
		}
	}
	for i, s := range p.Steps() {
		st, err := describeStep(s)
		if err != nil {
			return PlanSpec{}, fmt.Errorf("step %d: %w", i, err)
		}
		spec.Steps = append(spec.Steps, st)
	}
	if t, arg := p.Terminal(); t != queryir.None {
		spec.Terminal = t.String()
		if arg != nil {
			spec.Argument = queryir.FormatLambda(*arg)
		}
	}
	return spec, nil
}

func describeStep(s queryir.Step) (StepSpec, error) {
	f := queryir.FormatLambda
	switch st := s.(type) {
	case queryir.Filter:
		return StepSpec{Where: f(st.Predicate)}, nil
	case queryir.Project:
		return StepSpec{Select: f(st.Selector)}, nil
	case queryir.Sort:
		key := f(st.Key)
		switch {
		case st.Subsequent && st.Descending:
			return StepSpec{ThenByDescending: key}, nil
		case st.Subsequent:
			return StepSpec{ThenBy: key}, nil
		case st.Descending:
			return StepSpec{OrderByDescending: key}, nil
		}
		return StepSpec{OrderBy: key}, nil
	case queryir.Skip:
		c, err := describeCount(st.Count)
		return StepSpec{Skip: c}, err
	case queryir.Take:
		c, err := describeCount(st.Count)
		return StepSpec{Take: c}, err
	case queryir.FlattenJoin:
		spec := StepSpec{SelectMany: f(st.Collection)}
		if !st.Result.IsZero() {
			spec.Result = f(st.Result)
		}
		return spec, nil
	case queryir.LeftOuterJoin:
		inner, err := Describe(st.Inner)
		if err != nil {
			return StepSpec{}, err
		}
		return StepSpec{LeftJoin: &JoinSpec{
			Inner:    inner,
			OuterKey: f(st.OuterKey),
			InnerKey: f(st.InnerKey),
			Result:   f(st.Result),
		}}, nil
	}
	return StepSpec{}, fmt.Errorf("unsupported step %T", s)
}

func describeCount(e queryir.Expr) (any, error) {
	switch c := e.(type) {
	case queryir.Param:
		return "@" + c.Name, nil
	case queryir.Const:
		if n, ok := c.Value.(ir.Int); ok {
			return int(n), nil
		}
	}
	return nil, fmt.Errorf("count must be a constant integer or parameter, got %s", queryir.FormatExpr(e))
}

// Marshal renders a file as YAML.
func Marshal(f *File) ([]byte, error) {
	return yaml.Marshal(f)
}
