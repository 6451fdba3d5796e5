package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/ir"
)

// ValidationResult lists the shape problems found in a plan.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems describes each malformed step, expression or terminal, in
	// plan order. Inner plans are prefixed with their step position.
	Problems []string
}

// Err returns the problems as one error, or nil when the plan is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid plan: %s", strings.Join(r.Problems, "; "))
}

// Validate checks a plan's shape without consulting any schema:
//  1. Predicates and selectors take one parameter; result combinators two
//  2. Every Var is bound by its enclosing lambda
//  3. Skip/Take counts are non-negative Int constants or parameters
//  4. All requires a predicate
//  5. Inner plans are valid and carry no terminal
//
// Validate is a pure function with no side effects.
func Validate(p *Plan) ValidationResult {
	v := &validator{problems: []string{}}
	v.validatePlan(p, "")
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validatePlan(p *Plan, prefix string) {
	if p == nil {
		v.addProblem("%snil plan", prefix)
		return
	}
	if p.Entity() == "" {
		v.addProblem("%splan has no entity", prefix)
	}
	for i, s := range p.Steps() {
		where := fmt.Sprintf("%sstep %d (%s)", prefix, i+1, StepName(s))
		v.validateStep(s, where)
	}

	t, arg := p.Terminal()
	where := prefix + "terminal " + t.String()
	switch {
	case t == None:
		if arg != nil {
			v.addProblem("%s: argument without a terminal operator", where)
		}
	case t == All && arg == nil:
		v.addProblem("%s: predicate is required", where)
	case arg != nil:
		v.validateLambda(*arg, 1, where)
	}
	if t < None || t > Average {
		v.addProblem("%s: unknown terminal operator", where)
	}
}

func (v *validator) validateStep(s Step, where string) {
	switch st := s.(type) {
	case Filter:
		v.validateLambda(st.Predicate, 1, where)
	case Project:
		v.validateLambda(st.Selector, 1, where)
	case Sort:
		v.validateLambda(st.Key, 1, where)
	case Skip:
		v.validateCount(st.Count, where)
	case Take:
		v.validateCount(st.Count, where)
	case FlattenJoin:
		v.validateLambda(st.Collection, 1, where+" collection")
		if !st.Result.IsZero() {
			v.validateLambda(st.Result, 2, where+" result")
		}
	case LeftOuterJoin:
		v.validateLambda(st.OuterKey, 1, where+" outer key")
		v.validateLambda(st.InnerKey, 1, where+" inner key")
		v.validateLambda(st.Result, 2, where+" result")
		if st.Inner != nil {
			if t, _ := st.Inner.Terminal(); t != None {
				v.addProblem("%s: inner plan must not have a terminal operator", where)
			}
		}
		v.validatePlan(st.Inner, where+" inner ")
	case nil:
		v.addProblem("%s: nil step", where)
	default:
		v.addProblem("%s: unknown step type %T", where, s)
	}
}

func (v *validator) validateCount(e Expr, where string) {
	switch c := e.(type) {
	case Const:
		n, ok := c.Value.(ir.Int)
		if !ok {
			v.addProblem("%s: count must be an integer", where)
		} else if n < 0 {
			v.addProblem("%s: count must not be negative", where)
		}
	case Param:
		if c.Name == "" {
			v.addProblem("%s: parameter name is empty", where)
		}
	default:
		v.addProblem("%s: count must be a constant or parameter", where)
	}
}

func (v *validator) validateLambda(l Lambda, arity int, where string) {
	if l.Body == nil {
		v.addProblem("%s: lambda has no body", where)
		return
	}
	if l.Arity() != arity {
		v.addProblem("%s: lambda takes %d parameter(s), want %d", where, l.Arity(), arity)
	}
	v.validateExpr(l.Body, l.Params, where)
}

func (v *validator) validateExpr(e Expr, scope []string, where string) {
	switch x := e.(type) {
	case Var:
		if !slices.Contains(scope, x.Name) {
			v.addProblem("%s: unbound variable %q", where, x.Name)
		}
	case Param:
		if x.Name == "" {
			v.addProblem("%s: parameter name is empty", where)
		}
	case Const:
		if x.Value == nil {
			v.addProblem("%s: constant has no value", where)
		}
	case Member:
		if x.Name == "" {
			v.addProblem("%s: member name is empty", where)
		}
		v.validateExpr(x.Target, scope, where)
	case Compare:
		if _, ok := compareSymbols[x.Op]; !ok {
			v.addProblem("%s: unknown comparison operator", where)
		}
		v.validateExpr(x.Left, scope, where)
		v.validateExpr(x.Right, scope, where)
	case And:
		for _, t := range x.Terms {
			v.validateExpr(t, scope, where)
		}
	case Or:
		for _, t := range x.Terms {
			v.validateExpr(t, scope, where)
		}
	case Not:
		v.validateExpr(x.Operand, scope, where)
	case Arith:
		if _, ok := arithSymbols[x.Op]; !ok {
			v.addProblem("%s: unknown arithmetic operator", where)
		}
		v.validateExpr(x.Left, scope, where)
		v.validateExpr(x.Right, scope, where)
	case Construct:
		seen := map[string]bool{}
		for _, f := range x.Fields {
			if f.Name == "" {
				v.addProblem("%s: tuple field name is empty", where)
			} else if seen[f.Name] {
				v.addProblem("%s: duplicate tuple field %q", where, f.Name)
			}
			seen[f.Name] = true
			v.validateExpr(f.Value, scope, where)
		}
	case Navigate:
		if x.Relation == "" {
			v.addProblem("%s: navigation has no relation", where)
		}
		v.validateExpr(x.Target, scope, where)
	case Call:
		if x.Func == "" {
			v.addProblem("%s: call has no function name", where)
		}
		for _, a := range x.Args {
			v.validateExpr(a, scope, where)
		}
	case nil:
		v.addProblem("%s: nil expression", where)
	default:
		v.addProblem("%s: unknown expression type %T", where, e)
	}
}
