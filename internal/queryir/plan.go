package queryir

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/tabula/internal/ir"
)

// Step is one composable query operation.
//
// This is a sealed interface - only types in this package implement it.
type Step interface {
	stepNode() // Marker method - seals interface to this package
}

// Filter keeps elements for which Predicate is true.
type Filter struct {
	Predicate Lambda
}

// Project maps each element to Selector's result. Later steps see the new
// shape.
type Project struct {
	Selector Lambda
}

// Sort orders elements by Key. A Subsequent sort refines the preceding
// sort as a tie-breaker instead of replacing it. Sorting is stable.
type Sort struct {
	Key        Lambda
	Descending bool
	Subsequent bool
}

// Skip drops the first Count elements. Count is a Const or Param.
type Skip struct {
	Count Expr
}

// Take keeps the first Count elements. Count is a Const or Param.
type Take struct {
	Count Expr
}

// FlattenJoin expands each outer element into one result per element of
// Collection(outer). Result combines (outer, inner); when unset the inner
// element itself is emitted.
type FlattenJoin struct {
	Collection Lambda
	Result     Lambda
}

// LeftOuterJoin pairs each outer element with every inner element whose
// InnerKey equals the outer element's OuterKey. Unmatched outer elements
// are paired once with a nil inner. Result combines (outer, inner).
type LeftOuterJoin struct {
	Inner    *Plan
	OuterKey Lambda
	InnerKey Lambda
	Result   Lambda
}

func (Filter) stepNode()        {}
func (Project) stepNode()       {}
func (Sort) stepNode()          {}
func (Skip) stepNode()          {}
func (Take) stepNode()          {}
func (FlattenJoin) stepNode()   {}
func (LeftOuterJoin) stepNode() {}

// StepName returns the display name of a step.
func StepName(s Step) string {
	switch st := s.(type) {
	case Filter:
		return "Filter"
	case Project:
		return "Project"
	case Sort:
		switch {
		case st.Subsequent && st.Descending:
			return "ThenSortDescending"
		case st.Subsequent:
			return "ThenSort"
		case st.Descending:
			return "SortDescending"
		}
		return "Sort"
	case Skip:
		return "Skip"
	case Take:
		return "Take"
	case FlattenJoin:
		return "FlattenJoin"
	case LeftOuterJoin:
		return "LeftOuterJoin"
	}
	return fmt.Sprintf("%T", s)
}

// Terminal is the reduction that ends a plan.
type Terminal int

const (
	None Terminal = iota
	Count
	LongCount
	Any
	All
	First
	FirstOrDefault
	Single
	SingleOrDefault
	Min
	Max
	Sum
	Average
)

var terminalNames = []string{
	None: "None", Count: "Count", LongCount: "LongCount", Any: "Any", All: "All",
	First: "First", FirstOrDefault: "FirstOrDefault", Single: "Single",
	SingleOrDefault: "SingleOrDefault", Min: "Min", Max: "Max", Sum: "Sum",
	Average: "Average",
}

func (t Terminal) String() string {
	if int(t) >= 0 && int(t) < len(terminalNames) {
		return terminalNames[t]
	}
	return fmt.Sprintf("Terminal(%d)", int(t))
}

// ParseTerminal parses a terminal operator name.
func ParseTerminal(s string) (Terminal, error) {
	for i, name := range terminalNames {
		if name == s {
			return Terminal(i), nil
		}
	}
	return None, fmt.Errorf("unknown terminal operator %q", s)
}

// TakesPredicate reports whether the terminal's argument is a predicate.
func (t Terminal) TakesPredicate() bool {
	switch t {
	case Count, LongCount, Any, All, First, FirstOrDefault, Single, SingleOrDefault:
		return true
	}
	return false
}

// TakesSelector reports whether the terminal's argument is a selector.
func (t Terminal) TakesSelector() bool {
	switch t {
	case Min, Max, Sum, Average:
		return true
	}
	return false
}

// stepList is a persistent singly-linked list, newest step first. Plans
// that share a prefix share its nodes.
type stepList struct {
	step Step
	prev *stepList
	n    int
}

// Plan is an immutable query: an entity type, ordered steps, an optional
// terminal with its argument, include paths for navigation fix-up, and
// bound parameters. Every modifier returns a new Plan; the receiver is
// never changed.
type Plan struct {
	entity   string
	steps    *stepList
	terminal Terminal
	arg      *Lambda
	includes []string
	params   map[string]ir.Value
}

// New returns an empty plan over entity.
func New(entity string) *Plan {
	return &Plan{entity: entity}
}

func (p *Plan) clone() *Plan {
	c := *p
	return &c
}

// Entity returns the root entity type.
func (p *Plan) Entity() string { return p.entity }

// Len returns the number of steps.
func (p *Plan) Len() int {
	if p.steps == nil {
		return 0
	}
	return p.steps.n
}

// Steps returns the steps in recorded order.
func (p *Plan) Steps() []Step {
	out := make([]Step, p.Len())
	for n := p.steps; n != nil; n = n.prev {
		out[n.n-1] = n.step
	}
	return out
}

// AddStep returns a new plan with s appended. The receiver's steps are
// shared, not copied.
func (p *Plan) AddStep(s Step) *Plan {
	c := p.clone()
	c.steps = &stepList{step: s, prev: p.steps, n: p.Len() + 1}
	return c
}

// Terminal returns the terminal operator and its argument (nil if none).
func (p *Plan) Terminal() (Terminal, *Lambda) { return p.terminal, p.arg }

// WithTerminal returns a new plan ending in t with optional argument arg.
func (p *Plan) WithTerminal(t Terminal, arg *Lambda) *Plan {
	c := p.clone()
	c.terminal = t
	c.arg = arg
	return c
}

// Include returns a new plan that fixes up the dotted relation path
// (e.g. "Posts.Comments") on root entities in the result.
func (p *Plan) Include(path string) *Plan {
	c := p.clone()
	c.includes = append(slices.Clip(p.includes), path)
	return c
}

// Includes returns the include paths.
func (p *Plan) Includes() []string { return slices.Clone(p.includes) }

// WithParams returns a new plan with the given parameters bound in
// addition to any already bound.
func (p *Plan) WithParams(params map[string]any) (*Plan, error) {
	c := p.clone()
	c.params = maps.Clone(p.params)
	if c.params == nil {
		c.params = make(map[string]ir.Value, len(params))
	}
	for name, v := range params {
		val, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		c.params[name] = val
	}
	return c, nil
}

// Params returns a copy of the bound parameters.
func (p *Plan) Params() map[string]ir.Value { return maps.Clone(p.params) }

// Param returns one bound parameter.
func (p *Plan) Param(name string) (ir.Value, bool) {
	v, ok := p.params[name]
	return v, ok
}
