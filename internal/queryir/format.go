package queryir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/ir"
)

// Format renders a plan as deterministic indented text, one step per line:
//
//	from Product
//	  Filter p => (p.Price > 10)
//	  Sort p => p.Name
//	  Take 5
//	  => Count
func Format(p *Plan) string {
	var b strings.Builder
	formatPlan(&b, p, 0)
	return b.String()
}

func formatPlan(b *strings.Builder, p *Plan, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sfrom %s\n", indent, p.Entity())
	if params := p.Params(); len(params) > 0 {
		names := make([]string, 0, len(params))
		for n := range params {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			fmt.Fprintf(b, "%s  param %s = %s\n", indent, n, formatValue(params[n]))
		}
	}
	for _, s := range p.Steps() {
		fmt.Fprintf(b, "%s  %s", indent, StepName(s))
		switch st := s.(type) {
		case Filter:
			fmt.Fprintf(b, " %s\n", FormatLambda(st.Predicate))
		case Project:
			fmt.Fprintf(b, " %s\n", FormatLambda(st.Selector))
		case Sort:
			fmt.Fprintf(b, " %s\n", FormatLambda(st.Key))
		case Skip:
			fmt.Fprintf(b, " %s\n", FormatExpr(st.Count))
		case Take:
			fmt.Fprintf(b, " %s\n", FormatExpr(st.Count))
		case FlattenJoin:
			fmt.Fprintf(b, " %s", FormatLambda(st.Collection))
			if !st.Result.IsZero() {
				fmt.Fprintf(b, " into %s", FormatLambda(st.Result))
			}
			b.WriteString("\n")
		case LeftOuterJoin:
			fmt.Fprintf(b, " on %s equals %s into %s\n",
				FormatLambda(st.OuterKey), FormatLambda(st.InnerKey), FormatLambda(st.Result))
			if st.Inner != nil {
				formatPlan(b, st.Inner, depth+2)
			}
		default:
			b.WriteString("\n")
		}
	}
	if t, arg := p.Terminal(); t != None {
		fmt.Fprintf(b, "%s  => %s", indent, t)
		if arg != nil {
			fmt.Fprintf(b, " %s", FormatLambda(*arg))
		}
		b.WriteString("\n")
	}
	for _, inc := range p.Includes() {
		fmt.Fprintf(b, "%s  include %s\n", indent, inc)
	}
}

// FormatLambda renders a lambda as "p => body" or "(a, b) => body".
func FormatLambda(l Lambda) string {
	params := strings.Join(l.Params, ", ")
	if len(l.Params) != 1 {
		params = "(" + params + ")"
	}
	return params + " => " + FormatExpr(l.Body)
}

// FormatExpr renders an expression. Binary operators are parenthesized so
// the output parses back unambiguously.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case Var:
		return x.Name
	case Param:
		return "@" + x.Name
	case Const:
		return formatValue(x.Value)
	case Member:
		return FormatExpr(x.Target) + "." + x.Name
	case Compare:
		return "(" + FormatExpr(x.Left) + " " + x.Op.String() + " " + FormatExpr(x.Right) + ")"
	case Arith:
		return "(" + FormatExpr(x.Left) + " " + x.Op.String() + " " + FormatExpr(x.Right) + ")"
	case And:
		return joinTerms(x.Terms, " && ", "true")
	case Or:
		return joinTerms(x.Terms, " || ", "false")
	case Not:
		return "!" + FormatExpr(x.Operand)
	case Construct:
		parts := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			parts[i] = f.Name + ": " + FormatExpr(f.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Navigate:
		return FormatExpr(x.Target) + "->" + x.Relation
	case Call:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = FormatExpr(a)
		}
		return x.Func + "(" + strings.Join(args, ", ") + ")"
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("<%T>", e)
}

func joinTerms(terms []Expr, sep, empty string) string {
	if len(terms) == 0 {
		return empty
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = FormatExpr(t)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func formatValue(v ir.Value) string {
	if ir.IsNull(v) {
		return "null"
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
