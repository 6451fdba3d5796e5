// Package querysql compiles a subset of query plans to SQLite SQL so the
// engine can be checked against an independent executor.
//
// Supported: Filter, Project, Sort, Skip, Take over a single entity, and
// the Count, LongCount, Any, All, Min, Max, Sum and Average terminals.
// Navigations, joins and element terminals fail with NotSupported.
package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tabula/internal/errs"
	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
	"github.com/roach88/tabula/internal/schema"
)

// ordCol carries source order through every stage so that stable sorting
// and Skip/Take see the same sequence the engine does.
const ordCol = "_ord"

// SQLCompiler compiles plans to parameterized SQL for SQLite.
//
// CRITICAL: every stage orders by key or by the previous stage's order,
// with COLLATE BINARY, so results are deterministic.
// CRITICAL: values are always bound as numbered parameters, never
// interpolated.
type SQLCompiler struct {
	model *schema.Model

	// Params binds plan parameters; they override defaults bound on the plan.
	Params map[string]any

	args []any
}

// NewSQLCompiler creates a compiler over model.
func NewSQLCompiler(model *schema.Model) *SQLCompiler {
	return &SQLCompiler{model: model, Params: map[string]any{}}
}

// relation is the output of one stage.
type relation struct {
	sql    string
	cols   []string
	kinds  map[string]schema.Kind
	scalar bool // the element is the single column "value"
}

// Compile converts plan to SQL and its arguments. A sequence plan selects
// the element columns in order; a terminal plan selects one value.
func (c *SQLCompiler) Compile(plan *queryir.Plan) (string, []any, error) {
	if plan == nil {
		return "", nil, errs.New(errs.NullArgument, "cannot compile nil plan")
	}
	if len(plan.Includes()) > 0 {
		return "", nil, notSupported("includes")
	}
	c.args = nil

	desc, err := c.model.Descriptor(plan.Entity())
	if err != nil {
		return "", nil, err
	}
	rel := c.source(desc)

	steps := plan.Steps()
	for i := 0; i < len(steps); i++ {
		switch st := steps[i].(type) {
		case queryir.Filter:
			rel, err = c.filter(rel, st.Predicate, plan)
		case queryir.Project:
			rel, err = c.project(rel, st.Selector, plan)
		case queryir.Sort:
			if st.Subsequent {
				return "", nil, notSupported("ThenBy without a preceding sort")
			}
			keys := []queryir.Sort{st}
			for i+1 < len(steps) {
				next, ok := steps[i+1].(queryir.Sort)
				if !ok || !next.Subsequent {
					break
				}
				keys = append(keys, next)
				i++
			}
			rel, err = c.sort(rel, keys, plan)
		case queryir.Skip:
			rel, err = c.page(rel, st.Count, "LIMIT -1 OFFSET", plan)
		case queryir.Take:
			rel, err = c.page(rel, st.Count, "LIMIT", plan)
		default:
			return "", nil, notSupported(queryir.StepName(st))
		}
		if err != nil {
			return "", nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	sql, err := c.terminal(rel, plan)
	if err != nil {
		return "", nil, err
	}
	return sql, c.args, nil
}

func notSupported(what string) *errs.Error {
	return errs.New(errs.NotSupported, "%s is not supported by the SQL compiler", what)
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (c *SQLCompiler) bind(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("?%d", len(c.args))
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quote(col)
	}
	return strings.Join(quoted, ", ")
}

// source reads the entity table in ascending key order.
func (c *SQLCompiler) source(desc *schema.Descriptor) relation {
	rel := relation{kinds: map[string]schema.Kind{}}
	for _, f := range desc.Fields {
		rel.cols = append(rel.cols, f.Name)
		rel.kinds[f.Name] = f.Kind
	}
	keys := make([]string, len(desc.Key))
	for i, k := range desc.Key {
		keys[i] = quote(k) + " ASC"
		if kind := rel.kinds[k]; kind == schema.KindString || kind == schema.KindTime || kind == schema.KindUUID {
			keys[i] = quote(k) + " COLLATE BINARY ASC"
		}
	}
	rel.sql = fmt.Sprintf("SELECT %s, ROW_NUMBER() OVER (ORDER BY %s) AS %s FROM %s",
		columnList(rel.cols), strings.Join(keys, ", "), ordCol, quote(desc.Name))
	return rel
}

func (c *SQLCompiler) filter(rel relation, pred queryir.Lambda, plan *queryir.Plan) (relation, error) {
	cond, err := c.predicate(rel, pred, plan)
	if err != nil {
		return relation{}, err
	}
	rel.sql = fmt.Sprintf("SELECT * FROM (%s) WHERE %s", rel.sql, cond)
	return rel, nil
}

func (c *SQLCompiler) project(rel relation, sel queryir.Lambda, plan *queryir.Plan) (relation, error) {
	if err := checkArity(sel, 1); err != nil {
		return relation{}, err
	}
	if v, ok := sel.Body.(queryir.Var); ok && v.Name == sel.Params[0] {
		return rel, nil
	}
	out := relation{kinds: map[string]schema.Kind{}}
	var exprs []string
	if cons, ok := sel.Body.(queryir.Construct); ok {
		for _, f := range cons.Fields {
			sql, err := c.expr(rel, sel.Params[0], f.Value, plan)
			if err != nil {
				return relation{}, err
			}
			exprs = append(exprs, sql+" AS "+quote(f.Name))
			out.cols = append(out.cols, f.Name)
			out.kinds[f.Name] = c.kindOf(rel, sel.Params[0], f.Value)
		}
	} else {
		sql, err := c.expr(rel, sel.Params[0], sel.Body, plan)
		if err != nil {
			return relation{}, err
		}
		exprs = append(exprs, sql+" AS value")
		out.cols = []string{"value"}
		out.kinds["value"] = c.kindOf(rel, sel.Params[0], sel.Body)
		out.scalar = true
	}
	exprs = append(exprs, ordCol)
	out.sql = fmt.Sprintf("SELECT %s FROM (%s)", strings.Join(exprs, ", "), rel.sql)
	return out, nil
}

func (c *SQLCompiler) sort(rel relation, keys []queryir.Sort, plan *queryir.Plan) (relation, error) {
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		if err := checkArity(k.Key, 1); err != nil {
			return relation{}, err
		}
		sql, err := c.expr(rel, k.Key.Params[0], k.Key.Body, plan)
		if err != nil {
			return relation{}, err
		}
		if kind := c.kindOf(rel, k.Key.Params[0], k.Key.Body); kind == schema.KindString || kind == schema.KindTime {
			sql += " COLLATE BINARY"
		}
		if k.Descending {
			sql += " DESC"
		}
		parts = append(parts, sql)
	}
	parts = append(parts, "s."+ordCol)
	rel.sql = fmt.Sprintf("SELECT %s, ROW_NUMBER() OVER (ORDER BY %s) AS %s FROM (%s) AS s",
		columnList(rel.cols), strings.Join(parts, ", "), ordCol, rel.sql)
	return rel, nil
}

func (c *SQLCompiler) page(rel relation, count queryir.Expr, clause string, plan *queryir.Plan) (relation, error) {
	var n any
	switch x := count.(type) {
	case queryir.Const:
		n = ir.ToGo(x.Value)
	case queryir.Param:
		v, err := c.param(x.Name, plan)
		if err != nil {
			return relation{}, err
		}
		n = v
	default:
		return relation{}, notSupported("computed page count")
	}
	rel.sql = fmt.Sprintf("SELECT * FROM (%s) ORDER BY %s %s %s", rel.sql, ordCol, clause, c.bind(n))
	return rel, nil
}

func (c *SQLCompiler) terminal(rel relation, plan *queryir.Plan) (string, error) {
	t, arg := plan.Terminal()
	from := "(" + rel.sql + ")"
	cond := func() (string, error) {
		if arg == nil {
			return "1", nil
		}
		return c.predicate(rel, *arg, plan)
	}
	value := func() (string, error) {
		if arg != nil {
			if err := checkArity(*arg, 1); err != nil {
				return "", err
			}
			return c.expr(rel, arg.Params[0], arg.Body, plan)
		}
		if !rel.scalar {
			return "", notSupported("aggregate over entities or tuples")
		}
		return "value", nil
	}

	switch t {
	case queryir.None:
		return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", columnList(rel.cols), from, ordCol), nil
	case queryir.Count, queryir.LongCount:
		w, err := cond()
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", from, w), err
	case queryir.Any:
		w, err := cond()
		return fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s)", from, w), err
	case queryir.All:
		if arg == nil {
			return "", notSupported("All without a predicate")
		}
		w, err := cond()
		return fmt.Sprintf("SELECT NOT EXISTS (SELECT 1 FROM %s WHERE NOT %s)", from, w), err
	case queryir.Min, queryir.Max, queryir.Average:
		v, err := value()
		fn := map[queryir.Terminal]string{queryir.Min: "MIN", queryir.Max: "MAX", queryir.Average: "AVG"}[t]
		return fmt.Sprintf("SELECT %s(%s) FROM %s", fn, v, from), err
	case queryir.Sum:
		v, err := value()
		return fmt.Sprintf("SELECT COALESCE(SUM(%s), 0) FROM %s", v, from), err
	}
	return "", notSupported("terminal " + t.String())
}

func checkArity(l queryir.Lambda, n int) error {
	if l.Arity() != n {
		return errs.New(errs.NotSupported, "lambda takes %d parameter(s), want %d", l.Arity(), n)
	}
	return nil
}

// predicate compiles a lambda to a condition that is never NULL.
func (c *SQLCompiler) predicate(rel relation, l queryir.Lambda, plan *queryir.Plan) (string, error) {
	if err := checkArity(l, 1); err != nil {
		return "", err
	}
	sql, err := c.expr(rel, l.Params[0], l.Body, plan)
	if err != nil {
		return "", err
	}
	return "COALESCE(" + sql + ", 0)", nil
}

func (c *SQLCompiler) param(name string, plan *queryir.Plan) (any, error) {
	if v, ok := c.Params[name]; ok {
		val, err := ir.FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		return ir.ToGo(val), nil
	}
	if v, ok := plan.Param(name); ok {
		return ir.ToGo(v), nil
	}
	return nil, errs.New(errs.NullArgument, "parameter %q is not bound", name)
}

var sqlOps = map[queryir.CompareOp]string{
	queryir.OpLt: "<", queryir.OpLe: "<=", queryir.OpGt: ">", queryir.OpGe: ">=",
}

var sqlFuncs = map[string]string{
	"lower": "LOWER", "upper": "UPPER", "trim": "TRIM", "len": "LENGTH", "abs": "ABS", "coalesce": "COALESCE",
}

// expr compiles e with v bound to the current row. Equality uses IS so that
// null equals null; ordering comparisons with null yield 0.
func (c *SQLCompiler) expr(rel relation, v string, e queryir.Expr, plan *queryir.Plan) (string, error) {
	switch x := e.(type) {
	case queryir.Const:
		if ir.IsNull(x.Value) {
			return "NULL", nil
		}
		return c.bind(ir.ToGo(x.Value)), nil
	case queryir.Param:
		val, err := c.param(x.Name, plan)
		if err != nil {
			return "", err
		}
		return c.bind(val), nil
	case queryir.Var:
		if x.Name != v {
			return "", errs.New(errs.NotSupported, "unknown variable %q", x.Name)
		}
		if !rel.scalar {
			return "", notSupported("whole-row values")
		}
		return "value", nil
	case queryir.Member:
		target, ok := x.Target.(queryir.Var)
		if !ok || target.Name != v {
			return "", notSupported("nested member access")
		}
		if rel.scalar || !slices.Contains(rel.cols, x.Name) {
			return "", errs.New(errs.NotSupported, "no column %q", x.Name)
		}
		return quote(x.Name), nil
	case queryir.Compare:
		l, err := c.expr(rel, v, x.Left, plan)
		if err != nil {
			return "", err
		}
		r, err := c.expr(rel, v, x.Right, plan)
		if err != nil {
			return "", err
		}
		switch x.Op {
		case queryir.OpEq:
			return "(" + l + " IS " + r + ")", nil
		case queryir.OpNe:
			return "(" + l + " IS NOT " + r + ")", nil
		}
		return "COALESCE(" + l + " " + sqlOps[x.Op] + " " + r + ", 0)", nil
	case queryir.And:
		return c.logical(rel, v, x.Terms, " AND ", "1", plan)
	case queryir.Or:
		return c.logical(rel, v, x.Terms, " OR ", "0", plan)
	case queryir.Not:
		operand, err := c.expr(rel, v, x.Operand, plan)
		if err != nil {
			return "", err
		}
		return "(NOT COALESCE(" + operand + ", 0))", nil
	case queryir.Arith:
		if c.kindOf(rel, v, x.Left) == schema.KindString || c.kindOf(rel, v, x.Right) == schema.KindString {
			if x.Op != queryir.OpAdd {
				return "", notSupported("string arithmetic")
			}
			l, err := c.expr(rel, v, x.Left, plan)
			if err != nil {
				return "", err
			}
			r, err := c.expr(rel, v, x.Right, plan)
			return "(" + l + " || " + r + ")", err
		}
		l, err := c.expr(rel, v, x.Left, plan)
		if err != nil {
			return "", err
		}
		r, err := c.expr(rel, v, x.Right, plan)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + x.Op.String() + " " + r + ")", nil
	case queryir.Call:
		fn, ok := sqlFuncs[x.Func]
		if !ok {
			return "", notSupported("function " + x.Func)
		}
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			sql, err := c.expr(rel, v, a, plan)
			if err != nil {
				return "", err
			}
			args[i] = sql
		}
		return fn + "(" + strings.Join(args, ", ") + ")", nil
	case queryir.Navigate:
		return "", notSupported("navigation")
	case queryir.Construct:
		return "", notSupported("nested tuple construction")
	}
	return "", notSupported(fmt.Sprintf("expression %T", e))
}

func (c *SQLCompiler) logical(rel relation, v string, terms []queryir.Expr, sep, empty string, plan *queryir.Plan) (string, error) {
	if len(terms) == 0 {
		return empty, nil
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		sql, err := c.expr(rel, v, t, plan)
		if err != nil {
			return "", err
		}
		parts[i] = "COALESCE(" + sql + ", 0)"
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// kindOf is a best-effort static kind, used for collation and string
// concatenation. Unknown kinds report KindInvalid.
func (c *SQLCompiler) kindOf(rel relation, v string, e queryir.Expr) schema.Kind {
	switch x := e.(type) {
	case queryir.Const:
		switch x.Value.(type) {
		case ir.String:
			return schema.KindString
		case ir.Int:
			return schema.KindInt
		case ir.Float:
			return schema.KindFloat
		case ir.Bool:
			return schema.KindBool
		}
	case queryir.Member:
		return rel.kinds[x.Name]
	case queryir.Var:
		if rel.scalar {
			return rel.kinds["value"]
		}
	case queryir.Call:
		switch x.Func {
		case "lower", "upper", "trim":
			return schema.KindString
		case "len":
			return schema.KindInt
		}
	case queryir.Arith:
		l, r := c.kindOf(rel, v, x.Left), c.kindOf(rel, v, x.Right)
		if l == schema.KindString || r == schema.KindString {
			return schema.KindString
		}
		if l == schema.KindInt && r == schema.KindInt {
			return schema.KindInt
		}
		return schema.KindFloat
	}
	return schema.KindInvalid
}
