package queryir

import (
	"strings"

	"github.com/roach88/tabula/internal/ir"
)

// Expr is a scalar or structural expression evaluated against one element
// (or, in result combinators, a pair of elements).
//
// This is a sealed interface - only types in this package implement it.
// Compilers switch over the concrete types exhaustively:
//
//	switch e := expr.(type) {
//	case Var:
//	case Param:
//	case Const:
//	case Member:
//	case Compare:
//	case And, Or, Not:
//	case Arith:
//	case Construct:
//	case Navigate:
//	case Call:
//	}
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Var references a lambda parameter.
type Var struct {
	Name string
}

func (Var) exprNode() {}

// Param references a plan parameter bound with Plan.WithParams.
type Param struct {
	Name string
}

func (Param) exprNode() {}

// Const is a literal scalar.
type Const struct {
	Value ir.Value
}

func (Const) exprNode() {}

// Member reads a named member of Target: an entity field, a loaded
// navigation, or a field of a constructed tuple. On an entity, a member
// naming a relation is evaluated as a Navigate.
type Member struct {
	Target Expr
	Name   string
}

func (Member) exprNode() {}

// CompareOp is a comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var compareSymbols = map[CompareOp]string{
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
}

func (op CompareOp) String() string {
	if s, ok := compareSymbols[op]; ok {
		return s
	}
	return "?"
}

// Compare compares two scalar operands. Null compares equal only to null;
// ordering comparisons involving null are false.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

func (Compare) exprNode() {}

// And is a conjunction. Empty Terms is true.
type And struct {
	Terms []Expr
}

func (And) exprNode() {}

// Or is a disjunction. Empty Terms is false.
type Or struct {
	Terms []Expr
}

func (Or) exprNode() {}

// Not negates a boolean operand.
type Not struct {
	Operand Expr
}

func (Not) exprNode() {}

// ArithOp is an arithmetic operator.
type ArithOp int

const (
	OpAdd ArithOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
)

var arithSymbols = map[ArithOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
}

func (op ArithOp) String() string {
	if s, ok := arithSymbols[op]; ok {
		return s
	}
	return "?"
}

// Arith applies an arithmetic operator. Int op Int stays Int (except
// division by zero, which fails); any Float operand promotes to Float.
// OpAdd on two strings concatenates.
type Arith struct {
	Op          ArithOp
	Left, Right Expr
}

func (Arith) exprNode() {}

// NamedExpr is one field of a Construct.
type NamedExpr struct {
	Name  string
	Value Expr
}

// Construct builds a tuple with the given named fields, in order.
type Construct struct {
	Fields []NamedExpr
}

func (Construct) exprNode() {}

// Navigate fetches the entities related to Target through Relation by
// running a key-correlated sub-plan against the store. Reference relations
// yield the related entity or nil; collections yield a sequence.
type Navigate struct {
	Target   Expr
	Relation string
}

func (Navigate) exprNode() {}

// Call invokes a named function registered with the engine.
type Call struct {
	Func string
	Args []Expr
}

func (Call) exprNode() {}

// Lambda binds parameter names for a predicate, selector (one parameter)
// or result combinator (two parameters).
type Lambda struct {
	Params []string
	Body   Expr
}

// Arity returns the number of parameters.
func (l Lambda) Arity() int { return len(l.Params) }

// IsZero reports whether l is unset.
func (l Lambda) IsZero() bool { return l.Body == nil && len(l.Params) == 0 }

// Expression constructors.

// V references lambda parameter name.
func V(name string) Var { return Var{Name: name} }

// P references plan parameter name.
func P(name string) Param { return Param{Name: name} }

// Lit wraps a Go literal. It panics on unsupported types.
func Lit(v any) Const { return Const{Value: ir.MustFromGo(v)} }

// Path parses a dotted path such as "p.Blog.Title" into a Member chain
// rooted at the lambda parameter "p".
func Path(path string) Expr {
	parts := strings.Split(path, ".")
	var e Expr = Var{Name: parts[0]}
	for _, name := range parts[1:] {
		e = Member{Target: e, Name: name}
	}
	return e
}

// Eq builds left == right.
func Eq(left, right Expr) Compare { return Compare{Op: OpEq, Left: left, Right: right} }

// Ne builds left != right.
func Ne(left, right Expr) Compare { return Compare{Op: OpNe, Left: left, Right: right} }

// Lt builds left < right.
func Lt(left, right Expr) Compare { return Compare{Op: OpLt, Left: left, Right: right} }

// Le builds left <= right.
func Le(left, right Expr) Compare { return Compare{Op: OpLe, Left: left, Right: right} }

// Gt builds left > right.
func Gt(left, right Expr) Compare { return Compare{Op: OpGt, Left: left, Right: right} }

// Ge builds left >= right.
func Ge(left, right Expr) Compare { return Compare{Op: OpGe, Left: left, Right: right} }

// AllOf builds a conjunction.
func AllOf(terms ...Expr) And { return And{Terms: terms} }

// AnyOf builds a disjunction.
func AnyOf(terms ...Expr) Or { return Or{Terms: terms} }

// Negate builds !e.
func Negate(e Expr) Not { return Not{Operand: e} }

// Tuple builds a Construct from named fields.
func Tuple(fields ...NamedExpr) Construct { return Construct{Fields: fields} }

// F names a tuple field.
func F(name string, e Expr) NamedExpr { return NamedExpr{Name: name, Value: e} }

// Nav builds a navigation through relation.
func Nav(target Expr, relation string) Navigate { return Navigate{Target: target, Relation: relation} }

// Fn builds a function call.
func Fn(name string, args ...Expr) Call { return Call{Func: name, Args: args} }

// L builds a one-parameter lambda.
func L(param string, body Expr) Lambda { return Lambda{Params: []string{param}, Body: body} }

// L2 builds a two-parameter lambda.
func L2(a, b string, body Expr) Lambda { return Lambda{Params: []string{a, b}, Body: body} }
