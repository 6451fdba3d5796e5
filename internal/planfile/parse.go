package planfile

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/tabula/internal/ir"
	"github.com/roach88/tabula/internal/queryir"
)

// ParseError reports a lambda that does not parse.
type ParseError struct {
	Source   string
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at %d: %s", e.Source, e.Position, e.Message)
}

// ParseLambda parses "x => body" or "(a, b) => body". It accepts everything
// queryir.FormatLambda produces:
//
//	p => (p.Price > 10)
//	p => ((p.Stock > 0) && !(p.Name == null))
//	(b, p) => {blog: b.Title, post: p}
//	b => len(b->Posts)
//	p => (p.Price >= @min)
//
// Binary operators bind loosest to tightest as ||, &&, comparisons, + -,
// then * / %. Identifiers other than lambda parameters must be function
// calls.
func ParseLambda(src string) (queryir.Lambda, error) {
	toks, err := NewLexer(src).Tokens()
	if err != nil {
		return queryir.Lambda{}, &ParseError{Source: src, Message: err.Error()}
	}
	p := &parser{src: src, toks: toks}
	l, err := p.lambda()
	if err != nil {
		return queryir.Lambda{}, err
	}
	if err := p.expect(EOF); err != nil {
		return queryir.Lambda{}, err
	}
	return l, nil
}

// ParseExpr parses a bare expression over the named variables.
func ParseExpr(src string, vars ...string) (queryir.Expr, error) {
	toks, err := NewLexer(src).Tokens()
	if err != nil {
		return nil, &ParseError{Source: src, Message: err.Error()}
	}
	p := &parser{src: src, toks: toks, vars: vars}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(EOF); err != nil {
		return nil, err
	}
	return e, nil
}

type parser struct {
	src  string
	toks []Token
	pos  int
	vars []string
}

func (p *parser) peek() Token { return p.toks[p.pos] }

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Type != EOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &ParseError{Source: p.src, Position: tok.Position, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(t TokenType) error {
	tok := p.next()
	if tok.Type != t {
		return p.errorf(tok, "expected %s, got %s %q", t, tok.Type, tok.Value)
	}
	return nil
}

func (p *parser) isOp(values ...string) bool {
	tok := p.peek()
	return tok.Type == OPERATOR && slices.Contains(values, tok.Value)
}

func (p *parser) lambda() (queryir.Lambda, error) {
	var params []string
	tok := p.next()
	switch tok.Type {
	case IDENT:
		params = []string{tok.Value}
	case LPAREN:
		for {
			name := p.next()
			if name.Type != IDENT {
				return queryir.Lambda{}, p.errorf(name, "expected parameter name, got %s", name.Type)
			}
			if slices.Contains(params, name.Value) {
				return queryir.Lambda{}, p.errorf(name, "duplicate parameter %q", name.Value)
			}
			params = append(params, name.Value)
			if p.peek().Type == COMMA {
				p.next()
				continue
			}
			if err := p.expect(RPAREN); err != nil {
				return queryir.Lambda{}, err
			}
			break
		}
	default:
		return queryir.Lambda{}, p.errorf(tok, "expected lambda parameters, got %s", tok.Type)
	}
	if err := p.expect(ARROW); err != nil {
		return queryir.Lambda{}, err
	}
	p.vars = params
	body, err := p.expr()
	if err != nil {
		return queryir.Lambda{}, err
	}
	return queryir.Lambda{Params: params, Body: body}, nil
}

func (p *parser) expr() (queryir.Expr, error) { return p.or() }

func (p *parser) or() (queryir.Expr, error) {
	first, err := p.and()
	if err != nil {
		return nil, err
	}
	terms := []queryir.Expr{first}
	for p.isOp("||") {
		p.next()
		t, err := p.and()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return queryir.AnyOf(terms...), nil
}

func (p *parser) and() (queryir.Expr, error) {
	first, err := p.comparison()
	if err != nil {
		return nil, err
	}
	terms := []queryir.Expr{first}
	for p.isOp("&&") {
		p.next()
		t, err := p.comparison()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if len(terms) == 1 {
		return first, nil
	}
	return queryir.AllOf(terms...), nil
}

var compareOps = map[string]queryir.CompareOp{
	"==": queryir.OpEq, "!=": queryir.OpNe, "<": queryir.OpLt,
	"<=": queryir.OpLe, ">": queryir.OpGt, ">=": queryir.OpGe,
}

func (p *parser) comparison() (queryir.Expr, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	op, ok := compareOps[tok.Value]
	if tok.Type != OPERATOR || !ok {
		return left, nil
	}
	p.next()
	right, err := p.additive()
	if err != nil {
		return nil, err
	}
	if next := p.peek(); next.Type == OPERATOR && compareOps[next.Value] != 0 {
		return nil, p.errorf(next, "comparisons do not chain; add parentheses")
	}
	return queryir.Compare{Op: op, Left: left, Right: right}, nil
}

var arithOps = map[string]queryir.ArithOp{
	"+": queryir.OpAdd, "-": queryir.OpSub, "*": queryir.OpMul, "/": queryir.OpDiv, "%": queryir.OpMod,
}

func (p *parser) additive() (queryir.Expr, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := arithOps[p.next().Value]
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = queryir.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) multiplicative() (queryir.Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "%") {
		op := arithOps[p.next().Value]
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = queryir.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (queryir.Expr, error) {
	switch {
	case p.isOp("!"):
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return queryir.Negate(operand), nil
	case p.isOp("-"):
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		if c, ok := operand.(queryir.Const); ok {
			switch v := c.Value.(type) {
			case ir.Int:
				return queryir.Const{Value: -v}, nil
			case ir.Float:
				return queryir.Const{Value: -v}, nil
			}
		}
		return queryir.Arith{Op: queryir.OpSub, Left: queryir.Lit(0), Right: operand}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (queryir.Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().Type {
		case DOT:
			p.next()
			name := p.next()
			if name.Type != IDENT {
				return nil, p.errorf(name, "expected member name after '.', got %s", name.Type)
			}
			e = queryir.Member{Target: e, Name: name.Value}
		case NAV:
			p.next()
			name := p.next()
			if name.Type != IDENT {
				return nil, p.errorf(name, "expected relation name after '->', got %s", name.Type)
			}
			e = queryir.Nav(e, name.Value)
		default:
			return e, nil
		}
	}
}

func (p *parser) primary() (queryir.Expr, error) {
	tok := p.next()
	switch tok.Type {
	case INT:
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errorf(tok, "integer %s: %v", tok.Value, err)
		}
		return queryir.Const{Value: ir.Int(n)}, nil
	case FLOAT:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf(tok, "float %s: %v", tok.Value, err)
		}
		return queryir.Const{Value: ir.Float(f)}, nil
	case STRING:
		var s string
		if err := json.Unmarshal([]byte(tok.Value), &s); err != nil {
			return nil, p.errorf(tok, "string %s: %v", tok.Value, err)
		}
		return queryir.Const{Value: ir.String(s)}, nil
	case PARAM:
		return queryir.P(tok.Value), nil
	case LPAREN:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return e, nil
	case LBRACE:
		return p.construct()
	case IDENT:
		return p.identifier(tok)
	}
	return nil, p.errorf(tok, "unexpected %s %q", tok.Type, tok.Value)
}

func (p *parser) identifier(tok Token) (queryir.Expr, error) {
	switch tok.Value {
	case "true":
		return queryir.Const{Value: ir.Bool(true)}, nil
	case "false":
		return queryir.Const{Value: ir.Bool(false)}, nil
	case "null":
		return queryir.Const{Value: ir.Null{}}, nil
	}
	if p.peek().Type == LPAREN {
		p.next()
		var args []queryir.Expr
		if p.peek().Type != RPAREN {
			for {
				a, err := p.expr()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if p.peek().Type != COMMA {
					break
				}
				p.next()
			}
		}
		if err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return queryir.Fn(tok.Value, args...), nil
	}
	if !slices.Contains(p.vars, tok.Value) {
		return nil, p.errorf(tok, "unknown identifier %q", tok.Value)
	}
	return queryir.V(tok.Value), nil
}

func (p *parser) construct() (queryir.Expr, error) {
	var fields []queryir.NamedExpr
	if p.peek().Type == RBRACE {
		p.next()
		return queryir.Tuple(), nil
	}
	for {
		name := p.next()
		if name.Type != IDENT {
			return nil, p.errorf(name, "expected field name, got %s", name.Type)
		}
		if err := p.expect(COLON); err != nil {
			return nil, err
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, queryir.F(name.Value, v))
		if p.peek().Type == COMMA {
			p.next()
			continue
		}
		if err := p.expect(RBRACE); err != nil {
			return nil, err
		}
		return queryir.Tuple(fields...), nil
	}
}
