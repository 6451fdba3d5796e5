package planfile

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType classifies a lexeme of the lambda language.
type TokenType int

const (
	EOF TokenType = iota
	IDENT
	PARAM
	INT
	FLOAT
	STRING
	ARROW    // =>
	NAV      // ->
	LPAREN   // (
	RPAREN   // )
	LBRACE   // {
	RBRACE   // }
	COMMA    // ,
	COLON    // :
	DOT      // .
	OPERATOR // == != < <= > >= && || ! + - * / %
	INVALID
)

var tokenNames = map[TokenType]string{
	EOF: "end of input", IDENT: "identifier", PARAM: "parameter", INT: "integer",
	FLOAT: "float", STRING: "string", ARROW: "'=>'", NAV: "'->'", LPAREN: "'('",
	RPAREN: "')'", LBRACE: "'{'", RBRACE: "'}'", COMMA: "','", COLON: "':'",
	DOT: "'.'", OPERATOR: "operator", INVALID: "invalid character",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

type Token struct {
	Type     TokenType
	Value    string
	Position int
}

func createToken(t TokenType, value string, pos int) Token {
	return Token{Type: t, Value: value, Position: pos}
}

// Lexer splits lambda source into tokens. Unlike SQL keywords, identifiers
// are case-sensitive, so input is kept as written.
type Lexer struct {
	input string
	pos   int
}

func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokens lexes the whole input, ending with EOF. The first INVALID token
// is reported as an error.
func (l *Lexer) Tokens() ([]Token, error) {
	var out []Token
	for {
		tok := l.NextToken()
		if tok.Type == INVALID {
			return nil, fmt.Errorf("position %d: unexpected %q", tok.Position, tok.Value)
		}
		out = append(out, tok)
		if tok.Type == EOF {
			return out, nil
		}
	}
}

func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return createToken(EOF, "", l.pos)
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return createToken(LPAREN, "(", start)
	case ch == ')':
		l.pos++
		return createToken(RPAREN, ")", start)
	case ch == '{':
		l.pos++
		return createToken(LBRACE, "{", start)
	case ch == '}':
		l.pos++
		return createToken(RBRACE, "}", start)
	case ch == ',':
		l.pos++
		return createToken(COMMA, ",", start)
	case ch == ':':
		l.pos++
		return createToken(COLON, ":", start)
	case ch == '.':
		l.pos++
		return createToken(DOT, ".", start)
	case ch == '"':
		return l.readString(start)
	case ch == '@':
		l.pos++
		name := l.readWord()
		if name == "" {
			return createToken(INVALID, "@", start)
		}
		return createToken(PARAM, name, start)
	case ch >= '0' && ch <= '9':
		return l.readNumber(start)
	case isIdentStart(l.peekRune()):
		return createToken(IDENT, l.readWord(), start)
	default:
		return l.readOperator(start)
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *Lexer) peekRune() rune {
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool { return isIdentStart(r) || unicode.IsDigit(r) }

func (l *Lexer) readWord() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !isIdentPart(r) {
			break
		}
		l.pos += size
	}
	return l.input[start:l.pos]
}

var operators = []string{"=>", "->", "==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "+", "-", "*", "/", "%"}

func (l *Lexer) readOperator(start int) Token {
	rest := l.input[l.pos:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			switch op {
			case "=>":
				return createToken(ARROW, op, start)
			case "->":
				return createToken(NAV, op, start)
			}
			return createToken(OPERATOR, op, start)
		}
	}
	r, size := utf8.DecodeRuneInString(rest)
	l.pos += size
	return createToken(INVALID, string(r), start)
}

func (l *Lexer) readNumber(start int) Token {
	typ := INT
	digits := func() {
		for l.pos < len(l.input) && l.input[l.pos] >= '0' && l.input[l.pos] <= '9' {
			l.pos++
		}
	}
	digits()
	if l.pos+1 < len(l.input) && l.input[l.pos] == '.' && l.input[l.pos+1] >= '0' && l.input[l.pos+1] <= '9' {
		typ = FLOAT
		l.pos++
		digits()
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		typ = FLOAT
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		digits()
	}
	return createToken(typ, l.input[start:l.pos], start)
}

// readString returns the raw quoted lexeme, escapes included; the parser
// decodes it.
func (l *Lexer) readString(start int) Token {
	l.pos++ // opening quote
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case '\\':
			l.pos += 2
		case '"':
			l.pos++
			return createToken(STRING, l.input[start:l.pos], start)
		default:
			l.pos++
		}
	}
	return createToken(INVALID, "unterminated string", start)
}
