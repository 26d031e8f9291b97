package symbolic

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

// ErrSyntax is wrapped by every parse failure.
var ErrSyntax = errors.New("syntax error")

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse reads an arithmetic expression. Accepted syntax: decimal and
// scientific numbers, identifiers (symbols), function calls, + - * / and
// both ** and ^ for powers, parentheses, the glyphs √ π × ÷ and the unicode
// minus sign. Implicit multiplication is rejected.
func Parse(input string) (*Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
	}
	return e, nil
}

func lex(input string) ([]token, error) {
	var toks []token
	rs := []rune(input)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && unicode.IsDigit(rs[i]) {
				i++
			}
			if i < len(rs) && rs[i] == '.' {
				i++
				for i < len(rs) && unicode.IsDigit(rs[i]) {
					i++
				}
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					for j < len(rs) && unicode.IsDigit(rs[j]) {
						j++
					}
					i = j
				}
			}
			toks = append(toks, token{kind: tokNumber, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			name := string(rs[start:i])
			if name == "π" {
				name = "pi"
			}
			toks = append(toks, token{kind: tokIdent, text: name, pos: start})
		case r == '*' && i+1 < len(rs) && rs[i+1] == '*':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i += 2
		case r == '^':
			toks = append(toks, token{kind: tokOp, text: "**", pos: i})
			i++
		case strings.ContainsRune("+-*/", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		case r == '−':
			toks = append(toks, token{kind: tokOp, text: "-", pos: i})
			i++
		case r == '×' || r == '·':
			toks = append(toks, token{kind: tokOp, text: "*", pos: i})
			i++
		case r == '÷':
			toks = append(toks, token{kind: tokOp, text: "/", pos: i})
			i++
		case r == '√':
			toks = append(toks, token{kind: tokOp, text: "√", pos: i})
			i++
		case r == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrSyntax, r, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(rs)})
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (*Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			left, err = left.Add(right)
		} else {
			left, err = left.Sub(right)
		}
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// term := unary (('*' | '/') unary)*
func (p *parser) term() (*Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") {
		op := p.next().text
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == "*" {
			left, err = left.Mul(right)
		} else {
			left, err = left.Quo(right)
		}
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

// unary := ('+' | '-') unary | power
func (p *parser) unary() (*Expr, error) {
	if p.isOp("+") {
		p.next()
		return p.unary()
	}
	if p.isOp("-") {
		p.next()
		e, err := p.unary()
		if err != nil {
			return nil, err
		}
		return e.Neg(), nil
	}
	return p.power()
}

// power := primary ('**' unary)?
func (p *parser) power() (*Expr, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return base.Pow(exp)
	}
	return base, nil
}

func (p *parser) primary() (*Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		r, ok := new(big.Rat).SetString(strings.TrimSuffix(t.text, "."))
		if !ok {
			return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, t.text)
		}
		return Number(r), nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			return Apply(t.text, args)
		}
		if t.text == "pi" {
			return Pi, nil
		}
		return Symbol(t.text), nil
	case tokLParen:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing ')' for '(' at %d", ErrSyntax, t.pos)
		}
		return e, nil
	case tokOp:
		if t.text == "√" {
			e, err := p.power()
			if err != nil {
				return nil, err
			}
			return Sqrt(e), nil
		}
	}
	if t.kind == tokEOF {
		return nil, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
}

func (p *parser) args() ([]*Expr, error) {
	var args []*Expr
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, fmt.Errorf("%w: expected ',' or ')' at %d", ErrSyntax, t.pos)
		}
	}
}
