// Package units implements unit expression parsing and dimensional
// consistency checking.
//
// A unit expression is a product of named units raised to integer
// exponents. Parsing reuses the equation lexer; checking is a separate
// pass that assigns a unit to every sub-expression of an equation.
package units

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/lexer"
)

// Unit maps a named unit to its integer exponent. The empty map is
// dimensionless. A nil Unit means "unconstrained" (a bare constant), which
// unifies with anything.
type Unit map[ident.Ident]int

// Dimensionless is the unit of pure numbers.
func Dimensionless() Unit { return Unit{} }

// Equal reports whether two units are dimensionally identical. Nil
// (unconstrained) compares equal to everything.
func (u Unit) Equal(v Unit) bool {
	if u == nil || v == nil {
		return true
	}
	if len(u) != len(v) {
		return false
	}
	for name, exp := range u {
		if v[name] != exp {
			return false
		}
	}
	return true
}

// IsDimensionless reports whether u has no unit content. Nil counts as
// dimensionless: a constant can always be read as a pure number.
func (u Unit) IsDimensionless() bool { return len(u) == 0 }

// Mul returns the product unit (exponents add).
func (u Unit) Mul(v Unit) Unit {
	if u == nil {
		return v
	}
	if v == nil {
		return u
	}
	out := Unit{}
	for name, exp := range u {
		out[name] = exp
	}
	for name, exp := range v {
		out[name] += exp
		if out[name] == 0 {
			delete(out, name)
		}
	}
	return out
}

// Div returns the quotient unit (exponents subtract).
func (u Unit) Div(v Unit) Unit {
	return u.Mul(v.Pow(-1))
}

// Pow raises the unit to the n-th power: every exponent is multiplied by n.
func (u Unit) Pow(n int) Unit {
	if u == nil {
		return nil
	}
	out := Unit{}
	for name, exp := range u {
		if exp*n != 0 {
			out[name] = exp * n
		}
	}
	return out
}

// String renders the unit in a stable `a*b^2/c` form.
func (u Unit) String() string {
	if len(u) == 0 {
		return "dimensionless"
	}
	var pos, neg []string
	names := make([]string, 0, len(u))
	for name := range u {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		exp := u[ident.Ident(name)]
		switch {
		case exp == 1:
			pos = append(pos, name)
		case exp > 1:
			pos = append(pos, fmt.Sprintf("%s^%d", name, exp))
		case exp == -1:
			neg = append(neg, name)
		case exp < -1:
			neg = append(neg, fmt.Sprintf("%s^%d", name, -exp))
		}
	}
	s := strings.Join(pos, "*")
	if s == "" {
		s = "1"
	}
	if len(neg) > 0 {
		s += "/" + strings.Join(neg, "/")
	}
	return s
}

// Parse reads a unit expression string. The grammar is the multiplicative
// subset of the equation grammar: identifiers, `*`, `/`, `^<int>`, parens,
// and the literal `1` as a dimensionless numerator. An empty string is
// dimensionless.
func Parse(s string) (Unit, *errors.Diagnostic) {
	toks := lexer.All(s)
	if len(toks) == 0 {
		return Dimensionless(), nil
	}
	p := &unitParser{toks: toks, src: s}
	u := p.parseProduct()
	if p.err != nil {
		return nil, p.err
	}
	if p.pos != len(p.toks) {
		return nil, errors.NewAt(errors.UNI002,
			errors.Span{Start: p.toks[p.pos].Start, End: p.toks[p.pos].End},
			"unexpected %q in unit expression", p.toks[p.pos].Literal)
	}
	return u, nil
}

type unitParser struct {
	toks []lexer.Token
	src  string
	pos  int
	err  *errors.Diagnostic
}

func (p *unitParser) fail(format string, args ...interface{}) Unit {
	if p.err == nil {
		span := errors.Span{Start: 0, End: len(p.src)}
		if p.pos < len(p.toks) {
			span = errors.Span{Start: p.toks[p.pos].Start, End: p.toks[p.pos].End}
		}
		p.err = errors.NewAt(errors.UNI002, span, format, args...)
	}
	return nil
}

func (p *unitParser) peek() (lexer.Token, bool) {
	if p.pos >= len(p.toks) {
		return lexer.Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *unitParser) parseProduct() Unit {
	u := p.parseFactor()
	for p.err == nil {
		tok, ok := p.peek()
		if !ok {
			break
		}
		switch tok.Type {
		case lexer.STAR:
			p.pos++
			u = u.Mul(p.parseFactor())
		case lexer.SLASH:
			p.pos++
			u = u.Div(p.parseFactor())
		default:
			return u
		}
	}
	return u
}

func (p *unitParser) parseFactor() Unit {
	tok, ok := p.peek()
	if !ok {
		return p.fail("unit expression ends unexpectedly")
	}
	var u Unit
	switch tok.Type {
	case lexer.IDENT:
		p.pos++
		u = Unit{ident.Canonicalize(tok.Literal): 1}
	case lexer.NUMBER:
		if tok.Literal != "1" {
			return p.fail("only the literal 1 is a valid unit constant, found %q", tok.Literal)
		}
		p.pos++
		u = Dimensionless()
	case lexer.LPAREN:
		p.pos++
		u = p.parseProduct()
		if next, ok := p.peek(); !ok || next.Type != lexer.RPAREN {
			return p.fail("missing ')' in unit expression")
		}
		p.pos++
	default:
		return p.fail("unexpected %q in unit expression", tok.Literal)
	}

	if next, ok := p.peek(); ok && next.Type == lexer.CARET {
		p.pos++
		expTok, ok := p.peek()
		neg := false
		if ok && expTok.Type == lexer.MINUS {
			neg = true
			p.pos++
			expTok, ok = p.peek()
		}
		if !ok || expTok.Type != lexer.NUMBER {
			return p.fail("unit exponent must be an integer")
		}
		n, err := strconv.Atoi(expTok.Literal)
		if err != nil {
			return p.fail("unit exponent must be an integer, found %q", expTok.Literal)
		}
		p.pos++
		if neg {
			n = -n
		}
		u = u.Pow(n)
	}
	return u
}
