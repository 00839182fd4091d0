// Package parser turns equation text into the untyped AST.
//
// It is a Pratt-style recursive descent parser. Errors are collected rather
// than thrown: a bad equation yields every diagnostic it has, pinned to the
// offending source span, plus a best-effort AST where recovery is possible.
package parser

import (
	"strconv"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/lexer"
)

// eof is an internal sentinel; the lexer itself emits no EOF token.
const eof lexer.TokenType = -1

// Precedence levels, low to high, per the equation grammar.
const (
	lowest int = iota
	ternary
	logicalOr   // |
	logicalAnd  // &
	equals      // = == ≠
	lessGreater // < ≤ > ≥
	sum         // + -
	product     // * / mod
	prefix      // -x +x !x
	power       // ^ (right-assoc)
	postfix     // call, subscript, transpose
)

var precedences = map[lexer.TokenType]int{
	lexer.OR:         logicalOr,
	lexer.AND:        logicalAnd,
	lexer.EQ:         equals,
	lexer.EQEQ:       equals,
	lexer.NEQ:        equals,
	lexer.LT:         lessGreater,
	lexer.LTE:        lessGreater,
	lexer.GT:         lessGreater,
	lexer.GTE:        lessGreater,
	lexer.PLUS:       sum,
	lexer.MINUS:      sum,
	lexer.STAR:       product,
	lexer.SLASH:      product,
	lexer.MOD:        product,
	lexer.CARET:      power,
	lexer.LPAREN:     postfix,
	lexer.LBRACKET:   postfix,
	lexer.APOSTROPHE: postfix,
}

type (
	prefixParseFn func() ast.Expr
	infixParseFn  func(ast.Expr) ast.Expr
)

// Parser parses a single equation
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errs      errors.List

	prefixParseFns map[lexer.TokenType]prefixParseFn
	infixParseFns  map[lexer.TokenType]infixParseFn
}

// New creates a new Parser over an equation string
func New(input string) *Parser {
	p := &Parser{l: lexer.New(input)}

	p.prefixParseFns = map[lexer.TokenType]prefixParseFn{
		lexer.NUMBER: p.parseNumber,
		lexer.IDENT:  p.parseIdentifier,
		lexer.LPAREN: p.parseGrouped,
		lexer.PLUS:   p.parsePrefix,
		lexer.MINUS:  p.parsePrefix,
		lexer.NOT:    p.parsePrefix,
		lexer.IF:     p.parseIf,
	}
	p.infixParseFns = map[lexer.TokenType]infixParseFn{
		lexer.PLUS:       p.parseInfix,
		lexer.MINUS:      p.parseInfix,
		lexer.STAR:       p.parseInfix,
		lexer.SLASH:      p.parseInfix,
		lexer.MOD:        p.parseInfix,
		lexer.CARET:      p.parseInfix,
		lexer.EQ:         p.parseInfix,
		lexer.EQEQ:       p.parseInfix,
		lexer.NEQ:        p.parseInfix,
		lexer.LT:         p.parseInfix,
		lexer.LTE:        p.parseInfix,
		lexer.GT:         p.parseInfix,
		lexer.GTE:        p.parseInfix,
		lexer.AND:        p.parseInfix,
		lexer.OR:         p.parseInfix,
		lexer.LPAREN:     p.parseCall,
		lexer.LBRACKET:   p.parseSubscript,
		lexer.APOSTROPHE: p.parseTranspose,
	}

	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete equation and returns the AST with any collected
// diagnostics. An all-whitespace equation yields a nil AST and no errors.
func Parse(input string) (ast.Expr, errors.List) {
	p := New(input)
	if p.curToken.Type == eof {
		if p.l.UnclosedComment {
			p.warnUnclosedComment()
		}
		return nil, p.errs
	}
	e := p.parseExpression(lowest)
	if p.curToken.Type != eof && len(p.errs) == 0 {
		p.errorAtCur(errors.PAR001, "unexpected token %q after expression", p.curToken.Literal)
	}
	if p.l.UnclosedComment {
		p.warnUnclosedComment()
	}
	return e, p.errs
}

func (p *Parser) warnUnclosedComment() {
	p.errs = append(p.errs, &errors.Diagnostic{
		Code:    errors.PAR003,
		Message: "comment brace { is never closed",
		Warning: true,
	})
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	if tok, ok := p.l.Next(); ok {
		p.peekToken = tok
	} else {
		p.peekToken = lexer.Token{Type: eof, Start: len(p.l.Input()), End: len(p.l.Input())}
	}
}

func (p *Parser) curPrecedence() int {
	return precedences[p.curToken.Type]
}

func (p *Parser) errorAtCur(code string, format string, args ...interface{}) {
	span := errors.Span{Start: p.curToken.Start, End: p.curToken.End}
	if p.curToken.Type == eof {
		span = errors.Span{Start: p.curToken.Start, End: p.curToken.Start + 1}
	}
	p.errs = append(p.errs, errors.NewAt(code, span, format, args...))
}

// expect consumes the current token if it has the wanted type, and records
// a diagnostic otherwise.
func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curToken.Type == t {
		p.nextToken()
		return true
	}
	if p.curToken.Type == eof {
		p.errorAtCur(errors.PAR003, "unexpected end of equation, expected %q", t.String())
	} else {
		p.errorAtCur(errors.PAR001, "expected %q, found %q", t.String(), p.curToken.Literal)
	}
	return false
}

func (p *Parser) parseExpression(precedence int) ast.Expr {
	prefixFn := p.prefixParseFns[p.curToken.Type]
	if prefixFn == nil {
		if p.curToken.Type == eof {
			p.errorAtCur(errors.PAR002, "expression is missing an operand")
		} else {
			p.errorAtCur(errors.PAR001, "unexpected token %q", p.curToken.Literal)
			p.nextToken()
		}
		return nil
	}
	left := prefixFn()

	for left != nil && precedence < p.curPrecedence() {
		infixFn := p.infixParseFns[p.curToken.Type]
		if infixFn == nil {
			return left
		}
		left = infixFn(left)
	}
	return left
}

func (p *Parser) parseNumber() ast.Expr {
	tok := p.curToken
	p.nextToken()
	v, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.errs = append(p.errs, errors.NewAt(errors.PAR004,
			errors.Span{Start: tok.Start, End: tok.End}, "bad number %q", tok.Literal))
		return nil
	}
	return &ast.Const{Text: tok.Literal, Value: v, L: ast.Loc{Start: tok.Start, End: tok.End}}
}

func (p *Parser) parseIdentifier() ast.Expr {
	tok := p.curToken
	p.nextToken()
	return &ast.Var{
		Name: ident.Canonicalize(tok.Literal),
		L:    ast.Loc{Start: tok.Start, End: tok.End},
	}
}

func (p *Parser) parseGrouped() ast.Expr {
	p.nextToken()
	e := p.parseExpression(lowest)
	p.expect(lexer.RPAREN)
	return e
}

func (p *Parser) parsePrefix() ast.Expr {
	tok := p.curToken
	p.nextToken()
	operand := p.parseExpression(prefix)
	if operand == nil {
		return nil
	}
	var op ast.UnaryOp
	switch tok.Type {
	case lexer.PLUS:
		op = ast.Positive
	case lexer.MINUS:
		op = ast.Negative
	case lexer.NOT:
		op = ast.Not
	}
	return &ast.Op1{Op: op, X: operand, L: ast.Loc{Start: tok.Start, End: tok.End}.Union(operand.Loc())}
}

var binaryOps = map[lexer.TokenType]ast.BinaryOp{
	lexer.PLUS:  ast.Add,
	lexer.MINUS: ast.Sub,
	lexer.STAR:  ast.Mul,
	lexer.SLASH: ast.Div,
	lexer.MOD:   ast.Mod,
	lexer.CARET: ast.Exp,
	// == is tokenized distinctly from = but both mean equality
	lexer.EQ:   ast.Eq,
	lexer.EQEQ: ast.Eq,
	lexer.NEQ:  ast.Neq,
	lexer.LT:   ast.Lt,
	lexer.LTE:  ast.Lte,
	lexer.GT:   ast.Gt,
	lexer.GTE:  ast.Gte,
	lexer.AND:  ast.And,
	lexer.OR:   ast.Or,
}

func (p *Parser) parseInfix(left ast.Expr) ast.Expr {
	tok := p.curToken
	prec := p.curPrecedence()
	if tok.Type == lexer.CARET {
		// exponentiation is right-associative
		prec--
	}
	p.nextToken()
	right := p.parseExpression(prec)
	if right == nil {
		if len(p.errs) == 0 {
			p.errorAtCur(errors.PAR002, "operator %q is missing its right operand", tok.Literal)
		}
		return left
	}
	return &ast.Op2{
		Op: binaryOps[tok.Type],
		X:  left, Y: right,
		L: left.Loc().Union(right.Loc()),
	}
}

func (p *Parser) parseIf() ast.Expr {
	start := p.curToken.Start
	p.nextToken()
	cond := p.parseExpression(ternary)
	if !p.expect(lexer.THEN) {
		return nil
	}
	t := p.parseExpression(ternary)
	if !p.expect(lexer.ELSE) {
		return nil
	}
	f := p.parseExpression(ternary)
	if cond == nil || t == nil || f == nil {
		return nil
	}
	return &ast.If{Cond: cond, T: t, F: f, L: ast.Loc{Start: start, End: f.Loc().End}}
}

func (p *Parser) parseCall(left ast.Expr) ast.Expr {
	v, ok := left.(*ast.Var)
	if !ok {
		p.errorAtCur(errors.PAR001, "only named functions can be called")
		p.nextToken()
		return left
	}
	p.nextToken()
	call := &ast.App{Name: v.Name, L: v.L}
	if p.curToken.Type == lexer.RPAREN {
		call.L.End = p.curToken.End
		p.nextToken()
		return call
	}
	for {
		arg := p.parseExpression(lowest)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if p.curToken.Type != lexer.COMMA {
			break
		}
		p.nextToken()
	}
	call.L.End = p.curToken.End
	if !p.expect(lexer.RPAREN) {
		return nil
	}
	return call
}

func (p *Parser) parseSubscript(left ast.Expr) ast.Expr {
	v, ok := left.(*ast.Var)
	if !ok {
		p.errorAtCur(errors.PAR001, "only named variables can be subscripted")
		p.nextToken()
		return left
	}
	p.nextToken()
	sub := &ast.Subscript{Base: v.Name, L: v.L}
	for {
		el := p.parseSubElement()
		if el == nil {
			return nil
		}
		sub.Args = append(sub.Args, el)
		if p.curToken.Type != lexer.COMMA {
			break
		}
		p.nextToken()
	}
	sub.L.End = p.curToken.End
	if !p.expect(lexer.RBRACKET) {
		return nil
	}
	return sub
}

func (p *Parser) parseSubElement() ast.SubElement {
	switch p.curToken.Type {
	case lexer.STAR:
		p.nextToken()
		if p.curToken.Type == lexer.COLON {
			p.nextToken()
			if p.curToken.Type != lexer.IDENT {
				p.errorAtCur(errors.PAR001, "star range needs a dimension name after ':'")
				return nil
			}
			dim := ident.Canonicalize(p.curToken.Literal)
			p.nextToken()
			return &ast.SubStarRange{Dim: dim}
		}
		return &ast.SubWildcard{}
	case lexer.AT:
		p.nextToken()
		if p.curToken.Type != lexer.NUMBER {
			p.errorAtCur(errors.PAR001, "@ needs a dimension position")
			return nil
		}
		n, err := strconv.Atoi(p.curToken.Literal)
		if err != nil || n < 1 {
			p.errorAtCur(errors.PAR004, "bad dimension position %q", p.curToken.Literal)
			return nil
		}
		p.nextToken()
		return &ast.SubDimPosition{N: n}
	default:
		lo := p.parseExpression(lowest)
		if lo == nil {
			return nil
		}
		if p.curToken.Type == lexer.COLON {
			p.nextToken()
			hi := p.parseExpression(lowest)
			if hi == nil {
				return nil
			}
			return &ast.SubRange{Lo: lo, Hi: hi}
		}
		return &ast.SubExpr{X: lo}
	}
}

func (p *Parser) parseTranspose(left ast.Expr) ast.Expr {
	tok := p.curToken
	p.nextToken()
	return &ast.Transpose{X: left, L: left.Loc().Union(ast.Loc{Start: tok.Start, End: tok.End})}
}
