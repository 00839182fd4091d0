// Package ast defines the untyped expression AST produced by the parser.
//
// This is the first of the engine's expression forms; the type checker
// rewrites it into progressively richer shapes. All variants are closed
// sums dispatched by type switch.
package ast

import (
	"github.com/simlin-project/simlin/internal/ident"
)

// Loc is the byte span of a node in its equation's source text.
type Loc struct {
	Start int
	End   int
}

// Union merges two spans.
func (l Loc) Union(o Loc) Loc {
	if o.Start < l.Start {
		l.Start = o.Start
	}
	if o.End > l.End {
		l.End = o.End
	}
	return l
}

// Expr is an untyped expression node.
type Expr interface {
	exprNode()
	Loc() Loc
}

// UnaryOp is the operator of an Op1 node.
type UnaryOp int

const (
	Positive UnaryOp = iota
	Negative
	Not
)

// BinaryOp is the operator of an Op2 node.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Mod
	Exp
	Eq
	Neq
	Lt
	Lte
	Gt
	Gte
	And
	Or
)

var binaryOpNames = map[BinaryOp]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "mod", Exp: "^",
	Eq: "=", Neq: "≠", Lt: "<", Lte: "≤", Gt: ">", Gte: "≥",
	And: "&", Or: "|",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// Const is a number literal. Text preserves the source spelling.
type Const struct {
	Text  string
	Value float64
	L     Loc
}

// Var is a reference to a variable by canonical identifier.
type Var struct {
	Name ident.Ident
	L    Loc
}

// App is a function call. Builtins are recognized by name at type-check
// time, not here.
type App struct {
	Name ident.Ident
	Args []Expr
	L    Loc
}

// Subscript is an array subscript applied to a named variable.
type Subscript struct {
	Base ident.Ident
	Args []SubElement
	L    Loc
}

// Op1 is a unary operation.
type Op1 struct {
	Op UnaryOp
	X  Expr
	L  Loc
}

// Op2 is a binary operation.
type Op2 struct {
	Op   BinaryOp
	X, Y Expr
	L    Loc
}

// If is the if/then/else ternary.
type If struct {
	Cond Expr
	T, F Expr
	L    Loc
}

// Transpose is the postfix `'` operator.
type Transpose struct {
	X Expr
	L Loc
}

func (*Const) exprNode()     {}
func (*Var) exprNode()       {}
func (*App) exprNode()       {}
func (*Subscript) exprNode() {}
func (*Op1) exprNode()       {}
func (*Op2) exprNode()       {}
func (*If) exprNode()        {}
func (*Transpose) exprNode() {}

func (e *Const) Loc() Loc     { return e.L }
func (e *Var) Loc() Loc       { return e.L }
func (e *App) Loc() Loc       { return e.L }
func (e *Subscript) Loc() Loc { return e.L }
func (e *Op1) Loc() Loc       { return e.L }
func (e *Op2) Loc() Loc       { return e.L }
func (e *If) Loc() Loc        { return e.L }
func (e *Transpose) Loc() Loc { return e.L }

// SubElement is one element of a subscript list.
type SubElement interface {
	subElement()
}

// SubExpr is an index expression.
type SubExpr struct {
	X Expr
}

// SubWildcard is `*`: preserve the dimension.
type SubWildcard struct{}

// SubRange is `a:b`, inclusive on both ends, 1-based.
type SubRange struct {
	Lo, Hi Expr
}

// SubStarRange is `*:dim`, a subdimension splat.
type SubStarRange struct {
	Dim ident.Ident
}

// SubDimPosition is `@n`, referencing the n-th dimension positionally.
type SubDimPosition struct {
	N int
}

func (*SubExpr) subElement()        {}
func (*SubWildcard) subElement()    {}
func (*SubRange) subElement()       {}
func (*SubStarRange) subElement()   {}
func (*SubDimPosition) subElement() {}
