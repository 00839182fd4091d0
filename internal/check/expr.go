package check

import (
	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/ident"
)

// Expr is the shape-annotated expression form consumed by the interpreter
// and the bytecode compiler. Every node evaluates to a scalar within an
// element context: the current index tuple of the destination (or
// temporary) being filled.
type Expr interface {
	exprNode()
}

// Const is a number literal.
type Const struct {
	Value float64
}

// TimeKind selects a simulation clock accessor.
type TimeKind int

const (
	TimeNow TimeKind = iota
	TimeDT
	TimeStart
	TimeStop
)

// TimeRef reads the simulation clock.
type TimeRef struct {
	Kind TimeKind
}

// LoadScalar reads a scalar variable (possibly a module output reached by
// a dotted identifier).
type LoadScalar struct {
	Var ident.Ident
}

// DynSel is a runtime-evaluated subscript index for one view axis.
type DynSel struct {
	// Axis indexes into the pre-select view's axes.
	Axis int
	// X evaluates to the 1-based element index.
	X Expr
}

// LoadElement reads one element of an arrayed variable. View is relative
// to the variable's base offset, with static subscript operations already
// applied. Dyn selects are applied at evaluation time (in descending axis
// order), then Mapping feeds the remaining axes from the element context.
type LoadElement struct {
	Var     ident.Ident
	View    *dims.View
	Dyn     []DynSel
	Mapping []int // per remaining axis, the context axis that drives it
}

// DimIndex yields the 1-based position of the element context along one
// axis; it is how a bare dimension name evaluates inside an apply-to-all
// equation (`x[D] = D`).
type DimIndex struct {
	Axis int
}

// Op1 is a unary operation.
type Op1 struct {
	Op ast.UnaryOp
	X  Expr
}

// Op2 is a binary operation. Operands are element-wise in the same
// context.
type Op2 struct {
	Op   ast.BinaryOp
	X, Y Expr
}

// If is the conditional.
type If struct {
	Cond, T, F Expr
}

// CallPure calls a pure or time-independent builtin with scalar
// arguments.
type CallPure struct {
	Fn   ident.Ident
	Args []Expr
}

// Lookup applies the graphical function attached to Var.
type Lookup struct {
	Var ident.Ident
	X   Expr
}

// ArraySource is what a reduction consumes: a static view of a variable
// or a materialized temporary.
type ArraySource interface {
	arraySource()
}

// ViewSource reads an existing variable through a view (relative to the
// variable's base offset).
type ViewSource struct {
	Var  ident.Ident
	View *dims.View
	Dyn  []DynSel
}

// TempSource reads a temporary materialized by an earlier TempAssign.
type TempSource struct {
	ID int
}

func (*ViewSource) arraySource() {}
func (*TempSource) arraySource() {}

// Reduce consumes an array source and yields a scalar: sum, mean, stddev,
// min, max, size, rank.
type Reduce struct {
	Op     ident.Ident
	Source ArraySource
	// N is the optional scalar argument of rank.
	N Expr
}

func (*Const) exprNode()       {}
func (*TimeRef) exprNode()     {}
func (*LoadScalar) exprNode()  {}
func (*LoadElement) exprNode() {}
func (*DimIndex) exprNode()    {}
func (*Op1) exprNode()         {}
func (*Op2) exprNode()         {}
func (*If) exprNode()          {}
func (*CallPure) exprNode()    {}
func (*Lookup) exprNode()      {}
func (*Reduce) exprNode()      {}

// TempAssign materializes an array-valued sub-expression into a scratch
// temporary before the main body runs. Body is evaluated element-wise
// over Shape.
// Temporaries nest: an earlier entry in an Eqn's flat temp list never
// reads a later one.
type TempAssign struct {
	ID    int
	Shape Shape
	Body  Expr
}

// Eqn is one checked equation: a body evaluated either element-wise over
// the variable's whole shape (A2A and scalars) or once into a single
// element slot (explicit arrayed elements).
type Eqn struct {
	// Offset is the flat element offset for explicit arrayed elements;
	// -1 means the body is evaluated over the variable's whole shape.
	Offset int
	Body   Expr
	Temps  []TempAssign
}

// VarKind tags the checked variable union.
type VarKind int

const (
	KindAux VarKind = iota
	KindFlow
	KindStock
	KindModule
)

// Var is a checked variable with its resolved shape and lowered
// equations.
type Var struct {
	Name  ident.Ident
	Kind  VarKind
	Shape Shape

	// Eqns is the current-value equation list (empty for stocks and
	// modules).
	Eqns []Eqn
	// Initials is the initial-value equation list (stocks; for other
	// kinds it mirrors Eqns).
	Initials []Eqn

	// Stock-only attributes.
	Inflows     []ident.Ident
	Outflows    []ident.Ident
	NonNegative bool

	// Module-only attributes.
	ModelName ident.Ident
	Refs      []ModuleRef

	// GF is the attached graphical function, if any.
	GF bool
}

// Size returns the number of state-vector slots the variable occupies.
func (v *Var) Size() int { return v.Shape.Size() }

// ModuleRef is a resolved src→dst port connection.
type ModuleRef struct {
	Src ident.Ident // parent-scope variable
	Dst ident.Ident // port name within the child model
}
