// Package interp is the reference tree-walking evaluator.
//
// It executes a compiled project's flattened runlists by walking the
// checked expression trees directly. It implements exactly the semantics
// the bytecode VM implements; the test suite runs every scenario under
// both and requires agreement.
package interp

import (
	"math"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/check"
	"github.com/simlin-project/simlin/internal/compiler"
	"github.com/simlin-project/simlin/internal/dims"
)

// Interp evaluates runlists against a state vector.
type Interp struct {
	cp *compiler.CompiledProject
}

// New creates an interpreter for a compiled project.
func New(cp *compiler.CompiledProject) *Interp {
	return &Interp{cp: cp}
}

// EvalInitials runs the initials runlist.
func (it *Interp) EvalInitials(state, scratch []float64, env *builtins.Env) {
	it.run(it.cp.Initials, state, scratch, env)
}

// EvalFlows runs the per-step flows runlist.
func (it *Interp) EvalFlows(state, scratch []float64, env *builtins.Env) {
	it.run(it.cp.Flows, state, scratch, env)
}

func (it *Interp) run(steps []compiler.Step, state, scratch []float64, env *builtins.Env) {
	ev := &evaluator{state: state, scratch: scratch, env: env}
	for _, s := range steps {
		switch s.Kind {
		case compiler.StepCopy:
			copy(state[s.Dst:s.Dst+s.Size], state[s.Src:s.Src+s.Size])
		case compiler.StepEval:
			ev.evalVar(s)
		}
	}
}

type evaluator struct {
	state   []float64
	scratch []float64
	env     *builtins.Env
	scope   *compiler.Scope
	temps   map[int]tempLayout
}

type tempLayout struct {
	off   int
	sizes []int
}

func (ev *evaluator) evalVar(s compiler.Step) {
	ev.scope = s.Scope
	eqns := s.Var.Eqns
	if s.Init {
		eqns = s.Var.Initials
	}
	size := s.Var.Size()

	if len(eqns) == 0 {
		for i := 0; i < size; i++ {
			ev.state[s.Offset+i] = 0
		}
		return
	}

	for _, eqn := range eqns {
		if eqn.Offset >= 0 {
			ev.evalTemps(eqn, nil)
			ev.state[s.Offset+eqn.Offset] = ev.clamp(s.Var, ev.eval(eqn.Body, nil))
			continue
		}
		if s.Var.Shape.IsScalar() {
			ev.evalTemps(eqn, nil)
			ev.state[s.Offset] = ev.clamp(s.Var, ev.eval(eqn.Body, nil))
			continue
		}
		sizes := s.Var.Shape.Sizes()
		idx := make([]int, len(sizes))
		for flat := 0; flat < size; flat++ {
			ev.evalTemps(eqn, idx)
			ev.state[s.Offset+flat] = ev.clamp(s.Var, ev.eval(eqn.Body, idx))
			increment(idx, sizes)
		}
	}
}

func (ev *evaluator) clamp(v *check.Var, x float64) float64 {
	if v.Kind == check.KindFlow && v.NonNegative {
		return math.Max(x, 0)
	}
	return x
}

func increment(idx, sizes []int) {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < sizes[i] {
			return
		}
		idx[i] = 0
	}
}

func (ev *evaluator) evalTemps(eqn check.Eqn, outer []int) {
	ev.temps = nil
	if len(eqn.Temps) == 0 {
		return
	}
	ev.temps = make(map[int]tempLayout, len(eqn.Temps))
	for _, tmp := range eqn.Temps {
		off := ev.scope.TempOffsets[tmp.ID]
		sizes := tmp.Shape.Sizes()
		ev.temps[tmp.ID] = tempLayout{off: off, sizes: sizes}

		idx := make([]int, len(sizes))
		n := tmp.Shape.Size()
		for flat := 0; flat < n; flat++ {
			ctx := append(append([]int(nil), outer...), idx...)
			ev.scratch[off+flat] = ev.eval(tmp.Body, ctx)
			increment(idx, sizes)
		}
	}
}

func (ev *evaluator) eval(e check.Expr, ctx []int) float64 {
	switch n := e.(type) {
	case *check.Const:
		return n.Value
	case *check.TimeRef:
		switch n.Kind {
		case check.TimeDT:
			return ev.state[compiler.DTOff]
		case check.TimeStart:
			return ev.state[compiler.InitialOff]
		case check.TimeStop:
			return ev.state[compiler.FinalOff]
		}
		return ev.state[compiler.TimeOff]
	case *check.DimIndex:
		return float64(ctx[n.Axis] + 1)
	case *check.LoadScalar:
		off, ok := ev.scope.Resolve(n.Var)
		if !ok {
			return math.NaN()
		}
		return ev.state[off]
	case *check.LoadElement:
		return ev.loadElement(n, ctx)
	case *check.Op1:
		x := ev.eval(n.X, ctx)
		if n.Op == ast.Not {
			if x == 0 {
				return 1
			}
			return 0
		}
		return -x
	case *check.Op2:
		return op2(n.Op, ev.eval(n.X, ctx), ev.eval(n.Y, ctx))
	case *check.If:
		if ev.eval(n.Cond, ctx) != 0 {
			return ev.eval(n.T, ctx)
		}
		return ev.eval(n.F, ctx)
	case *check.CallPure:
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			args[i] = ev.eval(a, ctx)
		}
		return builtins.Call(n.Fn, args, ev.env)
	case *check.Lookup:
		gf := ev.scope.GFs[n.Var]
		if gf == nil {
			return math.NaN()
		}
		return gf.Lookup(ev.eval(n.X, ctx))
	case *check.Reduce:
		return ev.reduce(n, ctx)
	}
	return math.NaN()
}

func op2(op ast.BinaryOp, x, y float64) float64 {
	b := func(v bool) float64 {
		if v {
			return 1
		}
		return 0
	}
	switch op {
	case ast.Add:
		return x + y
	case ast.Sub:
		return x - y
	case ast.Mul:
		return x * y
	case ast.Div:
		return x / y
	case ast.Mod:
		return math.Mod(x, y)
	case ast.Exp:
		return math.Pow(x, y)
	case ast.Eq:
		return b(x == y)
	case ast.Neq:
		return b(x != y)
	case ast.Lt:
		return b(x < y)
	case ast.Lte:
		return b(x <= y)
	case ast.Gt:
		return b(x > y)
	case ast.Gte:
		return b(x >= y)
	case ast.And:
		return b(x != 0 && y != 0)
	case ast.Or:
		return b(x != 0 || y != 0)
	}
	return math.NaN()
}

// loadElement resolves one element of an arrayed variable: dynamic
// subscripts first, then the context mapping over the remaining axes.
func (ev *evaluator) loadElement(n *check.LoadElement, ctx []int) float64 {
	base, ok := ev.scope.Resolve(n.Var)
	if !ok {
		return math.NaN()
	}
	if n.View.Rank() == 0 && len(n.Dyn) == 0 {
		return ev.state[base+n.View.Offset]
	}

	dyn := make(map[int]check.Expr, len(n.Dyn))
	for _, d := range n.Dyn {
		dyn[d.Axis] = d.X
	}
	indices := make([]int, n.View.Rank())
	r := 0
	for axis := 0; axis < n.View.Rank(); axis++ {
		if x, isDyn := dyn[axis]; isDyn {
			v := ev.eval(x, ctx)
			i := int(v) - 1
			if v != math.Trunc(v) || i < 0 || i >= n.View.Axes[axis].Size {
				return math.NaN()
			}
			indices[axis] = i
			continue
		}
		if r < len(n.Mapping) {
			indices[axis] = ctx[n.Mapping[r]]
		}
		r++
	}
	return ev.state[base+n.View.OffsetAt(indices)]
}

// reduce folds an array source in row-major order.
func (ev *evaluator) reduce(n *check.Reduce, ctx []int) float64 {
	var vals []float64

	switch src := n.Source.(type) {
	case *check.TempSource:
		layout, ok := ev.temps[src.ID]
		if !ok {
			return math.NaN()
		}
		count := 1
		for _, s := range layout.sizes {
			count *= s
		}
		vals = ev.scratch[layout.off : layout.off+count]
	case *check.ViewSource:
		base, ok := ev.scope.Resolve(src.Var)
		if !ok {
			return math.NaN()
		}
		view := src.View
		fixed := make([]int, view.Rank())
		for i := range fixed {
			fixed[i] = -1
		}
		for _, d := range src.Dyn {
			v := ev.eval(d.X, ctx)
			i := int(v) - 1
			if v != math.Trunc(v) || i < 0 || i >= view.Axes[d.Axis].Size {
				return math.NaN()
			}
			fixed[d.Axis] = i
		}
		vals = gather(ev.state, base, view, fixed)
	}

	if n.Op == "rank" {
		rank := 1
		if n.N != nil {
			v := ev.eval(n.N, ctx)
			if v != math.Trunc(v) {
				return math.NaN()
			}
			rank = int(v)
		}
		return builtins.Rank(vals, rank)
	}
	return builtins.Reduce(string(n.Op), vals)
}

// gather collects a view's elements in row-major order over its
// non-fixed axes.
func gather(backing []float64, base int, view *dims.View, fixed []int) []float64 {
	vals := make([]float64, 0, view.Size())
	dims.EachFixed(view, fixed, func(off int) {
		vals = append(vals, backing[base+off])
	})
	return vals
}
