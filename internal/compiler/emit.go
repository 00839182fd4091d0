package compiler

import (
	"sort"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/bytecode"
	"github.com/simlin-project/simlin/internal/check"
	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/errors"
)

// emit lowers both runlists to bytecode. Element loops are unrolled: the
// compiler bakes each destination element's index tuple into the body it
// emits, so the only run-time indexing left is dynamic subscripts.
func (c *compiler) emit() errors.List {
	var errs errors.List
	c.out.InitialsCode = c.emitList(c.out.Initials, &errs)
	c.out.FlowsCode = c.emitList(c.out.Flows, &errs)
	return errs
}

func (c *compiler) emitList(steps []Step, errs *errors.List) *bytecode.Chunk {
	em := &emitter{ch: &bytecode.Chunk{}, errs: errs}
	for _, s := range steps {
		switch s.Kind {
		case StepCopy:
			em.ch.Code = append(em.ch.Code, bytecode.Instr{
				Op: bytecode.OpCopyVar, A: s.Src, B: s.Dst, C: s.Size,
			})
		case StepEval:
			em.emitVar(s)
		}
	}
	em.ch.Emit(bytecode.OpRet, 0, 0)
	return em.ch
}

type emitter struct {
	ch    *bytecode.Chunk
	errs  *errors.List
	scope *Scope
	// temp layouts of the equation currently being emitted
	temps map[int]tempLayout
}

type tempLayout struct {
	off   int
	sizes []int
}

func (em *emitter) fail(format string, args ...interface{}) {
	*em.errs = append(*em.errs, errors.New(errors.RES001, format, args...))
}

func (em *emitter) emitVar(s Step) {
	em.scope = s.Scope
	eqns := s.Var.Eqns
	if s.Init {
		eqns = s.Var.Initials
	}
	size := s.Var.Size()

	if len(eqns) == 0 {
		// a variable with no equation holds zero
		zero := em.ch.Const(0)
		for i := 0; i < size; i++ {
			em.ch.Emit(bytecode.OpPushConst, zero, 0)
			em.ch.Emit(bytecode.OpStoreVar, s.Offset+i, 0)
		}
		return
	}

	for _, eqn := range eqns {
		if eqn.Offset >= 0 {
			// explicit arrayed element: scalar body into one slot
			em.temps = nil
			em.emitTemps(eqn, nil)
			em.emitExpr(eqn.Body, nil)
			em.emitClamp(s.Var)
			em.ch.Emit(bytecode.OpStoreVar, s.Offset+eqn.Offset, 0)
			continue
		}
		if s.Var.Shape.IsScalar() {
			em.temps = nil
			em.emitTemps(eqn, nil)
			em.emitExpr(eqn.Body, nil)
			em.emitClamp(s.Var)
			em.ch.Emit(bytecode.OpStoreVar, s.Offset, 0)
			continue
		}
		// apply-to-all: unroll the element loop
		sizes := s.Var.Shape.Sizes()
		idx := make([]int, len(sizes))
		for flat := 0; flat < size; flat++ {
			em.temps = nil
			em.emitTemps(eqn, idx)
			em.emitExpr(eqn.Body, idx)
			em.emitClamp(s.Var)
			em.ch.Emit(bytecode.OpStoreVar, s.Offset+flat, 0)
			increment(idx, sizes)
		}
	}
}

// emitClamp enforces a flow's non-negative flag at the store site.
func (em *emitter) emitClamp(v *check.Var) {
	if v.Kind != check.KindFlow || !v.NonNegative {
		return
	}
	id, _ := bytecode.BuiltinID("max")
	em.ch.Emit(bytecode.OpPushConst, em.ch.Const(0), 0)
	em.ch.Emit(bytecode.OpCallBuiltin, id, 2)
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

// emitTemps materializes an equation's temporaries for the current outer
// element.
func (em *emitter) emitTemps(eqn check.Eqn, outer []int) {
	if len(eqn.Temps) == 0 {
		return
	}
	em.temps = make(map[int]tempLayout, len(eqn.Temps))
	for _, tmp := range eqn.Temps {
		scratch := em.scope.TempOffsets[tmp.ID]
		sizes := tmp.Shape.Sizes()
		em.temps[tmp.ID] = tempLayout{off: scratch, sizes: sizes}

		idx := make([]int, len(sizes))
		n := tmp.Shape.Size()
		for flat := 0; flat < n; flat++ {
			ctx := append(append([]int(nil), outer...), idx...)
			em.emitExpr(tmp.Body, ctx)
			em.ch.Emit(bytecode.OpStoreTemp, scratch+flat, 0)
			increment(idx, sizes)
		}
	}
}

var op2Codes = map[ast.BinaryOp]int{
	ast.Add: bytecode.Op2Add, ast.Sub: bytecode.Op2Sub,
	ast.Mul: bytecode.Op2Mul, ast.Div: bytecode.Op2Div,
	ast.Mod: bytecode.Op2Mod, ast.Exp: bytecode.Op2Pow,
	ast.Eq: bytecode.Op2Eq, ast.Neq: bytecode.Op2Neq,
	ast.Lt: bytecode.Op2Lt, ast.Lte: bytecode.Op2Lte,
	ast.Gt: bytecode.Op2Gt, ast.Gte: bytecode.Op2Gte,
	ast.And: bytecode.Op2And, ast.Or: bytecode.Op2Or,
}

var reduceCodes = map[string]int{
	"sum": bytecode.ReduceSum, "mean": bytecode.ReduceMean,
	"stddev": bytecode.ReduceStddev, "min": bytecode.ReduceMin,
	"max": bytecode.ReduceMax, "size": bytecode.ReduceSize,
}

// emitExpr emits code leaving the expression's scalar value on the stack.
// ctx is the baked element index tuple of the destination (plus, inside a
// temporary body, the temporary's own axes).
func (em *emitter) emitExpr(e check.Expr, ctx []int) {
	switch n := e.(type) {
	case *check.Const:
		em.ch.Emit(bytecode.OpPushConst, em.ch.Const(n.Value), 0)
	case *check.TimeRef:
		em.ch.Emit(bytecode.OpLoadVar, timeSlot(n.Kind), 0)
	case *check.DimIndex:
		em.ch.Emit(bytecode.OpPushConst, em.ch.Const(float64(ctx[n.Axis]+1)), 0)
	case *check.LoadScalar:
		off, ok := em.scope.Resolve(n.Var)
		if !ok {
			em.fail("no slot for %s", n.Var)
			off = TimeOff
		}
		em.ch.Emit(bytecode.OpLoadVar, off, 0)
	case *check.LoadElement:
		em.emitLoadElement(n, ctx)
	case *check.Op1:
		em.emitExpr(n.X, ctx)
		code := bytecode.Op1Neg
		if n.Op == ast.Not {
			code = bytecode.Op1Not
		}
		em.ch.Emit(bytecode.OpOp1, code, 0)
	case *check.Op2:
		em.emitExpr(n.X, ctx)
		em.emitExpr(n.Y, ctx)
		em.ch.Emit(bytecode.OpOp2, op2Codes[n.Op], 0)
	case *check.If:
		em.emitExpr(n.Cond, ctx)
		jfalse := em.ch.Emit(bytecode.OpJumpIfFalse, 0, 0)
		em.emitExpr(n.T, ctx)
		jend := em.ch.Emit(bytecode.OpJump, 0, 0)
		em.ch.Patch(jfalse, len(em.ch.Code))
		em.emitExpr(n.F, ctx)
		em.ch.Patch(jend, len(em.ch.Code))
	case *check.CallPure:
		for _, a := range n.Args {
			em.emitExpr(a, ctx)
		}
		id, ok := bytecode.BuiltinID(n.Fn)
		if !ok {
			em.fail("builtin %s has no bytecode lowering", n.Fn)
			return
		}
		em.ch.Emit(bytecode.OpCallBuiltin, id, len(n.Args))
	case *check.Lookup:
		gf := em.scope.GFs[n.Var]
		if gf == nil {
			em.fail("%s has no graphical function", n.Var)
			return
		}
		em.emitExpr(n.X, ctx)
		em.ch.Emit(bytecode.OpLookup, em.ch.AddGF(gf), 0)
	case *check.Reduce:
		em.emitReduce(n, ctx)
	}
}

func timeSlot(k check.TimeKind) int {
	switch k {
	case check.TimeDT:
		return DTOff
	case check.TimeStart:
		return InitialOff
	case check.TimeStop:
		return FinalOff
	}
	return TimeOff
}

// emitLoadElement resolves a per-element array read. With no dynamic
// subscripts the offset folds to a constant LoadVar.
func (em *emitter) emitLoadElement(n *check.LoadElement, ctx []int) {
	base, ok := em.scope.Resolve(n.Var)
	if !ok {
		em.fail("no slot for %s", n.Var)
		em.ch.Emit(bytecode.OpPushConst, em.ch.Const(0), 0)
		return
	}
	rank := n.View.Rank()
	dyn := make(map[int]check.Expr, len(n.Dyn))
	for _, d := range n.Dyn {
		dyn[d.Axis] = d.X
	}

	fixed := make([]int, rank)
	r := 0
	for axis := 0; axis < rank; axis++ {
		if _, isDyn := dyn[axis]; isDyn {
			fixed[axis] = bytecode.DynAxis
			continue
		}
		if r < len(n.Mapping) {
			fixed[axis] = ctx[n.Mapping[r]]
		} else {
			fixed[axis] = 0
		}
		r++
	}

	if len(dyn) == 0 {
		off := base + n.View.OffsetAt(fixed)
		em.ch.Emit(bytecode.OpLoadVar, off, 0)
		return
	}

	// push dynamic indices in ascending axis order
	axes := make([]int, 0, len(dyn))
	for a := range dyn {
		axes = append(axes, a)
	}
	sort.Ints(axes)
	for _, a := range axes {
		em.emitExpr(dyn[a], ctx)
	}
	idx := em.ch.AddView(&bytecode.StaticView{
		Backing: bytecode.BackState, Base: base, View: n.View, Fixed: fixed,
	})
	em.ch.Emit(bytecode.OpLoadDyn, idx, 0)
}

// emitReduce lowers a reduction over a view of a variable or a
// temporary.
func (em *emitter) emitReduce(n *check.Reduce, ctx []int) {
	var sv *bytecode.StaticView

	switch src := n.Source.(type) {
	case *check.TempSource:
		layout, ok := em.temps[src.ID]
		if !ok {
			em.fail("reduction reads unmaterialized temporary %d", src.ID)
			em.ch.Emit(bytecode.OpPushConst, em.ch.Const(0), 0)
			return
		}
		view := dims.ContiguousSizes(0, layout.sizes)
		fixed := make([]int, len(layout.sizes))
		for i := range fixed {
			fixed[i] = bytecode.IterAxis
		}
		sv = &bytecode.StaticView{
			Backing: bytecode.BackScratch, Base: layout.off, View: view, Fixed: fixed,
		}
	case *check.ViewSource:
		base, ok := em.scope.Resolve(src.Var)
		if !ok {
			em.fail("no slot for %s", src.Var)
			em.ch.Emit(bytecode.OpPushConst, em.ch.Const(0), 0)
			return
		}
		rank := src.View.Rank()
		fixed := make([]int, rank)
		for i := range fixed {
			fixed[i] = bytecode.IterAxis
		}
		var runtimeAxes []int
		dynByAxis := make(map[int]check.Expr)
		for _, d := range src.Dyn {
			if di, isCtx := d.X.(*check.DimIndex); isCtx {
				// context-driven selects bake to constants here
				fixed[d.Axis] = ctx[di.Axis]
				continue
			}
			fixed[d.Axis] = bytecode.DynAxis
			dynByAxis[d.Axis] = d.X
			runtimeAxes = append(runtimeAxes, d.Axis)
		}
		sort.Ints(runtimeAxes)
		for _, a := range runtimeAxes {
			em.emitExpr(dynByAxis[a], ctx)
		}
		sv = &bytecode.StaticView{
			Backing: bytecode.BackState, Base: base, View: src.View, Fixed: fixed,
		}
	}

	viewIdx := em.ch.AddView(sv)
	if n.Op == "rank" {
		if n.N != nil {
			em.emitExpr(n.N, ctx)
		} else {
			em.ch.Emit(bytecode.OpPushConst, em.ch.Const(1), 0)
		}
		em.ch.Emit(bytecode.OpReduceRank, viewIdx, 0)
		return
	}
	em.ch.Emit(bytecode.OpReduce, reduceCodes[string(n.Op)], viewIdx)
}
