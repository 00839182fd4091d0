package check

import (
	"math"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/errors"
)

func (mc *modelChecker) lowerApp(n *ast.App) Expr {
	// applying a variable with an attached graphical function is an
	// inline lookup: `effect(x)`
	if _, hasGF := mc.out.GFs[n.Name]; hasGF && !builtins.IsBuiltin(n.Name) {
		if len(n.Args) != 1 {
			mc.errorf(errors.TYP004, n.L, "%s takes 1 argument, got %d", n.Name, len(n.Args))
			return nil
		}
		x := mc.lower(n.Args[0])
		if x == nil {
			return nil
		}
		return &Lookup{Var: n.Name, X: x}
	}

	spec, ok := builtins.Get(n.Name)
	if !ok {
		mc.errorf(errors.RES001, n.L, "unknown function %s", n.Name)
		return nil
	}
	if len(n.Args) < spec.MinArgs || len(n.Args) > spec.MaxArgs {
		mc.errorf(errors.TYP004, n.L, "%s takes %d to %d arguments, got %d",
			n.Name, spec.MinArgs, spec.MaxArgs, len(n.Args))
		return nil
	}

	switch spec.Class {
	case builtins.Time:
		return &TimeRef{Kind: timeKinds[n.Name]}
	case builtins.Stateful:
		// module expansion runs before checking; a surviving stateful
		// call means the expander could not synthesize a module here
		mc.errorf(errors.TYP004, n.L, "%s could not be expanded into a module here", n.Name)
		return nil
	case builtins.Reduction:
		return mc.lowerReduce(n)
	case builtins.Lookup:
		return mc.lowerLookupCall(n)
	}

	// pure builtins
	switch n.Name {
	case "pi":
		return &Const{Value: math.Pi}
	case "inf":
		return &Const{Value: math.Inf(1)}
	case "if_then_else":
		cond := mc.lower(n.Args[0])
		t := mc.lower(n.Args[1])
		f := mc.lower(n.Args[2])
		if cond == nil || t == nil || f == nil {
			return nil
		}
		return &If{Cond: cond, T: t, F: f}
	case "min", "max":
		if len(n.Args) == 1 {
			return mc.lowerReduce(n)
		}
	}

	args := make([]Expr, len(n.Args))
	for i, arg := range n.Args {
		args[i] = mc.lower(arg)
		if args[i] == nil {
			return nil
		}
	}
	return &CallPure{Fn: n.Name, Args: args}
}

func (mc *modelChecker) lowerLookupCall(n *ast.App) Expr {
	target, ok := n.Args[0].(*ast.Var)
	if !ok {
		mc.errorf(errors.TYP004, n.L, "lookup's first argument must name a variable")
		return nil
	}
	if _, hasGF := mc.out.GFs[target.Name]; !hasGF {
		mc.errorf(errors.RT002, n.L, "%s has no graphical function", target.Name)
		return nil
	}
	x := mc.lower(n.Args[1])
	if x == nil {
		return nil
	}
	return &Lookup{Var: target.Name, X: x}
}

// lowerReduce lowers sum/mean/stddev/min/max/size/rank. The argument is
// consumed as a whole array: either directly as a view of a variable, or
// materialized into a temporary first.
func (mc *modelChecker) lowerReduce(n *ast.App) Expr {
	op := n.Name
	arg := n.Args[0]

	var nExpr Expr
	if op == "rank" && len(n.Args) == 2 {
		nExpr = mc.lower(n.Args[1])
		if nExpr == nil {
			return nil
		}
	}

	if vr, ok := mc.asView(arg); ok {
		vr = mc.bindCtxAxes(vr)
		if len(vr.shape()) == 0 {
			mc.errorf(errors.TYP002, n.L, "%s needs an array argument", op)
			return nil
		}
		return &Reduce{Op: op, Source: &ViewSource{Var: vr.varName, View: vr.view, Dyn: vr.dyn}, N: nExpr}
	}
	if mc.errs.HasErrors() {
		return nil
	}

	// materialize the computed array into a scratch temporary
	tempShape, d := mc.inferShape(arg)
	if d != nil {
		mc.errs = append(mc.errs, d)
		return nil
	}
	if tempShape.IsScalar() {
		mc.errorf(errors.TYP002, n.L, "%s needs an array argument", op)
		return nil
	}

	id := mc.nextTemp
	mc.nextTemp++

	outerCtx := mc.ctx
	combined := append(append(Shape{}, outerCtx...), tempShape...)
	mc.ctx = combined
	body := mc.lower(arg)
	mc.ctx = outerCtx
	if body == nil {
		return nil
	}
	mc.temps = append(mc.temps, TempAssign{ID: id, Shape: tempShape, Body: body})
	return &Reduce{Op: op, Source: &TempSource{ID: id}, N: nExpr}
}

// inferShape computes the array shape of an expression without lowering
// it: the unified shape of its leaves, excluding dimensions already bound
// by the element context.
func (mc *modelChecker) inferShape(e ast.Expr) (Shape, *errors.Diagnostic) {
	switch n := e.(type) {
	case *ast.Const:
		return nil, nil
	case *ast.Var:
		if v, ok := mc.out.Vars[n.Name]; ok {
			return mc.dropCtxDims(v.Shape), nil
		}
		return nil, nil
	case *ast.Subscript:
		return mc.inferSubscriptShape(n)
	case *ast.Transpose:
		inner, err := mc.inferShape(n.X)
		if err != nil {
			return nil, err
		}
		out := make(Shape, len(inner))
		for i := range inner {
			out[i] = inner[len(inner)-1-i]
		}
		return out, nil
	case *ast.Op1:
		return mc.inferShape(n.X)
	case *ast.Op2:
		x, err := mc.inferShape(n.X)
		if err != nil {
			return nil, err
		}
		y, err := mc.inferShape(n.Y)
		if err != nil {
			return nil, err
		}
		return unify(x, y)
	case *ast.If:
		t, err := mc.inferShape(n.T)
		if err != nil {
			return nil, err
		}
		f, err := mc.inferShape(n.F)
		if err != nil {
			return nil, err
		}
		return unify(t, f)
	case *ast.App:
		if spec, ok := builtins.Get(n.Name); ok && spec.Class == builtins.Pure {
			var out Shape
			for _, arg := range n.Args {
				s, err := mc.inferShape(arg)
				if err != nil {
					return nil, err
				}
				u, err := unify(out, s)
				if err != nil {
					return nil, err
				}
				out = u
			}
			return out, nil
		}
		return nil, nil
	}
	return nil, nil
}

func (mc *modelChecker) dropCtxDims(s Shape) Shape {
	var out Shape
	for _, d := range s {
		if mc.ctxAxis(d.Name) >= 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (mc *modelChecker) inferSubscriptShape(n *ast.Subscript) (Shape, *errors.Diagnostic) {
	v, ok := mc.out.Vars[n.Base]
	if !ok || v.Shape.IsScalar() || len(n.Args) != len(v.Shape) {
		return nil, nil
	}
	var out Shape
	for i, arg := range n.Args {
		dimName := v.Shape[i].Name
		axisDim, hasDim := mc.proj.Dims.Get(dimName)
		switch a := arg.(type) {
		case *ast.SubWildcard:
			out = append(out, ShapeDim{Size: v.Shape[i].Size, Indexed: true})
		case *ast.SubStarRange:
			if sub, ok := mc.proj.Dims.Get(a.Dim); ok {
				out = append(out, ShapeDim{Name: a.Dim, Size: sub.Len()})
			}
		case *ast.SubRange:
			lo, okLo := mc.staticIndex(a.Lo, axisDim, hasDim)
			hi, okHi := mc.staticIndex(a.Hi, axisDim, hasDim)
			if okLo && okHi && hi >= lo {
				out = append(out, ShapeDim{Size: hi - lo + 1, Indexed: true})
			}
		case *ast.SubExpr:
			if vn, isVar := a.X.(*ast.Var); isVar && vn.Name == dimName {
				if mc.ctxAxis(dimName) < 0 {
					out = append(out, v.Shape[i])
				}
			}
			// element names, constants, and dynamic indices consume the axis
		case *ast.SubDimPosition:
			out = append(out, v.Shape[i])
		}
	}
	return out, nil
}
