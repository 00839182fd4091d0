package check

import (
	"strings"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

// lower rewrites an untyped expression into the scalar-per-element checked
// form, assigning array bounds and extracting temporaries as it goes.
func (mc *modelChecker) lower(e ast.Expr) Expr {
	switch n := e.(type) {
	case *ast.Const:
		return &Const{Value: n.Value}
	case *ast.Var:
		return mc.lowerVar(n)
	case *ast.Subscript, *ast.Transpose:
		return mc.lowerViewExpr(e)
	case *ast.Op1:
		x := mc.lower(n.X)
		if x == nil {
			return nil
		}
		if n.Op == ast.Positive {
			return x
		}
		return &Op1{Op: n.Op, X: x}
	case *ast.Op2:
		x := mc.lower(n.X)
		y := mc.lower(n.Y)
		if x == nil || y == nil {
			return nil
		}
		return &Op2{Op: n.Op, X: x, Y: y}
	case *ast.If:
		cond := mc.lower(n.Cond)
		t := mc.lower(n.T)
		f := mc.lower(n.F)
		if cond == nil || t == nil || f == nil {
			return nil
		}
		return &If{Cond: cond, T: t, F: f}
	case *ast.App:
		return mc.lowerApp(n)
	}
	return nil
}

func (mc *modelChecker) lowerVar(n *ast.Var) Expr {
	name := n.Name

	// a bare dimension name inside an apply-to-all equation evaluates to
	// the current 1-based element index
	if axis := mc.ctxAxis(name); axis >= 0 {
		return &DimIndex{Axis: axis}
	}
	if _, isDim := mc.proj.Dims.Get(name); isDim {
		mc.errorf(errors.TYP001, n.L, "dimension %s used outside an arrayed equation", name)
		return nil
	}

	if kind, ok := timeKinds[name]; ok {
		return &TimeRef{Kind: kind}
	}
	if spec, ok := builtins.Get(name); ok && spec.MinArgs == 0 {
		return mc.lowerApp(&ast.App{Name: name, L: n.L})
	}

	v, ok := mc.out.Vars[name]
	if !ok {
		if _, ok := mc.resolveDotted(name); ok {
			return &LoadScalar{Var: name}
		}
		mc.errorf(errors.RES001, n.L, "unknown identifier %s", name)
		return nil
	}
	if v.Shape.IsScalar() {
		return &LoadScalar{Var: name}
	}
	// an arrayed variable used bare: match its dimensions into the
	// element context
	return mc.alignView(n.L, &viewRef{varName: name, view: mc.varViewWithNames(v)}, name)
}

var timeKinds = map[ident.Ident]TimeKind{
	"time":      TimeNow,
	"dt":        TimeDT,
	"timestep":  TimeDT,
	"starttime": TimeStart,
	"stoptime":  TimeStop,
}

// resolveDotted resolves a module-qualified identifier like
// "smoother.output" to the variable it names. Only scalar results are
// addressable this way.
func (mc *modelChecker) resolveDotted(name ident.Ident) (*Var, bool) {
	s := string(name)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return nil, false
	}
	modName := ident.Ident(s[:i])
	rest := ident.Ident(s[i+1:])
	mod, ok := mc.out.Vars[modName]
	if !ok || mod.Kind != KindModule {
		// the module may appear later in declaration order
		raw, ok := mc.model.Lookup(modName)
		if !ok {
			return nil, false
		}
		m, isMod := raw.(*project.Module)
		if !isMod {
			return nil, false
		}
		mod = &Var{Name: modName, Kind: KindModule, ModelName: m.ModelName}
	}
	child, ok := mc.raw.Model(mod.ModelName)
	if !ok {
		return nil, false
	}
	if j := strings.IndexByte(string(rest), '.'); j >= 0 {
		// nested module paths resolve one level at a time
		inner, ok := child.Lookup(ident.Ident(string(rest)[:j]))
		if !ok {
			return nil, false
		}
		if _, isMod := inner.(*project.Module); !isMod {
			return nil, false
		}
		return &Var{Name: name, Kind: KindAux}, true
	}
	if _, ok := child.Lookup(rest); !ok {
		return nil, false
	}
	return &Var{Name: name, Kind: KindAux}, true
}
