package check

import (
	"math"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// viewRef is a partially applied array access: a variable, the static view
// transforms already applied, and any subscript indices that must be
// evaluated at run time.
type viewRef struct {
	varName ident.Ident
	view    *dims.View
	dyn     []DynSel
}

// dynAxes returns the set of view axes consumed by runtime selects.
func (vr *viewRef) dynAxes() map[int]bool {
	if len(vr.dyn) == 0 {
		return nil
	}
	out := make(map[int]bool, len(vr.dyn))
	for _, d := range vr.dyn {
		out[d.Axis] = true
	}
	return out
}

// shape returns the logical result shape: the view's axes minus those
// consumed by runtime selects.
func (vr *viewRef) shape() Shape {
	dyn := vr.dynAxes()
	out := make(Shape, 0, len(vr.view.Axes))
	for i, ax := range vr.view.Axes {
		if dyn[i] {
			continue
		}
		sd := ShapeDim{Name: ax.Name, Size: ax.Size}
		if ax.Name == "" {
			sd.Indexed = true
		}
		out = append(out, sd)
	}
	return out
}

// varViewWithNames builds the dense whole-variable view (relative to the
// variable's base offset), with axes carrying their dimension names for
// context matching.
func (mc *modelChecker) varViewWithNames(v *Var) *dims.View {
	view := dims.ContiguousSizes(0, v.Shape.Sizes())
	for i := range view.Axes {
		view.Axes[i].Name = v.Shape[i].Name
	}
	return view
}

// asView lowers an expression that denotes an array tile: a bare arrayed
// variable, a subscript, or a transpose of one.
func (mc *modelChecker) asView(e ast.Expr) (*viewRef, bool) {
	switch n := e.(type) {
	case *ast.Var:
		v, ok := mc.out.Vars[n.Name]
		if !ok || v.Shape.IsScalar() {
			return nil, false
		}
		return &viewRef{varName: n.Name, view: mc.varViewWithNames(v)}, true
	case *ast.Subscript:
		return mc.lowerSubscript(n)
	case *ast.Transpose:
		vr, ok := mc.asView(n.X)
		if !ok {
			return nil, false
		}
		if len(vr.dyn) > 0 {
			mc.errorf(errors.TYP001, n.L, "cannot transpose a dynamically subscripted view")
			return nil, false
		}
		vr.view = vr.view.Transpose()
		return vr, true
	}
	return nil, false
}

// lowerViewExpr lowers a subscript or transpose appearing in expression
// position: the result is either a scalar element load or a
// context-aligned array load.
func (mc *modelChecker) lowerViewExpr(e ast.Expr) Expr {
	vr, ok := mc.asView(e)
	if !ok {
		if len(mc.errs) == 0 {
			mc.errorf(errors.TYP002, exprLoc(e), "expression is not an array")
		}
		return nil
	}
	return mc.alignView(exprLoc(e), vr, vr.varName)
}

func exprLoc(e ast.Expr) ast.Loc {
	if e == nil {
		return ast.Loc{}
	}
	return e.Loc()
}

// alignView maps a view's remaining axes into the current element context,
// producing a per-element load.
func (mc *modelChecker) alignView(loc ast.Loc, vr *viewRef, name ident.Ident) Expr {
	if vr.view.Rank() == 0 {
		if len(vr.dyn) == 0 {
			return &LoadElement{Var: vr.varName, View: vr.view}
		}
		return &LoadElement{Var: vr.varName, View: vr.view, Dyn: vr.dyn}
	}
	if mc.ctx.IsScalar() {
		mc.errorf(errors.TYP003, loc, "%s is an array where a scalar is required", name)
		return nil
	}
	src := vr.shape()
	for i := range src {
		if dim, ok := mc.proj.Dims.Get(src[i].Name); ok && dim.IsIndexed() {
			src[i].Indexed = true
		}
	}
	mapping, d := match(src, mc.ctx)
	if d != nil {
		mc.errs = append(mc.errs, &errors.Diagnostic{
			Code: d.Code, Message: d.Message,
			Span: errors.Span{Start: loc.Start, End: loc.End},
		})
		return nil
	}
	return &LoadElement{Var: vr.varName, View: vr.view, Dyn: vr.dyn, Mapping: mapping}
}

// lowerSubscript applies a subscript list to an arrayed variable,
// producing static view transforms where possible and dynamic selects
// otherwise.
func (mc *modelChecker) lowerSubscript(n *ast.Subscript) (*viewRef, bool) {
	v, ok := mc.out.Vars[n.Base]
	if !ok {
		mc.errorf(errors.RES001, n.L, "unknown identifier %s", n.Base)
		return nil, false
	}
	if v.Shape.IsScalar() {
		mc.errorf(errors.TYP002, n.L, "%s is not an array and cannot be subscripted", n.Base)
		return nil, false
	}
	if len(n.Args) != len(v.Shape) {
		mc.errorf(errors.TYP001, n.L, "%s has %d dimensions but %d subscripts",
			n.Base, len(v.Shape), len(n.Args))
		return nil, false
	}

	// an all-@ subscript is a pure axis reordering
	if _, isPos := n.Args[0].(*ast.SubDimPosition); isPos {
		return mc.lowerDimPositions(n, v)
	}

	view := mc.varViewWithNames(v)
	type action struct {
		drop   bool
		sel    int
		dyn    Expr
		lo, hi int
		ranged bool
		wild   bool
		mask   ident.Ident // star-range subdimension
	}
	actions := make([]action, len(n.Args))

	for i, arg := range n.Args {
		d := mc.proj.Dims
		axisDim, hasDim := d.Get(v.Shape[i].Name)
		switch a := arg.(type) {
		case *ast.SubDimPosition:
			mc.errorf(errors.TYP001, n.L, "@ positions cannot be mixed with other subscript elements")
			return nil, false
		case *ast.SubWildcard:
			// keep the axis, but detach it from its dimension name: `a[*]`
			// always means the whole extent, even when the surrounding
			// equation iterates that dimension
			actions[i].wild = true
		case *ast.SubStarRange:
			if !hasDim || !d.IsSubdimension(a.Dim, v.Shape[i].Name) {
				mc.errorf(errors.TYP006, n.L, "%s is not a subdimension of %s", a.Dim, v.Shape[i].Name)
				return nil, false
			}
			actions[i].mask = a.Dim
		case *ast.SubRange:
			lo, okLo := mc.staticIndex(a.Lo, axisDim, hasDim)
			hi, okHi := mc.staticIndex(a.Hi, axisDim, hasDim)
			if !okLo || !okHi {
				mc.errorf(errors.TYP005, n.L, "range bounds must be constant indices or element names")
				return nil, false
			}
			actions[i].ranged = true
			actions[i].lo, actions[i].hi = lo, hi
		case *ast.SubExpr:
			if vn, isVar := a.X.(*ast.Var); isVar {
				// the axis's own dimension name acts as a wildcard that
				// matches the context by name
				if vn.Name == v.Shape[i].Name {
					continue
				}
				if hasDim {
					if idx, ok := axisDim.ElementOffset(vn.Name); ok {
						actions[i].drop = true
						actions[i].sel = idx
						continue
					}
				}
			}
			if idx, ok := constIndex(a.X); ok {
				if idx < 1 || idx > v.Shape[i].Size {
					mc.errorf(errors.TYP005, n.L, "index %d out of range for dimension of size %d",
						idx, v.Shape[i].Size)
					return nil, false
				}
				actions[i].drop = true
				actions[i].sel = idx - 1
				continue
			}
			x := mc.lower(a.X)
			if x == nil {
				return nil, false
			}
			actions[i].dyn = x
		}
	}

	// apply static transforms from the last axis to the first so that
	// dropped axes do not shift the indices of earlier ones
	vr := &viewRef{varName: n.Base}
	var err error
	for i := len(actions) - 1; i >= 0; i-- {
		act := actions[i]
		switch {
		case act.drop:
			view, err = view.Select(i, act.sel)
		case act.ranged:
			view, err = view.Range(i, act.lo-1, act.hi-1)
		case act.mask != "":
			mask, _ := mc.proj.Dims.SubdimensionMask(act.mask, v.Shape[i].Name)
			view, err = view.StarRange(i, act.mask, mask)
		}
		if err != nil {
			mc.errorf(errors.TYP005, n.L, "%s", err.Error())
			return nil, false
		}
	}
	// dynamic selects address the post-static view; compute surviving
	// axis positions
	pos := 0
	for _, act := range actions {
		if act.drop {
			continue
		}
		if act.dyn != nil {
			vr.dyn = append(vr.dyn, DynSel{Axis: pos, X: act.dyn})
			// a dynamically indexed axis is consumed; its dimension name
			// must not take part in any later context binding
			view.Axes[pos].Name = ""
		}
		if act.wild {
			view.Axes[pos].Name = ""
		}
		pos++
	}
	vr.view = view
	return vr, true
}

// lowerDimPositions handles all-@ subscripts: a permutation of the axes.
func (mc *modelChecker) lowerDimPositions(n *ast.Subscript, v *Var) (*viewRef, bool) {
	perm := make([]int, len(n.Args))
	seen := make([]bool, len(n.Args))
	for i, arg := range n.Args {
		p, ok := arg.(*ast.SubDimPosition)
		if !ok {
			mc.errorf(errors.TYP001, n.L, "@ positions cannot be mixed with other subscript elements")
			return nil, false
		}
		if p.N < 1 || p.N > len(n.Args) || seen[p.N-1] {
			mc.errorf(errors.TYP005, n.L, "@%d is not a valid dimension position here", p.N)
			return nil, false
		}
		seen[p.N-1] = true
		perm[i] = p.N - 1
	}
	return &viewRef{varName: n.Base, view: mc.varViewWithNames(v).Reorder(perm)}, true
}

// staticIndex resolves a range bound: an integer constant or an element
// name of the axis's dimension. Returns a 1-based index.
func (mc *modelChecker) staticIndex(e ast.Expr, d *dims.Dimension, hasDim bool) (int, bool) {
	if idx, ok := constIndex(e); ok {
		return idx, true
	}
	if vn, isVar := e.(*ast.Var); isVar && hasDim {
		if idx, ok := d.ElementOffset(vn.Name); ok {
			return idx + 1, true
		}
	}
	return 0, false
}

func constIndex(e ast.Expr) (int, bool) {
	c, ok := e.(*ast.Const)
	if !ok {
		return 0, false
	}
	if c.Value != math.Trunc(c.Value) {
		return 0, false
	}
	return int(c.Value), true
}

// bindCtxAxes turns view axes named after a context dimension into
// run-time selects driven by the current element index. Inside an
// apply-to-all equation, `sum(a[location, *])` reduces the current
// location's row, not the whole array.
func (mc *modelChecker) bindCtxAxes(vr *viewRef) *viewRef {
	if mc.ctx.IsScalar() {
		return vr
	}
	already := vr.dynAxes()
	for i := len(vr.view.Axes) - 1; i >= 0; i-- {
		if already[i] {
			continue
		}
		if axis := mc.ctxAxis(vr.view.Axes[i].Name); axis >= 0 {
			vr.dyn = append(vr.dyn, DynSel{Axis: i, X: &DimIndex{Axis: axis}})
		}
	}
	return vr
}
