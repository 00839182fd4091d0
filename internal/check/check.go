package check

import (
	"strconv"
	"strings"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/parser"
	"github.com/simlin-project/simlin/internal/project"
)

// Model is a checked model: variables with resolved shapes and lowered
// equations, in declaration order.
type Model struct {
	Name   ident.Ident
	Vars   map[ident.Ident]*Var
	Order  []ident.Ident
	GFs    map[ident.Ident]*project.GraphicalFunction
	Errors errors.VarErrors
}

// Project is the checked form of a project, ready for dependency
// resolution and lowering.
type Project struct {
	Specs  project.SimSpecs
	Dims   *dims.Set
	Models map[ident.Ident]*Model
}

// Model returns a checked model by name.
func (p *Project) Model(name ident.Ident) (*Model, bool) {
	m, ok := p.Models[name]
	return m, ok
}

// HasErrors reports whether any model collected diagnostics.
func (p *Project) HasErrors() bool {
	for _, m := range p.Models {
		if m.Errors.HasErrors() {
			return true
		}
	}
	return false
}

// AllErrors flattens per-model errors for reporting.
func (p *Project) AllErrors() errors.VarErrors {
	out := errors.VarErrors{}
	for _, m := range p.Models {
		for name, errs := range m.Errors {
			out[string(m.Name)+"."+name] = errs
		}
	}
	return out
}

// Check validates and lowers a whole project. Errors are collected
// per-variable; the result is a best-effort lowering of everything that
// checked cleanly.
func Check(p *project.Project) (*Project, errors.List) {
	if errs := p.Validate(); errs.HasErrors() {
		return nil, errs
	}

	set := dims.NewSet()
	var projErrs errors.List
	for _, d := range p.Dimensions {
		var dim *dims.Dimension
		var err error
		name := ident.Canonicalize(d.Name)
		if d.IsIndexed() {
			dim, err = dims.NewIndexed(name, d.Size)
		} else {
			dim, err = dims.NewNamed(name, d.Elements)
		}
		if err != nil {
			projErrs = append(projErrs, errors.New(errors.RES002, "%s", err.Error()))
			continue
		}
		if d := set.Add(dim); d != nil {
			projErrs = append(projErrs, d)
		}
	}
	if projErrs.HasErrors() {
		return nil, projErrs
	}
	set.Freeze()

	out := &Project{Specs: p.SimSpecs, Dims: set, Models: make(map[ident.Ident]*Model)}
	for _, m := range p.Models {
		out.Models[m.Name] = checkModel(out, p, m)
	}
	return out, nil
}

type modelChecker struct {
	proj  *Project
	raw   *project.Project
	model *project.Model
	out   *Model

	// lowering state: temps, ctx and errs are reset per equation, while
	// nextTemp keeps counting so temporary ids are unique within the model
	nextTemp int
	temps    []TempAssign
	ctx      Shape
	errs     errors.List
}

func checkModel(proj *Project, raw *project.Project, m *project.Model) *Model {
	mc := &modelChecker{
		proj: proj,
		raw:  raw,
		model: m,
		out: &Model{
			Name:   m.Name,
			Vars:   make(map[ident.Ident]*Var),
			GFs:    make(map[ident.Ident]*project.GraphicalFunction),
			Errors: errors.VarErrors{},
		},
	}
	// pass 1: declare every variable's name, kind, and shape so that
	// equations can reference variables defined later in the model
	for _, v := range m.Variables {
		cv := mc.declareVar(v)
		if cv == nil {
			continue
		}
		mc.out.Vars[cv.Name] = cv
		mc.out.Order = append(mc.out.Order, cv.Name)
	}
	// pass 2: lower equations
	for _, v := range m.Variables {
		mc.lowerVarEquations(v)
	}
	mc.checkStockFlows()
	return mc.out
}

func (mc *modelChecker) declareVar(v project.Variable) *Var {
	name := v.Name()
	switch x := v.(type) {
	case *project.Stock:
		shape, _, errs := mc.shapeOf(project.EquationDims(x.Initial))
		mc.out.Errors.Extend(string(name), errs)
		return &Var{
			Name: name, Kind: KindStock, Shape: shape,
			Inflows:     x.Inflows,
			Outflows:    x.Outflows,
			NonNegative: x.NonNegative,
		}
	case *project.Flow:
		return mc.declareFlowAux(name, KindFlow, x.Equation, x.GF, x.NonNegative)
	case *project.Aux:
		return mc.declareFlowAux(name, KindAux, x.Equation, x.GF, false)
	case *project.Module:
		return mc.checkModule(x)
	}
	return nil
}

func (mc *modelChecker) declareFlowAux(name ident.Ident, kind VarKind, eqn project.Equation, gf *project.GraphicalFunction, nonNeg bool) *Var {
	hasGF := false
	if gf != nil {
		if d := gf.Validate(); d != nil {
			mc.out.Errors.Add(string(name), d)
		} else {
			mc.out.GFs[name] = gf
			hasGF = true
		}
	}
	shape, _, errs := mc.shapeOf(project.EquationDims(eqn))
	mc.out.Errors.Extend(string(name), errs)
	return &Var{Name: name, Kind: kind, Shape: shape, NonNegative: nonNeg, GF: hasGF}
}

func (mc *modelChecker) lowerVarEquations(v project.Variable) {
	name := v.Name()
	cv, ok := mc.out.Vars[name]
	if !ok {
		return
	}
	switch x := v.(type) {
	case *project.Stock:
		initials, _, errs := mc.lowerEquation(name, x.Initial)
		mc.out.Errors.Extend(string(name), errs)
		cv.Initials = initials
	case *project.Flow:
		mc.lowerFlowAux(cv, x.Equation)
	case *project.Aux:
		mc.lowerFlowAux(cv, x.Equation)
	}
}

func (mc *modelChecker) lowerFlowAux(cv *Var, eqn project.Equation) {
	eqns, _, errs := mc.lowerEquation(cv.Name, eqn)
	mc.out.Errors.Extend(string(cv.Name), errs)
	if cv.GF {
		// the equation is the lookup input
		for i := range eqns {
			if eqns[i].Body != nil {
				eqns[i].Body = &Lookup{Var: cv.Name, X: eqns[i].Body}
			}
		}
	}
	cv.Eqns = eqns
	cv.Initials = eqns
}

func (mc *modelChecker) checkModule(x *project.Module) *Var {
	name := x.Name()
	child, ok := mc.raw.Model(x.ModelName)
	if !ok {
		mc.out.Errors.Add(string(name), errors.New(errors.STR004,
			"module references missing model %s", x.ModelName))
		return &Var{Name: name, Kind: KindModule, ModelName: x.ModelName}
	}
	cv := &Var{Name: name, Kind: KindModule, ModelName: x.ModelName}
	for _, ref := range x.References {
		dst := ref.Dst
		// a dst of the form "module.port" names this instance's port
		if i := strings.IndexByte(string(dst), '.'); i >= 0 {
			owner := dst[:i]
			if owner != name {
				mc.out.Errors.Add(string(name), errors.New(errors.STR003,
					"reference destination %s does not belong to module %s", dst, name))
				continue
			}
			dst = dst[i+1:]
		}
		if _, ok := child.Lookup(dst); !ok {
			mc.out.Errors.Add(string(name), errors.New(errors.STR003,
				"model %s has no port %s", x.ModelName, dst))
			continue
		}
		if _, ok := mc.model.Lookup(ref.Src); !ok {
			if _, ok := mc.resolveDotted(ref.Src); !ok {
				mc.out.Errors.Add(string(name), errors.New(errors.STR003,
					"module input %s is not defined", ref.Src))
				continue
			}
		}
		cv.Refs = append(cv.Refs, ModuleRef{Src: ref.Src, Dst: dst})
	}
	return cv
}

// checkStockFlows verifies that every inflow and outflow names a flow.
func (mc *modelChecker) checkStockFlows() {
	for _, name := range mc.out.Order {
		cv := mc.out.Vars[name]
		if cv.Kind != KindStock {
			continue
		}
		for _, f := range append(append([]ident.Ident(nil), cv.Inflows...), cv.Outflows...) {
			fv, ok := mc.out.Vars[f]
			if !ok {
				mc.out.Errors.Add(string(name), errors.New(errors.STR002,
					"stock %s references missing flow %s", name, f))
				continue
			}
			if fv.Kind != KindFlow {
				mc.out.Errors.Add(string(name), errors.New(errors.STR002,
					"stock %s lists %s as a flow, but it is not one", name, f))
			}
		}
	}
}

// shapeOf resolves an equation's dimension names.
func (mc *modelChecker) shapeOf(dimNames []string) (Shape, []*dims.Dimension, errors.List) {
	var errs errors.List
	var ds []*dims.Dimension
	for _, dn := range dimNames {
		d, ok := mc.proj.Dims.Get(ident.Canonicalize(dn))
		if !ok {
			errs = append(errs, errors.New(errors.RES002, "unknown dimension %s", dn))
			continue
		}
		ds = append(ds, d)
	}
	if errs.HasErrors() {
		return nil, nil, errs
	}
	return shapeFromDims(ds), ds, nil
}

func (mc *modelChecker) lowerEquation(name ident.Ident, eqn project.Equation) ([]Eqn, Shape, errors.List) {
	switch e := eqn.(type) {
	case nil:
		return nil, nil, nil
	case project.Scalar:
		if e.Equation == "" {
			return nil, nil, nil
		}
		body, temps, errs := mc.lowerText(e.Equation, nil)
		if body == nil {
			return nil, nil, errs
		}
		return []Eqn{{Offset: -1, Body: body, Temps: temps}}, nil, errs
	case project.ApplyToAll:
		// dimension-resolution errors were reported when the variable was
		// declared
		shape, _, serrs := mc.shapeOf(e.Dimensions)
		if serrs.HasErrors() {
			return nil, nil, nil
		}
		body, temps, errs := mc.lowerText(e.Equation, shape)
		if body == nil {
			return nil, shape, errs
		}
		return []Eqn{{Offset: -1, Body: body, Temps: temps}}, shape, errs
	case project.Arrayed:
		shape, ds, serrs := mc.shapeOf(e.Dimensions)
		if serrs.HasErrors() {
			return nil, nil, nil
		}
		var errs errors.List
		var eqns []Eqn
		for _, el := range e.Elements {
			off, d := mc.elementOffset(ds, el.Subscript)
			if d != nil {
				errs = append(errs, d)
				continue
			}
			body, temps, lerrs := mc.lowerText(el.Equation, nil)
			errs = append(errs, lerrs...)
			if body != nil {
				eqns = append(eqns, Eqn{Offset: off, Body: body, Temps: temps})
			}
		}
		return eqns, shape, errs
	}
	return nil, nil, nil
}

// elementOffset resolves an explicit element's subscript tuple to a flat
// row-major offset.
func (mc *modelChecker) elementOffset(ds []*dims.Dimension, subscript []string) (int, *errors.Diagnostic) {
	if len(subscript) != len(ds) {
		return 0, errors.New(errors.TYP001,
			"element subscript has %d entries for %d dimensions", len(subscript), len(ds))
	}
	off := 0
	for i, d := range ds {
		el := ident.Canonicalize(subscript[i])
		idx, ok := d.ElementOffset(el)
		if !ok {
			n, err := strconv.Atoi(string(el))
			if err != nil || n < 1 || n > d.Len() {
				return 0, errors.New(errors.TYP005,
					"%s is not an element of dimension %s", subscript[i], d.Name)
			}
			idx = n - 1
		}
		off = off*d.Len() + idx
	}
	return off, nil
}

// lowerText parses and lowers one equation string in the given element
// context.
func (mc *modelChecker) lowerText(text string, ctx Shape) (Expr, []TempAssign, errors.List) {
	parsed, errs := parser.Parse(text)
	if errs.HasErrors() || parsed == nil {
		return nil, nil, errs
	}
	mc.ctx = ctx
	mc.temps = nil
	mc.errs = errs
	body := mc.lower(parsed)
	return body, mc.temps, mc.errs
}

func (mc *modelChecker) errorf(code string, loc ast.Loc, format string, args ...interface{}) {
	mc.errs = append(mc.errs, errors.NewAt(code,
		errors.Span{Start: loc.Start, End: loc.End}, format, args...))
}

func (mc *modelChecker) ctxAxis(name ident.Ident) int {
	for i, d := range mc.ctx {
		if d.Name == name {
			return i
		}
	}
	return -1
}
