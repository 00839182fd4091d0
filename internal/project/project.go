// Package project defines the engine's public model type: a declarative
// description of stock-and-flow models, dimensions, and simulation specs.
//
// A Project owns Models, which own Variables, which own Equations. The
// compiler consumes this structure and never mutates it.
package project

import (
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// MainModel is the conventional name of the top-level entry model.
const MainModel ident.Ident = "main"

// SimMethod selects the numerical integration method.
type SimMethod int

const (
	Euler SimMethod = iota
	RK4
)

func (m SimMethod) String() string {
	if m == RK4 {
		return "rk4"
	}
	return "euler"
}

// SimSpecs are a project's simulation parameters.
type SimSpecs struct {
	Start     float64
	Stop      float64
	DT        float64
	SaveStep  float64 // 0 means save every dt
	Method    SimMethod
	TimeUnits string
}

// SaveEvery returns the effective save interval.
func (s SimSpecs) SaveEvery() float64 {
	if s.SaveStep > 0 {
		return s.SaveStep
	}
	return s.DT
}

// Validate checks the simulation spec invariants.
func (s SimSpecs) Validate() *errors.Diagnostic {
	if s.Stop < s.Start {
		return errors.New(errors.STR005, "stop time %g is before start time %g", s.Stop, s.Start)
	}
	if s.DT <= 0 {
		return errors.New(errors.STR005, "dt must be positive, got %g", s.DT)
	}
	return nil
}

// Dimension is the declarative form of a dimension: indexed (Size > 0) or
// named (Elements non-empty).
type Dimension struct {
	Name     string
	Size     int
	Elements []string
}

// IsIndexed reports whether the dimension is indexed rather than named.
func (d Dimension) IsIndexed() bool { return len(d.Elements) == 0 }

// Equation is one of three shapes: scalar, apply-to-all, or explicit
// arrayed. The zero value of Scalar with an empty string is "no equation".
type Equation interface {
	isEquation()
	// Arrayed reports whether the equation defines an arrayed variable.
	Arrayed() bool
}

// Scalar is a plain single equation.
type Scalar struct {
	Equation string
}

// ApplyToAll applies one equation to every element across the named
// dimensions.
type ApplyToAll struct {
	Dimensions []string
	Equation   string
}

// Arrayed gives one equation per subscript tuple.
type Arrayed struct {
	Dimensions []string
	Elements   []Element
}

// Element is a single subscript's equation in an Arrayed equation.
type Element struct {
	Subscript []string
	Equation  string
}

func (Scalar) isEquation()     {}
func (ApplyToAll) isEquation() {}
func (Arrayed) isEquation()    {}

func (Scalar) Arrayed() bool     { return false }
func (ApplyToAll) Arrayed() bool { return true }
func (Arrayed) Arrayed() bool    { return true }

// EquationDims returns the dimension names of an arrayed equation, nil for
// scalars.
func EquationDims(eqn Equation) []string {
	switch e := eqn.(type) {
	case ApplyToAll:
		return e.Dimensions
	case Arrayed:
		return e.Dimensions
	}
	return nil
}

// Variable is the tagged union over stock, flow, auxiliary, and module.
type Variable interface {
	isVariable()
	Name() ident.Ident
	Doc() string
	Units() string
}

// Common holds the attributes shared by every variable kind.
type Common struct {
	Ident         ident.Ident
	Documentation string
	UnitsString   string
	Errors        errors.List
}

func (c *Common) Name() ident.Ident { return c.Ident }
func (c *Common) Doc() string       { return c.Documentation }
func (c *Common) Units() string     { return c.UnitsString }

// Stock is a state variable integrated over time from its flows.
type Stock struct {
	Common
	Initial     Equation
	Inflows     []ident.Ident
	Outflows    []ident.Ident
	NonNegative bool
}

// Flow is a rate added to or subtracted from stocks each step.
type Flow struct {
	Common
	Equation    Equation
	GF          *GraphicalFunction
	NonNegative bool
}

// Aux is a named intermediate quantity.
type Aux struct {
	Common
	Equation Equation
	GF       *GraphicalFunction
}

// Ref connects a parent variable to a module port.
type Ref struct {
	Src ident.Ident
	Dst ident.Ident
}

// Module instantiates another model as a sub-model.
type Module struct {
	Common
	ModelName  ident.Ident
	References []Ref
}

func (*Stock) isVariable()  {}
func (*Flow) isVariable()   {}
func (*Aux) isVariable()    {}
func (*Module) isVariable() {}

// Model is a named collection of variables.
type Model struct {
	Name      ident.Ident
	Variables []Variable
}

// Lookup finds a variable by canonical name.
func (m *Model) Lookup(name ident.Ident) (Variable, bool) {
	for _, v := range m.Variables {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// Project is the root of the data model.
type Project struct {
	Name       string
	SimSpecs   SimSpecs
	Dimensions []Dimension
	Models     []*Model
	Source     []byte
}

// Model finds a model by name.
func (p *Project) Model(name ident.Ident) (*Model, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Validate checks project-level invariants: sim specs are sane, a main
// model exists, and every module reference resolves.
func (p *Project) Validate() errors.List {
	var errs errors.List
	if d := p.SimSpecs.Validate(); d != nil {
		errs = append(errs, d)
	}
	if _, ok := p.Model(MainModel); !ok {
		errs = append(errs, errors.New(errors.STR004, "project has no %q model", MainModel))
	}
	for _, m := range p.Models {
		seen := make(map[ident.Ident]bool)
		for _, v := range m.Variables {
			if seen[v.Name()] {
				errs = append(errs, errors.New(errors.RES003,
					"model %s: duplicate variable %s", m.Name, v.Name()))
			}
			seen[v.Name()] = true
			if mod, ok := v.(*Module); ok {
				if _, ok := p.Model(mod.ModelName); !ok {
					errs = append(errs, errors.New(errors.STR004,
						"module %s references missing model %s", mod.Name(), mod.ModelName))
				}
			}
		}
	}
	return errs
}

// Clone deep-copies the project. The LTM transform and module expansion
// work on clones so the caller's project is never mutated.
func (p *Project) Clone() *Project {
	out := &Project{
		Name:     p.Name,
		SimSpecs: p.SimSpecs,
	}
	out.Dimensions = append([]Dimension(nil), p.Dimensions...)
	for i := range out.Dimensions {
		out.Dimensions[i].Elements = append([]string(nil), p.Dimensions[i].Elements...)
	}
	out.Source = append([]byte(nil), p.Source...)
	for _, m := range p.Models {
		out.Models = append(out.Models, cloneModel(m))
	}
	return out
}

func cloneModel(m *Model) *Model {
	out := &Model{Name: m.Name}
	for _, v := range m.Variables {
		out.Variables = append(out.Variables, CloneVariable(v))
	}
	return out
}

// CloneVariable deep-copies a single variable.
func CloneVariable(v Variable) Variable {
	switch x := v.(type) {
	case *Stock:
		out := *x
		out.Initial = cloneEquation(x.Initial)
		out.Inflows = append([]ident.Ident(nil), x.Inflows...)
		out.Outflows = append([]ident.Ident(nil), x.Outflows...)
		out.Errors = nil
		return &out
	case *Flow:
		out := *x
		out.Equation = cloneEquation(x.Equation)
		out.GF = x.GF.Clone()
		out.Errors = nil
		return &out
	case *Aux:
		out := *x
		out.Equation = cloneEquation(x.Equation)
		out.GF = x.GF.Clone()
		out.Errors = nil
		return &out
	case *Module:
		out := *x
		out.References = append([]Ref(nil), x.References...)
		out.Errors = nil
		return &out
	}
	return nil
}

func cloneEquation(eqn Equation) Equation {
	switch e := eqn.(type) {
	case ApplyToAll:
		e.Dimensions = append([]string(nil), e.Dimensions...)
		return e
	case Arrayed:
		e.Dimensions = append([]string(nil), e.Dimensions...)
		elements := make([]Element, len(e.Elements))
		for i, el := range e.Elements {
			elements[i] = Element{
				Subscript: append([]string(nil), el.Subscript...),
				Equation:  el.Equation,
			}
		}
		e.Elements = elements
		return e
	}
	return eqn
}
