// Package compiler lowers a checked project into the executable artifact:
// absolute state-vector offsets, flattened runlists, scratch layout for
// temporaries, and the bytecode chunks the VM executes.
//
// Module instances are flattened at compile time: every variable of every
// instance gets its own slot in one state vector, and port connections
// become copy steps. References resolve to offsets; no pointer graphs
// survive into the runtime.
package compiler

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/simlin-project/simlin/internal/bytecode"
	"github.com/simlin-project/simlin/internal/check"
	"github.com/simlin-project/simlin/internal/deps"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

// Reserved state-vector slots. Variable offsets start at FirstVarOff.
const (
	TimeOff     = 0
	DTOff       = 1
	InitialOff  = 2
	FinalOff    = 3
	FirstVarOff = 4
)

// Scope is one flattened model instance: the resolution environment for
// the variables compiled inside it.
type Scope struct {
	// Prefix is the dotted instance path, empty for the root model.
	Prefix string
	// Offsets maps instance-local (possibly dotted) variable names to
	// absolute state offsets.
	Offsets map[ident.Ident]int
	// TempOffsets maps the instance's temporary ids into the scratch
	// region.
	TempOffsets map[int]int
	// GFs are the instance's graphical functions by local name.
	GFs map[ident.Ident]*project.GraphicalFunction
}

// Resolve returns the absolute offset of an instance-local identifier.
func (s *Scope) Resolve(name ident.Ident) (int, bool) {
	off, ok := s.Offsets[name]
	return off, ok
}

// StepKind tags a runlist step.
type StepKind int

const (
	// StepEval evaluates a variable's equations into its slots.
	StepEval StepKind = iota
	// StepCopy copies a module port: parent source to child input.
	StepCopy
)

// Step is one entry of a flattened runlist.
type Step struct {
	Kind StepKind

	// StepEval fields.
	Var    *check.Var
	Scope  *Scope
	Offset int // absolute base of the variable's slots
	// Init selects the variable's initial-value equations.
	Init bool

	// StepCopy fields.
	Src, Dst, Size int
}

// StockSpec drives the integrator for one (possibly arrayed) stock.
type StockSpec struct {
	Name        string
	Offset      int
	Size        int
	InflowOffs  []int
	OutflowOffs []int
	NonNegative bool
}

// ModuleRecord describes one flattened module instance.
type ModuleRecord struct {
	Name   string // dotted instance path
	Model  ident.Ident
	Offset int // base of the instance's first slot
	Ports  map[ident.Ident]int
}

// Column is one saved variable in Results.
type Column struct {
	Name   string
	Offset int
	Size   int
}

// CompiledProject is the immutable executable artifact.
type CompiledProject struct {
	Specs   project.SimSpecs
	NSlots  int
	Offsets map[string]int

	Initials []Step
	Flows    []Step
	Stocks   []StockSpec
	Modules  []ModuleRecord

	TempSize int
	Columns  []Column

	// Bytecode for the VM: one chunk per runlist.
	InitialsCode *bytecode.Chunk
	FlowsCode    *bytecode.Chunk
}

// Compile lowers a checked project rooted at its main model.
func Compile(cp *check.Project) (*CompiledProject, errors.List) {
	if cp.HasErrors() {
		var errs errors.List
		for name, l := range cp.AllErrors() {
			for _, d := range l {
				errs = append(errs, errors.New(d.Code, "%s: %s", name, d.Message))
			}
		}
		return nil, errs
	}
	root, ok := cp.Model(project.MainModel)
	if !ok {
		return nil, errors.List{errors.New(errors.STR004, "project has no %q model", project.MainModel)}
	}

	c := &compiler{
		proj:    cp,
		out:     &CompiledProject{Specs: cp.Specs, Offsets: make(map[string]int)},
		nextOff: FirstVarOff,
	}
	_, initials, flows, errs := c.flatten(root, "", nil, nil)
	if errs.HasErrors() {
		return nil, errs
	}
	c.out.Initials = initials
	c.out.Flows = flows
	c.out.NSlots = c.nextOff
	c.out.TempSize = c.nextTemp
	c.buildColumns()

	logrus.WithFields(logrus.Fields{
		"slots":    c.out.NSlots,
		"initials": len(initials),
		"flows":    len(flows),
		"stocks":   len(c.out.Stocks),
		"scratch":  c.out.TempSize,
	}).Debug("compiled project")

	if errs := c.emit(); errs.HasErrors() {
		return nil, errs
	}
	return c.out, nil
}

type compiler struct {
	proj     *check.Project
	out      *CompiledProject
	nextOff  int
	nextTemp int
	varSizes map[string]int
}

// flatten assigns offsets for one model instance and builds its runlist
// steps. boundPorts names the instance's port variables whose values the
// parent writes; their evaluation steps are omitted.
func (c *compiler) flatten(m *check.Model, prefix string, stack []ident.Ident, boundPorts map[ident.Ident]bool) (*Scope, []Step, []Step, errors.List) {
	for _, s := range stack {
		if s == m.Name {
			return nil, nil, nil, errors.List{errors.New(errors.STR004,
				"module recursion: model %s instantiates itself", m.Name)}
		}
	}
	stack = append(stack, m.Name)

	rl, rerrs := deps.Resolve(m)
	if rerrs.HasErrors() {
		return nil, nil, nil, rerrs
	}

	scope := &Scope{
		Prefix:      prefix,
		Offsets:     make(map[ident.Ident]int),
		TempOffsets: make(map[int]int),
		GFs:         m.GFs,
	}
	if c.varSizes == nil {
		c.varSizes = make(map[string]int)
	}

	// slot assignment follows declaration order so layouts are stable
	for _, name := range m.Order {
		v := m.Vars[name]
		if v.Kind == check.KindModule {
			continue
		}
		off := c.nextOff
		c.nextOff += v.Size()
		scope.Offsets[name] = off
		qname := qualify(prefix, name)
		c.out.Offsets[qname] = off
		c.varSizes[qname] = v.Size()
	}

	// scratch slots for this instance's temporaries
	for _, name := range m.Order {
		v := m.Vars[name]
		for _, eqns := range [][]check.Eqn{v.Initials, v.Eqns} {
			for _, eqn := range eqns {
				for _, tmp := range eqn.Temps {
					if _, done := scope.TempOffsets[tmp.ID]; !done {
						scope.TempOffsets[tmp.ID] = c.nextTemp
						c.nextTemp += tmp.Shape.Size()
					}
				}
			}
		}
	}

	// recurse into module instances
	type instance struct {
		v        *check.Var
		initials []Step
		flows    []Step
		scope    *Scope
	}
	instances := make(map[ident.Ident]*instance)
	for _, name := range m.Order {
		v := m.Vars[name]
		if v.Kind != check.KindModule {
			continue
		}
		child, ok := c.proj.Model(v.ModelName)
		if !ok {
			return nil, nil, nil, errors.List{errors.New(errors.STR004,
				"module %s references missing model %s", name, v.ModelName)}
		}
		bound := make(map[ident.Ident]bool, len(v.Refs))
		for _, ref := range v.Refs {
			bound[ref.Dst] = true
		}
		childPrefix := qualify(prefix, name)
		base := c.nextOff
		childScope, childInit, childFlows, errs := c.flatten(child, childPrefix, stack, bound)
		if errs.HasErrors() {
			return nil, nil, nil, errs
		}
		instances[name] = &instance{v: v, initials: childInit, flows: childFlows, scope: childScope}

		ports := make(map[ident.Ident]int)
		for _, ref := range v.Refs {
			if off, ok := childScope.Offsets[ref.Dst]; ok {
				ports[ref.Dst] = off
			}
		}
		c.out.Modules = append(c.out.Modules, ModuleRecord{
			Name: childPrefix, Model: v.ModelName, Offset: base, Ports: ports,
		})

		// expose the child's variables to this scope as dotted names
		for local, off := range childScope.Offsets {
			scope.Offsets[ident.Ident(string(name)+"."+string(local))] = off
		}
	}

	// port copy steps for one module instance
	portCopies := func(inst *instance) []Step {
		var out []Step
		for _, ref := range inst.v.Refs {
			src, okSrc := scope.Resolve(ref.Src)
			dst, okDst := inst.scope.Resolve(ref.Dst)
			if !okSrc || !okDst {
				continue
			}
			size := 1
			if s, ok := c.varSizes[qualify(inst.scope.Prefix, ref.Dst)]; ok {
				size = s
			}
			out = append(out, Step{Kind: StepCopy, Src: src, Dst: dst, Size: size})
		}
		return out
	}

	// interleave each child's steps at the module's position in the
	// parent's dependency order
	buildList := func(order []ident.Ident, forInitials bool) []Step {
		var out []Step
		for _, name := range order {
			v := m.Vars[name]
			if v.Kind == check.KindModule {
				inst := instances[name]
				if inst == nil {
					continue
				}
				out = append(out, portCopies(inst)...)
				if forInitials {
					out = append(out, inst.initials...)
				} else {
					out = append(out, inst.flows...)
				}
				continue
			}
			if boundPorts[name] {
				continue
			}
			out = append(out, Step{
				Kind: StepEval, Var: v, Scope: scope,
				Offset: scope.Offsets[name], Init: forInitials,
			})
		}
		return out
	}

	initials := buildList(rl.Initials, true)
	flows := buildList(rl.Flows, false)

	// stock specs resolve their flow offsets in this scope
	for _, name := range rl.Stocks {
		v := m.Vars[name]
		spec := StockSpec{
			Name:        qualify(prefix, name),
			Offset:      scope.Offsets[name],
			Size:        v.Size(),
			NonNegative: v.NonNegative,
		}
		for _, f := range v.Inflows {
			if off, ok := scope.Resolve(f); ok {
				spec.InflowOffs = append(spec.InflowOffs, off)
			}
		}
		for _, f := range v.Outflows {
			if off, ok := scope.Resolve(f); ok {
				spec.OutflowOffs = append(spec.OutflowOffs, off)
			}
		}
		c.out.Stocks = append(c.out.Stocks, spec)
	}

	return scope, initials, flows, nil
}

func qualify(prefix string, name ident.Ident) string {
	if prefix == "" {
		return string(name)
	}
	return prefix + "." + string(name)
}

func (c *compiler) buildColumns() {
	names := make([]string, 0, len(c.out.Offsets))
	for name := range c.out.Offsets {
		names = append(names, name)
	}
	sort.Strings(names)
	c.out.Columns = append(c.out.Columns, Column{Name: "time", Offset: TimeOff, Size: 1})
	for _, name := range names {
		if strings.Contains(name, ident.SyntheticPrefix) {
			continue
		}
		c.out.Columns = append(c.out.Columns, Column{
			Name: name, Offset: c.out.Offsets[name], Size: c.varSizes[name],
		})
	}
}
