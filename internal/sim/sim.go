// Package sim drives compiled projects through time: the compile pipeline
// entry point, the Euler and RK4 integrators, and the Results buffer.
//
// A Simulation owns all of its mutable state; a CompiledProject is deeply
// immutable and can back any number of concurrent simulations.
package sim

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/compiler"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/project"
	"github.com/simlin-project/simlin/internal/stdlib"

	"github.com/simlin-project/simlin/internal/check"
	"github.com/simlin-project/simlin/internal/interp"
	"github.com/simlin-project/simlin/internal/vm"
)

// timeEps absorbs floating-point drift when comparing against the stop
// time and the save grid.
const timeEps = 1e-9

// Compile runs the full pipeline: stateful-builtin expansion, checking,
// dependency resolution, and lowering to bytecode.
func Compile(p *project.Project) (*compiler.CompiledProject, errors.List) {
	expanded, errs := stdlib.Expand(p)
	if errs.HasErrors() {
		return nil, errs
	}
	checked, cerrs := check.Check(expanded)
	if cerrs.HasErrors() {
		return nil, cerrs
	}
	return compiler.Compile(checked)
}

// Engine selects which evaluator runs the compiled code.
type Engine int

const (
	// EngineVM executes bytecode; the default.
	EngineVM Engine = iota
	// EngineInterp walks the checked AST; the reference oracle.
	EngineInterp
)

// Evaluator is the contract both engines implement.
type Evaluator interface {
	EvalInitials(state, scratch []float64, env *builtins.Env)
	EvalFlows(state, scratch []float64, env *builtins.Env)
}

// Options configures one simulation run.
type Options struct {
	Engine Engine
	// Seed drives the deterministic RNG behind rand().
	Seed uint64
	// Cancel is polled once per step; returning true stops the run with
	// an RT004 error.
	Cancel func() bool
}

// Simulate runs a compiled project to completion.
func Simulate(cp *compiler.CompiledProject, opts Options) (*Results, *errors.Diagnostic) {
	if cp.InitialsCode == nil || cp.FlowsCode == nil {
		return nil, errors.New(errors.STR004, "project compiled without bytecode")
	}

	var ev Evaluator
	if opts.Engine == EngineInterp {
		ev = interp.New(cp)
	} else {
		ev = vm.New(cp)
	}

	specs := cp.Specs
	saveEvery := specs.SaveEvery()
	stepCount := int(math.Floor((specs.Stop-specs.Start)/saveEvery+timeEps)) + 1

	res := &Results{
		StepCount: stepCount,
		Offsets:   make(map[string]int, len(cp.Columns)),
		Sizes:     make(map[string]int, len(cp.Columns)),
	}
	for _, col := range cp.Columns {
		res.Offsets[col.Name] = res.StepSize
		res.Sizes[col.Name] = col.Size
		res.StepSize += col.Size
	}
	res.Data = make([]float64, res.StepSize*stepCount)

	s := &simulation{
		cp: cp, ev: ev, res: res,
		state:   make([]float64, cp.NSlots),
		scratch: make([]float64, cp.TempSize),
		env: &builtins.Env{
			DT: specs.DT, Start: specs.Start, Stop: specs.Stop,
			RNG: builtins.NewRand(opts.Seed),
		},
	}
	if err := s.run(opts.Cancel); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"rows": res.StepCount,
		"cols": res.StepSize,
	}).Debug("simulation complete")
	return res, nil
}

type simulation struct {
	cp      *compiler.CompiledProject
	ev      Evaluator
	res     *Results
	state   []float64
	scratch []float64
	env     *builtins.Env
	saved   int
}

func (s *simulation) run(cancel func() bool) *errors.Diagnostic {
	specs := s.cp.Specs
	s.state[compiler.DTOff] = specs.DT
	s.state[compiler.InitialOff] = specs.Start
	s.state[compiler.FinalOff] = specs.Stop
	s.setTime(specs.Start)

	s.ev.EvalInitials(s.state, s.scratch, s.env)

	t := specs.Start
	nextSave := specs.Start
	for {
		s.ev.EvalFlows(s.state, s.scratch, s.env)
		if t >= nextSave-timeEps {
			s.save()
			nextSave += specs.SaveEvery()
		}
		if t+specs.DT > specs.Stop+timeEps {
			break
		}
		switch specs.Method {
		case project.RK4:
			s.stepRK4(t, specs.DT)
		default:
			s.stepEuler(specs.DT)
		}
		if cancel != nil && cancel() {
			return errors.New(errors.RT004, "simulation cancelled at t=%g", t)
		}
		t += specs.DT
		s.setTime(t)
	}
	return nil
}

func (s *simulation) setTime(t float64) {
	s.state[compiler.TimeOff] = t
	s.env.Time = t
}

func (s *simulation) save() {
	if s.saved >= s.res.StepCount {
		return
	}
	row := s.res.Data[s.saved*s.res.StepSize : (s.saved+1)*s.res.StepSize]
	col := 0
	for _, c := range s.cp.Columns {
		copy(row[col:col+c.Size], s.state[c.Offset:c.Offset+c.Size])
		col += c.Size
	}
	s.saved++
}

// derivative of one stock element: sum of inflows minus sum of outflows,
// read from an evaluated state vector.
func stockDeriv(state []float64, spec compiler.StockSpec, el int) float64 {
	d := 0.0
	for _, off := range spec.InflowOffs {
		d += state[off+el]
	}
	for _, off := range spec.OutflowOffs {
		d -= state[off+el]
	}
	return d
}

func (s *simulation) stepEuler(dt float64) {
	for _, spec := range s.cp.Stocks {
		for el := 0; el < spec.Size; el++ {
			v := s.state[spec.Offset+el] + dt*stockDeriv(s.state, spec, el)
			if spec.NonNegative && v < 0 {
				v = 0
			}
			s.state[spec.Offset+el] = v
		}
	}
}

// stepRK4 samples the derivative at t, t+dt/2 (twice), and t+dt using
// temporary state copies, then combines with the canonical weights.
func (s *simulation) stepRK4(t, dt float64) {
	stocks := s.cp.Stocks

	k1 := s.derivs(s.state)
	k2 := s.derivs(s.advanced(t+dt/2, dt/2, k1))
	k3 := s.derivs(s.advanced(t+dt/2, dt/2, k2))
	k4 := s.derivs(s.advanced(t+dt, dt, k3))

	i := 0
	for _, spec := range stocks {
		for el := 0; el < spec.Size; el++ {
			v := s.state[spec.Offset+el] + dt*(k1[i]+2*k2[i]+2*k3[i]+k4[i])/6
			if spec.NonNegative && v < 0 {
				v = 0
			}
			s.state[spec.Offset+el] = v
			i++
		}
	}
	// restore the clock; the caller advances it
	s.setTime(t)
}

// derivs evaluates flows against the given state and packs the stock
// derivatives.
func (s *simulation) derivs(state []float64) []float64 {
	if &state[0] != &s.state[0] {
		s.ev.EvalFlows(state, s.scratch, s.env)
	}
	var out []float64
	for _, spec := range s.cp.Stocks {
		for el := 0; el < spec.Size; el++ {
			out = append(out, stockDeriv(state, spec, el))
		}
	}
	return out
}

// advanced builds a state copy with stocks advanced by h along the packed
// derivative and the clock set to tStage.
func (s *simulation) advanced(tStage, h float64, k []float64) []float64 {
	next := append([]float64(nil), s.state...)
	next[compiler.TimeOff] = tStage
	s.env.Time = tStage
	i := 0
	for _, spec := range s.cp.Stocks {
		for el := 0; el < spec.Size; el++ {
			next[spec.Offset+el] += h * k[i]
			i++
		}
	}
	return next
}
