// Package builtins is the closed table of builtin function names.
//
// The parser does not know about builtins; the type checker recognizes
// them here. This is a simple data structure with no dependency on the
// evaluators.
package builtins

import (
	"github.com/simlin-project/simlin/internal/ident"
)

// Class describes how a builtin is evaluated.
type Class int

const (
	// Pure builtins are plain scalar functions of their arguments.
	Pure Class = iota
	// Time builtins read the simulation clock.
	Time
	// Reduction builtins consume an array view and push a scalar.
	Reduction
	// Stateful builtins expand into stdlib modules before compilation.
	Stateful
	// Lookup applies a variable's graphical function.
	Lookup
)

// Spec holds metadata about a builtin function
type Spec struct {
	Name    ident.Ident
	MinArgs int
	MaxArgs int
	Class   Class
}

// Registry holds all builtin metadata, keyed by canonical name.
var Registry = make(map[ident.Ident]*Spec)

func register(name ident.Ident, min, max int, class Class) {
	Registry[name] = &Spec{Name: name, MinArgs: min, MaxArgs: max, Class: class}
}

func init() {
	// pure math
	register("abs", 1, 1, Pure)
	register("exp", 1, 1, Pure)
	register("ln", 1, 1, Pure)
	register("log10", 1, 1, Pure)
	register("sqrt", 1, 1, Pure)
	register("sin", 1, 1, Pure)
	register("cos", 1, 1, Pure)
	register("tan", 1, 1, Pure)
	register("arccos", 1, 1, Pure)
	register("arcsin", 1, 1, Pure)
	register("arctan", 1, 1, Pure)
	register("pi", 0, 0, Pure)
	register("inf", 0, 0, Pure)
	register("int", 1, 1, Pure)
	register("sign", 1, 1, Pure)

	// min and max are two-argument scalar functions; with a single array
	// argument they are reductions, resolved during type checking
	register("min", 1, 2, Pure)
	register("max", 1, 2, Pure)

	// time accessors
	register("time", 0, 0, Time)
	register("starttime", 0, 0, Time)
	register("stoptime", 0, 0, Time)
	register("dt", 0, 0, Time)
	register("timestep", 0, 0, Time)

	// signal generators
	register("pulse", 1, 3, Pure)
	register("step", 2, 2, Pure)
	register("ramp", 2, 3, Pure)

	// deterministic per-seed pseudo-random
	register("rand", 0, 2, Pure)

	// reductions over arrays
	register("sum", 1, 1, Reduction)
	register("mean", 1, 1, Reduction)
	register("stddev", 1, 1, Reduction)
	register("size", 1, 1, Reduction)
	register("rank", 1, 2, Reduction)

	// conditional synonym for the ternary
	register("if_then_else", 3, 3, Pure)

	// stateful: expand into stdlib modules
	register("smooth", 2, 3, Stateful)
	register("smth1", 2, 3, Stateful)
	register("smth3", 2, 3, Stateful)
	register("delay", 2, 3, Stateful)
	register("delay1", 2, 3, Stateful)
	register("delay3", 2, 3, Stateful)
	register("trend", 2, 3, Stateful)
	register("init", 1, 1, Stateful)
	register("previous", 1, 2, Stateful)

	// graphical function application
	register("lookup", 2, 2, Lookup)
}

// IsBuiltin checks if a name is a builtin
func IsBuiltin(name ident.Ident) bool {
	_, ok := Registry[name]
	return ok
}

// Get looks up a builtin's spec.
func Get(name ident.Ident) (*Spec, bool) {
	s, ok := Registry[name]
	return s, ok
}

// IsStateful reports whether calls to name expand into modules.
func IsStateful(name ident.Ident) bool {
	s, ok := Registry[name]
	return ok && s.Class == Stateful
}
