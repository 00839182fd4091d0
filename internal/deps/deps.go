// Package deps orders a checked model's variables for evaluation.
//
// It builds the directed reads-from graph over variables and produces the
// three runlists the compiler lowers: initials, per-step flows, and stock
// updates. A cycle that does not pass through a stock is a simultaneous
// equation error.
package deps

import (
	"sort"
	"strings"

	"github.com/simlin-project/simlin/internal/check"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// Runlists are the evaluation orders for one model.
type Runlists struct {
	// Initials seeds every variable, stocks included, using stock
	// initial equations.
	Initials []ident.Ident
	// Flows is the hot per-step list: every non-stock variable in
	// dependency order.
	Flows []ident.Ident
	// Stocks are integrated at end of step; their relative order does
	// not matter and follows declaration order.
	Stocks []ident.Ident
}

// Resolve computes the three runlists for a model.
func Resolve(m *check.Model) (*Runlists, errors.List) {
	var errs errors.List
	out := &Runlists{}

	// per-step graph: stocks are sinks (their current value is state)
	flowDeps := make(map[ident.Ident][]ident.Ident)
	initDeps := make(map[ident.Ident][]ident.Ident)
	var nonStocks []ident.Ident
	for _, name := range m.Order {
		v := m.Vars[name]
		if v.Kind == check.KindStock {
			out.Stocks = append(out.Stocks, name)
			initDeps[name] = varDeps(m, v, v.Initials)
			continue
		}
		nonStocks = append(nonStocks, name)
		deps := varDeps(m, v, v.Eqns)
		flowDeps[name] = dropStocks(m, deps)
		initDeps[name] = varDeps(m, v, v.Initials)
	}

	flows, cycle := topoSort(nonStocks, flowDeps)
	if cycle != nil {
		errs = append(errs, errors.New(errors.STR001,
			"simultaneous equations among: %s", joinIdents(cycle)))
	}
	out.Flows = flows

	all := append([]ident.Ident(nil), m.Order...)
	inits, cycle := topoSort(all, initDeps)
	if cycle != nil {
		errs = append(errs, errors.New(errors.STR001,
			"initial values depend on each other: %s", joinIdents(cycle)))
	}
	out.Initials = inits

	return out, errs
}

// varDeps collects the model-local variables an equation list reads.
func varDeps(m *check.Model, v *check.Var, eqns []check.Eqn) []ident.Ident {
	seen := make(map[ident.Ident]bool)
	add := func(name ident.Ident) {
		// a dotted reference depends on the module instance
		if i := strings.IndexByte(string(name), '.'); i >= 0 {
			name = name[:i]
		}
		if _, ok := m.Vars[name]; ok {
			seen[name] = true
		}
	}
	if v.Kind == check.KindModule {
		for _, ref := range v.Refs {
			add(ref.Src)
		}
	}
	for _, eqn := range eqns {
		for _, tmp := range eqn.Temps {
			exprDeps(tmp.Body, add)
		}
		exprDeps(eqn.Body, add)
	}
	out := make([]ident.Ident, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dropStocks(m *check.Model, deps []ident.Ident) []ident.Ident {
	out := deps[:0]
	for _, d := range deps {
		if v, ok := m.Vars[d]; ok && v.Kind == check.KindStock {
			continue
		}
		out = append(out, d)
	}
	return out
}

// exprDeps walks a checked expression, reporting every variable it reads.
func exprDeps(e check.Expr, add func(ident.Ident)) {
	switch n := e.(type) {
	case nil:
	case *check.Const, *check.TimeRef, *check.DimIndex:
	case *check.LoadScalar:
		add(n.Var)
	case *check.LoadElement:
		add(n.Var)
		for _, d := range n.Dyn {
			exprDeps(d.X, add)
		}
	case *check.Op1:
		exprDeps(n.X, add)
	case *check.Op2:
		exprDeps(n.X, add)
		exprDeps(n.Y, add)
	case *check.If:
		exprDeps(n.Cond, add)
		exprDeps(n.T, add)
		exprDeps(n.F, add)
	case *check.CallPure:
		for _, a := range n.Args {
			exprDeps(a, add)
		}
	case *check.Lookup:
		// the graphical function's table is static; only the input is a
		// value dependency
		exprDeps(n.X, add)
	case *check.Reduce:
		if vs, ok := n.Source.(*check.ViewSource); ok {
			add(vs.Var)
			for _, d := range vs.Dyn {
				exprDeps(d.X, add)
			}
		}
		exprDeps(n.N, add)
	}
}

// topoSort orders names so every dependency precedes its dependents. On a
// cycle it returns the members of one strongly connected knot.
func topoSort(names []ident.Ident, deps map[ident.Ident][]ident.Ident) ([]ident.Ident, []ident.Ident) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[ident.Ident]int, len(names))
	inScope := make(map[ident.Ident]bool, len(names))
	for _, n := range names {
		inScope[n] = true
	}

	var order []ident.Ident
	var cycle []ident.Ident
	var stack []ident.Ident

	var visit func(n ident.Ident) bool
	visit = func(n ident.Ident) bool {
		switch color[n] {
		case black:
			return true
		case gray:
			// unwind the stack back to n to name the cycle
			start := len(stack) - 1
			for start >= 0 && stack[start] != n {
				start--
			}
			cycle = append([]ident.Ident(nil), stack[start:]...)
			return false
		}
		color[n] = gray
		stack = append(stack, n)
		for _, d := range deps[n] {
			if !inScope[d] {
				continue
			}
			if !visit(d) {
				return false
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		order = append(order, n)
		return true
	}

	for _, n := range names {
		if !visit(n) {
			return order, cycle
		}
	}
	return order, nil
}

func joinIdents(names []ident.Ident) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
