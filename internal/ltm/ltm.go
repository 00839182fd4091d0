// Package ltm implements the Loops-That-Matter instrumentation: a
// whole-project rewrite that injects synthetic variables computing link
// scores for every causal edge and loop scores for every feedback loop.
//
// The rewrite leans on the PREVIOUS builtin for one-step history. The
// augmented project compiles and simulates normally; the scores become
// additional time series in Results.
package ltm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/parser"
	"github.com/simlin-project/simlin/internal/project"
)

// score variables are named with middle-dot separators; the lexer accepts
// the middle dot inside unquoted identifiers, so equations refer to them
// like any other name
const scorePrefix = "ltm·"

// WithLTM returns an augmented clone of the project. Arrayed models are
// rejected.
func WithLTM(p *project.Project) (*project.Project, errors.List) {
	out := p.Clone()
	m, ok := out.Model(project.MainModel)
	if !ok {
		return nil, errors.List{errors.New(errors.STR004, "project has no %q model", project.MainModel)}
	}

	for _, v := range m.Variables {
		switch x := v.(type) {
		case *project.Stock:
			if x.Initial != nil && x.Initial.Arrayed() {
				return nil, errors.List{arrayedErr(v.Name())}
			}
		case *project.Flow:
			if x.Equation != nil && x.Equation.Arrayed() {
				return nil, errors.List{arrayedErr(v.Name())}
			}
		case *project.Aux:
			if x.Equation != nil && x.Equation.Arrayed() {
				return nil, errors.List{arrayedErr(v.Name())}
			}
		}
	}
	inst := &instrumenter{model: m}
	inst.buildGraph()
	inst.linkScores()
	loops := inst.findLoops()
	inst.loopScores(loops)

	m.Variables = append(m.Variables, inst.added...)
	return out, nil
}

func arrayedErr(name ident.Ident) *errors.Diagnostic {
	return errors.New(errors.LTM001, "arrayed variable %s: arrays are not supported with loop scoring", name)
}

type edge struct {
	from, to ident.Ident
	// stockLink marks flow→stock integration edges, which use the
	// corrected acceleration-denominator formula.
	stockLink bool
	// polarity is +1 for inflows, -1 for outflows.
	polarity int
}

type instrumenter struct {
	model *project.Model
	edges []edge
	// equation text per aux/flow, for substitution
	eqnText map[ident.Ident]string
	hasGF   map[ident.Ident]bool
	added   []project.Variable
	// linkVar names the score variable of each edge
	linkVar map[edge]ident.Ident
}

func (in *instrumenter) buildGraph() {
	in.eqnText = make(map[ident.Ident]string)
	in.hasGF = make(map[ident.Ident]bool)
	in.linkVar = make(map[edge]ident.Ident)

	vars := make(map[ident.Ident]bool)
	for _, v := range in.model.Variables {
		vars[v.Name()] = true
	}

	for _, v := range in.model.Variables {
		switch x := v.(type) {
		case *project.Stock:
			for _, f := range x.Inflows {
				in.edges = append(in.edges, edge{from: f, to: x.Name(), stockLink: true, polarity: 1})
			}
			for _, f := range x.Outflows {
				in.edges = append(in.edges, edge{from: f, to: x.Name(), stockLink: true, polarity: -1})
			}
		case *project.Flow:
			in.addEquationEdges(x.Name(), x.Equation, vars)
			in.hasGF[x.Name()] = x.GF != nil
		case *project.Aux:
			in.addEquationEdges(x.Name(), x.Equation, vars)
			in.hasGF[x.Name()] = x.GF != nil
		}
	}
}

func (in *instrumenter) addEquationEdges(name ident.Ident, eqn project.Equation, vars map[ident.Ident]bool) {
	s, ok := eqn.(project.Scalar)
	if !ok || s.Equation == "" {
		return
	}
	in.eqnText[name] = s.Equation
	parsed, errs := parser.Parse(s.Equation)
	if errs.HasErrors() || parsed == nil {
		return
	}
	seen := make(map[ident.Ident]bool)
	collectVars(parsed, func(dep ident.Ident) {
		if !vars[dep] || seen[dep] || dep == name {
			return
		}
		seen[dep] = true
		in.edges = append(in.edges, edge{from: dep, to: name})
	})
}

func collectVars(e ast.Expr, fn func(ident.Ident)) {
	switch n := e.(type) {
	case *ast.Var:
		fn(n.Name)
	case *ast.Op1:
		collectVars(n.X, fn)
	case *ast.Op2:
		collectVars(n.X, fn)
		collectVars(n.Y, fn)
	case *ast.If:
		collectVars(n.Cond, fn)
		collectVars(n.T, fn)
		collectVars(n.F, fn)
	case *ast.App:
		if n.Name == "lookup" && len(n.Args) == 2 {
			// the first argument names a table, not a value read
			collectVars(n.Args[1], fn)
			return
		}
		for _, a := range n.Args {
			collectVars(a, fn)
		}
	case *ast.Transpose:
		collectVars(n.X, fn)
	}
}

// substPrevious rewrites an equation so every dependency except keep reads
// its previous-step value.
func substPrevious(text string, deps map[ident.Ident]bool, keep ident.Ident) string {
	parsed, errs := parser.Parse(text)
	if errs.HasErrors() || parsed == nil {
		return text
	}
	rewritten := rewriteVars(parsed, func(name ident.Ident) ast.Expr {
		if !deps[name] || name == keep {
			return nil
		}
		return &ast.App{Name: "previous", Args: []ast.Expr{&ast.Var{Name: name}}}
	})
	return ast.Print(rewritten)
}

func rewriteVars(e ast.Expr, fn func(ident.Ident) ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.Var:
		if r := fn(n.Name); r != nil {
			return r
		}
		return n
	case *ast.Op1:
		n.X = rewriteVars(n.X, fn)
	case *ast.Op2:
		n.X = rewriteVars(n.X, fn)
		n.Y = rewriteVars(n.Y, fn)
	case *ast.If:
		n.Cond = rewriteVars(n.Cond, fn)
		n.T = rewriteVars(n.T, fn)
		n.F = rewriteVars(n.F, fn)
	case *ast.App:
		start := 0
		if n.Name == "lookup" && len(n.Args) == 2 {
			start = 1
		}
		for i := start; i < len(n.Args); i++ {
			n.Args[i] = rewriteVars(n.Args[i], fn)
		}
	case *ast.Transpose:
		n.X = rewriteVars(n.X, fn)
	}
	return e
}

func (in *instrumenter) addAux(name ident.Ident, eqn string) {
	in.added = append(in.added, &project.Aux{
		Common:   project.Common{Ident: name},
		Equation: project.Scalar{Equation: eqn},
	})
}

// linkScores synthesizes a score variable per causal edge.
func (in *instrumenter) linkScores() {
	// group equation edges by destination so partials share the all-previous
	// baseline
	deps := make(map[ident.Ident]map[ident.Ident]bool)
	for _, e := range in.edges {
		if e.stockLink {
			continue
		}
		if deps[e.to] == nil {
			deps[e.to] = make(map[ident.Ident]bool)
		}
		deps[e.to][e.from] = true
	}

	for _, e := range in.edges {
		if e.stockLink {
			in.stockLinkScore(e)
			continue
		}
		z, x := e.to, e.from
		text := in.eqnText[z]
		if text == "" {
			continue
		}
		base := in.baselineFor(z, text, deps[z])
		partial := ident.Ident(fmt.Sprintf("%spart·%s·%s", scorePrefix, z, x))
		in.addAux(partial, in.wrapGF(z, substPrevious(text, deps[z], x)))

		name := ident.Ident(fmt.Sprintf("%sls·%s·%s", scorePrefix, z, x))
		dz := fmt.Sprintf("(%s - previous(%s))", z, z)
		dx := fmt.Sprintf("(%s - previous(%s))", x, x)
		dpart := fmt.Sprintf("(%s - %s)", partial, base)
		in.addAux(name, fmt.Sprintf(
			"if %s = 0 | %s = 0 then 0 else abs(%s / %s) * sign(%s / %s)",
			dz, dx, dpart, dz, dpart, dx))
		in.linkVar[e] = name
	}
}

// baselineFor lazily synthesizes the all-previous evaluation of z.
func (in *instrumenter) baselineFor(z ident.Ident, text string, deps map[ident.Ident]bool) ident.Ident {
	name := ident.Ident(fmt.Sprintf("%sbase·%s", scorePrefix, z))
	for _, v := range in.added {
		if v.Name() == name {
			return name
		}
	}
	in.addAux(name, in.wrapGF(z, substPrevious(text, deps, "")))
	return name
}

// wrapGF applies z's graphical function to a substituted input, matching
// how the engine evaluates z itself.
func (in *instrumenter) wrapGF(z ident.Ident, eqn string) string {
	if in.hasGF[z] {
		return fmt.Sprintf("lookup(%s, %s)", z, eqn)
	}
	return eqn
}

// stockLinkScore uses the 2023 corrected formula for flow→stock edges:
// the change in the flow against the stock's acceleration.
func (in *instrumenter) stockLinkScore(e edge) {
	f, s := e.from, e.to
	name := ident.Ident(fmt.Sprintf("%sls·%s·%s", scorePrefix, s, f))
	accel := fmt.Sprintf("(%s - 2 * previous(%s) + previous(previous(%s)))", s, s, s)
	df := fmt.Sprintf("(%s - previous(%s))", f, f)
	in.addAux(name, fmt.Sprintf(
		"if %s = 0 then 0 else %d * %s * dt / %s",
		accel, e.polarity, df, accel))
	in.linkVar[e] = name
}

// findLoops enumerates the elementary circuits of the causal graph.
func (in *instrumenter) findLoops() [][]edge {
	adj := make(map[ident.Ident][]edge)
	var nodes []ident.Ident
	seenNode := make(map[ident.Ident]bool)
	for _, e := range in.edges {
		adj[e.from] = append(adj[e.from], e)
		for _, n := range []ident.Ident{e.from, e.to} {
			if !seenNode[n] {
				seenNode[n] = true
				nodes = append(nodes, n)
			}
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	order := make(map[ident.Ident]int, len(nodes))
	for i, n := range nodes {
		order[n] = i
	}

	var loops [][]edge
	var path []edge
	onPath := make(map[ident.Ident]bool)

	var visit func(start, at ident.Ident)
	visit = func(start, at ident.Ident) {
		for _, e := range adj[at] {
			if order[e.to] < order[start] {
				continue
			}
			if e.to == start {
				loop := append([]edge(nil), path...)
				loops = append(loops, append(loop, e))
				continue
			}
			if onPath[e.to] {
				continue
			}
			onPath[e.to] = true
			path = append(path, e)
			visit(start, e.to)
			path = path[:len(path)-1]
			onPath[e.to] = false
		}
	}
	for _, n := range nodes {
		visit(n, n)
	}
	return loops
}

// loopScores synthesizes the per-loop product of link scores and the
// relative share of each loop.
func (in *instrumenter) loopScores(loops [][]edge) {
	if len(loops) == 0 {
		return
	}
	var names []string
	for i, loop := range loops {
		terms := make([]string, 0, len(loop))
		for _, e := range loop {
			if lv, ok := in.linkVar[e]; ok {
				terms = append(terms, string(lv))
			}
		}
		if len(terms) == 0 {
			continue
		}
		name := fmt.Sprintf("%sloop_%d", scorePrefix, i+1)
		in.addAux(ident.Ident(name), strings.Join(terms, " * "))
		names = append(names, name)
	}

	if len(names) == 0 {
		return
	}
	absTerms := make([]string, len(names))
	for i, n := range names {
		absTerms[i] = fmt.Sprintf("abs(%s)", n)
	}
	total := strings.Join(absTerms, " + ")
	for _, n := range names {
		in.addAux(ident.Ident("rel_"+n), fmt.Sprintf(
			"if (%s) = 0 then 0 else abs(%s) / (%s)", total, n, total))
	}
}
