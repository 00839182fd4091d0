package stdlib

import (
	"fmt"

	"github.com/simlin-project/simlin/internal/ast"
	"github.com/simlin-project/simlin/internal/builtins"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/parser"
	"github.com/simlin-project/simlin/internal/project"
)

// Expand rewrites every stateful builtin call into a module instance of
// the matching template model. The input project is not mutated; the
// result has the template models appended when any were needed.
func Expand(p *project.Project) (*project.Project, errors.List) {
	out := p.Clone()
	var errs errors.List

	usedTemplates := false
	for _, m := range out.Models {
		ex := &expander{model: m}
		var added []project.Variable
		for _, v := range m.Variables {
			switch x := v.(type) {
			case *project.Stock:
				x.Initial = ex.rewriteEquation(v.Name(), x.Initial)
			case *project.Flow:
				x.Equation = ex.rewriteEquation(v.Name(), x.Equation)
			case *project.Aux:
				x.Equation = ex.rewriteEquation(v.Name(), x.Equation)
			}
		}
		added = ex.added
		errs = append(errs, ex.errs...)
		if len(added) > 0 {
			m.Variables = append(m.Variables, added...)
			usedTemplates = true
		}
	}

	if usedTemplates {
		for _, tmpl := range Models() {
			if _, exists := out.Model(tmpl.Name); !exists {
				out.Models = append(out.Models, tmpl)
			}
		}
	}
	return out, errs
}

type expander struct {
	model *project.Model
	added []project.Variable
	seq   int
	errs  errors.List
}

func (ex *expander) rewriteEquation(owner ident.Ident, eqn project.Equation) project.Equation {
	switch e := eqn.(type) {
	case project.Scalar:
		if e.Equation == "" {
			return e
		}
		return project.Scalar{Equation: ex.rewriteText(owner, e.Equation)}
	case project.ApplyToAll:
		e.Equation = ex.rewriteText(owner, e.Equation)
		return e
	case project.Arrayed:
		for i := range e.Elements {
			e.Elements[i].Equation = ex.rewriteText(owner, e.Elements[i].Equation)
		}
		return e
	}
	return eqn
}

// rewriteText replaces stateful calls in one equation string. Equations
// without stateful calls pass through byte-identical.
func (ex *expander) rewriteText(owner ident.Ident, text string) string {
	if !containsStateful(text) {
		return text
	}
	parsed, perrs := parser.Parse(text)
	if perrs.HasErrors() || parsed == nil {
		// leave malformed equations for the checker to report
		return text
	}
	rewritten, changed := ex.rewrite(owner, parsed)
	if !changed {
		return text
	}
	return ast.Print(rewritten)
}

// containsStateful is a cheap pre-scan so untouched equations keep their
// exact source text.
func containsStateful(text string) bool {
	parsed, errs := parser.Parse(text)
	if errs.HasErrors() || parsed == nil {
		return false
	}
	found := false
	walkApps(parsed, func(n *ast.App) {
		if builtins.IsStateful(n.Name) {
			found = true
		}
	})
	return found
}

func walkApps(e ast.Expr, fn func(*ast.App)) {
	switch n := e.(type) {
	case *ast.App:
		fn(n)
		for _, a := range n.Args {
			walkApps(a, fn)
		}
	case *ast.Op1:
		walkApps(n.X, fn)
	case *ast.Op2:
		walkApps(n.X, fn)
		walkApps(n.Y, fn)
	case *ast.If:
		walkApps(n.Cond, fn)
		walkApps(n.T, fn)
		walkApps(n.F, fn)
	case *ast.Transpose:
		walkApps(n.X, fn)
	case *ast.Subscript:
		for _, s := range n.Args {
			if se, ok := s.(*ast.SubExpr); ok {
				walkApps(se.X, fn)
			}
		}
	}
}

// rewrite replaces stateful calls bottom-up, so nested smoothing chains
// expand into chained module instances.
func (ex *expander) rewrite(owner ident.Ident, e ast.Expr) (ast.Expr, bool) {
	switch n := e.(type) {
	case *ast.App:
		changed := false
		for i, a := range n.Args {
			ra, c := ex.rewrite(owner, a)
			n.Args[i] = ra
			changed = changed || c
		}
		if !builtins.IsStateful(n.Name) {
			return n, changed
		}
		return ex.instantiate(owner, n), true
	case *ast.Op1:
		rx, c := ex.rewrite(owner, n.X)
		n.X = rx
		return n, c
	case *ast.Op2:
		rx, cx := ex.rewrite(owner, n.X)
		ry, cy := ex.rewrite(owner, n.Y)
		n.X, n.Y = rx, ry
		return n, cx || cy
	case *ast.If:
		rc, c1 := ex.rewrite(owner, n.Cond)
		rt, c2 := ex.rewrite(owner, n.T)
		rf, c3 := ex.rewrite(owner, n.F)
		n.Cond, n.T, n.F = rc, rt, rf
		return n, c1 || c2 || c3
	case *ast.Transpose:
		rx, c := ex.rewrite(owner, n.X)
		n.X = rx
		return n, c
	}
	return e, false
}

// instantiate synthesizes the module instance and its argument auxes for
// one stateful call, returning the replacement expression.
func (ex *expander) instantiate(owner ident.Ident, call *ast.App) ast.Expr {
	tmpl, ok := builtinModel[call.Name]
	if !ok {
		return call
	}
	ex.seq++
	base := ident.Synthetic(string(owner), fmt.Sprintf("%s_%d", call.Name, ex.seq))

	var refs []project.Ref
	for i, arg := range call.Args {
		if i >= len(tmpl.ports) {
			break
		}
		argName := ident.Ident(fmt.Sprintf("%s·%s", base, tmpl.ports[i]))
		ex.added = append(ex.added, &project.Aux{
			Common:   project.Common{Ident: argName},
			Equation: project.Scalar{Equation: ast.Print(arg)},
		})
		refs = append(refs, project.Ref{Src: argName, Dst: tmpl.ports[i]})
	}
	ex.added = append(ex.added, &project.Module{
		Common:     project.Common{Ident: base},
		ModelName:  tmpl.model,
		References: refs,
	})

	outRef := ident.Ident(fmt.Sprintf("%s.%s", base, Output))
	return &ast.Var{Name: outRef, L: call.L}
}
