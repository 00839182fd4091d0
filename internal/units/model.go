package units

import (
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/parser"
	"github.com/simlin-project/simlin/internal/project"
)

// CheckProject runs the dimensional-consistency pass over every model.
// Malformed unit strings surface as UNI002 on the variable declaring
// them; inconsistent equations as UNI001. Variables without declared
// units are unconstrained.
func CheckProject(p *project.Project) errors.VarErrors {
	out := errors.VarErrors{}

	timeUnit, d := Parse(p.SimSpecs.TimeUnits)
	if d != nil {
		out.Add("sim_specs", d)
		timeUnit = nil
	}

	for _, m := range p.Models {
		env := &Env{Vars: make(map[ident.Ident]Unit), Time: timeUnit}

		declared := make(map[ident.Ident]Unit)
		for _, v := range m.Variables {
			if v.Units() == "" {
				continue
			}
			u, d := Parse(v.Units())
			if d != nil {
				out.Add(string(v.Name()), d)
				continue
			}
			declared[v.Name()] = u
			env.Vars[v.Name()] = u
		}

		for _, v := range m.Variables {
			checkVariable(out, env, declared, timeUnit, v)
		}
	}
	return out
}

func checkVariable(out errors.VarErrors, env *Env, declared map[ident.Ident]Unit, timeUnit Unit, v project.Variable) {
	name := string(v.Name())

	checkEqn := func(eqn project.Equation) {
		for _, text := range equationTexts(eqn) {
			parsed, perrs := parser.Parse(text)
			if perrs.HasErrors() || parsed == nil {
				continue
			}
			inferred, errs := Check(parsed, env)
			out.Extend(name, errs)
			want, ok := declared[v.Name()]
			if !ok || inferred == nil {
				continue
			}
			if !want.Equal(inferred) {
				out.Add(name, errors.New(errors.UNI001,
					"%s is declared %s but its equation has units %s", name, want, inferred))
			}
		}
	}

	switch x := v.(type) {
	case *project.Stock:
		checkEqn(x.Initial)
		// each flow of a stock must carry stock-units per time
		stockUnit, ok := declared[v.Name()]
		if !ok || timeUnit == nil {
			return
		}
		want := stockUnit.Div(timeUnit)
		for _, f := range append(append([]ident.Ident(nil), x.Inflows...), x.Outflows...) {
			fu, ok := declared[f]
			if !ok {
				continue
			}
			if !fu.Equal(want) {
				out.Add(name, errors.New(errors.UNI001,
					"flow %s has units %s, but stock %s requires %s", f, fu, name, want))
			}
		}
	case *project.Flow:
		checkEqn(x.Equation)
	case *project.Aux:
		checkEqn(x.Equation)
	}
}

func equationTexts(eqn project.Equation) []string {
	switch e := eqn.(type) {
	case project.Scalar:
		if e.Equation == "" {
			return nil
		}
		return []string{e.Equation}
	case project.ApplyToAll:
		if e.Equation == "" {
			return nil
		}
		return []string{e.Equation}
	case project.Arrayed:
		var out []string
		for _, el := range e.Elements {
			if el.Equation != "" {
				out = append(out, el.Equation)
			}
		}
		return out
	}
	return nil
}
