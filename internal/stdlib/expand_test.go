package stdlib

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

func testProject(vars ...project.Variable) *project.Project {
	return &project.Project{
		Name:     "test",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 10, DT: 1},
		Models:   []*project.Model{{Name: "main", Variables: vars}},
	}
}

func scalarAux(name, eqn string) project.Variable {
	return &project.Aux{
		Common:   project.Common{Ident: ident.Canonicalize(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func TestExpandSmth3(t *testing.T) {
	p := testProject(
		scalarAux("input", "if time() > 1 then 1 else 0"),
		scalarAux("output", "smth3(input, 3)"),
	)
	out, errs := Expand(p)
	require.False(t, errs.HasErrors())

	// the original project is untouched
	orig, _ := p.Models[0].Lookup("output")
	assert.Equal(t, "smth3(input, 3)", orig.(*project.Aux).Equation.(project.Scalar).Equation)

	m, _ := out.Model("main")
	v, _ := m.Lookup("output")
	eqn := v.(*project.Aux).Equation.(project.Scalar).Equation
	assert.True(t, strings.HasPrefix(eqn, ident.SyntheticPrefix), "got %q", eqn)
	assert.True(t, strings.HasSuffix(eqn, ".output"), "got %q", eqn)

	// a module instance and two argument auxes were synthesized
	var mods, auxes int
	for _, v := range m.Variables {
		if !ident.IsSynthetic(v.Name()) {
			continue
		}
		switch v.(type) {
		case *project.Module:
			mods++
		case *project.Aux:
			auxes++
		}
	}
	assert.Equal(t, 1, mods)
	assert.Equal(t, 2, auxes)

	// the template model came along
	_, ok := out.Model(ModelSmth3)
	assert.True(t, ok)

	assert.False(t, out.Validate().HasErrors())
}

func TestExpandLeavesPlainEquationsAlone(t *testing.T) {
	p := testProject(scalarAux("a", "1 + 2"))
	out, errs := Expand(p)
	require.False(t, errs.HasErrors())
	m, _ := out.Model("main")
	v, _ := m.Lookup("a")
	assert.Equal(t, "1 + 2", v.(*project.Aux).Equation.(project.Scalar).Equation)
	_, ok := out.Model(ModelSmth1)
	assert.False(t, ok)
}

func TestExpandNested(t *testing.T) {
	p := testProject(
		scalarAux("x", "5"),
		scalarAux("y", "smth1(smth1(x, 2), 3)"),
	)
	out, errs := Expand(p)
	require.False(t, errs.HasErrors())
	m, _ := out.Model("main")

	var mods int
	for _, v := range m.Variables {
		if _, ok := v.(*project.Module); ok {
			mods++
		}
	}
	assert.Equal(t, 2, mods)
	assert.False(t, out.Validate().HasErrors())
}

func TestExpandAliases(t *testing.T) {
	p := testProject(
		scalarAux("x", "1"),
		scalarAux("a", "smooth(x, 2)"),
		scalarAux("b", "delay(x, 2)"),
		scalarAux("c", "previous(x)"),
		scalarAux("d", "init(x)"),
		scalarAux("e", "trend(x, 2, 0.1)"),
		scalarAux("f", "delay3(x, 6)"),
	)
	out, errs := Expand(p)
	require.False(t, errs.HasErrors())
	for _, name := range []ident.Ident{ModelSmth1, ModelDelay1, ModelDelay3, ModelPrevious, ModelInit, ModelTrend} {
		_, ok := out.Model(name)
		assert.True(t, ok, "missing template %s", name)
	}
	assert.False(t, out.Validate().HasErrors())
}

func TestTemplatesAreWellFormed(t *testing.T) {
	for _, m := range Models() {
		assert.True(t, strings.HasPrefix(string(m.Name), ident.SyntheticPrefix))
		_, ok := m.Lookup("input")
		assert.True(t, ok, "%s has no input port", m.Name)
		_, ok = m.Lookup(Output)
		assert.True(t, ok, "%s has no output", m.Name)
	}
}
