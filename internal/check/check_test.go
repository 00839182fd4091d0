package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

func specs() project.SimSpecs {
	return project.SimSpecs{Start: 0, Stop: 10, DT: 1}
}

func aux(name, eqn string) project.Variable {
	return &project.Aux{
		Common:   project.Common{Ident: ident.Canonicalize(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func auxA2A(name, eqn string, dims ...string) project.Variable {
	return &project.Aux{
		Common:   project.Common{Ident: ident.Canonicalize(name)},
		Equation: project.ApplyToAll{Dimensions: dims, Equation: eqn},
	}
}

func checkProject(t *testing.T, p *project.Project) *Project {
	t.Helper()
	cp, errs := Check(p)
	require.False(t, errs.HasErrors(), "check: %v", errs)
	require.NotNil(t, cp)
	return cp
}

func oneModel(vars ...project.Variable) *project.Project {
	return &project.Project{
		Name:     "test",
		SimSpecs: specs(),
		Dimensions: []project.Dimension{
			{Name: "location", Elements: []string{"boston", "chicago", "la"}},
			{Name: "coastal", Elements: []string{"boston"}},
			{Name: "samples", Size: 3},
		},
		Models: []*project.Model{{Name: "main", Variables: vars}},
	}
}

func mainVar(t *testing.T, cp *Project, name string) *Var {
	t.Helper()
	m, ok := cp.Model("main")
	require.True(t, ok)
	v, ok := m.Vars[ident.Ident(name)]
	require.True(t, ok, "no variable %s", name)
	return v
}

func TestScalarLowering(t *testing.T) {
	cp := checkProject(t, oneModel(
		aux("a", "1 + 2 * b"),
		aux("b", "time() / 2"),
	))
	m, _ := cp.Model("main")
	assert.False(t, m.Errors.HasErrors())

	a := mainVar(t, cp, "a")
	require.Len(t, a.Eqns, 1)
	op, ok := a.Eqns[0].Body.(*Op2)
	require.True(t, ok)
	mul, ok := op.Y.(*Op2)
	require.True(t, ok)
	_, ok = mul.Y.(*LoadScalar)
	assert.True(t, ok)
}

func TestUnknownIdentifier(t *testing.T) {
	p := oneModel(aux("a", "nonexistent + 1"))
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "RES001", m.Errors["a"][0].Code)
}

func TestForwardReference(t *testing.T) {
	cp := checkProject(t, oneModel(
		aux("first", "second * 2"),
		aux("second", "3"),
	))
	m, _ := cp.Model("main")
	assert.False(t, m.Errors.HasErrors())
}

func TestDimIndex(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("x", "location", "location"),
	))
	x := mainVar(t, cp, "x")
	require.Len(t, x.Eqns, 1)
	di, ok := x.Eqns[0].Body.(*DimIndex)
	require.True(t, ok)
	assert.Equal(t, 0, di.Axis)
	assert.Equal(t, 3, x.Size())
}

func TestArrayedBroadcast(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "1", "location"),
		auxA2A("b", "2", "samples"),
		auxA2A("c", "a + b", "location", "samples"),
	))
	c := mainVar(t, cp, "c")
	require.Len(t, c.Eqns, 1)
	op, ok := c.Eqns[0].Body.(*Op2)
	require.True(t, ok)

	la, ok := op.X.(*LoadElement)
	require.True(t, ok)
	assert.Equal(t, []int{0}, la.Mapping)
	lb, ok := op.Y.(*LoadElement)
	require.True(t, ok)
	assert.Equal(t, []int{1}, lb.Mapping)
}

func TestScalarRequired(t *testing.T) {
	p := oneModel(
		auxA2A("a", "1", "location"),
		aux("y", "a + 1"),
	)
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "TYP003", m.Errors["y"][0].Code)
}

func TestSubscriptSelect(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "1", "location"),
		aux("y", "a[boston] + a[2]"),
	))
	y := mainVar(t, cp, "y")
	op, ok := y.Eqns[0].Body.(*Op2)
	require.True(t, ok)
	lb, ok := op.X.(*LoadElement)
	require.True(t, ok)
	assert.Equal(t, 0, lb.View.Rank())
	assert.Equal(t, 0, lb.View.Offset)
	lc, ok := op.Y.(*LoadElement)
	require.True(t, ok)
	assert.Equal(t, 1, lc.View.Offset)
}

func TestSubscriptOutOfRange(t *testing.T) {
	p := oneModel(
		auxA2A("a", "1", "location"),
		aux("y", "a[4]"),
	)
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "TYP005", m.Errors["y"][0].Code)
}

func TestReduceViewSource(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("x", "location", "location"),
		aux("y", "sum(x)"),
	))
	y := mainVar(t, cp, "y")
	r, ok := y.Eqns[0].Body.(*Reduce)
	require.True(t, ok)
	vs, ok := r.Source.(*ViewSource)
	require.True(t, ok)
	assert.Equal(t, ident.Ident("x"), vs.Var)
	assert.Equal(t, 3, vs.View.Size())
}

func TestReduceRangeInclusive(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "samples", "samples"),
		aux("y", "sum(a[1:2])"),
	))
	y := mainVar(t, cp, "y")
	r := y.Eqns[0].Body.(*Reduce)
	vs := r.Source.(*ViewSource)
	assert.Equal(t, 2, vs.View.Size())
}

func TestReduceTemp(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "1", "location"),
		auxA2A("b", "2", "location"),
		aux("y", "sum(a * b)"),
	))
	y := mainVar(t, cp, "y")
	require.Len(t, y.Eqns[0].Temps, 1)
	tmp := y.Eqns[0].Temps[0]
	assert.Equal(t, 3, tmp.Shape.Size())
	r := y.Eqns[0].Body.(*Reduce)
	ts, ok := r.Source.(*TempSource)
	require.True(t, ok)
	assert.Equal(t, tmp.ID, ts.ID)
}

func TestWrongArity(t *testing.T) {
	p := oneModel(aux("y", "max()"))
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "TYP004", m.Errors["y"][0].Code)
}

func TestNonArraySubscripted(t *testing.T) {
	p := oneModel(
		aux("s", "1"),
		aux("y", "s[2]"),
	)
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "TYP002", m.Errors["y"][0].Code)
}

func TestStarRange(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "location", "location"),
		aux("y", "sum(a[*:coastal])"),
	))
	y := mainVar(t, cp, "y")
	r := y.Eqns[0].Body.(*Reduce)
	vs := r.Source.(*ViewSource)
	assert.Equal(t, 1, vs.View.Size())
}

func TestStarRangeNotSubdimension(t *testing.T) {
	p := oneModel(
		auxA2A("a", "samples", "samples"),
		aux("y", "sum(a[*:location])"),
	)
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "TYP006", m.Errors["y"][0].Code)
}

func TestStockDeclaration(t *testing.T) {
	p := oneModel(
		&project.Stock{
			Common:  project.Common{Ident: "population"},
			Initial: project.Scalar{Equation: "100"},
			Inflows: []ident.Ident{"births"},
		},
		&project.Flow{
			Common:   project.Common{Ident: "births"},
			Equation: project.Scalar{Equation: "population * 0.1"},
		},
	)
	cp := checkProject(t, p)
	pop := mainVar(t, cp, "population")
	assert.Equal(t, KindStock, pop.Kind)
	require.Len(t, pop.Initials, 1)
	assert.Empty(t, pop.Eqns)
}

func TestDanglingFlow(t *testing.T) {
	p := oneModel(
		&project.Stock{
			Common:  project.Common{Ident: "s"},
			Initial: project.Scalar{Equation: "1"},
			Inflows: []ident.Ident{"nope"},
		},
	)
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "STR002", m.Errors["s"][0].Code)
}

func TestModulePortMismatch(t *testing.T) {
	p := &project.Project{
		Name:     "test",
		SimSpecs: specs(),
		Models: []*project.Model{
			{Name: "main", Variables: []project.Variable{
				aux("input_src", "5"),
				&project.Module{
					Common:    project.Common{Ident: "m"},
					ModelName: "child",
					References: []project.Ref{
						{Src: "input_src", Dst: "m.no_such_port"},
					},
				},
			}},
			{Name: "child", Variables: []project.Variable{
				aux("input", "0"),
			}},
		},
	}
	cp, _ := Check(p)
	m, _ := cp.Model("main")
	require.True(t, m.Errors.HasErrors())
	assert.Equal(t, "STR003", m.Errors["m"][0].Code)
}

func TestModuleOutputReference(t *testing.T) {
	p := &project.Project{
		Name:     "test",
		SimSpecs: specs(),
		Models: []*project.Model{
			{Name: "main", Variables: []project.Variable{
				&project.Module{Common: project.Common{Ident: "m"}, ModelName: "child"},
				aux("y", "m.output + 1"),
			}},
			{Name: "child", Variables: []project.Variable{
				aux("output", "42"),
			}},
		},
	}
	cp := checkProject(t, p)
	m, _ := cp.Model("main")
	assert.False(t, m.Errors.HasErrors())
	y := mainVar(t, cp, "y")
	op := y.Eqns[0].Body.(*Op2)
	ls, ok := op.X.(*LoadScalar)
	require.True(t, ok)
	assert.Equal(t, ident.Ident("m.output"), ls.Var)
}

func TestTransposeLowering(t *testing.T) {
	cp := checkProject(t, oneModel(
		auxA2A("a", "1", "location", "samples"),
		auxA2A("b", "a'", "samples", "location"),
	))
	b := mainVar(t, cp, "b")
	le, ok := b.Eqns[0].Body.(*LoadElement)
	require.True(t, ok)
	// transposed axes: samples first, then location
	assert.Equal(t, []int{0, 1}, le.Mapping)
	assert.Equal(t, 1, le.View.Axes[0].Stride)
	assert.Equal(t, 3, le.View.Axes[1].Stride)
}

func TestExplicitArrayedElements(t *testing.T) {
	p := oneModel(&project.Aux{
		Common: project.Common{Ident: "x"},
		Equation: project.Arrayed{
			Dimensions: []string{"location"},
			Elements: []project.Element{
				{Subscript: []string{"boston"}, Equation: "1"},
				{Subscript: []string{"chicago"}, Equation: "2"},
				{Subscript: []string{"la"}, Equation: "3"},
			},
		},
	})
	cp := checkProject(t, p)
	x := mainVar(t, cp, "x")
	require.Len(t, x.Eqns, 3)
	assert.Equal(t, 0, x.Eqns[0].Offset)
	assert.Equal(t, 1, x.Eqns[1].Offset)
	assert.Equal(t, 2, x.Eqns[2].Offset)
}
