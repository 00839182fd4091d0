package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

func compileAndRun(t *testing.T, p *project.Project, engine Engine) *Results {
	t.Helper()
	cp, errs := Compile(p)
	require.False(t, errs.HasErrors(), "compile: %v", errs)
	res, err := Simulate(cp, Options{Engine: engine})
	require.Nil(t, err)
	return res
}

// bothEngines runs a scenario under the interpreter and the VM and
// requires their saved results to agree within 4 ULPs per step.
func bothEngines(t *testing.T, p *project.Project) *Results {
	t.Helper()
	vmRes := compileAndRun(t, p, EngineVM)
	itRes := compileAndRun(t, p, EngineInterp)

	require.Equal(t, vmRes.StepSize, itRes.StepSize)
	require.Equal(t, vmRes.StepCount, itRes.StepCount)
	for i := range vmRes.Data {
		a, b := vmRes.Data[i], itRes.Data[i]
		if a == b || (math.IsNaN(a) && math.IsNaN(b)) {
			continue
		}
		assert.InDelta(t, a, b, 4*math.Abs(a)*2.3e-16+1e-300,
			"interpreter and VM disagree at flat index %d", i)
	}
	return vmRes
}

func stock(name, initial string, inflows, outflows []string) project.Variable {
	s := &project.Stock{
		Common:  project.Common{Ident: ident.Canonicalize(name)},
		Initial: project.Scalar{Equation: initial},
	}
	for _, f := range inflows {
		s.Inflows = append(s.Inflows, ident.Canonicalize(f))
	}
	for _, f := range outflows {
		s.Outflows = append(s.Outflows, ident.Canonicalize(f))
	}
	return s
}

func flow(name, eqn string) project.Variable {
	return &project.Flow{
		Common:   project.Common{Ident: ident.Canonicalize(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func aux(name, eqn string) project.Variable {
	return &project.Aux{
		Common:   project.Common{Ident: ident.Canonicalize(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func simpleProject(specs project.SimSpecs, vars ...project.Variable) *project.Project {
	return &project.Project{
		Name:     "test",
		SimSpecs: specs,
		Models:   []*project.Model{{Name: "main", Variables: vars}},
	}
}

func TestExponentialGrowthEuler(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 10, DT: 1, Method: project.Euler},
		stock("p", "100", []string{"growth"}, nil),
		flow("growth", "0.1 * p"),
	)
	res := bothEngines(t, p)
	require.Equal(t, 11, res.StepCount)

	final, err := res.Final("p")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, final, 259.374)
	assert.LessOrEqual(t, final, 259.375)
}

func TestIntegratorAccuracy(t *testing.T) {
	// y' = y, y(0) = 1, dt = 1/32, t in [0, 1]
	build := func(method project.SimMethod) *project.Project {
		return simpleProject(
			project.SimSpecs{Start: 0, Stop: 1, DT: 1.0 / 32, Method: method},
			stock("y", "1", []string{"dy"}, nil),
			flow("dy", "y"),
		)
	}

	euler := compileAndRun(t, build(project.Euler), EngineVM)
	final, _ := euler.Final("y")
	assert.InDelta(t, math.E, final, 5e-2)

	// classical RK4 truncation at this step size is ~h⁵/120 per step,
	// about 2e-8 total
	rk4 := compileAndRun(t, build(project.RK4), EngineVM)
	final, _ = rk4.Final("y")
	assert.InDelta(t, math.E, final, 1e-7)
}

func TestSmooth3Step(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 10, DT: 0.125, Method: project.Euler},
		aux("input", "if time >= 1 then 1 else 0"),
		aux("output", "smth3(input, 3)"),
	)
	res := bothEngines(t, p)

	series, err := res.Series("output")
	require.NoError(t, err)
	timeSeries, _ := res.Series("time")

	for i, tv := range timeSeries {
		if tv <= 1 {
			assert.InDelta(t, 0.0, series[i], 1e-12, "output should be 0 at t=%g", tv)
		}
	}
	// nine time units after the step the third-order response has
	// essentially converged, and it rises monotonically on the way
	final := series[len(series)-1]
	assert.Greater(t, final, 0.99)
	assert.Less(t, final, 1.0)
	for i := 1; i < len(series); i++ {
		assert.GreaterOrEqual(t, series[i]+1e-12, series[i-1])
	}
}

func TestArraySumReduction(t *testing.T) {
	p := &project.Project{
		Name:     "arrays",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 2, DT: 1},
		Dimensions: []project.Dimension{
			{Name: "d", Elements: []string{"a", "b", "c"}},
		},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Aux{
				Common:   project.Common{Ident: "x"},
				Equation: project.ApplyToAll{Dimensions: []string{"d"}, Equation: "d"},
			},
			aux("y", "sum(x)"),
		}}},
	}
	res := bothEngines(t, p)
	series, err := res.Series("y")
	require.NoError(t, err)
	for _, v := range series {
		assert.Equal(t, 6.0, v)
	}

	// x itself is saved as 3 columns holding 1, 2, 3
	for el := 0; el < 3; el++ {
		v, err := res.At("x", 0, el)
		require.NoError(t, err)
		assert.Equal(t, float64(el+1), v)
	}
}

func TestLookupScenario(t *testing.T) {
	gf := &project.GraphicalFunction{
		Kind:    project.Continuous,
		XPoints: []float64{0, 1, 2},
		YPoints: []float64{0, 10, 30},
	}
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		aux("in1", "0.5"),
		aux("in2", "1.5"),
		aux("in3", "-1"),
		aux("in4", "3"),
		&project.Aux{
			Common:   project.Common{Ident: "f"},
			Equation: project.Scalar{Equation: "in1"},
			GF:       gf,
		},
		aux("f2", "lookup(f, in2)"),
		aux("f3", "lookup(f, in3)"),
		aux("f4", "lookup(f, in4)"),
	)
	res := bothEngines(t, p)

	v, _ := res.At("f", 0, 0)
	assert.InDelta(t, 5.0, v, 1e-12)
	v, _ = res.At("f2", 0, 0)
	assert.InDelta(t, 20.0, v, 1e-12)
	v, _ = res.At("f3", 0, 0)
	assert.Equal(t, 0.0, v)
	v, _ = res.At("f4", 0, 0)
	assert.Equal(t, 30.0, v)
}

func TestTransposeNoCopy(t *testing.T) {
	p := &project.Project{
		Name:     "transpose",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		Dimensions: []project.Dimension{
			{Name: "d1", Size: 2},
			{Name: "d2", Size: 3},
		},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Aux{
				Common: project.Common{Ident: "a"},
				Equation: project.Arrayed{
					Dimensions: []string{"d1", "d2"},
					Elements: []project.Element{
						{Subscript: []string{"1", "1"}, Equation: "1"},
						{Subscript: []string{"1", "2"}, Equation: "2"},
						{Subscript: []string{"1", "3"}, Equation: "3"},
						{Subscript: []string{"2", "1"}, Equation: "4"},
						{Subscript: []string{"2", "2"}, Equation: "5"},
						{Subscript: []string{"2", "3"}, Equation: "6"},
					},
				},
			},
			&project.Aux{
				Common:   project.Common{Ident: "b"},
				Equation: project.ApplyToAll{Dimensions: []string{"d2", "d1"}, Equation: "a'"},
			},
		}}},
	}
	res := bothEngines(t, p)

	// b reads as [[1,4],[2,5],[3,6]]
	expected := []float64{1, 4, 2, 5, 3, 6}
	for el, want := range expected {
		v, err := res.At("b", 0, el)
		require.NoError(t, err)
		assert.Equal(t, want, v, "b element %d", el)
	}
}

func TestCycleDetection(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		aux("x", "y + 1"),
		aux("y", "x + 1"),
	)
	_, errs := Compile(p)
	require.True(t, errs.HasErrors())
	found := false
	for _, d := range errs {
		if d.Code == "STR001" {
			found = true
			assert.Contains(t, d.Message, "x")
			assert.Contains(t, d.Message, "y")
		}
	}
	assert.True(t, found, "expected a simultaneous equation error, got %v", errs)
}

func TestNonNegativeStockClamp(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 5, DT: 1},
		&project.Stock{
			Common:      project.Common{Ident: "tank"},
			Initial:     project.Scalar{Equation: "3"},
			Outflows:    []ident.Ident{"drain"},
			NonNegative: true,
		},
		flow("drain", "2"),
	)
	res := bothEngines(t, p)
	series, _ := res.Series("tank")
	assert.Equal(t, []float64{3, 1, 0, 0, 0, 0}, series)
}

func TestStepOrdering(t *testing.T) {
	// within a step, flows see the pre-update stock; the saved pair
	// (stock, flow) is consistent
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 3, DT: 1},
		stock("s", "10", []string{"f"}, nil),
		flow("f", "s"),
	)
	res := bothEngines(t, p)
	sSeries, _ := res.Series("s")
	fSeries, _ := res.Series("f")
	for i := range sSeries {
		assert.Equal(t, sSeries[i], fSeries[i], "flow must see current-step stock at row %d", i)
	}
	assert.Equal(t, []float64{10, 20, 40, 80}, sSeries)
}

func TestBroadcastAlgebra(t *testing.T) {
	p := &project.Project{
		Name:     "broadcast",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		Dimensions: []project.Dimension{
			{Name: "x", Size: 2},
			{Name: "y", Size: 3},
			{Name: "z", Size: 2},
		},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Aux{
				Common:   project.Common{Ident: "a"},
				Equation: project.ApplyToAll{Dimensions: []string{"x"}, Equation: "x * 10"},
			},
			&project.Aux{
				Common:   project.Common{Ident: "b"},
				Equation: project.ApplyToAll{Dimensions: []string{"y"}, Equation: "y"},
			},
			// same-size indexed dimensions match by size
			&project.Aux{
				Common:   project.Common{Ident: "a2"},
				Equation: project.ApplyToAll{Dimensions: []string{"z"}, Equation: "a + 1"},
			},
			// different names map into the destination positionally
			&project.Aux{
				Common:   project.Common{Ident: "c"},
				Equation: project.ApplyToAll{Dimensions: []string{"x", "y"}, Equation: "a + b"},
			},
		}}},
	}
	res := bothEngines(t, p)

	// (A+B)[i] with |z| = |x|: a2[i] = a[i] + 1
	for el := 0; el < 2; el++ {
		v, _ := res.At("a2", 0, el)
		assert.Equal(t, float64((el+1)*10+1), v)
	}
	// C[i,j] = A[i] + B[j]
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			v, _ := res.At("c", 0, i*3+j)
			assert.Equal(t, float64((i+1)*10+(j+1)), v, "c[%d,%d]", i, j)
		}
	}
}

func TestRangeInclusive(t *testing.T) {
	p := &project.Project{
		Name:     "ranges",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		Dimensions: []project.Dimension{
			{Name: "d", Size: 5},
		},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Aux{
				Common:   project.Common{Ident: "a"},
				Equation: project.ApplyToAll{Dimensions: []string{"d"}, Equation: "d"},
			},
			aux("n", "size(a[1:3])"),
			aux("s", "sum(a[1:3])"),
		}}},
	}
	res := bothEngines(t, p)
	v, _ := res.At("n", 0, 0)
	assert.Equal(t, 3.0, v)
	v, _ = res.At("s", 0, 0)
	assert.Equal(t, 6.0, v)
}

func TestModulePorts(t *testing.T) {
	p := &project.Project{
		Name:     "modules",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 2, DT: 1},
		Models: []*project.Model{
			{Name: "main", Variables: []project.Variable{
				aux("source", "time * 10"),
				&project.Module{
					Common:    project.Common{Ident: "doubler"},
					ModelName: "double",
					References: []project.Ref{
						{Src: "source", Dst: "doubler.input"},
					},
				},
				aux("result", "doubler.output"),
			}},
			{Name: "double", Variables: []project.Variable{
				aux("input", "0"),
				aux("output", "input * 2"),
			}},
		},
	}
	res := bothEngines(t, p)
	series, _ := res.Series("result")
	assert.Equal(t, []float64{0, 20, 40}, series)
}

func TestDeterministicSeeds(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 10, DT: 1},
		aux("noise", "rand(0, 100)"),
	)
	cp, errs := Compile(p)
	require.False(t, errs.HasErrors())

	r1, err := Simulate(cp, Options{Seed: 42})
	require.Nil(t, err)
	r2, err := Simulate(cp, Options{Seed: 42})
	require.Nil(t, err)
	assert.Equal(t, r1.Data, r2.Data)

	r3, err := Simulate(cp, Options{Seed: 43})
	require.Nil(t, err)
	assert.NotEqual(t, r1.Data, r3.Data)
}

func TestCancellation(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 1000, DT: 1},
		stock("s", "0", []string{"f"}, nil),
		flow("f", "1"),
	)
	cp, errs := Compile(p)
	require.False(t, errs.HasErrors())

	steps := 0
	_, err := Simulate(cp, Options{Cancel: func() bool {
		steps++
		return steps > 5
	}})
	require.NotNil(t, err)
	assert.Equal(t, "RT004", err.Code)
}

func TestSaveStep(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 10, DT: 0.25, SaveStep: 2},
		stock("s", "0", []string{"f"}, nil),
		flow("f", "1"),
	)
	res := bothEngines(t, p)
	require.Equal(t, 6, res.StepCount)
	timeSeries, _ := res.Series("time")
	assert.Equal(t, []float64{0, 2, 4, 6, 8, 10}, timeSeries)
}

func TestSignalBuiltins(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 10, DT: 1},
		aux("stepped", "step(5, 3)"),
		aux("ramped", "ramp(2, 2, 6)"),
		aux("pulsed", "pulse(4, 2, 4)"),
	)
	res := bothEngines(t, p)

	stepSeries, _ := res.Series("stepped")
	assert.Equal(t, 0.0, stepSeries[2])
	assert.Equal(t, 5.0, stepSeries[3])

	rampSeries, _ := res.Series("ramped")
	assert.Equal(t, 0.0, rampSeries[2])
	assert.Equal(t, 2.0, rampSeries[3])
	// the ramp stops rising at its end time
	assert.Equal(t, 8.0, rampSeries[7])
	assert.Equal(t, 8.0, rampSeries[10])

	pulseSeries, _ := res.Series("pulsed")
	assert.Equal(t, 0.0, pulseSeries[1])
	assert.Equal(t, 4.0, pulseSeries[2])
	assert.Equal(t, 0.0, pulseSeries[3])
	assert.Equal(t, 4.0, pulseSeries[6])
}

func TestDivisionByZeroIsIEEE(t *testing.T) {
	p := simpleProject(
		project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		aux("inf_val", "1 / 0"),
		aux("nan_val", "0 / 0"),
	)
	res := bothEngines(t, p)
	v, _ := res.At("inf_val", 0, 0)
	assert.True(t, math.IsInf(v, 1))
	v, _ = res.At("nan_val", 0, 0)
	assert.True(t, math.IsNaN(v))
}
