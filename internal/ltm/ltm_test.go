package ltm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
	"github.com/simlin-project/simlin/internal/sim"
)

func populationProject() *project.Project {
	return &project.Project{
		Name:     "population",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 10, DT: 1, Method: project.Euler},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Stock{
				Common:  project.Common{Ident: "population"},
				Initial: project.Scalar{Equation: "100"},
				Inflows: []ident.Ident{"births"},
			},
			&project.Flow{
				Common:   project.Common{Ident: "births"},
				Equation: project.Scalar{Equation: "population * birth_rate"},
			},
			&project.Aux{
				Common:   project.Common{Ident: "birth_rate"},
				Equation: project.Scalar{Equation: "0.1"},
			},
		}}},
	}
}

func TestWithLTMAddsScores(t *testing.T) {
	p := populationProject()
	augmented, errs := WithLTM(p)
	require.False(t, errs.HasErrors(), "%v", errs)

	// the original project is untouched
	assert.Len(t, p.Models[0].Variables, 3)

	m, _ := augmented.Model("main")
	names := make(map[ident.Ident]bool)
	for _, v := range m.Variables {
		names[v.Name()] = true
	}
	assert.True(t, names["ltm·ls·births·population"], "missing aux link score")
	assert.True(t, names["ltm·ls·population·births"], "missing stock link score")
	assert.True(t, names["ltm·loop_1"], "missing loop score")
	assert.True(t, names["rel_ltm·loop_1"], "missing relative loop score")
}

func TestSingleReinforcingLoopRelativeScoreIsOne(t *testing.T) {
	augmented, errs := WithLTM(populationProject())
	require.False(t, errs.HasErrors())

	cp, cerrs := sim.Compile(augmented)
	require.False(t, cerrs.HasErrors(), "compile: %v", cerrs)
	res, serr := sim.Simulate(cp, sim.Options{})
	require.Nil(t, serr)

	rel, err := res.Series("rel_ltm·loop_1")
	require.NoError(t, err)
	timeSeries, _ := res.Series("time")
	for i, tv := range timeSeries {
		if tv <= 0 {
			continue
		}
		assert.InDelta(t, 1.0, rel[i], 1e-9, "relative loop score at t=%g", tv)
	}

	// the aux link population→births carries full weight in a one-link
	// dependency
	ls, err := res.Series("ltm·ls·births·population")
	require.NoError(t, err)
	for i, tv := range timeSeries {
		if tv <= 0 {
			continue
		}
		assert.InDelta(t, 1.0, ls[i], 1e-9, "link score at t=%g", tv)
	}
}

func TestArrayedModelRejected(t *testing.T) {
	p := &project.Project{
		Name:     "arrays",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 1, DT: 1},
		Dimensions: []project.Dimension{
			{Name: "d", Elements: []string{"a", "b"}},
		},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Aux{
				Common:   project.Common{Ident: "x"},
				Equation: project.ApplyToAll{Dimensions: []string{"d"}, Equation: "1"},
			},
		}}},
	}
	_, errs := WithLTM(p)
	require.True(t, errs.HasErrors())
	assert.Equal(t, "LTM001", errs[0].Code)
}

func TestLoopEnumeration(t *testing.T) {
	// two coupled loops: a predator-prey-like structure
	p := &project.Project{
		Name:     "twoloops",
		SimSpecs: project.SimSpecs{Start: 0, Stop: 5, DT: 1},
		Models: []*project.Model{{Name: "main", Variables: []project.Variable{
			&project.Stock{
				Common:   project.Common{Ident: "s"},
				Initial:  project.Scalar{Equation: "50"},
				Inflows:  []ident.Ident{"grow"},
				Outflows: []ident.Ident{"shrink"},
			},
			&project.Flow{
				Common:   project.Common{Ident: "grow"},
				Equation: project.Scalar{Equation: "s * 0.1"},
			},
			&project.Flow{
				Common:   project.Common{Ident: "shrink"},
				Equation: project.Scalar{Equation: "s * s * 0.001"},
			},
		}}},
	}
	augmented, errs := WithLTM(p)
	require.False(t, errs.HasErrors())

	m, _ := augmented.Model("main")
	loops := 0
	for _, v := range m.Variables {
		if strings.HasPrefix(string(v.Name()), "ltm·loop_") {
			loops++
		}
	}
	assert.Equal(t, 2, loops)

	cp, cerrs := sim.Compile(augmented)
	require.False(t, cerrs.HasErrors(), "compile: %v", cerrs)
	res, serr := sim.Simulate(cp, sim.Options{})
	require.Nil(t, serr)

	// the two relative scores sum to 1 whenever either loop is active
	r1, _ := res.Series("rel_ltm·loop_1")
	r2, _ := res.Series("rel_ltm·loop_2")
	timeSeries, _ := res.Series("time")
	for i, tv := range timeSeries {
		if tv <= 0 {
			continue
		}
		if r1[i]+r2[i] > 0 {
			assert.InDelta(t, 1.0, r1[i]+r2[i], 1e-9, "at t=%g", tv)
		}
	}
}
