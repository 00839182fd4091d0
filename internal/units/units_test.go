package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/parser"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected Unit
	}{
		{"", Dimensionless()},
		{"people", Unit{"people": 1}},
		{"people/year", Unit{"people": 1, "year": -1}},
		{"1/year", Unit{"year": -1}},
		{"m^2", Unit{"m": 2}},
		{"m^-1", Unit{"m": -1}},
		{"kg*m/s^2", Unit{"kg": 1, "m": 1, "s": -2}},
		{"people/(year*person)", Unit{"people": 1, "year": -1, "person": -1}},
		{"Widgets", Unit{"widgets": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := Parse(tt.input)
			require.Nil(t, err)
			assert.True(t, tt.expected.Equal(u), "got %s, want %s", u, tt.expected)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"2", "m^x", "m*", "(m", "m+s"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.NotNil(t, err)
			assert.Equal(t, errors.UNI002, err.Code)
		})
	}
}

func TestAlgebra(t *testing.T) {
	m := Unit{"m": 1}
	s := Unit{"s": 1}
	assert.True(t, m.Mul(s).Equal(Unit{"m": 1, "s": 1}))
	assert.True(t, m.Div(s).Equal(Unit{"m": 1, "s": -1}))
	assert.True(t, m.Div(m).IsDimensionless())
	assert.True(t, m.Pow(2).Equal(Unit{"m": 2}))
	assert.Equal(t, "m/s^2", Unit{"m": 1, "s": -2}.String())
}

func checkEq(t *testing.T, eqn string, env *Env) (Unit, errors.List) {
	t.Helper()
	e, perrs := parser.Parse(eqn)
	require.False(t, perrs.HasErrors())
	return Check(e, env)
}

func TestCheckConsistency(t *testing.T) {
	env := &Env{
		Vars: map[ident.Ident]Unit{
			"population": {"people": 1},
			"birth_rate": {"year": -1},
			"births":     {"people": 1, "year": -1},
			"area":       {"m": 2},
		},
		Time: Unit{"year": 1},
	}

	u, errs := checkEq(t, "population * birth_rate", env)
	assert.False(t, errs.HasErrors())
	assert.True(t, u.Equal(Unit{"people": 1, "year": -1}))

	u, errs = checkEq(t, "births * time()", env)
	assert.False(t, errs.HasErrors())
	assert.True(t, u.Equal(Unit{"people": 1}))

	// constants are unconstrained
	_, errs = checkEq(t, "population + 10", env)
	assert.False(t, errs.HasErrors())

	// comparisons require matching units but are themselves dimensionless
	u, errs = checkEq(t, "population > births", env)
	assert.True(t, errs.HasErrors())
	_, errs = checkEq(t, "if population > 5 then 1 else 0", env)
	assert.False(t, errs.HasErrors())

	_, errs = checkEq(t, "population + birth_rate", env)
	require.True(t, errs.HasErrors())
	assert.Equal(t, errors.UNI001, errs[0].Code)

	_, errs = checkEq(t, "area ^ population", env)
	assert.True(t, errs.HasErrors())

	u, errs = checkEq(t, "area ^ 2", env)
	assert.False(t, errs.HasErrors())
	assert.True(t, u.Equal(Unit{"m": 4}))
}
