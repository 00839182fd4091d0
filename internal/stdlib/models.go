// Package stdlib holds the pre-authored models that stateful builtins
// expand into, and the expansion pass itself.
//
// The templates are ordinary projects' models: a SMOOTH call becomes a
// module instance whose stocks live in the instance's own state. All
// synthesized identifiers carry ident.SyntheticPrefix; user names that
// carry the same prefix are not rejected.
package stdlib

import (
	"github.com/simlin-project/simlin/internal/ident"
	"github.com/simlin-project/simlin/internal/project"
)

// Model names of the builtin templates.
const (
	ModelSmth1    ident.Ident = "$⁚smth1"
	ModelSmth3    ident.Ident = "$⁚smth3"
	ModelDelay1   ident.Ident = "$⁚delay1"
	ModelDelay3   ident.Ident = "$⁚delay3"
	ModelTrend    ident.Ident = "$⁚trend"
	ModelInit     ident.Ident = "$⁚init"
	ModelPrevious ident.Ident = "$⁚previous"
)

// Output is the conventional output port of every template.
const Output ident.Ident = "output"

func aux(name, eqn string) project.Variable {
	return &project.Aux{
		Common:   project.Common{Ident: ident.Ident(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func flow(name, eqn string) project.Variable {
	return &project.Flow{
		Common:   project.Common{Ident: ident.Ident(name)},
		Equation: project.Scalar{Equation: eqn},
	}
}

func stock(name, initial string, inflows, outflows []ident.Ident) project.Variable {
	return &project.Stock{
		Common:   project.Common{Ident: ident.Ident(name)},
		Initial:  project.Scalar{Equation: initial},
		Inflows:  inflows,
		Outflows: outflows,
	}
}

// Models returns fresh copies of every template model. The `input`,
// `delay`, and `initial` auxes are the ports; their default equations
// apply when a caller leaves the port unbound.
func Models() []*project.Model {
	return []*project.Model{
		{
			// first-order exponential smoothing
			Name: ModelSmth1,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("delay", "1"),
				aux("initial", "input"),
				stock("output", "initial", []ident.Ident{"adjust"}, nil),
				flow("adjust", "(input - output) / delay"),
			},
		},
		{
			// third-order smoothing: a cascade of three first-order stages
			Name: ModelSmth3,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("delay", "1"),
				aux("initial", "input"),
				aux("stage_delay", "delay / 3"),
				stock("s1", "initial", []ident.Ident{"a1"}, nil),
				flow("a1", "(input - s1) / stage_delay"),
				stock("s2", "initial", []ident.Ident{"a2"}, nil),
				flow("a2", "(s1 - s2) / stage_delay"),
				stock("output", "initial", []ident.Ident{"a3"}, nil),
				flow("a3", "(s2 - output) / stage_delay"),
			},
		},
		{
			// first-order material delay; conserves its inflow
			Name: ModelDelay1,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("delay", "1"),
				aux("initial", "input"),
				stock("accum", "initial * delay", []ident.Ident{"in"}, []ident.Ident{"out"}),
				flow("in", "input"),
				flow("out", "accum / delay"),
				aux("output", "out"),
			},
		},
		{
			// third-order material delay
			Name: ModelDelay3,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("delay", "1"),
				aux("initial", "input"),
				aux("stage_delay", "delay / 3"),
				stock("acc1", "initial * stage_delay", []ident.Ident{"in1"}, []ident.Ident{"out1"}),
				flow("in1", "input"),
				flow("out1", "acc1 / stage_delay"),
				stock("acc2", "initial * stage_delay", []ident.Ident{"in2"}, []ident.Ident{"out2"}),
				flow("in2", "out1"),
				flow("out2", "acc2 / stage_delay"),
				stock("acc3", "initial * stage_delay", []ident.Ident{"in3"}, []ident.Ident{"out3"}),
				flow("in3", "out2"),
				flow("out3", "acc3 / stage_delay"),
				aux("output", "out3"),
			},
		},
		{
			// fractional growth rate of the input over an averaging time
			Name: ModelTrend,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("delay", "1"),
				aux("initial", "0"),
				stock("average", "input / (1 + initial * delay)", []ident.Ident{"change"}, nil),
				flow("change", "(input - average) / delay"),
				aux("output", "if average = 0 then 0 else (input - average) / (average * delay)"),
			},
		},
		{
			// the value of the input at the initial time
			Name: ModelInit,
			Variables: []project.Variable{
				aux("input", "0"),
				stock("output", "input", nil, nil),
			},
		},
		{
			// one-step history: under Euler the stock takes on exactly the
			// previous step's input
			Name: ModelPrevious,
			Variables: []project.Variable{
				aux("input", "0"),
				aux("initial", "input"),
				stock("output", "initial", []ident.Ident{"chg"}, nil),
				flow("chg", "(input - output) / dt"),
			},
		},
	}
}

// builtinModel maps each stateful builtin to its template and the ports
// its positional arguments bind, in order.
var builtinModel = map[ident.Ident]struct {
	model ident.Ident
	ports []ident.Ident
}{
	"smooth":   {ModelSmth1, []ident.Ident{"input", "delay", "initial"}},
	"smth1":    {ModelSmth1, []ident.Ident{"input", "delay", "initial"}},
	"smth3":    {ModelSmth3, []ident.Ident{"input", "delay", "initial"}},
	"delay":    {ModelDelay1, []ident.Ident{"input", "delay", "initial"}},
	"delay1":   {ModelDelay1, []ident.Ident{"input", "delay", "initial"}},
	"delay3":   {ModelDelay3, []ident.Ident{"input", "delay", "initial"}},
	"trend":    {ModelTrend, []ident.Ident{"input", "delay", "initial"}},
	"init":     {ModelInit, []ident.Ident{"input"}},
	"previous": {ModelPrevious, []ident.Ident{"input", "initial"}},
}
