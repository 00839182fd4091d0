package builtins

import (
	"math"

	"github.com/simlin-project/simlin/internal/ident"
)

// Env carries the simulation clock and RNG the signal and time builtins
// read. Both evaluators share these implementations, which is what keeps
// the interpreter an exact oracle for the VM.
type Env struct {
	Time  float64
	DT    float64
	Start float64
	Stop  float64
	RNG   *Rand
}

// Rand is a small deterministic xorshift generator; identical seeds give
// identical simulations bit for bit.
type Rand struct {
	state uint64
}

// NewRand seeds a generator. A zero seed is mapped to a fixed nonzero
// default.
func NewRand(seed uint64) *Rand {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &Rand{state: seed}
}

// Next returns a uniform float64 in [0, 1).
func (r *Rand) Next() float64 {
	x := r.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.state = x
	return float64(x>>11) / float64(1<<53)
}

// Call evaluates a pure builtin over scalar arguments. Unknown names
// return NaN; the checker guarantees they cannot reach evaluation.
func Call(name ident.Ident, args []float64, env *Env) float64 {
	arg := func(i int, dflt float64) float64 {
		if i < len(args) {
			return args[i]
		}
		return dflt
	}

	switch name {
	case "abs":
		return math.Abs(args[0])
	case "exp":
		return math.Exp(args[0])
	case "ln":
		return math.Log(args[0])
	case "log10":
		return math.Log10(args[0])
	case "sqrt":
		return math.Sqrt(args[0])
	case "sin":
		return math.Sin(args[0])
	case "cos":
		return math.Cos(args[0])
	case "tan":
		return math.Tan(args[0])
	case "arcsin":
		return math.Asin(args[0])
	case "arccos":
		return math.Acos(args[0])
	case "arctan":
		return math.Atan(args[0])
	case "int":
		return math.Trunc(args[0])
	case "sign":
		switch {
		case args[0] > 0:
			return 1
		case args[0] < 0:
			return -1
		}
		return args[0] // preserves 0 and NaN
	case "min":
		return math.Min(args[0], args[1])
	case "max":
		return math.Max(args[0], args[1])
	case "pulse":
		return pulse(args[0], arg(1, 0), arg(2, 0), env)
	case "step":
		if env.Time >= args[1] {
			return args[0]
		}
		return 0
	case "ramp":
		return ramp(args[0], args[1], arg(2, math.Inf(1)), env)
	case "rand":
		u := env.RNG.Next()
		if len(args) == 2 {
			return args[0] + u*(args[1]-args[0])
		}
		return u
	}
	return math.NaN()
}

// pulse emits volume/dt at first and then every interval thereafter; a
// non-positive interval gives a single pulse.
func pulse(volume, first, interval float64, env *Env) float64 {
	t, dt := env.Time, env.DT
	if dt <= 0 {
		return 0
	}
	if interval <= 0 {
		if t >= first && t < first+dt {
			return volume / dt
		}
		return 0
	}
	if t < first {
		return 0
	}
	k := math.Floor((t - first) / interval)
	next := first + k*interval
	if t >= next && t < next+dt {
		return volume / dt
	}
	return 0
}

// Reduce folds a row-major element sequence. Both evaluators collect
// elements in the same order and call this, so their results agree
// exactly.
func Reduce(op string, vals []float64) float64 {
	switch op {
	case "size":
		return float64(len(vals))
	case "sum":
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s
	case "mean":
		if len(vals) == 0 {
			return math.NaN()
		}
		s := 0.0
		for _, v := range vals {
			s += v
		}
		return s / float64(len(vals))
	case "stddev":
		if len(vals) == 0 {
			return math.NaN()
		}
		m := Reduce("mean", vals)
		s := 0.0
		for _, v := range vals {
			d := v - m
			s += d * d
		}
		return math.Sqrt(s / float64(len(vals)))
	case "min":
		if len(vals) == 0 {
			return math.NaN()
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m
	case "max":
		if len(vals) == 0 {
			return math.NaN()
		}
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m
	}
	return math.NaN()
}

// Rank returns the n-th largest element, 1-based; n=1 is the maximum.
// Out-of-range n yields NaN.
func Rank(vals []float64, n int) float64 {
	if n < 1 || n > len(vals) {
		return math.NaN()
	}
	sorted := append([]float64(nil), vals...)
	sortDescending(sorted)
	return sorted[n-1]
}

func sortDescending(vals []float64) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j] > vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
}

func ramp(slope, start, end float64, env *Env) float64 {
	t := env.Time
	if t <= start {
		return 0
	}
	if t > end {
		t = end
	}
	return slope * (t - start)
}
