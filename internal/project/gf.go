package project

import (
	"github.com/simlin-project/simlin/internal/errors"
)

// GFKind selects how a graphical function treats inputs between and beyond
// its points.
type GFKind int

const (
	// Continuous linearly interpolates and clamps at the ends.
	Continuous GFKind = iota
	// Extrapolate linearly extrapolates past the ends.
	Extrapolate
	// Discrete is a step function.
	Discrete
)

func (k GFKind) String() string {
	switch k {
	case Extrapolate:
		return "extrapolate"
	case Discrete:
		return "discrete"
	}
	return "continuous"
}

// GraphicalFunction is a lookup table: y-values plus either explicit
// x-values or an implicit uniform x-scale.
type GraphicalFunction struct {
	Kind    GFKind
	YPoints []float64
	XPoints []float64 // nil means uniform over XScale
	XScale  [2]float64
}

// Clone deep-copies the function; nil in, nil out.
func (gf *GraphicalFunction) Clone() *GraphicalFunction {
	if gf == nil {
		return nil
	}
	out := *gf
	out.YPoints = append([]float64(nil), gf.YPoints...)
	out.XPoints = append([]float64(nil), gf.XPoints...)
	return &out
}

// Validate checks the lookup invariants: y-points non-empty, explicit
// x-points strictly increasing and matching the y count.
func (gf *GraphicalFunction) Validate() *errors.Diagnostic {
	if len(gf.YPoints) == 0 {
		return errors.New(errors.RT002, "graphical function has no y points")
	}
	if gf.XPoints != nil {
		if len(gf.XPoints) != len(gf.YPoints) {
			return errors.New(errors.RT002, "graphical function has %d x points but %d y points",
				len(gf.XPoints), len(gf.YPoints))
		}
		for i := 1; i < len(gf.XPoints); i++ {
			if gf.XPoints[i] <= gf.XPoints[i-1] {
				return errors.New(errors.RT002, "graphical function x points must be strictly increasing")
			}
		}
	}
	return nil
}

// X returns the x coordinate of point i.
func (gf *GraphicalFunction) X(i int) float64 {
	if gf.XPoints != nil {
		return gf.XPoints[i]
	}
	if len(gf.YPoints) == 1 {
		return gf.XScale[0]
	}
	span := gf.XScale[1] - gf.XScale[0]
	return gf.XScale[0] + span*float64(i)/float64(len(gf.YPoints)-1)
}

// Lookup evaluates the function at x. NaN propagates.
func (gf *GraphicalFunction) Lookup(x float64) float64 {
	if x != x {
		return x
	}
	n := len(gf.YPoints)
	if n == 1 {
		return gf.YPoints[0]
	}

	lo, hi := gf.X(0), gf.X(n-1)
	switch {
	case x <= lo:
		if gf.Kind == Extrapolate && x < lo {
			return gf.YPoints[0] + (x-lo)*(gf.YPoints[1]-gf.YPoints[0])/(gf.X(1)-lo)
		}
		return gf.YPoints[0]
	case x >= hi:
		if gf.Kind == Extrapolate && x > hi {
			prev := gf.X(n - 2)
			return gf.YPoints[n-1] + (x-hi)*(gf.YPoints[n-1]-gf.YPoints[n-2])/(hi-prev)
		}
		return gf.YPoints[n-1]
	}

	// find i with x(i) <= x < x(i+1)
	i := 0
	for i < n-2 && gf.X(i+1) <= x {
		i++
	}
	if gf.Kind == Discrete {
		return gf.YPoints[i]
	}
	x0, x1 := gf.X(i), gf.X(i+1)
	t := (x - x0) / (x1 - x0)
	return gf.YPoints[i] + t*(gf.YPoints[i+1]-gf.YPoints[i])
}
