package sim

import (
	"fmt"
	"sort"
)

// Results is the packed time-series output of one simulation: a row-major,
// time-major matrix with one column block per saved variable. It is
// allocated once at simulation start, written once per saved step, and
// frozen on completion.
type Results struct {
	// StepSize is the number of doubles per row.
	StepSize int
	// StepCount is the number of saved rows.
	StepCount int
	// Data is the flat matrix, len = StepSize * StepCount.
	Data []float64
	// Offsets maps a saved variable to its column within a row.
	Offsets map[string]int
	// Sizes maps a saved variable to its element count (1 for scalars).
	Sizes map[string]int
}

// Names returns the saved variables in column order.
func (r *Results) Names() []string {
	names := make([]string, 0, len(r.Offsets))
	for name := range r.Offsets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r.Offsets[names[i]] < r.Offsets[names[j]] })
	return names
}

// Series returns the time series of a scalar variable (or the first
// element of an arrayed one).
func (r *Results) Series(name string) ([]float64, error) {
	col, ok := r.Offsets[name]
	if !ok {
		return nil, fmt.Errorf("no saved variable %q", name)
	}
	out := make([]float64, r.StepCount)
	for step := 0; step < r.StepCount; step++ {
		out[step] = r.Data[step*r.StepSize+col]
	}
	return out, nil
}

// At returns one element of a variable at a saved step.
func (r *Results) At(name string, step, element int) (float64, error) {
	col, ok := r.Offsets[name]
	if !ok {
		return 0, fmt.Errorf("no saved variable %q", name)
	}
	if step < 0 || step >= r.StepCount {
		return 0, fmt.Errorf("step %d out of range", step)
	}
	if element < 0 || element >= r.Sizes[name] {
		return 0, fmt.Errorf("element %d out of range for %q", element, name)
	}
	return r.Data[step*r.StepSize+col+element], nil
}

// Final returns a variable's value at the last saved step.
func (r *Results) Final(name string) (float64, error) {
	if r.StepCount == 0 {
		return 0, fmt.Errorf("empty results")
	}
	return r.At(name, r.StepCount-1, 0)
}
