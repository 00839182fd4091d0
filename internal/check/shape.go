// Package check resolves identifiers and rewrites parsed equations into a
// shape-annotated form ready for lowering.
//
// The rewrite happens in the progressive stages the compiler needs:
// identifier resolution, array-bound assignment with N-dimensional
// matching, and extraction of temporaries for array-valued sub-expressions
// inside reductions.
package check

import (
	"github.com/simlin-project/simlin/internal/dims"
	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// ShapeDim is one logical dimension of an expression's shape.
type ShapeDim struct {
	Name ident.Ident
	Size int
	// Indexed is true when the dimension is indexed rather than named;
	// indexed dimensions may match by size during broadcasting.
	Indexed bool
}

// Shape is an ordered list of dimensions. Empty means scalar.
type Shape []ShapeDim

// IsScalar reports whether the shape has no array extent.
func (s Shape) IsScalar() bool { return len(s) == 0 }

// Size returns the total element count.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d.Size
	}
	return n
}

// Sizes returns just the extents.
func (s Shape) Sizes() []int {
	out := make([]int, len(s))
	for i, d := range s {
		out[i] = d.Size
	}
	return out
}

// Equal reports dimension-for-dimension equality by name and size.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name || s[i].Size != o[i].Size {
			return false
		}
	}
	return true
}

func shapeFromDims(ds []*dims.Dimension) Shape {
	out := make(Shape, len(ds))
	for i, d := range ds {
		out[i] = ShapeDim{Name: d.Name, Size: d.Len(), Indexed: d.IsIndexed()}
	}
	return out
}

// match maps every source dimension onto a target dimension, per the
// N-dimensional matching algorithm: first by name, then (for indexed
// dimensions) by size, and never named-to-differently-named. The mapping
// must be bijective and total over the source; target dimensions with no
// source counterpart broadcast. Returns, for each source axis, the index
// of its target axis.
func match(src, target Shape) ([]int, *errors.Diagnostic) {
	mapping := make([]int, len(src))
	used := make([]bool, len(target))

	// pass 1: by name
	for i, sd := range src {
		mapping[i] = -1
		for j, td := range target {
			if used[j] || td.Name == "" || td.Name != sd.Name {
				continue
			}
			mapping[i] = j
			used[j] = true
			break
		}
	}
	// pass 2: indexed dimensions match by size
	for i, sd := range src {
		if mapping[i] >= 0 {
			continue
		}
		if !sd.Indexed {
			return nil, errors.New(errors.TYP001,
				"dimension %s does not appear in the destination", sd.Name)
		}
		for j, td := range target {
			if used[j] || td.Size != sd.Size {
				continue
			}
			// indexed matches indexed by size; an anonymous axis (from a
			// range) matches any axis of equal size
			if !td.Indexed && sd.Name != "" {
				continue
			}
			mapping[i] = j
			used[j] = true
			break
		}
		if mapping[i] < 0 {
			return nil, errors.New(errors.TYP001,
				"no destination dimension of size %d for %s", sd.Size, sd.Name)
		}
	}
	return mapping, nil
}

// unify merges two operand shapes for element-wise evaluation outside any
// destination context (temporary shapes inside reductions). A scalar
// adapts to anything; otherwise dimensions must match bijectively by name
// or, for indexed dimensions, by size.
func unify(a, b Shape) (Shape, *errors.Diagnostic) {
	if a.IsScalar() {
		return b, nil
	}
	if b.IsScalar() {
		return a, nil
	}
	if len(b) > len(a) {
		a, b = b, a
	}
	if _, err := match(b, a); err != nil {
		return nil, err
	}
	return a, nil
}
