package dims

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/simlin-project/simlin/internal/ident"
)

// Axis is one logical dimension of a View.
type Axis struct {
	// Name is the dimension name this axis iterates; empty for axes that
	// were synthesized (broadcast or temporary).
	Name ident.Ident
	// Size is the logical element count along this axis.
	Size int
	// Stride is the physical stride in the backing array. A zero stride
	// broadcasts: every logical position reads the same slot.
	Stride int
	// Mask, when set, restricts iteration to the marked physical
	// positions of a parent extent (sparse subdimension splats). Size is
	// then the popcount of Mask.
	Mask *bitset.BitSet
}

// View describes how to read or write a logical k-dimensional tile from a
// flat backing array without copying.
type View struct {
	Offset int
	Axes   []Axis
}

// Contiguous builds a dense row-major view over the given dimensions.
func Contiguous(offset int, dimensions []*Dimension) *View {
	v := &View{Offset: offset, Axes: make([]Axis, len(dimensions))}
	stride := 1
	for i := len(dimensions) - 1; i >= 0; i-- {
		v.Axes[i] = Axis{Name: dimensions[i].Name, Size: dimensions[i].Len(), Stride: stride}
		stride *= dimensions[i].Len()
	}
	return v
}

// ContiguousSizes builds a dense row-major view over anonymous extents,
// used for temporaries.
func ContiguousSizes(offset int, sizes []int) *View {
	v := &View{Offset: offset, Axes: make([]Axis, len(sizes))}
	stride := 1
	for i := len(sizes) - 1; i >= 0; i-- {
		v.Axes[i] = Axis{Size: sizes[i], Stride: stride}
		stride *= sizes[i]
	}
	return v
}

// Scalar is the zero-rank view of a single slot.
func Scalar(offset int) *View {
	return &View{Offset: offset}
}

// Rank returns the number of axes.
func (v *View) Rank() int { return len(v.Axes) }

// Size returns the total logical element count.
func (v *View) Size() int {
	n := 1
	for _, ax := range v.Axes {
		n *= ax.Size
	}
	return n
}

// IsScalar reports whether the view degenerates to a single element.
func (v *View) IsScalar() bool { return v.Size() == 1 }

// Sizes returns the logical extent of every axis.
func (v *View) Sizes() []int {
	out := make([]int, len(v.Axes))
	for i, ax := range v.Axes {
		out[i] = ax.Size
	}
	return out
}

// Clone returns a deep copy; masks are shared (they are immutable after
// Freeze).
func (v *View) Clone() *View {
	out := &View{Offset: v.Offset, Axes: make([]Axis, len(v.Axes))}
	copy(out.Axes, v.Axes)
	return out
}

// Select fixes axis to the 0-based index idx, dropping the axis.
func (v *View) Select(axis, idx int) (*View, error) {
	if axis < 0 || axis >= len(v.Axes) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(v.Axes))
	}
	ax := v.Axes[axis]
	if idx < 0 || idx >= ax.Size {
		return nil, fmt.Errorf("index %d out of range for axis of size %d", idx+1, ax.Size)
	}
	phys := idx
	if ax.Mask != nil {
		phys = nthSetBit(ax.Mask, idx)
	}
	out := v.Clone()
	out.Offset += phys * ax.Stride
	out.Axes = append(out.Axes[:axis], out.Axes[axis+1:]...)
	return out, nil
}

// Range restricts axis to the inclusive 0-based range [lo, hi], keeping
// the axis.
func (v *View) Range(axis, lo, hi int) (*View, error) {
	if axis < 0 || axis >= len(v.Axes) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(v.Axes))
	}
	ax := v.Axes[axis]
	if ax.Mask != nil {
		return nil, fmt.Errorf("cannot take a range of a sparse axis")
	}
	if lo < 0 || hi >= ax.Size || lo > hi {
		return nil, fmt.Errorf("range %d:%d out of bounds for axis of size %d", lo+1, hi+1, ax.Size)
	}
	out := v.Clone()
	out.Offset += lo * ax.Stride
	out.Axes[axis].Size = hi - lo + 1
	// a range breaks the tie to the full dimension's name
	out.Axes[axis].Name = ""
	return out, nil
}

// StarRange masks axis with a subdimension bitmap; the logical size becomes
// the subdimension's element count and the axis takes its name.
func (v *View) StarRange(axis int, sub ident.Ident, mask *bitset.BitSet) (*View, error) {
	if axis < 0 || axis >= len(v.Axes) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(v.Axes))
	}
	if v.Axes[axis].Mask != nil {
		return nil, fmt.Errorf("axis is already sparse")
	}
	out := v.Clone()
	out.Axes[axis].Mask = mask
	out.Axes[axis].Size = int(mask.Count())
	out.Axes[axis].Name = sub
	return out, nil
}

// Transpose reverses the axes. No data moves.
func (v *View) Transpose() *View {
	out := v.Clone()
	for i, j := 0, len(out.Axes)-1; i < j; i, j = i+1, j-1 {
		out.Axes[i], out.Axes[j] = out.Axes[j], out.Axes[i]
	}
	return out
}

// Broadcast inserts a stride-0 axis at position axis.
func (v *View) Broadcast(axis int, name ident.Ident, size int) *View {
	out := v.Clone()
	out.Axes = append(out.Axes, Axis{})
	copy(out.Axes[axis+1:], out.Axes[axis:])
	out.Axes[axis] = Axis{Name: name, Size: size, Stride: 0}
	return out
}

// Reorder permutes the axes; perm[i] names the old axis that becomes axis i.
func (v *View) Reorder(perm []int) *View {
	out := v.Clone()
	for i, p := range perm {
		out.Axes[i] = v.Axes[p]
	}
	return out
}

// OffsetAt resolves logical per-axis indices to a physical offset.
func (v *View) OffsetAt(indices []int) int {
	off := v.Offset
	for i, idx := range indices {
		ax := v.Axes[i]
		phys := idx
		if ax.Mask != nil {
			phys = nthSetBit(ax.Mask, idx)
		}
		off += phys * ax.Stride
	}
	return off
}

// Each calls fn with the physical offset of every logical element in
// row-major order.
func (v *View) Each(fn func(off int)) {
	it := v.Iter()
	for {
		off, ok := it.Next()
		if !ok {
			return
		}
		fn(off)
	}
}

// Iter returns a row-major iterator over physical offsets.
func (v *View) Iter() *Iter {
	it := &Iter{view: v, idx: make([]int, len(v.Axes))}
	return it
}

// Iter walks a view's elements in row-major logical order.
type Iter struct {
	view *View
	idx  []int
	done bool
}

// Next returns the next physical offset. The second result is false once
// the view is exhausted.
func (it *Iter) Next() (int, bool) {
	if it.done {
		return 0, false
	}
	v := it.view
	off := v.OffsetAt(it.idx)
	for i := len(it.idx) - 1; ; i-- {
		if i < 0 {
			it.done = true
			break
		}
		it.idx[i]++
		if it.idx[i] < v.Axes[i].Size {
			break
		}
		it.idx[i] = 0
	}
	return off, true
}

// Reset rewinds the iterator.
func (it *Iter) Reset() {
	for i := range it.idx {
		it.idx[i] = 0
	}
	it.done = false
}

// EachFixed iterates a view with some axes pinned: fixed[i] >= 0 pins
// axis i to that logical index, a negative entry iterates the axis. Visit
// order is row-major over the iterated axes.
func EachFixed(v *View, fixed []int, visit func(off int)) {
	idx := make([]int, len(v.Axes))
	var walk func(axis int)
	walk = func(axis int) {
		if axis == len(v.Axes) {
			visit(v.OffsetAt(idx))
			return
		}
		if fixed[axis] >= 0 {
			idx[axis] = fixed[axis]
			walk(axis + 1)
			return
		}
		for i := 0; i < v.Axes[axis].Size; i++ {
			idx[axis] = i
			walk(axis + 1)
		}
	}
	walk(0)
}

func nthSetBit(mask *bitset.BitSet, n int) int {
	idx := uint(0)
	for i := 0; ; i++ {
		next, ok := mask.NextSet(idx)
		if !ok {
			return -1
		}
		if i == n {
			return int(next)
		}
		idx = next + 1
	}
}
