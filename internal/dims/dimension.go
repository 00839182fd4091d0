// Package dims models named and indexed dimensions and the strided array
// views built from them.
//
// Dimensions are registered once in a Set; after Freeze, membership and
// subdimension queries are O(1).
package dims

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/simlin-project/simlin/internal/errors"
	"github.com/simlin-project/simlin/internal/ident"
)

// Dimension is either indexed (a size; elements are 1..n) or named (an
// ordered list of unique element names).
type Dimension struct {
	Name     ident.Ident
	size     int
	Elements []ident.Ident // nil for indexed dimensions

	elemIndex map[ident.Ident]int
}

// NewIndexed builds an indexed dimension of the given positive size.
func NewIndexed(name ident.Ident, n int) (*Dimension, error) {
	if n < 1 {
		return nil, fmt.Errorf("dimension %s: size must be positive, got %d", name, n)
	}
	return &Dimension{Name: name, size: n}, nil
}

// NewNamed builds a named dimension. Element names are canonicalized and
// must be unique afterwards.
func NewNamed(name ident.Ident, elements []string) (*Dimension, error) {
	if len(elements) == 0 {
		return nil, fmt.Errorf("dimension %s: needs at least one element", name)
	}
	d := &Dimension{
		Name:      name,
		size:      len(elements),
		Elements:  make([]ident.Ident, len(elements)),
		elemIndex: make(map[ident.Ident]int, len(elements)),
	}
	for i, el := range elements {
		canon := ident.Canonicalize(el)
		if _, dup := d.elemIndex[canon]; dup {
			return nil, fmt.Errorf("dimension %s: duplicate element %s", name, canon)
		}
		d.Elements[i] = canon
		d.elemIndex[canon] = i
	}
	return d, nil
}

// Len returns the number of elements.
func (d *Dimension) Len() int { return d.size }

// IsIndexed reports whether the dimension is indexed rather than named.
func (d *Dimension) IsIndexed() bool { return d.Elements == nil }

// ElementOffset returns the 0-based offset of a named element.
func (d *Dimension) ElementOffset(el ident.Ident) (int, bool) {
	if d.elemIndex == nil {
		return 0, false
	}
	off, ok := d.elemIndex[el]
	return off, ok
}

// Set is a project's dimension registry.
type Set struct {
	byName map[ident.Ident]*Dimension
	order  []*Dimension

	// sub → parent → per-element bitmap, precomputed by Freeze
	subOf map[ident.Ident]map[ident.Ident]*bitset.BitSet
}

// NewSet creates an empty dimension registry.
func NewSet() *Set {
	return &Set{
		byName: make(map[ident.Ident]*Dimension),
		subOf:  make(map[ident.Ident]map[ident.Ident]*bitset.BitSet),
	}
}

// Add registers a dimension. Names must be unique within a project.
func (s *Set) Add(d *Dimension) *errors.Diagnostic {
	if _, dup := s.byName[d.Name]; dup {
		return errors.New(errors.RES003, "duplicate dimension %s", d.Name)
	}
	s.byName[d.Name] = d
	s.order = append(s.order, d)
	return nil
}

// Get looks up a dimension by canonical name.
func (s *Set) Get(name ident.Ident) (*Dimension, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// All returns the dimensions in registration order.
func (s *Set) All() []*Dimension { return s.order }

// Freeze precomputes the subdimension relation. A named dimension is a
// subdimension of another when its elements appear, in order, within the
// other's elements.
func (s *Set) Freeze() {
	for _, sub := range s.order {
		if sub.IsIndexed() {
			continue
		}
		for _, parent := range s.order {
			if parent == sub || parent.IsIndexed() {
				continue
			}
			if mask, ok := subsetInOrder(sub, parent); ok {
				if s.subOf[sub.Name] == nil {
					s.subOf[sub.Name] = make(map[ident.Ident]*bitset.BitSet)
				}
				s.subOf[sub.Name][parent.Name] = mask
			}
		}
	}
}

func subsetInOrder(sub, parent *Dimension) (*bitset.BitSet, bool) {
	mask := bitset.New(uint(parent.Len()))
	pi := 0
	for _, el := range sub.Elements {
		found := false
		for ; pi < parent.Len(); pi++ {
			if parent.Elements[pi] == el {
				mask.Set(uint(pi))
				pi++
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return mask, true
}

// IsSubdimension reports whether sub's elements are an ordered subset of
// parent's. O(1) after Freeze.
func (s *Set) IsSubdimension(sub, parent ident.Ident) bool {
	_, ok := s.subOf[sub][parent]
	return ok
}

// SubdimensionMask returns the bitmap of parent element positions that
// belong to sub.
func (s *Set) SubdimensionMask(sub, parent ident.Ident) (*bitset.BitSet, bool) {
	mask, ok := s.subOf[sub][parent]
	return mask, ok
}
