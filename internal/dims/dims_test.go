package dims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simlin-project/simlin/internal/ident"
)

func mustNamed(t *testing.T, name string, elements ...string) *Dimension {
	t.Helper()
	d, err := NewNamed(ident.Ident(name), elements)
	require.NoError(t, err)
	return d
}

func TestDimensionBasics(t *testing.T) {
	d := mustNamed(t, "location", "Boston", "Chicago", "LA")
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.IsIndexed())
	off, ok := d.ElementOffset("chicago")
	require.True(t, ok)
	assert.Equal(t, 1, off)
	_, ok = d.ElementOffset("miami")
	assert.False(t, ok)

	idx, err := NewIndexed("samples", 5)
	require.NoError(t, err)
	assert.True(t, idx.IsIndexed())
	assert.Equal(t, 5, idx.Len())

	_, err = NewIndexed("bad", 0)
	assert.Error(t, err)
	_, err = NewNamed("empty", nil)
	assert.Error(t, err)
	_, err = NewNamed("dup", []string{"A", "a"})
	assert.Error(t, err)
}

func TestSubdimensions(t *testing.T) {
	s := NewSet()
	require.Nil(t, s.Add(mustNamed(t, "location", "boston", "chicago", "la", "miami")))
	require.Nil(t, s.Add(mustNamed(t, "coastal", "boston", "miami")))
	require.Nil(t, s.Add(mustNamed(t, "unordered", "miami", "boston")))
	s.Freeze()

	assert.True(t, s.IsSubdimension("coastal", "location"))
	// order matters
	assert.False(t, s.IsSubdimension("unordered", "location"))
	assert.False(t, s.IsSubdimension("location", "coastal"))

	mask, ok := s.SubdimensionMask("coastal", "location")
	require.True(t, ok)
	assert.True(t, mask.Test(0))
	assert.False(t, mask.Test(1))
	assert.False(t, mask.Test(2))
	assert.True(t, mask.Test(3))
}

func TestDuplicateDimension(t *testing.T) {
	s := NewSet()
	require.Nil(t, s.Add(mustNamed(t, "d", "a")))
	assert.NotNil(t, s.Add(mustNamed(t, "d", "b")))
}

func collect(v *View) []int {
	var out []int
	v.Each(func(off int) { out = append(out, off) })
	return out
}

func TestContiguousView(t *testing.T) {
	d1 := mustNamed(t, "d1", "a", "b")
	d2 := mustNamed(t, "d2", "x", "y", "z")
	v := Contiguous(10, []*Dimension{d1, d2})

	assert.Equal(t, 2, v.Rank())
	assert.Equal(t, 6, v.Size())
	assert.Equal(t, []int{10, 11, 12, 13, 14, 15}, collect(v))
	assert.Equal(t, 13, v.OffsetAt([]int{1, 0}))
}

func TestSelectAndRange(t *testing.T) {
	d := mustNamed(t, "d", "a", "b", "c", "d", "e")
	v := Contiguous(0, []*Dimension{d})

	sel, err := v.Select(0, 2)
	require.NoError(t, err)
	assert.True(t, sel.IsScalar())
	assert.Equal(t, []int{2}, collect(sel))

	// ranges are inclusive on both ends: elements {1,2,3} of a size-5 axis
	rng, err := v.Range(0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, rng.Size())
	assert.Equal(t, []int{0, 1, 2}, collect(rng))

	_, err = v.Select(0, 5)
	assert.Error(t, err)
	_, err = v.Range(0, 3, 1)
	assert.Error(t, err)
}

func TestTransposeView(t *testing.T) {
	d1 := mustNamed(t, "d1", "r1", "r2")
	d2 := mustNamed(t, "d2", "c1", "c2", "c3")
	// values laid out row-major: [[1,2,3],[4,5,6]] at offsets 0..5
	v := Contiguous(0, []*Dimension{d1, d2})
	tr := v.Transpose()

	assert.Equal(t, []int{3, 2}, tr.Sizes())
	// reads as [[1,4],[2,5],[3,6]] without copying
	assert.Equal(t, []int{0, 3, 1, 4, 2, 5}, collect(tr))
}

func TestBroadcastAxis(t *testing.T) {
	d := mustNamed(t, "d", "a", "b", "c")
	v := Contiguous(0, []*Dimension{d})
	b := v.Broadcast(0, "e", 2)

	assert.Equal(t, []int{2, 3}, b.Sizes())
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, collect(b))
}

func TestSparseStarRange(t *testing.T) {
	s := NewSet()
	require.Nil(t, s.Add(mustNamed(t, "location", "boston", "chicago", "la", "miami")))
	require.Nil(t, s.Add(mustNamed(t, "coastal", "boston", "miami")))
	s.Freeze()

	loc, _ := s.Get("location")
	v := Contiguous(0, []*Dimension{loc})
	mask, _ := s.SubdimensionMask("coastal", "location")
	sparse, err := v.StarRange(0, "coastal", mask)
	require.NoError(t, err)

	assert.Equal(t, 2, sparse.Size())
	assert.Equal(t, []int{0, 3}, collect(sparse))
}

func TestScalarView(t *testing.T) {
	v := Scalar(7)
	assert.True(t, v.IsScalar())
	assert.Equal(t, []int{7}, collect(v))
}

func TestReorder(t *testing.T) {
	v := ContiguousSizes(0, []int{2, 3, 4})
	r := v.Reorder([]int{2, 0, 1})
	assert.Equal(t, []int{4, 2, 3}, r.Sizes())
	assert.Equal(t, v.OffsetAt([]int{1, 2, 3}), r.OffsetAt([]int{3, 1, 2}))
}
