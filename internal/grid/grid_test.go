package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRows(t *testing.T) {
	g, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)
	assert.Equal(t, Shape{Rows: 2, Cols: 3}, g.Shape())
	assert.Equal(t, 6.0, g.At(1, 2))
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, g.RowSlices())

	_, err = FromRows([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestFromSliceCopies(t *testing.T) {
	src := []float64{1, 2, 3, 4}
	g, err := FromSlice(2, 2, src)
	require.NoError(t, err)
	src[0] = 99
	assert.Equal(t, 1.0, g.At(0, 0))

	_, err = FromSlice(3, 2, src)
	assert.ErrorIs(t, err, ErrBadShape)
}

func TestVectorEmpty(t *testing.T) {
	g := Vector()
	assert.True(t, g.Empty())
	assert.Equal(t, 0, g.Len())
}

func TestFiniteSkipsNoData(t *testing.T) {
	g := Vector(1, math.NaN(), 3, math.Inf(1))
	assert.Equal(t, []float64{1, 3}, g.Finite())
	assert.Equal(t, 2, g.CountFinite())
}

func TestMapPreservesNoData(t *testing.T) {
	g := Vector(1, math.NaN(), 3)
	out := g.Map(func(v float64) float64 { return v * 2 })
	assert.Equal(t, 2.0, out.Index(0))
	assert.True(t, math.IsNaN(out.Index(1)))
	assert.Equal(t, 6.0, out.Index(2))
	// input untouched
	assert.Equal(t, 1.0, g.Index(0))
}

func TestSummarize(t *testing.T) {
	s := Summarize(Vector(2, 4, 4, 4, 5, 5, 7, 9, math.NaN(), math.NaN()))
	assert.Equal(t, 10, s.Cells)
	assert.Equal(t, 8, s.Valid)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.0, s.Std, 1e-12)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.InDelta(t, 20.0, s.NoDataPercentage(), 1e-12)
}

func TestSummarizeAllNoData(t *testing.T) {
	s := Summarize(Vector(math.NaN(), math.NaN()))
	assert.Equal(t, Summary{Cells: 2}, s)
	assert.Equal(t, 100.0, s.NoDataPercentage())
}

func TestMask(t *testing.T) {
	m := NewMask(2, 2)
	m.Set(0, 1, true)
	m.Set(1, 1, true)
	assert.Equal(t, 2, m.Count())
	assert.Equal(t, []bool{false, true, false, true}, m.Bools())
	assert.Equal(t, []float64{0, 1, 0, 1}, m.Grid().Values())
}
