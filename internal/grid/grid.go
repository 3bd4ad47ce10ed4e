// Package grid holds the in-memory raster representation shared by the
// scoring core and the storage engines: a row-major float64 array in which
// NaN (or an infinity) marks a no-data cell.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// NoData is the sentinel written into cells that lack a valid measurement.
var NoData = math.NaN()

var ErrBadShape = errors.New("grid: bad shape")

// Shape is the rows x cols extent of a grid.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Rows, s.Cols) }

// Len returns the number of cells.
func (s Shape) Len() int { return s.Rows * s.Cols }

// Grid is a 2-D array of float64 values. The zero value is an empty grid.
// Grids returned by the scoring functions are never modified afterwards;
// Set exists for builders and storage engines.
type Grid struct {
	rows, cols int
	data       []float64
}

// New returns a zero-filled grid.
func New(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Grid{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// Full returns a grid with every cell set to v.
func Full(rows, cols int, v float64) *Grid {
	g := New(rows, cols)
	for i := range g.data {
		g.data[i] = v
	}
	return g
}

// FromSlice copies data (row-major) into a new grid.
func FromSlice(rows, cols int, data []float64) (*Grid, error) {
	if rows < 0 || cols < 0 || rows*cols != len(data) {
		return nil, fmt.Errorf("%w: %dx%d with %d values", ErrBadShape, rows, cols, len(data))
	}
	g := New(rows, cols)
	copy(g.data, data)
	return g, nil
}

// FromRows builds a grid from a slice of equally long rows.
func FromRows(rows [][]float64) (*Grid, error) {
	if len(rows) == 0 {
		return New(0, 0), nil
	}
	cols := len(rows[0])
	g := New(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrBadShape, r, len(row), cols)
		}
		copy(g.data[r*cols:], row)
	}
	return g, nil
}

// Vector builds a single-row grid; handy for one-dimensional inputs.
func Vector(values ...float64) *Grid {
	g := New(1, len(values))
	copy(g.data, values)
	if len(values) == 0 {
		g.rows = 0
	}
	return g
}

func (g *Grid) Rows() int    { return g.rows }
func (g *Grid) Cols() int    { return g.cols }
func (g *Grid) Len() int     { return len(g.data) }
func (g *Grid) Shape() Shape { return Shape{Rows: g.rows, Cols: g.cols} }

// Empty reports whether the grid has no cells.
func (g *Grid) Empty() bool { return g == nil || len(g.data) == 0 }

func (g *Grid) At(r, c int) float64 { return g.data[r*g.cols+c] }

func (g *Grid) Set(r, c int, v float64) { g.data[r*g.cols+c] = v }

// Index returns the value of the i-th cell in row-major order.
func (g *Grid) Index(i int) float64 { return g.data[i] }

// Values returns a copy of the cell values in row-major order.
func (g *Grid) Values() []float64 {
	out := make([]float64, len(g.data))
	copy(out, g.data)
	return out
}

// RowSlices returns a copy of the grid as a slice of rows.
func (g *Grid) RowSlices() [][]float64 {
	out := make([][]float64, g.rows)
	for r := 0; r < g.rows; r++ {
		row := make([]float64, g.cols)
		copy(row, g.data[r*g.cols:(r+1)*g.cols])
		out[r] = row
	}
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := New(g.rows, g.cols)
	copy(c.data, g.data)
	return c
}

// SameShape reports whether both grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.rows == o.rows && g.cols == o.cols
}

// Map returns a new grid with fn applied to every finite cell. No-data cells
// are copied through untouched.
func (g *Grid) Map(fn func(float64) float64) *Grid {
	out := New(g.rows, g.cols)
	for i, v := range g.data {
		if IsNoData(v) {
			out.data[i] = NoData
			continue
		}
		out.data[i] = fn(v)
	}
	return out
}

// Finite returns the finite cell values in row-major order.
func (g *Grid) Finite() []float64 {
	out := make([]float64, 0, len(g.data))
	for _, v := range g.data {
		if !IsNoData(v) {
			out = append(out, v)
		}
	}
	return out
}

// CountFinite returns the number of cells holding a valid measurement.
func (g *Grid) CountFinite() int {
	n := 0
	for _, v := range g.data {
		if !IsNoData(v) {
			n++
		}
	}
	return n
}

// IsNoData reports whether v is the no-data marker or otherwise not finite.
func IsNoData(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
