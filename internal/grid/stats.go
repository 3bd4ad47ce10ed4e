package grid

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the finite cells of a grid. Statistics are zero when the
// grid holds no finite value.
type Summary struct {
	Cells int     `json:"cells"`
	Valid int     `json:"valid"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// NoDataPercentage returns the share of cells without a valid value.
func (s Summary) NoDataPercentage() float64 {
	if s.Cells == 0 {
		return 0
	}
	return (1 - float64(s.Valid)/float64(s.Cells)) * 100
}

// Summarize computes population statistics over the finite cells.
func Summarize(g *Grid) Summary {
	s := Summary{Cells: g.Len()}
	vals := g.Finite()
	s.Valid = len(vals)
	if s.Valid == 0 {
		return s
	}
	s.Mean, s.Std = stat.PopMeanStdDev(vals, nil)
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	return s
}
