package scoring

import (
	"gonum.org/v1/gonum/stat"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Contribution captures one criterion's share of the WSI.
type Contribution struct {
	Name         string  `json:"name"`
	Weight       float64 `json:"weight"`
	MeanValue    float64 `json:"mean_value"`
	MeanWeighted float64 `json:"mean_weighted"`
	Skipped      bool    `json:"skipped"`
	Reason       string  `json:"reason,omitempty"`
}

func contributionOf(name string, layer *grid.Grid, weight float64) Contribution {
	c := Contribution{Name: name, Weight: weight}
	if vals := layer.Finite(); len(vals) > 0 {
		c.MeanValue = stat.Mean(vals, nil)
		c.MeanWeighted = c.MeanValue * weight
	}
	return c
}

// clamp keeps v within [lo, hi]. NaN passes through unchanged.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
