package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// PercentileMethod selects how the top-percent threshold is interpolated.
type PercentileMethod string

const (
	// PercentileEmpirical returns the smallest value whose empirical CDF
	// reaches the requested fraction. Deciles with topPercent 0.2 give 0.8.
	PercentileEmpirical PercentileMethod = "empirical"
	// PercentileLinear interpolates between the two nearest ranks
	// (Hyndman-Fan type 7). Deciles with topPercent 0.2 give 0.82.
	PercentileLinear PercentileMethod = "linear"
)

// ParsePercentileMethod accepts the configuration spelling; empty selects
// PercentileEmpirical.
func ParsePercentileMethod(s string) (PercentileMethod, error) {
	switch m := PercentileMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PercentileEmpirical, nil
	case PercentileEmpirical, PercentileLinear:
		return m, nil
	default:
		return "", fmt.Errorf("%w: percentile method %q", ErrUnsupportedMethod, s)
	}
}

// TopPercentThreshold returns the WSI value separating the best topPercent
// of finite cells from the rest, using PercentileEmpirical.
func TopPercentThreshold(values *grid.Grid, topPercent float64) (float64, error) {
	return TopPercentThresholdWith(values, topPercent, PercentileEmpirical)
}

// TopPercentThresholdWith is TopPercentThreshold with an explicit method.
func TopPercentThresholdWith(values *grid.Grid, topPercent float64, method PercentileMethod) (float64, error) {
	if math.IsNaN(topPercent) || topPercent <= 0 || topPercent > 1 {
		return 0, fmt.Errorf("%w: top percent must be in (0, 1], got %v", ErrInvalidRange, topPercent)
	}
	if values.Empty() {
		return 0, nil
	}
	vals := values.Finite()
	if len(vals) == 0 {
		return 0, nil
	}
	sort.Float64s(vals)
	p := 1 - topPercent

	switch method {
	case PercentileEmpirical, "":
		return stat.Quantile(p, stat.Empirical, vals, nil), nil
	case PercentileLinear:
		return linearQuantile(p, vals), nil
	default:
		return 0, fmt.Errorf("%w: percentile method %q", ErrUnsupportedMethod, method)
	}
}

// TopSitesMask marks the finite cells at or above the top-percent threshold.
func TopSitesMask(wsi *grid.Grid, topPercent float64) (*grid.Mask, error) {
	mask, _, err := TopSitesMaskWith(wsi, topPercent, PercentileEmpirical)
	return mask, err
}

// TopSitesMaskWith is TopSitesMask with an explicit percentile method. It
// also returns the threshold used.
func TopSitesMaskWith(wsi *grid.Grid, topPercent float64, method PercentileMethod) (*grid.Mask, float64, error) {
	threshold, err := TopPercentThresholdWith(wsi, topPercent, method)
	if err != nil {
		return nil, 0, err
	}
	if wsi.Empty() {
		if wsi == nil {
			return grid.NewMask(0, 0), threshold, nil
		}
		return grid.NewMask(wsi.Rows(), wsi.Cols()), threshold, nil
	}
	mask := grid.NewMask(wsi.Rows(), wsi.Cols())
	for r := 0; r < wsi.Rows(); r++ {
		for c := 0; c < wsi.Cols(); c++ {
			v := wsi.At(r, c)
			if !grid.IsNoData(v) && v >= threshold {
				mask.Set(r, c, true)
			}
		}
	}
	return mask, threshold, nil
}

// linearQuantile expects sorted input with at least one value.
func linearQuantile(p float64, sorted []float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
