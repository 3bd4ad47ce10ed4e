package scoring

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// tieValue is assigned to every finite cell of a layer with no spread.
const tieValue = 0.5

// MinMaxNormalize rescales the finite cells of values onto [0,1]. Benefit
// layers map min to 0 and max to 1, cost layers the other way round. No-data
// cells stay no-data and a flat layer maps to 0.5 everywhere.
func MinMaxNormalize(values *grid.Grid, isBenefit bool) *grid.Grid {
	if values.Empty() {
		return emptyLike(values)
	}
	finite := values.Finite()
	if len(finite) == 0 {
		return grid.Full(values.Rows(), values.Cols(), grid.NoData)
	}
	return rescale(values, floats.Min(finite), floats.Max(finite), isBenefit)
}

// ZScoreNormalize standardizes the finite cells with the population mean and
// standard deviation, then rescales the z-scores onto [0,1] with the min-max
// rule and the same polarity.
func ZScoreNormalize(values *grid.Grid, isBenefit bool) *grid.Grid {
	if values.Empty() {
		return emptyLike(values)
	}
	finite := values.Finite()
	if len(finite) == 0 {
		return grid.Full(values.Rows(), values.Cols(), grid.NoData)
	}
	mean, std := stat.PopMeanStdDev(finite, nil)
	if std == 0 {
		return values.Map(func(float64) float64 { return tieValue })
	}
	z := values.Map(func(v float64) float64 { return (v - mean) / std })
	zf := z.Finite()
	return rescale(z, floats.Min(zf), floats.Max(zf), isBenefit)
}

// NormalizeCriterion applies the criterion's normalization method to values.
func NormalizeCriterion(values *grid.Grid, c Criterion) (*grid.Grid, error) {
	switch c.Method() {
	case MinMax:
		return MinMaxNormalize(values, c.IsBenefit()), nil
	case ZScore:
		return ZScoreNormalize(values, c.IsBenefit()), nil
	default:
		return nil, fmt.Errorf("%w: %q for %s", ErrUnsupportedMethod, c.Method(), c.Name())
	}
}

// NormalizeLayers normalizes the raw grid of every criterion. A criterion
// without a raw grid is an error.
func NormalizeLayers(raw map[string]*grid.Grid, criteria []Criterion) (map[string]*grid.Grid, error) {
	out := make(map[string]*grid.Grid, len(criteria))
	for _, c := range criteria {
		g, ok := raw[c.Name()]
		if !ok || g == nil {
			return nil, fmt.Errorf("%w: no data loaded for criterion %s", ErrEmptyInput, c.Name())
		}
		n, err := NormalizeCriterion(g, c)
		if err != nil {
			return nil, err
		}
		out[c.Name()] = n
	}
	return out, nil
}

func rescale(values *grid.Grid, lo, hi float64, isBenefit bool) *grid.Grid {
	span := hi - lo
	if span == 0 {
		return values.Map(func(float64) float64 { return tieValue })
	}
	return values.Map(func(v float64) float64 {
		if isBenefit {
			return clamp((v-lo)/span, 0, 1)
		}
		return clamp((hi-v)/span, 0, 1)
	})
}

func emptyLike(values *grid.Grid) *grid.Grid {
	if values == nil {
		return grid.New(0, 0)
	}
	return values.Clone()
}
