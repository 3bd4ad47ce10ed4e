package pipeline

import (
	"fmt"

	"github.com/linasofi13/wind-gis-tech-validation/internal/config"
	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
)

// Analysis is a fully validated run description.
type Analysis struct {
	AOIName            string
	Extent             raster.Extent
	CRS                string
	Criteria           []scoring.Criterion
	Scheme             *scoring.WeightScheme
	TopPercent         float64
	ViabilityThreshold float64
	Percentile         scoring.PercentileMethod
	ResolutionM        float64
	Trigger            string
}

// AnalysisFromConfig validates an analysis section and builds the run
// description from it.
func AnalysisFromConfig(c config.AnalysisConfig) (Analysis, error) {
	criteria, err := c.Criteria()
	if err != nil {
		return Analysis{}, err
	}
	scheme, err := c.WeightScheme()
	if err != nil {
		return Analysis{}, err
	}
	method, err := c.Percentile()
	if err != nil {
		return Analysis{}, err
	}
	extent, err := c.Extent()
	if err != nil {
		return Analysis{}, err
	}
	if c.TopPercent <= 0 || c.TopPercent > 1 {
		return Analysis{}, fmt.Errorf("%w: top percent must be in (0, 1], got %v", scoring.ErrInvalidRange, c.TopPercent)
	}

	return Analysis{
		AOIName:            c.AOI.Name,
		Extent:             extent,
		CRS:                c.AOI.CRS,
		Criteria:           criteria,
		Scheme:             scheme,
		TopPercent:         c.TopPercent,
		ViabilityThreshold: c.ViabilityThreshold,
		Percentile:         method,
		ResolutionM:        c.ResolutionM,
	}, nil
}

// WithOverrides returns a copy with the given top percent and viability
// threshold. Zero values keep the current setting.
func (a Analysis) WithOverrides(topPercent, viabilityThreshold float64) (Analysis, error) {
	if topPercent != 0 {
		if topPercent < 0 || topPercent > 1 {
			return a, fmt.Errorf("%w: top percent must be in (0, 1], got %v", scoring.ErrInvalidRange, topPercent)
		}
		a.TopPercent = topPercent
	}
	if viabilityThreshold != 0 {
		if viabilityThreshold < 0 || viabilityThreshold > 1 {
			return a, fmt.Errorf("%w: viability threshold must be in [0, 1], got %v", scoring.ErrInvalidRange, viabilityThreshold)
		}
		a.ViabilityThreshold = viabilityThreshold
	}
	return a, nil
}
