package config

import (
	"fmt"

	"github.com/linasofi13/wind-gis-tech-validation/internal/raster"
	"github.com/linasofi13/wind-gis-tech-validation/internal/scoring"
)

// AnalysisConfig describes one suitability analysis.
type AnalysisConfig struct {
	AOI                AOIConfig          `yaml:"aoi" toml:"aoi"`
	Engine             string             `yaml:"engine" toml:"engine"`
	ResolutionM        float64            `yaml:"resolution_m" toml:"resolution_m" validate:"gt=0"`
	TopPercent         float64            `yaml:"top_percent" toml:"top_percent" validate:"gt=0,lte=1"`
	ViabilityThreshold float64            `yaml:"viability_threshold" toml:"viability_threshold" validate:"gte=0,lte=1"`
	PercentileMethod   string             `yaml:"percentile_method" toml:"percentile_method"`
	Layers             []LayerConfig      `yaml:"layers" toml:"layers" validate:"required,min=1,dive"`
	Weights            map[string]float64 `yaml:"weights" toml:"weights" validate:"required"`
}

// AOIConfig is the area of interest. Geometry is a bbox, inline GeoJSON or a
// GeoJSON file path; empty means the full extent of the inputs.
type AOIConfig struct {
	Name     string `yaml:"name" toml:"name"`
	Geometry string `yaml:"geometry" toml:"geometry"`
	CRS      string `yaml:"crs" toml:"crs"`
}

// LayerConfig is one criterion input.
type LayerConfig struct {
	Name          string `yaml:"name" toml:"name" validate:"required"`
	Source        string `yaml:"source" toml:"source" validate:"required"`
	Benefit       bool   `yaml:"benefit" toml:"benefit"`
	Normalization string `yaml:"normalization" toml:"normalization"`
	Derive        string `yaml:"derive" toml:"derive"`
}

// DefaultAnalysis is the three-criterion wind analysis.
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		AOI:                AOIConfig{Name: "Unnamed AOI", CRS: "EPSG:3116"},
		Engine:             raster.EngineNative,
		ResolutionM:        100,
		TopPercent:         0.15,
		ViabilityThreshold: scoring.DefaultViabilityThreshold,
		PercentileMethod:   string(scoring.PercentileEmpirical),
		Layers: []LayerConfig{
			{Name: scoring.CriterionWind, Source: "wind_speed.asc", Benefit: true},
			{Name: scoring.CriterionSlope, Source: "dem.asc", Derive: string(scoring.DeriveSlope)},
			{Name: scoring.CriterionGridDistance, Source: "power_lines.asc", Derive: string(scoring.DeriveDistance)},
		},
		Weights: scoring.DefaultWeightScheme().Map(),
	}
}

// Criteria builds the validated criteria. A layer without a weight gets
// weight 0 and is skipped by the scorer.
func (a AnalysisConfig) Criteria() ([]scoring.Criterion, error) {
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers configured", scoring.ErrInvalidCriterion)
	}
	seen := make(map[string]bool, len(a.Layers))
	out := make([]scoring.Criterion, 0, len(a.Layers))
	for _, l := range a.Layers {
		if seen[l.Name] {
			return nil, fmt.Errorf("%w: duplicate layer %q", scoring.ErrInvalidCriterion, l.Name)
		}
		seen[l.Name] = true

		method, err := scoring.ParseNormalizationMethod(l.Normalization)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		derive, err := scoring.ParseDerivation(l.Derive)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", l.Name, err)
		}
		c, err := scoring.NewCriterion(l.Name, a.Weights[l.Name], l.Source, l.Benefit, method, scoring.WithDerivation(derive))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (a AnalysisConfig) WeightScheme() (*scoring.WeightScheme, error) {
	return scoring.SchemeFromMap(a.Weights)
}

func (a AnalysisConfig) Percentile() (scoring.PercentileMethod, error) {
	return scoring.ParsePercentileMethod(a.PercentileMethod)
}

// Extent parses the AOI geometry.
func (a AnalysisConfig) Extent() (raster.Extent, error) {
	return raster.ParseExtent(a.AOI.Geometry)
}
