package scoring

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// DefaultViabilityThreshold is the WSI at or above which a cell counts as viable.
const DefaultViabilityThreshold = 0.5

// WeightedSum fuses normalized layers into one WSI grid. Every criterion that
// has both a layer and a weight adds weight*layer cell by cell; layers
// without a weight are skipped. Names are visited in sorted order so the
// result does not depend on map iteration. The sum is clamped to [0,1] and
// no-data cells propagate.
func WeightedSum(layers map[string]*grid.Grid, weights map[string]float64) (*grid.Grid, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no normalized layers", ErrEmptyInput)
	}
	if len(weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", ErrEmptyInput)
	}

	names := sortedNames(layers)
	var shape grid.Shape
	for i, name := range names {
		if layers[name] == nil {
			return nil, fmt.Errorf("%w: layer %s is nil", ErrEmptyInput, name)
		}
		s := layers[name].Shape()
		if i == 0 {
			shape = s
			continue
		}
		if s != shape {
			return nil, fmt.Errorf("%w: %s is %s, %s is %s", ErrShapeMismatch, name, s, names[0], shape)
		}
	}

	acc := make([]float64, shape.Len())
	for _, name := range names {
		w, ok := weights[name]
		if !ok {
			continue
		}
		layer := layers[name]
		for i := range acc {
			acc[i] += w * layer.Index(i)
		}
	}
	for i, v := range acc {
		acc[i] = clamp(v, 0, 1)
	}
	return grid.FromSlice(shape.Rows, shape.Cols, acc)
}

// ViabilityPercentage returns the percentage of finite cells whose value is
// at least threshold. Empty and all-no-data grids yield 0.
func ViabilityPercentage(wsi *grid.Grid, threshold float64) float64 {
	if wsi.Empty() {
		return 0
	}
	vals := wsi.Finite()
	if len(vals) == 0 {
		return 0
	}
	n := 0
	for _, v := range vals {
		if v >= threshold {
			n++
		}
	}
	return float64(n) / float64(len(vals)) * 100
}

// Result is the output of one Scorer run.
type Result struct {
	WSI           *grid.Grid     `json:"-"`
	Contributions []Contribution `json:"contributions"`
}

// Scorer fuses normalized layers with a fixed weight scheme.
type Scorer struct {
	scheme *WeightScheme
	logger *slog.Logger
}

// NewScorer creates a Scorer for the given scheme.
func NewScorer(scheme *WeightScheme, logger *slog.Logger) *Scorer {
	return &Scorer{scheme: scheme, logger: logger}
}

// Scheme returns the weight scheme the scorer applies.
func (s *Scorer) Scheme() *WeightScheme { return s.scheme }

// Score computes the WSI for the given normalized layers along with a
// per-criterion breakdown. Layers without a weight and weights without a
// layer are reported as skipped and logged.
func (s *Scorer) Score(layers map[string]*grid.Grid) (*Result, error) {
	weights := s.scheme.Map()
	wsi, err := WeightedSum(layers, weights)
	if err != nil {
		return nil, err
	}

	res := &Result{WSI: wsi}
	for _, name := range s.scheme.Names() {
		w, _ := s.scheme.Get(name)
		layer, ok := layers[name]
		if !ok {
			s.logger.Warn("weighted criterion has no layer", "criterion", name, "weight", w)
			res.Contributions = append(res.Contributions, Contribution{
				Name: name, Weight: w, Skipped: true, Reason: "no layer",
			})
			continue
		}
		res.Contributions = append(res.Contributions, contributionOf(name, layer, w))
	}
	for _, name := range sortedNames(layers) {
		if _, ok := weights[name]; ok {
			continue
		}
		s.logger.Warn("layer has no weight, skipped", "criterion", name)
		res.Contributions = append(res.Contributions, Contribution{
			Name: name, Skipped: true, Reason: "no weight",
		})
	}
	return res, nil
}

func sortedNames(layers map[string]*grid.Grid) []string {
	names := make([]string, 0, len(layers))
	for name := range layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
