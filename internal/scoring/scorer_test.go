package scoring

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWeightedSum(t *testing.T) {
	layers := map[string]*grid.Grid{
		"wind":  grid.Vector(0.8, 0.6, 0.4),
		"slope": grid.Vector(0.9, 0.7, 0.5),
		"grid":  grid.Vector(0.6, 0.8, 0.9),
	}
	weights := map[string]float64{"wind": 0.6, "slope": 0.2, "grid": 0.2}

	wsi, err := WeightedSum(layers, weights)
	require.NoError(t, err)

	// 0.6·wind + 0.2·slope + 0.2·grid
	want := []float64{0.78, 0.66, 0.52}
	for i, w := range want {
		assert.InDelta(t, w, wsi.Index(i), 1e-6, "cell %d", i)
	}
}

func TestWeightedSumSkipsUnweightedLayers(t *testing.T) {
	layers := map[string]*grid.Grid{
		"wind":  grid.Vector(0.8, 0.6),
		"slope": grid.Vector(0.9, 0.7),
	}
	withExtra := map[string]*grid.Grid{
		"wind":      layers["wind"],
		"slope":     layers["slope"],
		"roughness": grid.Vector(1, 1),
	}
	weights := map[string]float64{"wind": 0.5, "slope": 0.5}

	base, err := WeightedSum(layers, weights)
	require.NoError(t, err)
	got, err := WeightedSum(withExtra, weights)
	require.NoError(t, err, "a layer without a weight is skipped, not an error")
	assert.Equal(t, base.Values(), got.Values())
}

func TestWeightedSumErrors(t *testing.T) {
	t.Run("no layers", func(t *testing.T) {
		_, err := WeightedSum(nil, map[string]float64{"wind": 1})
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
	t.Run("no weights", func(t *testing.T) {
		_, err := WeightedSum(map[string]*grid.Grid{"wind": grid.Vector(1)}, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
	t.Run("shape mismatch", func(t *testing.T) {
		_, err := WeightedSum(map[string]*grid.Grid{
			"wind":  grid.Vector(0.1, 0.2, 0.3),
			"slope": grid.Vector(0.1, 0.2),
		}, map[string]float64{"wind": 0.5, "slope": 0.5})
		assert.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestWeightedSumPropagatesNoData(t *testing.T) {
	wsi, err := WeightedSum(map[string]*grid.Grid{
		"wind":  grid.Vector(1, math.NaN()),
		"slope": grid.Vector(0, 0.5),
	}, map[string]float64{"wind": 0.5, "slope": 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, wsi.Index(0), 1e-12)
	assert.True(t, math.IsNaN(wsi.Index(1)))
}

func TestWeightedSumClamps(t *testing.T) {
	wsi, err := WeightedSum(map[string]*grid.Grid{
		"wind": grid.Vector(1, 1),
	}, map[string]float64{"wind": 1.2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, wsi.Values())
}

func TestWeightedSumIsDeterministic(t *testing.T) {
	layers := map[string]*grid.Grid{
		"wind":          grid.Vector(0.11, 0.37, 0.93),
		"slope":         grid.Vector(0.29, 0.71, 0.05),
		"grid_distance": grid.Vector(0.61, 0.17, 0.43),
		"roughness":     grid.Vector(0.07, 0.83, 0.59),
	}
	weights := map[string]float64{"wind": 0.4, "slope": 0.3, "grid_distance": 0.2, "roughness": 0.1}

	first, err := WeightedSum(layers, weights)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := WeightedSum(layers, weights)
		require.NoError(t, err)
		for j := 0; j < first.Len(); j++ {
			assert.Equal(t, math.Float64bits(first.Index(j)), math.Float64bits(again.Index(j)))
		}
	}
}

func TestViabilityPercentage(t *testing.T) {
	got := ViabilityPercentage(grid.Vector(0.3, 0.5, 0.7, 0.9, 0.4), DefaultViabilityThreshold)
	assert.InDelta(t, 60.0, got, 1e-9)

	assert.Equal(t, 0.0, ViabilityPercentage(grid.Vector(), 0.5))
	assert.Equal(t, 0.0, ViabilityPercentage(grid.Vector(math.NaN(), math.NaN()), 0.5))
	// no-data cells are excluded from the denominator
	assert.InDelta(t, 50.0, ViabilityPercentage(grid.Vector(0.9, 0.1, math.NaN()), 0.5), 1e-9)
}

func TestScorerScore(t *testing.T) {
	s := NewScorer(DefaultWeightScheme(), discardLogger())
	res, err := s.Score(map[string]*grid.Grid{
		"wind":          grid.Vector(1, 0),
		"slope":         grid.Vector(1, 0),
		"grid_distance": grid.Vector(1, 0),
	})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.WSI.Index(0), 1e-12)
	assert.InDelta(t, 0.0, res.WSI.Index(1), 1e-12)

	require.Len(t, res.Contributions, 3)
	assert.Equal(t, "wind", res.Contributions[0].Name)
	assert.Equal(t, 0.5, res.Contributions[0].Weight)
	assert.InDelta(t, 0.5, res.Contributions[0].MeanValue, 1e-12)
	assert.InDelta(t, 0.25, res.Contributions[0].MeanWeighted, 1e-12)
	assert.False(t, res.Contributions[0].Skipped)
}

func TestScorerReportsSkippedCriteria(t *testing.T) {
	s := NewScorer(DefaultWeightScheme(), discardLogger())
	res, err := s.Score(map[string]*grid.Grid{
		"wind":  grid.Vector(0.5),
		"slope": grid.Vector(0.5),
		"grid":  grid.Vector(0.5),
	})
	require.NoError(t, err)

	byName := map[string]Contribution{}
	for _, c := range res.Contributions {
		byName[c.Name] = c
	}
	assert.True(t, byName["grid_distance"].Skipped)
	assert.Equal(t, "no layer", byName["grid_distance"].Reason)
	assert.True(t, byName["grid"].Skipped)
	assert.Equal(t, "no weight", byName["grid"].Reason)
	assert.InDelta(t, 0.4, res.WSI.Index(0), 1e-12)
}
