package scoring

import (
	"fmt"
	"math"
	"sort"
)

// Criteria every weight scheme must carry.
const (
	CriterionWind         = "wind"
	CriterionSlope        = "slope"
	CriterionGridDistance = "grid_distance"
)

// WeightTolerance is the allowed deviation of a scheme's total from 1.0.
const WeightTolerance = 0.01

// Weight is one named entry of a WeightScheme.
type Weight struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// WeightScheme is an ordered name to weight mapping. Entries keep the order
// they were given in; the scheme is immutable once built.
type WeightScheme struct {
	entries []Weight
	index   map[string]int
}

// NewWeightScheme validates the weights and builds a scheme. The wind, slope
// and grid_distance criteria are required; names must be unique, every value
// must lie in [0,1] and the total must equal 1.0 within WeightTolerance.
func NewWeightScheme(weights ...Weight) (*WeightScheme, error) {
	ws := &WeightScheme{
		entries: make([]Weight, 0, len(weights)),
		index:   make(map[string]int, len(weights)),
	}
	for _, w := range weights {
		if w.Name == "" {
			return nil, fmt.Errorf("%w: empty criterion name", ErrInvalidWeight)
		}
		if _, dup := ws.index[w.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate criterion %q", ErrInvalidWeight, w.Name)
		}
		if math.IsNaN(w.Value) || w.Value < 0 || w.Value > 1 {
			return nil, fmt.Errorf("%w: %s must be between 0 and 1, got %v", ErrInvalidWeight, w.Name, w.Value)
		}
		ws.index[w.Name] = len(ws.entries)
		ws.entries = append(ws.entries, w)
	}
	for _, name := range []string{CriterionWind, CriterionSlope, CriterionGridDistance} {
		if _, ok := ws.index[name]; !ok {
			return nil, fmt.Errorf("%w: missing required criterion %q", ErrInvalidWeight, name)
		}
	}
	if sum := ws.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %.4f, must sum to 1.0", ErrInvalidWeight, sum)
	}
	return ws, nil
}

// SchemeFromMap builds a scheme from an unordered mapping. The required
// criteria come first, the remaining names follow in lexical order.
func SchemeFromMap(m map[string]float64) (*WeightScheme, error) {
	required := []string{CriterionWind, CriterionSlope, CriterionGridDistance}
	weights := make([]Weight, 0, len(m))
	for _, name := range required {
		if v, ok := m[name]; ok {
			weights = append(weights, Weight{Name: name, Value: v})
		}
	}
	rest := make([]string, 0, len(m))
	for name := range m {
		if name != CriterionWind && name != CriterionSlope && name != CriterionGridDistance {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		weights = append(weights, Weight{Name: name, Value: m[name]})
	}
	return NewWeightScheme(weights...)
}

// DefaultWeightScheme returns the stock wind/slope/grid distribution.
func DefaultWeightScheme() *WeightScheme {
	ws, err := NewWeightScheme(
		Weight{Name: CriterionWind, Value: 0.5},
		Weight{Name: CriterionSlope, Value: 0.3},
		Weight{Name: CriterionGridDistance, Value: 0.2},
	)
	if err != nil {
		panic(err)
	}
	return ws
}

// Sum returns the total of all weights.
func (w *WeightScheme) Sum() float64 {
	var total float64
	for _, e := range w.entries {
		total += e.Value
	}
	return total
}

// Get returns the weight of name and whether it is present.
func (w *WeightScheme) Get(name string) (float64, bool) {
	i, ok := w.index[name]
	if !ok {
		return 0, false
	}
	return w.entries[i].Value, true
}

// Names returns the criterion names in scheme order.
func (w *WeightScheme) Names() []string {
	out := make([]string, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.Name
	}
	return out
}

// Entries returns a copy of the ordered entries.
func (w *WeightScheme) Entries() []Weight {
	out := make([]Weight, len(w.entries))
	copy(out, w.entries)
	return out
}

// Map returns the scheme as a plain mapping, the form WeightedSum takes.
func (w *WeightScheme) Map() map[string]float64 {
	out := make(map[string]float64, len(w.entries))
	for _, e := range w.entries {
		out[e.Name] = e.Value
	}
	return out
}

func (w *WeightScheme) Len() int { return len(w.entries) }
