package scoring

import (
	"fmt"
	"math"
	"strings"
)

// NormalizationMethod selects how raw criterion values are put on [0,1].
type NormalizationMethod string

const (
	MinMax NormalizationMethod = "minmax"
	ZScore NormalizationMethod = "zscore"
)

// ParseNormalizationMethod accepts the configuration spelling of a method.
// An empty string selects MinMax.
func ParseNormalizationMethod(s string) (NormalizationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "minmax", "min-max", "min_max":
		return MinMax, nil
	case "zscore", "z-score", "z_score":
		return ZScore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
	}
}

func (m NormalizationMethod) valid() bool { return m == MinMax || m == ZScore }

// Derivation is an optional preprocessing step the storage engine applies to
// a criterion's source before normalization.
type Derivation string

const (
	DeriveNone     Derivation = ""
	DeriveSlope    Derivation = "slope"
	DeriveDistance Derivation = "distance"
)

// ParseDerivation validates the configuration spelling of a derivation.
func ParseDerivation(s string) (Derivation, error) {
	switch d := Derivation(strings.ToLower(strings.TrimSpace(s))); d {
	case DeriveNone, DeriveSlope, DeriveDistance:
		return d, nil
	default:
		return "", fmt.Errorf("%w: unknown derivation %q", ErrInvalidCriterion, s)
	}
}

// Criterion describes one input layer. It is immutable once built.
type Criterion struct {
	name      string
	weight    float64
	sourceRef string
	benefit   bool
	method    NormalizationMethod
	derive    Derivation
}

// CriterionOption tweaks optional criterion fields.
type CriterionOption func(*Criterion)

// WithDerivation attaches a slope or distance derivation step.
func WithDerivation(d Derivation) CriterionOption {
	return func(c *Criterion) { c.derive = d }
}

// NewCriterion validates and builds a Criterion.
func NewCriterion(name string, weight float64, sourceRef string, benefit bool, method NormalizationMethod, opts ...CriterionOption) (Criterion, error) {
	c := Criterion{
		name:      strings.TrimSpace(name),
		weight:    weight,
		sourceRef: strings.TrimSpace(sourceRef),
		benefit:   benefit,
		method:    method,
	}
	for _, opt := range opts {
		opt(&c)
	}

	if c.name == "" {
		return Criterion{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidCriterion)
	}
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return Criterion{}, fmt.Errorf("%w: weight for %s must be between 0 and 1, got %v", ErrInvalidCriterion, c.name, weight)
	}
	if c.sourceRef == "" {
		return Criterion{}, fmt.Errorf("%w: source for %s cannot be empty", ErrInvalidCriterion, c.name)
	}
	if !method.valid() {
		return Criterion{}, fmt.Errorf("%w: %q for %s", ErrUnsupportedMethod, method, c.name)
	}
	if _, err := ParseDerivation(string(c.derive)); err != nil {
		return Criterion{}, err
	}
	return c, nil
}

func (c Criterion) Name() string                { return c.name }
func (c Criterion) Weight() float64             { return c.weight }
func (c Criterion) SourceRef() string           { return c.sourceRef }
func (c Criterion) IsBenefit() bool             { return c.benefit }
func (c Criterion) Method() NormalizationMethod { return c.method }
func (c Criterion) Derive() Derivation          { return c.derive }
func (c Criterion) String() string              { return c.name }
