package scoring

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/linasofi13/wind-gis-tech-validation/internal/grid"
)

// Plausibility limits for input layers.
const (
	MaxWindSpeed    = 50.0 // m/s, near-surface
	MinWindCoverage = 0.5
	MaxSlopeDegrees = 90.0
)

// Outcome is the result of a data-quality check. Checks never return errors;
// the caller decides whether a failed outcome is fatal.
type Outcome struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func pass() Outcome                    { return Outcome{OK: true} }
func fail(msg string) Outcome          { return Outcome{Message: msg} }
func failf(f string, a ...any) Outcome { return Outcome{Message: fmt.Sprintf(f, a...)} }

// ValidateWindData checks that wind speeds are present, plausible and cover
// at least half of the grid.
func ValidateWindData(values *grid.Grid) Outcome {
	if values.Empty() {
		return fail("Wind data is empty")
	}
	vals := values.Finite()
	if len(vals) == 0 {
		return fail("No valid wind data found")
	}
	if floats.Min(vals) < 0 {
		return fail("Wind speeds cannot be negative")
	}
	if floats.Max(vals) > MaxWindSpeed {
		return failf("Wind speeds seem unreasonably high (>%g m/s)", MaxWindSpeed)
	}
	if coverage := float64(len(vals)) / float64(values.Len()); coverage < MinWindCoverage {
		return failf("Wind data coverage too low: %.1f%%", coverage*100)
	}
	return pass()
}

// ValidateSlopeData checks that slopes are present and within [0, 90] degrees.
func ValidateSlopeData(values *grid.Grid) Outcome {
	if values.Empty() {
		return fail("Slope data is empty")
	}
	vals := values.Finite()
	if len(vals) == 0 {
		return fail("No valid slope data found")
	}
	if floats.Min(vals) < 0 {
		return fail("Slopes cannot be negative")
	}
	if floats.Max(vals) > MaxSlopeDegrees {
		return failf("Slopes cannot exceed %g degrees", MaxSlopeDegrees)
	}
	return pass()
}

// ValidateWSIResult checks that a computed WSI grid holds finite values and
// that all of them lie in [0,1].
func ValidateWSIResult(values *grid.Grid) Outcome {
	if values.Empty() {
		return fail("WSI result is empty")
	}
	vals := values.Finite()
	if len(vals) == 0 {
		return fail("No valid WSI values found")
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if lo < 0 || hi > 1 {
		return failf("WSI values out of range [0,1]: min=%.3f, max=%.3f", lo, hi)
	}
	return pass()
}
