// Package validate provides the numeric checks behind the growth function
// slots and cross-validation of computed metrics against reported figures.
package validate

import (
	"errors"
	"fmt"
	"math"
)

// ErrUndefined is returned when a rate has no meaningful value for the
// given inputs, e.g. growth from a zero base.
var ErrUndefined = errors.New("validate: rate undefined")

// =============================================================================
// PERIOD-OVER-PERIOD GROWTH
// =============================================================================

// GrowthRate returns (current - prior) / |prior| as a ratio. Dividing by the
// magnitude keeps the sign meaningful when the base is negative.
func GrowthRate(current, prior float64) (float64, error) {
	if prior == 0 {
		return 0, fmt.Errorf("%w: growth from a zero base", ErrUndefined)
	}
	return (current - prior) / math.Abs(prior), nil
}

// CalculateYoY returns the percentage change between two values.
// A zero base yields +Inf for growth and 0 when both are zero.
func CalculateYoY(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	r, _ := GrowthRate(current, prior)
	return r * 100
}

// =============================================================================
// CAGR (Compound Annual Growth Rate)
// =============================================================================

// CAGRRate returns ((end / start) ^ (1/years)) - 1 as a ratio. Both values
// must be positive and years must be positive.
func CAGRRate(start, end, years float64) (float64, error) {
	if years <= 0 {
		return 0, fmt.Errorf("%w: %v years", ErrUndefined, years)
	}
	if start <= 0 || end <= 0 {
		return 0, fmt.Errorf("%w: non-positive endpoint (%v → %v)", ErrUndefined, start, end)
	}
	return math.Pow(end/start, 1/years) - 1, nil
}

// CalculateCAGR returns CAGR as a percentage, or 0 when undefined.
func CalculateCAGR(start, end float64, years int) float64 {
	r, err := CAGRRate(start, end, float64(years))
	if err != nil {
		return 0
	}
	return r * 100
}

// =============================================================================
// CROSS-VALIDATION
// =============================================================================

// Comparison is the outcome of checking a computed value against a figure
// the company reported for the same concept.
type Comparison struct {
	Computed     float64 `json:"computed"`
	Reported     float64 `json:"reported"`
	Difference   float64 `json:"difference"`
	RelativeDiff float64 `json:"relative_diff"`
	Tolerance    float64 `json:"tolerance"`
	Passed       bool    `json:"passed"`
}

// CheckAgainstReported compares computed with reported using a relative
// tolerance. When reported is zero the absolute difference is used.
func CheckAgainstReported(computed, reported, tolerance float64) Comparison {
	diff := computed - reported
	rel := math.Abs(diff)
	if reported != 0 {
		rel = math.Abs(diff) / math.Abs(reported)
	}
	return Comparison{
		Computed:     computed,
		Reported:     reported,
		Difference:   diff,
		RelativeDiff: rel,
		Tolerance:    tolerance,
		Passed:       rel <= tolerance,
	}
}

// =============================================================================
// PLAUSIBILITY
// =============================================================================

// ExceedsMagnitude reports whether v is non-finite or larger in absolute
// value than ceiling. A non-positive ceiling disables the check.
func ExceedsMagnitude(v, ceiling float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	return ceiling > 0 && math.Abs(v) > ceiling
}
