package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// REAL APPLE DATA FOR TESTING (FY2020 - FY2024)
// =============================================================================
// Source: Apple Inc. Annual 10-K Reports (SEC EDGAR)
// All values in millions USD

var appleRevenue = map[int]float64{
	2024: 391040,
	2023: 383290,
	2022: 394330,
	2021: 365820,
	2020: 274515,
}

var appleNetIncome = map[int]float64{
	2024: 93736,
	2023: 96995, // restated in 2024 10-K
	2022: 99803,
	2021: 94680,
	2020: 57411,
}

// Reported gross margin inputs, FY2024.
const (
	appleCostOfSales2024   = 210352
	appleGrossProfit2024   = 180683
	appleDilutedEPS2024    = 6.08
	appleDilutedShares2024 = 15408.095
)

// =============================================================================
// GROWTH TESTS
// =============================================================================

func TestCalculateYoY(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		prior    float64
		expected float64
	}{
		{"Positive growth", 110, 100, 10.0},
		{"Negative growth", 90, 100, -10.0},
		{"Zero growth", 100, 100, 0.0},
		{"Double", 200, 100, 100.0},
		{"Halved", 50, 100, -50.0},
		{"Both zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateYoY(tt.current, tt.prior)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("CalculateYoY(%v, %v) = %v, want %v", tt.current, tt.prior, result, tt.expected)
			}
		})
	}

	if result := CalculateYoY(5, 0); !math.IsInf(result, 1) {
		t.Errorf("CalculateYoY(5, 0) = %v, want +Inf", result)
	}
}

func TestGrowthRate(t *testing.T) {
	r, err := GrowthRate(appleNetIncome[2024], appleNetIncome[2023])
	require.NoError(t, err)
	// (93736 - 96995) / 96995 = -3.36%
	assert.InDelta(t, -0.0336, r, 0.0001)

	// Loss narrowing from -100 to -50 is positive growth.
	r, err = GrowthRate(-50, -100)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r, 1e-12)

	_, err = GrowthRate(10, 0)
	assert.ErrorIs(t, err, ErrUndefined)
}

func TestApple5Year_RevenueYoY(t *testing.T) {
	for _, year := range []int{2024, 2023, 2022, 2021} {
		pct := CalculateYoY(appleRevenue[year], appleRevenue[year-1])
		t.Logf("  %d: $%.0fB → $%.0fB = %+.2f%%", year,
			appleRevenue[year-1]/1000, appleRevenue[year]/1000, pct)
	}

	// 2021 was the COVID rebound year (+33%), 2023 a slight decline.
	yoy2021 := CalculateYoY(appleRevenue[2021], appleRevenue[2020])
	assert.True(t, yoy2021 > 30 && yoy2021 < 40, "2021 revenue YoY should be ~33%%, got %.2f%%", yoy2021)
	assert.Negative(t, CalculateYoY(appleRevenue[2023], appleRevenue[2022]))
}

// =============================================================================
// CAGR TESTS
// =============================================================================

func TestCalculateCAGR(t *testing.T) {
	// $100 growing to $121 over 2 years = 10% CAGR
	assert.InDelta(t, 10.0, CalculateCAGR(100, 121, 2), 0.01)

	// Net income declined 2022 → 2024.
	assert.Negative(t, CalculateCAGR(appleNetIncome[2022], appleNetIncome[2024], 2))

	// Revenue grew 2020 → 2024.
	assert.Positive(t, CalculateCAGR(appleRevenue[2020], appleRevenue[2024], 4))

	assert.Equal(t, 0.0, CalculateCAGR(0, 100, 3))
	assert.Equal(t, 0.0, CalculateCAGR(100, 121, 0))
}

func TestCAGRRate_Undefined(t *testing.T) {
	tests := []struct {
		name              string
		start, end, years float64
	}{
		{"zero start", 0, 100, 2},
		{"negative end", 100, -5, 2},
		{"zero years", 100, 121, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CAGRRate(tt.start, tt.end, tt.years); !errors.Is(err, ErrUndefined) {
				t.Errorf("CAGRRate(%v, %v, %v) error = %v, want ErrUndefined", tt.start, tt.end, tt.years, err)
			}
		})
	}
}

// =============================================================================
// CROSS-VALIDATION TESTS
// =============================================================================

func TestCheckAgainstReported_AppleGrossProfit(t *testing.T) {
	computed := appleRevenue[2024] - appleCostOfSales2024
	c := CheckAgainstReported(computed, appleGrossProfit2024, 0.01)
	assert.True(t, c.Passed)
	assert.Equal(t, 5.0, c.Difference)
	assert.Less(t, c.RelativeDiff, 0.0001)
}

func TestCheckAgainstReported_AppleEPS(t *testing.T) {
	computed := appleNetIncome[2024] / appleDilutedShares2024
	c := CheckAgainstReported(computed, appleDilutedEPS2024, 0.05)
	t.Logf("EPS computed %.4f vs reported %.2f (%.2f%%)", computed, appleDilutedEPS2024, c.RelativeDiff*100)
	assert.True(t, c.Passed)
}

func TestCheckAgainstReported_Miss(t *testing.T) {
	c := CheckAgainstReported(120, 100, 0.05)
	assert.False(t, c.Passed)
	assert.InDelta(t, 0.2, c.RelativeDiff, 1e-12)

	c = CheckAgainstReported(0.001, 0, 0.01)
	assert.True(t, c.Passed, "zero reported falls back to absolute difference")
}

func TestExceedsMagnitude(t *testing.T) {
	assert.False(t, ExceedsMagnitude(1e12, 1e15))
	assert.True(t, ExceedsMagnitude(-2e15, 1e15))
	assert.True(t, ExceedsMagnitude(math.NaN(), 1e15))
	assert.False(t, ExceedsMagnitude(1e30, 0))
}
