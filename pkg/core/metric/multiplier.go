package metric

import (
	"fmt"
	"strconv"
	"strings"
)

// Multipliers maps an output type to the factor applied to a raw result.
// Deployments override entries through configuration; types without an
// entry fall back to 1.
type Multipliers map[OutputType]float64

// DefaultMultipliers returns the stock table: percentages are scaled by 100
// and day-count metrics by 365, the days in a year.
func DefaultMultipliers() Multipliers {
	return Multipliers{
		OutputValue:   1,
		OutputPercent: 100,
		OutputRatio:   1,
		OutputDays:    365,
	}
}

// For returns the multiplier for t.
func (m Multipliers) For(t OutputType) float64 {
	if v, ok := m[t]; ok {
		return v
	}
	return 1
}

// ForPeriod is For with the Days factor scaled to the span of the flows in
// the ratio: a quarter of the yearly day count when they cover one quarter.
func (m Multipliers) ForPeriod(t OutputType, quarterly bool) float64 {
	v := m.For(t)
	if t == OutputDays && quarterly {
		return v / 4
	}
	return v
}

// ParseMultipliers reads overrides of the form "Percent=100,Days=360" on
// top of the defaults.
func ParseMultipliers(spec string) (Multipliers, error) {
	m := DefaultMultipliers()
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return m, nil
	}
	for _, part := range strings.Split(spec, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("metric: malformed multiplier %q", part)
		}
		t := OutputType(strings.TrimSpace(key))
		if !t.Valid() {
			return nil, fmt.Errorf("metric: unknown output type %q", key)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("metric: multiplier for %s: %w", t, err)
		}
		m[t] = f
	}
	return m, nil
}
