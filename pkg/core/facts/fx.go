package facts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultCanonicalUnit is the unit monetary facts are reported in.
const DefaultCanonicalUnit = "USD"

// CurrencyNormalizer converts a monetary value between currencies.
// asOf is the fact's period label.
type CurrencyNormalizer interface {
	Normalize(ctx context.Context, value float64, fromUnit, toUnit, asOf string) (float64, FXProvenance, error)
}

// StaticRates is a CurrencyNormalizer backed by a fixed table of rates to
// one target unit, e.g. {"EUR": 1.08} for EUR→USD.
type StaticRates struct {
	target string
	rates  map[string]float64
}

// NewStaticRates builds a normalizer for target from rates.
func NewStaticRates(target string, rates map[string]float64) *StaticRates {
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[strings.ToUpper(k)] = v
	}
	return &StaticRates{target: strings.ToUpper(target), rates: cp}
}

// ParseStaticRates reads "EUR=1.08,JPY=0.0067" into a normalizer for target.
// An empty spec yields nil, meaning no normalizer.
func ParseStaticRates(target, spec string) (*StaticRates, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	rates := make(map[string]float64)
	for _, part := range strings.Split(spec, ",") {
		code, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("facts: malformed fx rate %q", part)
		}
		rate, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || rate <= 0 {
			return nil, fmt.Errorf("facts: invalid fx rate for %s: %q", code, val)
		}
		rates[strings.TrimSpace(code)] = rate
	}
	return NewStaticRates(target, rates), nil
}

// Normalize implements CurrencyNormalizer.
func (s *StaticRates) Normalize(_ context.Context, value float64, fromUnit, toUnit, asOf string) (float64, FXProvenance, error) {
	from, to := strings.ToUpper(fromUnit), strings.ToUpper(toUnit)
	if to != s.target {
		return 0, FXProvenance{}, fmt.Errorf("facts: static rates only convert to %s, not %s", s.target, to)
	}
	rate, ok := s.rates[from]
	if !ok {
		return 0, FXProvenance{}, fmt.Errorf("facts: no fx rate for %s", from)
	}
	return value * rate, FXProvenance{
		FromUnit:      from,
		ToUnit:        to,
		Rate:          rate,
		AsOf:          asOf,
		Source:        "static",
		OriginalValue: value,
	}, nil
}

// isCurrency reports whether unit is a bare ISO 4217 code ("USD", "EUR").
// Per-share units such as "USD/shares" are not converted.
func isCurrency(unit string) bool {
	if len(unit) != 3 {
		return false
	}
	for _, r := range unit {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
