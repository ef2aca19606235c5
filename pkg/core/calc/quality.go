package calc

import (
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/validate"
)

// Advisory flags. They never fail a calculation.
const (
	FlagGrossProfitExceedsRevenue = "GROSS_PROFIT_EXCEEDS_REVENUE"
	FlagNegativeCostOfRevenue     = "NEGATIVE_COST_OF_REVENUE"
	FlagMixedPeriods              = "MIXED_PERIODS"
	FlagStaleData                 = "STALE_DATA"
	FlagZeroResult                = "ZERO_RESULT"
	FlagImplausibleMagnitude      = "IMPLAUSIBLE_MAGNITUDE"
	FlagValidationFailed          = "VALIDATION_FAILED"
	// FlagMissingOptional and FlagUnmapped are suffixed with ":<input>".
	FlagMissingOptional = "MISSING_OPTIONAL"
	FlagUnmapped        = "UNMAPPED"
)

// Internal concepts the plausibility checks know about.
const (
	conceptRevenue       = "revenue"
	conceptCostOfRevenue = "costOfRevenue"
	conceptGrossProfit   = "grossProfit"
)

func (r *run) checkPlausibility(raw, value float64) {
	if rev, ok := r.inputFor(conceptRevenue); ok {
		if gp, ok := r.inputFor(conceptGrossProfit); ok && gp.Value > rev.Value {
			r.flag(FlagGrossProfitExceedsRevenue)
		}
		// A metric validated against grossProfit computes gross profit.
		if r.p.def != nil && r.p.def.ValidateAgainst == conceptGrossProfit && raw > rev.Value {
			r.flag(FlagGrossProfitExceedsRevenue)
		}
	}
	if cost, ok := r.inputFor(conceptCostOfRevenue); ok && cost.Value < 0 {
		r.flag(FlagNegativeCostOfRevenue)
	}

	periods := make(map[string]bool)
	now := r.e.now()
	for _, f := range r.facts {
		periods[f.Period] = true
		if !f.Filed.IsZero() && now.Sub(f.Filed) > r.e.staleAfter {
			r.flag(FlagStaleData)
		}
	}
	if len(periods) > 1 {
		r.flag(FlagMixedPeriods)
	}

	if raw == 0 {
		r.flag(FlagZeroResult)
	}
	if validate.ExceedsMagnitude(value, r.e.maxMagnitude) {
		r.flag(FlagImplausibleMagnitude)
	}
}

// inputFor finds the resolved input standing for an internal concept,
// either by slot name or through the slot's concept list.
func (r *run) inputFor(concept string) (facts.Fact, bool) {
	if f, ok := r.facts[concept]; ok {
		return f, true
	}
	for _, name := range r.names {
		for _, c := range r.inputs[name].Concepts {
			if c == concept {
				f, ok := r.facts[name]
				return f, ok
			}
		}
	}
	return facts.Fact{}, false
}
