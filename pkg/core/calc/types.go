// Package calc evaluates metric formulas over resolved facts and returns a
// cited result. It never executes formula text: formulas go through the
// closed grammar in package expr.
package calc

import (
	"time"

	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
	"factcalc/pkg/core/validate"
)

// EngineVersion is stamped into every result.
const EngineVersion = "1.0.0"

// =============================================================================
// REQUESTS
// =============================================================================

// Request is the wire contract: exactly one of MetricName and FormulaText
// is set.
type Request struct {
	Ticker               string  `json:"ticker"`
	MetricName           string  `json:"metric_name,omitempty"`
	FormulaText          string  `json:"formula_text,omitempty"`
	Period               string  `json:"period"`
	Frequency            string  `json:"frequency"`
	TrailingTwelveMonths bool    `json:"trailing_twelve_months,omitempty"`
	Segment              string  `json:"segment,omitempty"`
	CrossValidate        bool    `json:"cross_validate,omitempty"`
	Shares               float64 `json:"shares,omitempty"`
}

// MetricRequest evaluates a registry metric.
type MetricRequest struct {
	Ticker    string
	Metric    string
	Period    string
	Frequency facts.Frequency
	TTM       bool
	Segment   string
	// CrossValidate compares the result with the definition's
	// ValidateAgainst concept when it names one.
	CrossValidate bool
	// Shares overrides the share count used by per_share.
	Shares float64
}

// ExpressionRequest evaluates ad hoc formula text. Inputs are discovered
// from the identifiers in Formula.
type ExpressionRequest struct {
	Ticker    string
	Formula   string
	Period    string
	Frequency facts.Frequency
	TTM       bool
	Segment   string
	Shares    float64
}

// =============================================================================
// RESULT
// =============================================================================

// Result is a computed, cited value. The caller owns it.
type Result struct {
	Ticker       string                `json:"ticker"`
	Metric       string                `json:"metric,omitempty"`
	Formula      string                `json:"formula"`
	Period       string                `json:"period"`
	Frequency    facts.Frequency       `json:"frequency"`
	Value        float64               `json:"value"`
	RawValue     float64               `json:"raw_value"`
	OutputType   metric.OutputType     `json:"output_type"`
	Inputs       map[string]facts.Fact `json:"inputs"`
	Citations    []Citation            `json:"citations"`
	QualityFlags []string              `json:"quality_flags"`
	Metadata     Metadata              `json:"metadata"`
}

// Citation points at the filing behind one value used in a result.
type Citation struct {
	// Input is the formula identifier; function lookups read "yoy(revenue)".
	Input      string              `json:"input"`
	Concept    string              `json:"concept"`
	TaxonomyID string              `json:"taxonomy_id"`
	Value      float64             `json:"value"`
	Unit       string              `json:"unit"`
	Period     string              `json:"period"`
	SourceURL  string              `json:"source_url"`
	FilingID   string              `json:"filing_id"`
	FragmentID string              `json:"fragment_id,omitempty"`
	Dimensions []facts.Dimension   `json:"dimensions,omitempty"`
	Conversion *facts.FXProvenance `json:"conversion,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	CalculatedAt   time.Time `json:"calculated_at"`
	EngineVersion  string    `json:"engine_version"`
	RequestID      string    `json:"request_id"`
	TTMApplied     bool      `json:"ttm_applied"`
	SegmentApplied bool      `json:"segment_applied"`
	Segment        string    `json:"segment,omitempty"`
	AnchorFilingID string    `json:"anchor_filing_id,omitempty"`
	// Evaluated is the arithmetic text after substitution.
	Evaluated string `json:"evaluated"`
	// Adjusted holds input values that differ from the cited fact, e.g.
	// trailing-twelve-month sums.
	Adjusted   map[string]float64 `json:"adjusted,omitempty"`
	Validation *Validation        `json:"validation,omitempty"`
}

// Validation is the outcome of cross-validation.
type Validation struct {
	Concept    string               `json:"concept"`
	FilingID   string               `json:"filing_id,omitempty"`
	Comparison *validate.Comparison `json:"comparison,omitempty"`
	// Error is set when the reported figure could not be resolved.
	Error string `json:"error,omitempty"`
}

func citationFor(input string, f facts.Fact) Citation {
	c := Citation{
		Input:      input,
		Concept:    f.Concept,
		TaxonomyID: f.TaxonomyID,
		Value:      f.Value,
		Unit:       f.Unit,
		Period:     f.Period,
		SourceURL:  f.SourceURL,
		FilingID:   f.FilingID,
		FragmentID: f.FragmentID,
		Conversion: f.Conversion,
	}
	if len(f.Dimensions) > 0 {
		c.Dimensions = append([]facts.Dimension(nil), f.Dimensions...)
	}
	return c
}
