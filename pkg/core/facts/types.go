// Package facts resolves internal concept names to cited XBRL facts for a
// company and fiscal period, and keeps multi-input lookups on one filing.
package facts

import (
	"sort"
	"time"
)

// PeriodType distinguishes flows (income, cash flow) from balances.
type PeriodType string

const (
	PeriodDuration PeriodType = "Duration"
	PeriodInstant  PeriodType = "Instant"
)

// Fact-level quality flags.
const (
	FlagRestated         = "RESTATED"
	FlagEstimated        = "ESTIMATED"
	FlagNearestPeriod    = "NEAREST_PERIOD"
	FlagFXConverted      = "FX_CONVERTED"
	FlagSegmentFiltered  = "SEGMENT_FILTERED"
	FlagNonCanonicalUnit = "NON_CANONICAL_UNIT"
)

// Flags raised by same-filing resolution.
const (
	FlagAccessionUnknown = "ACCESSION_UNKNOWN"
	// FlagAccessionMismatch is suffixed with ":<input name>".
	FlagAccessionMismatch = "ACCESSION_MISMATCH"
)

// Dimension is one axis/member tag of a segmented fact.
type Dimension struct {
	Axis   string `json:"axis"`
	Member string `json:"member"`
}

// FXProvenance records how a value was converted to the canonical unit.
type FXProvenance struct {
	FromUnit      string  `json:"from_unit"`
	ToUnit        string  `json:"to_unit"`
	Rate          float64 `json:"rate"`
	AsOf          string  `json:"as_of"`
	Source        string  `json:"source"`
	OriginalValue float64 `json:"original_value"`
}

// Fact is a resolved, cited value. Facts are values: the resolver hands out
// copies and never modifies one after building it.
type Fact struct {
	Concept      string        `json:"concept"`
	Value        float64       `json:"value"`
	Unit         string        `json:"unit"`
	Period       string        `json:"period"`
	PeriodType   PeriodType    `json:"period_type"`
	FilingID     string        `json:"filing_id"`
	FragmentID   string        `json:"fragment_id,omitempty"`
	SourceURL    string        `json:"source_url"`
	Dimensions   []Dimension   `json:"dimensions,omitempty"`
	QualityFlags []string      `json:"quality_flags"`
	Taxonomy     string        `json:"taxonomy"`
	TaxonomyID   string        `json:"taxonomy_id"`
	FiscalYear   int           `json:"fiscal_year,omitempty"`
	FiscalPeriod string        `json:"fiscal_period,omitempty"`
	Form         string        `json:"form,omitempty"`
	Filed        time.Time     `json:"filed"`
	Start        *time.Time    `json:"start,omitempty"`
	End          time.Time     `json:"end"`
	Conversion   *FXProvenance `json:"conversion,omitempty"`
}

// Clone returns a deep copy.
func (f Fact) Clone() Fact {
	out := f
	if f.Dimensions != nil {
		out.Dimensions = append([]Dimension(nil), f.Dimensions...)
	}
	out.QualityFlags = append([]string{}, f.QualityFlags...)
	if f.Start != nil {
		s := *f.Start
		out.Start = &s
	}
	if f.Conversion != nil {
		c := *f.Conversion
		out.Conversion = &c
	}
	return out
}

// HasFlag reports whether flag is set.
func (f Fact) HasFlag(flag string) bool {
	for _, q := range f.QualityFlags {
		if q == flag {
			return true
		}
	}
	return false
}

// RawFactEntry is one normalized entry of the upstream dataset.
type RawFactEntry struct {
	Value        float64     `json:"value"`
	Unit         string      `json:"unit"`
	Start        *time.Time  `json:"start,omitempty"`
	End          time.Time   `json:"end"`
	FiscalYear   int         `json:"fy,omitempty"`
	FiscalPeriod string      `json:"fp,omitempty"`
	FilingID     string      `json:"accn"`
	Filed        time.Time   `json:"filed"`
	Form         string      `json:"form"`
	Frame        string      `json:"frame,omitempty"`
	Restated     bool        `json:"restated,omitempty"`
	Estimated    bool        `json:"estimated,omitempty"`
	Dimensions   []Dimension `json:"dimensions,omitempty"`
	// Label is the fiscal period ("2024-Q2", "2024-FY") derived from the
	// filing's fy/fp; empty when the filing carries none.
	Label string `json:"label,omitempty"`
}

// PeriodType reports Instant for entries without a start date.
func (e RawFactEntry) PeriodType() PeriodType {
	if e.Start == nil {
		return PeriodInstant
	}
	return PeriodDuration
}

// RawFilingDataset is the normalized company-facts snapshot for one
// company. Facts is keyed "taxonomy:Concept". Read-only once built.
type RawFilingDataset struct {
	Ticker     string                    `json:"ticker"`
	CIK        string                    `json:"cik"`
	EntityName string                    `json:"entity_name"`
	Facts      map[string][]RawFactEntry `json:"facts"`
	FetchedAt  time.Time                 `json:"fetched_at"`
}

// Entries returns the entries for a taxonomy id; nil when absent.
func (d *RawFilingDataset) Entries(taxonomyID string) []RawFactEntry {
	if d == nil {
		return nil
	}
	return d.Facts[taxonomyID]
}

// HasFiling reports whether any entry was reported under accession.
func (d *RawFilingDataset) HasFiling(accession string) bool {
	for _, entries := range d.Facts {
		for _, e := range entries {
			if e.FilingID == accession {
				return true
			}
		}
	}
	return false
}

func sortedFlags(flags map[string]bool) []string {
	out := make([]string, 0, len(flags))
	for f := range flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
