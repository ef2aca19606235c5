package facts

import (
	"sort"
	"strings"
	"time"

	"factcalc/pkg/core/edgar"
)

const dateLayout = "2006-01-02"

// Normalize flattens an upstream company-facts document into a dataset.
// Entries with an unparseable end date are dropped. Each entry list is
// ordered by end date and then filing date, and every entry is given its
// fiscal label.
func Normalize(cf *edgar.CompanyFacts, ticker string, fetchedAt time.Time) *RawFilingDataset {
	ds := &RawFilingDataset{
		Ticker:    strings.ToUpper(strings.TrimSpace(ticker)),
		Facts:     make(map[string][]RawFactEntry),
		FetchedAt: fetchedAt,
	}
	if cf == nil {
		return ds
	}
	ds.EntityName = cf.EntityName
	if cik, err := edgar.PadCIK(cf.CIK.String()); err == nil {
		ds.CIK = cik
	}

	for taxonomy, concepts := range cf.Facts {
		for name, cfacts := range concepts {
			id := taxonomy + ":" + name
			var entries []RawFactEntry
			for unit, raw := range cfacts.Units {
				for _, r := range raw {
					e, ok := normalizeEntry(r, unit)
					if ok {
						entries = append(entries, e)
					}
				}
			}
			if len(entries) == 0 {
				continue
			}
			sort.SliceStable(entries, func(i, j int) bool {
				if !entries[i].End.Equal(entries[j].End) {
					return entries[i].End.Before(entries[j].End)
				}
				if !entries[i].Filed.Equal(entries[j].Filed) {
					return entries[i].Filed.Before(entries[j].Filed)
				}
				return entries[i].FilingID < entries[j].FilingID
			})
			ds.Facts[id] = entries
		}
	}
	labelDataset(ds)
	return ds
}

func normalizeEntry(r edgar.FactEntry, unit string) (RawFactEntry, bool) {
	end, err := time.Parse(dateLayout, r.End)
	if err != nil {
		return RawFactEntry{}, false
	}
	e := RawFactEntry{
		Value:        r.Value,
		Unit:         unit,
		End:          end,
		FiscalYear:   r.FiscalYear,
		FiscalPeriod: strings.ToUpper(r.FiscalPer),
		FilingID:     r.Accession,
		Form:         r.Form,
		Frame:        r.Frame,
		Restated:     r.IsAmendment(),
		Estimated:    r.Estimated,
		Dimensions:   normalizeDimensions(r.Dimensions),
	}
	if r.Start != "" {
		if start, err := time.Parse(dateLayout, r.Start); err == nil {
			e.Start = &start
		}
	}
	if filed, err := time.Parse(dateLayout, r.Filed); err == nil {
		e.Filed = filed
	}
	return e, true
}

// normalizeDimensions orders axis/member pairs by axis.
func normalizeDimensions(m map[string]string) []Dimension {
	if len(m) == 0 {
		return nil
	}
	out := make([]Dimension, 0, len(m))
	for axis, member := range m {
		out = append(out, Dimension{Axis: axis, Member: member})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Axis < out[j].Axis })
	return out
}
