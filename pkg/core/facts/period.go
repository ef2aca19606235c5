package facts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Frequency is the reporting class of a request or an entry.
type Frequency string

const (
	Quarterly Frequency = "quarterly"
	Annual    Frequency = "annual"
)

// Classification bounds for duration entries, in days. Durations between
// the two (six- and nine-month year-to-date figures) belong to neither.
const (
	maxQuarterDays = 120
	minAnnualDays  = 300
)

// Nearest-period fallback never reaches further than this from the
// canonical end date.
const (
	maxQuarterDistanceDays = 46
	maxAnnualDistanceDays  = 183
)

// ParseFrequency accepts "quarterly", "q", "annual", "a", "fy", "yearly".
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quarterly", "quarter", "q":
		return Quarterly, nil
	case "annual", "annually", "yearly", "a", "fy", "":
		return Annual, nil
	}
	return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidPeriod, s)
}

// Period is a requested fiscal period. Quarter is 0 for a full year.
type Period struct {
	Year    int
	Quarter int
}

// ParsePeriod reads "2024-Q4", "2024Q4", "Q4 2024", "2024-FY", "FY2024" or
// "2024" and checks it against freq.
func ParsePeriod(label string, freq Frequency) (Period, error) {
	s := strings.ToUpper(strings.TrimSpace(label))
	s = strings.NewReplacer("-", "", " ", "", "_", "").Replace(s)

	var p Period
	var err error
	switch {
	case strings.HasPrefix(s, "FY"):
		p.Year, err = strconv.Atoi(s[2:])
	case strings.HasSuffix(s, "FY"):
		p.Year, err = strconv.Atoi(s[:len(s)-2])
	case strings.HasPrefix(s, "Q") && len(s) == 6:
		p.Quarter, err = strconv.Atoi(s[1:2])
		if err == nil {
			p.Year, err = strconv.Atoi(s[2:])
		}
	case len(s) == 6 && s[4] == 'Q':
		p.Year, err = strconv.Atoi(s[:4])
		if err == nil {
			p.Quarter, err = strconv.Atoi(s[5:])
		}
	default:
		p.Year, err = strconv.Atoi(s)
	}
	if err != nil || p.Year < 1900 || p.Year > 9999 || p.Quarter < 0 || p.Quarter > 4 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, label)
	}

	switch freq {
	case Quarterly:
		if p.Quarter == 0 {
			return Period{}, fmt.Errorf("%w: quarterly request needs a quarter, got %q", ErrInvalidPeriod, label)
		}
	case Annual:
		if p.Quarter != 0 {
			return Period{}, fmt.Errorf("%w: annual request with quarter %q", ErrInvalidPeriod, label)
		}
	default:
		return Period{}, fmt.Errorf("%w: unknown frequency %q", ErrInvalidPeriod, freq)
	}
	return p, nil
}

// Frequency returns the class of the period.
func (p Period) Frequency() Frequency {
	if p.Quarter == 0 {
		return Annual
	}
	return Quarterly
}

// Label renders "2024-Q4" or "2024-FY".
func (p Period) Label() string {
	if p.Quarter == 0 {
		return fmt.Sprintf("%d-FY", p.Year)
	}
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// CanonicalEnd is the calendar quarter end, or December 31 for a year. It
// anchors the nearest-period fallback for entries without fiscal codes.
func (p Period) CanonicalEnd() time.Time {
	q := p.Quarter
	if q == 0 {
		q = 4
	}
	// Day 0 of the month after the quarter is the quarter's last day.
	return time.Date(p.Year, time.Month(q*3+1), 0, 0, 0, 0, 0, time.UTC)
}

// Previous steps back one period of the same class.
func (p Period) Previous() Period {
	if p.Quarter == 0 {
		return Period{Year: p.Year - 1}
	}
	if p.Quarter == 1 {
		return Period{Year: p.Year - 1, Quarter: 4}
	}
	return Period{Year: p.Year, Quarter: p.Quarter - 1}
}

// YearEarlier steps back n years, keeping the quarter.
func (p Period) YearEarlier(n int) Period {
	return Period{Year: p.Year - n, Quarter: p.Quarter}
}

// Average period lengths in days, for counting periods between two end
// dates of one filing.
const (
	daysPerYear    = 365.25
	daysPerQuarter = daysPerYear / 4
)

// classify decides the frequency class of an entry. Durations are judged by
// their length, because 10-Q filings tag year-to-date figures with the
// quarter's fp code; a duration whose fp code names the other class has no
// class at all. Instants and entries without a start fall back to the fp
// code and then the form type. ok is false when the entry has no class.
func classify(e RawFactEntry) (Frequency, bool) {
	coded, hasCode := fpClass(e.FiscalPeriod)
	if e.Start != nil {
		days := daysBetween(*e.Start, e.End)
		var class Frequency
		switch {
		case days <= maxQuarterDays:
			class = Quarterly
		case days >= minAnnualDays:
			class = Annual
		default:
			return "", false
		}
		if hasCode && coded != class {
			return "", false
		}
		return class, true
	}
	if hasCode {
		return coded, true
	}
	form := strings.ToUpper(e.Form)
	switch {
	case strings.HasPrefix(form, "10-K"), strings.HasPrefix(form, "20-F"), strings.HasPrefix(form, "40-F"):
		return Annual, true
	case strings.HasPrefix(form, "10-Q"), strings.HasPrefix(form, "6-K"):
		return Quarterly, true
	}
	return "", false
}

func fpClass(fp string) (Frequency, bool) {
	switch strings.ToUpper(fp) {
	case "FY":
		return Annual, true
	case "Q1", "Q2", "Q3", "Q4":
		return Quarterly, true
	}
	return "", false
}

// fiscalPeriod reads a filing's fy/fp as a period of class.
func fiscalPeriod(fy int, fp string, class Frequency) (Period, bool) {
	coded, ok := fpClass(fp)
	if !ok || coded != class || fy < 1900 {
		return Period{}, false
	}
	if class == Annual {
		return Period{Year: fy}, true
	}
	return Period{Year: fy, Quarter: int(strings.ToUpper(fp)[1] - '0')}, true
}

// back steps back n periods of the same class.
func (p Period) back(n int) Period {
	for ; n > 0; n-- {
		p = p.Previous()
	}
	return p
}

// labelDataset assigns fiscal labels. A filing's fy/fp name the filing's
// own period, not each value in it: the latest period of a class in a
// filing carries them, and comparatives in the same filing are labelled by
// counting periods back from it. Durations fix the filing's period before
// instants do, since cover-page instants fall after the period end.
// Entries of filings without usable fy/fp keep an empty label.
func labelDataset(ds *RawFilingDataset) {
	type group struct {
		accession string
		class     Frequency
	}
	type anchor struct {
		end      time.Time
		period   Period
		duration bool
	}

	anchors := make(map[group]anchor)
	for _, entries := range ds.Facts {
		for _, e := range entries {
			class, ok := classify(e)
			if !ok || e.FilingID == "" {
				continue
			}
			p, ok := fiscalPeriod(e.FiscalYear, e.FiscalPeriod, class)
			if !ok {
				continue
			}
			g := group{e.FilingID, class}
			duration := e.Start != nil
			a, seen := anchors[g]
			if !seen || (duration && !a.duration) || (duration == a.duration && e.End.After(a.end)) {
				anchors[g] = anchor{end: e.End, period: p, duration: duration}
			}
		}
	}

	for _, entries := range ds.Facts {
		for i := range entries {
			e := &entries[i]
			e.Label = ""
			class, ok := classify(*e)
			if !ok {
				continue
			}
			a, ok := anchors[group{e.FilingID, class}]
			if !ok {
				continue
			}
			length := daysPerYear
			if class == Quarterly {
				length = daysPerQuarter
			}
			n := int(math.Round(a.end.Sub(e.End).Hours() / 24 / length))
			if n < 0 {
				n = 0
			}
			e.Label = a.period.back(n).Label()
		}
	}
}

// periodLabel is the entry's fiscal label, or for an entry without one the
// calendar period of its end date.
func periodLabel(e RawFactEntry, freq Frequency) string {
	if e.Label != "" {
		return e.Label
	}
	if freq == Annual {
		return fmt.Sprintf("%d-FY", e.End.Year())
	}
	return fmt.Sprintf("%d-Q%d", e.End.Year(), (int(e.End.Month())-1)/3+1)
}

func daysBetween(a, b time.Time) int {
	d := b.Sub(a).Hours() / 24
	if d < 0 {
		d = -d
	}
	return int(d + 0.5)
}
