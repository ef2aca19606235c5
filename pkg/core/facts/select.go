package facts

import (
	"math"
	"strings"
)

// selection is the outcome of picking one entry for a period.
type selection struct {
	entry   RawFactEntry
	class   Frequency
	nearest bool
}

// criteria narrows the entries of one taxonomy id.
type criteria struct {
	period        Period
	segment       string
	filingID      string
	canonicalUnit string
}

// selectEntry is the single decision point for choosing an entry.
//
//  1. Entries outside the required filing, of the wrong frequency class,
//     or failing the segment filter are discarded.
//  2. Entries whose fiscal label equals the requested period win; ties go
//     to preferEntry. A labelled entry never matches any other period.
//  3. Entries without a fiscal label are matched on the calendar: ending
//     exactly on the canonical end date wins, else the smallest day
//     distance within the class's reach; ties go to preferEntry.
func selectEntry(entries []RawFactEntry, c criteria) (selection, bool) {
	want := c.period.Frequency()
	label := c.period.Label()
	end := c.period.CanonicalEnd()
	maxDist := maxQuarterDistanceDays
	if want == Annual {
		maxDist = maxAnnualDistanceDays
	}

	var exact, near RawFactEntry
	var haveExact, haveNear bool
	bestDistance := math.MaxInt
	for _, e := range entries {
		if c.filingID != "" && e.FilingID != c.filingID {
			continue
		}
		class, ok := classify(e)
		if !ok || class != want {
			continue
		}
		if !matchesSegment(e.Dimensions, c.segment) {
			continue
		}

		if e.Label != "" {
			if e.Label == label && (!haveExact || preferEntry(e, exact, c.canonicalUnit)) {
				exact, haveExact = e, true
			}
			continue
		}

		dist := daysBetween(e.End, end)
		if dist == 0 {
			if !haveExact || preferEntry(e, exact, c.canonicalUnit) {
				exact, haveExact = e, true
			}
			continue
		}
		if dist > maxDist {
			continue
		}
		if !haveNear || dist < bestDistance || (dist == bestDistance && preferEntry(e, near, c.canonicalUnit)) {
			near, haveNear, bestDistance = e, true, dist
		}
	}

	switch {
	case haveExact:
		return selection{entry: exact, class: want}, true
	case haveNear:
		return selection{entry: near, class: want, nearest: true}, true
	}
	return selection{}, false
}

// preferEntry reports whether a should replace b among equally good
// candidates: canonical unit first, then PreferSmallerDuplicate, then the
// most recent filing.
func preferEntry(a, b RawFactEntry, canonicalUnit string) bool {
	aUnit, bUnit := a.Unit == canonicalUnit, b.Unit == canonicalUnit
	if aUnit != bUnit {
		return aUnit
	}
	if math.Abs(a.Value) != math.Abs(b.Value) {
		return PreferSmallerDuplicate(a.Value, b.Value)
	}
	if !a.Filed.Equal(b.Filed) {
		return a.Filed.After(b.Filed)
	}
	return a.FilingID > b.FilingID
}

// PreferSmallerDuplicate is a heuristic, not a correctness guarantee: when
// a period has several candidate values, the smaller magnitude is taken,
// because quarterly figures are sometimes also tagged under an annual
// element and the annual one is then the larger. It can misfire for small
// or negative annual figures. Replace it with dimension-based
// disambiguation once entries carry reliable dimension tags.
func PreferSmallerDuplicate(a, b float64) bool {
	return math.Abs(a) < math.Abs(b)
}

// matchesSegment applies the segment filter. Without a segment only
// undimensioned (consolidated) entries qualify. A segment matches a member
// name case-insensitively, or an "Axis=Member" pair exactly.
func matchesSegment(dims []Dimension, segment string) bool {
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return len(dims) == 0
	}
	axis, member, pair := strings.Cut(segment, "=")
	for _, d := range dims {
		if pair {
			if strings.EqualFold(d.Axis, strings.TrimSpace(axis)) && strings.EqualFold(d.Member, strings.TrimSpace(member)) {
				return true
			}
			continue
		}
		if strings.EqualFold(d.Member, segment) {
			return true
		}
	}
	return false
}
