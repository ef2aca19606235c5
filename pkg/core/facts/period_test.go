package facts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		label   string
		freq    Frequency
		want    Period
		wantErr bool
	}{
		{"2024-Q4", Quarterly, Period{2024, 4}, false},
		{"2024q1", Quarterly, Period{2024, 1}, false},
		{"Q3 2023", Quarterly, Period{2023, 3}, false},
		{"2024-FY", Annual, Period{2024, 0}, false},
		{"FY2024", Annual, Period{2024, 0}, false},
		{"2024", Annual, Period{2024, 0}, false},
		{"2024", Quarterly, Period{}, true},
		{"2024-Q4", Annual, Period{}, true},
		{"2024-Q5", Quarterly, Period{}, true},
		{"last year", Annual, Period{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := ParsePeriod(tt.label, tt.freq)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriod_CanonicalEnd(t *testing.T) {
	assert.Equal(t, date("2024-03-31"), Period{2024, 1}.CanonicalEnd())
	assert.Equal(t, date("2024-06-30"), Period{2024, 2}.CanonicalEnd())
	assert.Equal(t, date("2024-09-30"), Period{2024, 3}.CanonicalEnd())
	assert.Equal(t, date("2024-12-31"), Period{2024, 4}.CanonicalEnd())
	assert.Equal(t, date("2024-12-31"), Period{2024, 0}.CanonicalEnd())
}

func TestPeriod_Navigation(t *testing.T) {
	assert.Equal(t, Period{2023, 4}, Period{2024, 1}.Previous())
	assert.Equal(t, Period{2024, 2}, Period{2024, 3}.Previous())
	assert.Equal(t, Period{2023, 0}, Period{2024, 0}.Previous())
	assert.Equal(t, Period{2021, 2}, Period{2024, 2}.YearEarlier(3))
	assert.Equal(t, "2024-Q2", Period{2024, 2}.Label())
	assert.Equal(t, "2024-FY", Period{2024, 0}.Label())
}

func TestParseFrequency(t *testing.T) {
	for in, want := range map[string]Frequency{"quarterly": Quarterly, "Q": Quarterly, "annual": Annual, "FY": Annual} {
		got, err := ParseFrequency(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFrequency("monthly")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestClassify(t *testing.T) {
	start := date("2024-01-01")
	q2start := date("2024-04-01")
	tests := []struct {
		name  string
		entry RawFactEntry
		want  Frequency
		ok    bool
	}{
		{"three months", RawFactEntry{Start: &q2start, End: date("2024-06-30"), FiscalPeriod: "Q2"}, Quarterly, true},
		{"twelve months untagged", RawFactEntry{Start: &start, End: date("2024-12-31")}, Annual, true},
		{"twelve months tagged Q4", RawFactEntry{Start: &start, End: date("2024-12-31"), FiscalPeriod: "Q4"}, "", false},
		{"three months tagged FY", RawFactEntry{Start: &q2start, End: date("2024-06-30"), FiscalPeriod: "FY"}, "", false},
		{"six month ytd", RawFactEntry{Start: &start, End: date("2024-06-30"), FiscalPeriod: "Q2"}, "", false},
		{"instant FY", RawFactEntry{End: date("2024-12-31"), FiscalPeriod: "FY"}, Annual, true},
		{"instant Q3", RawFactEntry{End: date("2024-09-30"), FiscalPeriod: "Q3"}, Quarterly, true},
		{"instant by form", RawFactEntry{End: date("2024-09-30"), Form: "10-Q"}, Quarterly, true},
		{"unknown", RawFactEntry{End: date("2024-09-30"), Form: "8-K"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classify(tt.entry)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodLabel(t *testing.T) {
	tests := []struct {
		name  string
		entry RawFactEntry
		freq  Frequency
		want  string
	}{
		{"fiscal label wins", RawFactEntry{End: date("2024-09-30"), Label: "2025-Q1"}, Quarterly, "2025-Q1"},
		{"calendar year", RawFactEntry{End: date("2023-12-31")}, Annual, "2023-FY"},
		{"calendar quarter", RawFactEntry{End: date("2024-05-15")}, Quarterly, "2024-Q2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := periodLabel(tt.entry, tt.freq); got != tt.want {
				t.Errorf("periodLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLabelDataset(t *testing.T) {
	span := func(start, end, accn string, fy int, fp string) RawFactEntry {
		s := date(start)
		return RawFactEntry{Start: &s, End: date(end), FilingID: accn, FiscalYear: fy, FiscalPeriod: fp}
	}
	at := func(end, accn string, fy int, fp string) RawFactEntry {
		return RawFactEntry{End: date(end), FilingID: accn, FiscalYear: fy, FiscalPeriod: fp}
	}
	ds := &RawFilingDataset{Facts: map[string][]RawFactEntry{
		"us-gaap:Revenues": {
			// September fiscal year, 52/53-week calendar.
			span("2023-10-01", "2024-09-28", "K24", 2024, "FY"),
			span("2022-09-25", "2023-09-30", "K24", 2024, "FY"),
			span("2024-06-30", "2024-12-28", "Q125", 2025, "Q1"),
			span("2024-09-29", "2024-12-28", "Q125", 2025, "Q1"),
			span("2023-10-01", "2023-12-30", "Q125", 2025, "Q1"),
			span("2024-01-01", "2024-12-31", "", 2024, "FY"),
		},
		"us-gaap:Assets": {
			at("2024-09-28", "K24", 2024, "FY"),
			at("2023-09-30", "K24", 2024, "FY"),
			at("2024-12-28", "Q125", 2025, "Q1"),
			at("2024-09-28", "Q125", 2025, "Q1"),
		},
		"dei:EntityCommonStockSharesOutstanding": {
			// Cover-page date after the period end.
			at("2024-10-18", "K24", 2024, "FY"),
		},
	}}
	labelDataset(ds)

	want := map[string][]string{
		"us-gaap:Revenues":                       {"2024-FY", "2023-FY", "", "2025-Q1", "2024-Q1", ""},
		"us-gaap:Assets":                         {"2024-FY", "2023-FY", "2025-Q1", "2024-Q4"},
		"dei:EntityCommonStockSharesOutstanding": {"2024-FY"},
	}
	for id, labels := range want {
		for i, w := range labels {
			if got := ds.Facts[id][i].Label; got != w {
				t.Errorf("%s[%d].Label = %q, want %q", id, i, got, w)
			}
		}
	}
}

func TestSelectEntry_PreferSmallerDuplicateIsTheOnlyTieBreakOnValue(t *testing.T) {
	assert.True(t, PreferSmallerDuplicate(-10, 20))
	assert.False(t, PreferSmallerDuplicate(30, -20))

	s := date("2024-01-01")
	entries := []RawFactEntry{
		{Value: 1000, Unit: "USD", Start: &s, End: date("2024-12-31"), FilingID: "A", Filed: date("2025-02-01")},
		{Value: 1000, Unit: "USD", Start: &s, End: date("2024-12-31"), FilingID: "B", Filed: date("2026-02-01")},
	}
	sel, ok := selectEntry(entries, criteria{period: Period{Year: 2024}, canonicalUnit: "USD"})
	require.True(t, ok)
	assert.Equal(t, "B", sel.entry.FilingID, "equal values go to the latest filing")
	assert.False(t, sel.nearest)
}
