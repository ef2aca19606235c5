package store

import "strings"

// Key identifies one resolved fact in the cache.
type Key struct {
	Ticker     string
	TaxonomyID string
	Period     string
	Frequency  string
	FilingID   string
	Segment    string
}

// String renders the key as "TICKER|taxonomy:Concept|period|frequency|filing|segment".
// Ticker and frequency are case-folded so "aapl" and "AAPL" share entries.
func (k Key) String() string {
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(k.Ticker)),
		k.TaxonomyID,
		k.Period,
		strings.ToLower(k.Frequency),
		k.FilingID,
		strings.ToLower(strings.TrimSpace(k.Segment)),
	}, "|")
}

// DatasetKey is the cache key for a ticker's whole company-facts dataset.
func DatasetKey(ticker string) string {
	return "dataset|" + strings.ToUpper(strings.TrimSpace(ticker))
}
