package facts

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"factcalc/pkg/core/concept"
	"factcalc/pkg/core/edgar"
)

// fakeFetcher serves canned company facts and counts upstream calls.
type fakeFetcher struct {
	mu      sync.Mutex
	tickers map[string]string
	facts   map[string]*edgar.CompanyFacts
	delay   time.Duration
	err     error

	factCalls atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		tickers: make(map[string]string),
		facts:   make(map[string]*edgar.CompanyFacts),
	}
}

// company registers a ticker and returns its facts document for filling.
func (f *fakeFetcher) company(ticker, cik string) *edgar.CompanyFacts {
	f.mu.Lock()
	defer f.mu.Unlock()
	cf := &edgar.CompanyFacts{
		CIK:        json.Number(strings.TrimLeft(cik, "0")),
		EntityName: ticker + " Corp",
		Facts:      make(map[string]map[string]edgar.ConceptFacts),
	}
	f.tickers[ticker] = cik
	f.facts[cik] = cf
	return cf
}

func (f *fakeFetcher) LookupCIK(_ context.Context, ticker string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cik, ok := f.tickers[strings.ToUpper(ticker)]
	if !ok {
		return "", edgar.ErrTickerNotFound
	}
	return cik, nil
}

func (f *fakeFetcher) CompanyFacts(ctx context.Context, cik string) (*edgar.CompanyFacts, error) {
	f.factCalls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cf, ok := f.facts[cik]
	if !ok {
		return nil, edgar.ErrNotFound
	}
	return cf, nil
}

func (f *fakeFetcher) FilingIndexURL(cik, accession string) string {
	return edgar.FilingIndexURL("https://sec.example", cik, accession)
}

// addFacts appends entries under a taxonomy id and unit.
func addFacts(cf *edgar.CompanyFacts, id, unit string, entries ...edgar.FactEntry) {
	taxonomy, name, _ := concept.SplitID(id)
	if cf.Facts[taxonomy] == nil {
		cf.Facts[taxonomy] = make(map[string]edgar.ConceptFacts)
	}
	c := cf.Facts[taxonomy][name]
	if c.Units == nil {
		c.Units = make(map[string][]edgar.FactEntry)
	}
	c.Units[unit] = append(c.Units[unit], entries...)
	cf.Facts[taxonomy][name] = c
}

// quarter builds a three-month duration entry ending on end.
func quarter(val float64, end, accn string, fy int, fp string) edgar.FactEntry {
	e, _ := time.Parse(dateLayout, end)
	return edgar.FactEntry{
		Value:      val,
		Start:      e.AddDate(0, -3, 1).Format(dateLayout),
		End:        end,
		Accession:  accn,
		FiscalYear: fy,
		FiscalPer:  fp,
		Form:       "10-Q",
		Filed:      e.AddDate(0, 1, 0).Format(dateLayout),
	}
}

// year builds a twelve-month duration entry ending on end.
func year(val float64, end, accn string, fy int) edgar.FactEntry {
	e, _ := time.Parse(dateLayout, end)
	return edgar.FactEntry{
		Value:      val,
		Start:      e.AddDate(-1, 0, 1).Format(dateLayout),
		End:        end,
		Accession:  accn,
		FiscalYear: fy,
		FiscalPer:  "FY",
		Form:       "10-K",
		Filed:      e.AddDate(0, 2, 0).Format(dateLayout),
	}
}

func testConcepts(t *testing.T) *concept.Map {
	t.Helper()
	m, err := concept.New(map[string][]string{
		"revenue":            {"us-gaap:Revenues", "us-gaap:SalesRevenueNet", "ifrs-full:Revenue"},
		"costOfRevenue":      {"us-gaap:CostOfRevenue", "ifrs-full:CostOfSales"},
		"grossProfit":        {"us-gaap:GrossProfit"},
		"netIncome":          {"us-gaap:NetIncomeLoss"},
		"totalAssets":        {"us-gaap:Assets"},
		"sharesOutstanding":  {"dei:EntityCommonStockSharesOutstanding"},
		"stockholdersEquity": {"us-gaap:StockholdersEquity"},
	})
	require.NoError(t, err)
	return m
}

func newTestResolver(t *testing.T, f *fakeFetcher, opts ...Option) *Resolver {
	t.Helper()
	r := NewResolver(testConcepts(t), f, opts...)
	t.Cleanup(r.Close)
	return r
}
