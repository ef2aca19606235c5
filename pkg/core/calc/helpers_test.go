package calc

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
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
)

const day = "2006-01-02"

// testNow sits shortly after the 2024 filings used in these tests.
var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// secStub serves canned company facts for one or more tickers.
type secStub struct {
	mu      sync.Mutex
	tickers map[string]string
	docs    map[string]*edgar.CompanyFacts
	delay   time.Duration
	calls   atomic.Int32
}

func newSECStub() *secStub {
	return &secStub{
		tickers: make(map[string]string),
		docs:    make(map[string]*edgar.CompanyFacts),
	}
}

func (s *secStub) company(ticker, cik string) *edgar.CompanyFacts {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf := &edgar.CompanyFacts{
		CIK:        json.Number(strings.TrimLeft(cik, "0")),
		EntityName: ticker + " Inc.",
		Facts:      make(map[string]map[string]edgar.ConceptFacts),
	}
	s.tickers[ticker] = cik
	s.docs[cik] = cf
	return cf
}

func (s *secStub) LookupCIK(_ context.Context, ticker string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cik, ok := s.tickers[strings.ToUpper(ticker)]
	if !ok {
		return "", edgar.ErrTickerNotFound
	}
	return cik, nil
}

func (s *secStub) CompanyFacts(ctx context.Context, cik string) (*edgar.CompanyFacts, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, ok := s.docs[cik]
	if !ok {
		return nil, edgar.ErrNotFound
	}
	return cf, nil
}

func (s *secStub) FilingIndexURL(cik, accession string) string {
	return edgar.FilingIndexURL("https://sec.example", cik, accession)
}

func add(cf *edgar.CompanyFacts, id, unit string, entries ...edgar.FactEntry) {
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

// qtr builds a three-month duration entry ending on end.
func qtr(val float64, end, accn string, fy int, fp string) edgar.FactEntry {
	e, _ := time.Parse(day, end)
	return edgar.FactEntry{
		Value:      val,
		Start:      e.AddDate(0, -3, 1).Format(day),
		End:        end,
		Accession:  accn,
		FiscalYear: fy,
		FiscalPer:  fp,
		Form:       "10-Q",
		Filed:      e.AddDate(0, 1, 0).Format(day),
	}
}

// fy builds a twelve-month duration entry ending on end.
func fy(val float64, end, accn string, year int) edgar.FactEntry {
	e, _ := time.Parse(day, end)
	return edgar.FactEntry{
		Value:      val,
		Start:      e.AddDate(-1, 0, 1).Format(day),
		End:        end,
		Accession:  accn,
		FiscalYear: year,
		FiscalPer:  "FY",
		Form:       "10-K",
		Filed:      e.AddDate(0, 2, 0).Format(day),
	}
}

// instant builds a balance reported at end.
func instant(val float64, end, accn string, year int, fp string) edgar.FactEntry {
	e, _ := time.Parse(day, end)
	return edgar.FactEntry{
		Value:      val,
		End:        end,
		Accession:  accn,
		FiscalYear: year,
		FiscalPer:  fp,
		Form:       "10-Q",
		Filed:      e.AddDate(0, 1, 0).Format(day),
	}
}

func testConcepts(t *testing.T) *concept.Map {
	t.Helper()
	m, err := concept.New(map[string][]string{
		"revenue":            {"us-gaap:Revenues", "ifrs-full:Revenue"},
		"costOfRevenue":      {"us-gaap:CostOfRevenue"},
		"grossProfit":        {"us-gaap:GrossProfit"},
		"netIncome":          {"us-gaap:NetIncomeLoss"},
		"totalAssets":        {"us-gaap:Assets"},
		"stockholdersEquity": {"us-gaap:StockholdersEquity"},
		"longTermDebt":       {"us-gaap:LongTermDebt"},
		"accountsReceivable": {"us-gaap:AccountsReceivableNetCurrent"},
		"sharesOutstanding":  {"dei:EntityCommonStockSharesOutstanding"},
		"epsDiluted":         {"us-gaap:EarningsPerShareDiluted"},
	})
	require.NoError(t, err)
	return m
}

type fixture struct {
	sec      *secStub
	resolver *facts.Resolver
	engine   *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	sec := newSECStub()
	resolver := facts.NewResolver(testConcepts(t), sec)
	t.Cleanup(resolver.Close)

	registry, err := metric.Default()
	require.NoError(t, err)

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return &fixture{
		sec:      sec,
		resolver: resolver,
		engine:   NewEngine(resolver, registry, opts...),
	}
}

// acme registers ACME with revenue 1000 and cost of revenue 600 for
// 2024-Q4, both from filing F1.
func (fx *fixture) acme() *edgar.CompanyFacts {
	cf := fx.sec.company("ACME", "0000000042")
	add(cf, "us-gaap:Revenues", "USD", qtr(1000, "2024-12-31", "F1", 2024, "Q4"))
	add(cf, "us-gaap:CostOfRevenue", "USD", qtr(600, "2024-12-31", "F1", 2024, "Q4"))
	return cf
}

func quarterly(metricName string) MetricRequest {
	return MetricRequest{Ticker: "ACME", Metric: metricName, Period: "2024-Q4", Frequency: facts.Quarterly}
}

func formula(text string) ExpressionRequest {
	return ExpressionRequest{Ticker: "ACME", Formula: text, Period: "2024-Q4", Frequency: facts.Quarterly}
}
