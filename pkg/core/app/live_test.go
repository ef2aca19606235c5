package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factcalc/pkg/core/calc"
	"factcalc/pkg/core/facts"
)

// liveCompanies spans industries whose filings tag revenue differently.
var liveCompanies = []struct {
	Ticker   string
	Industry string
}{
	{"AAPL", "Technology"},
	{"MSFT", "Technology"},
	{"JNJ", "Healthcare"},
	{"JPM", "Financial"},
	{"KO", "Consumer"},
	{"XOM", "Energy"},
}

// TestLiveSEC runs against data.sec.gov. It needs network access and a
// contact User-Agent.
func TestLiveSEC(t *testing.T) {
	if os.Getenv("ENABLE_REAL_SEC_TEST") != "true" {
		t.Skip("Skipping real SEC test. Set ENABLE_REAL_SEC_TEST=true to run.")
	}
	cfg := testConfig()
	cfg.StaleAfter = 550 * 24 * time.Hour
	if ua := os.Getenv("SEC_USER_AGENT"); ua != "" {
		cfg.SECUserAgent = ua
	}
	s, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	defer s.Close()

	for _, c := range liveCompanies {
		t.Run(c.Ticker, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			res, err := s.Engine.CalculateMetric(ctx, calc.MetricRequest{
				Ticker: c.Ticker, Metric: "net_margin", Period: "2023", Frequency: facts.Annual,
			})
			if calc.KindOf(err) == calc.KindMissingInputs {
				t.Skipf("%s (%s): %v", c.Ticker, c.Industry, err)
			}
			require.NoError(t, err)

			for _, cite := range res.Citations {
				assert.Equal(t, res.Metadata.AnchorFilingID, cite.FilingID, "citation %s", cite.Input)
				assert.NotEmpty(t, cite.SourceURL)
			}
			t.Logf("%s net margin FY2023 = %.2f%% flags=%v", c.Ticker, res.Value, res.QualityFlags)
		})
	}
}
