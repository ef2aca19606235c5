package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/store"
)

type stubFacts struct {
	fact facts.Fact
	err  error
	last facts.Query
}

func (s *stubFacts) GetFact(_ context.Context, q facts.Query) (facts.Fact, error) {
	s.last = q
	return s.fact, s.err
}

func (s *stubFacts) CacheStats() store.Stats {
	return store.Stats{Hits: 3, Misses: 1, Loads: 1, Entries: 1}
}

func get(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleFact(t *testing.T) {
	src := &stubFacts{fact: facts.Fact{Concept: "revenue", Value: 1000, FilingID: "A-1", Unit: "USD"}}
	rec := get(t, NewHandler(src, nil), "/api/facts?ticker=acme&concept=revenue&period=2024-Q4&frequency=quarterly&filing_id=A-1")

	require.Equal(t, http.StatusOK, rec.Code)
	var f facts.Fact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, 1000.0, f.Value)
	assert.Equal(t, "ACME", src.last.Ticker)
	assert.Equal(t, facts.Quarterly, src.last.Frequency)
	assert.Equal(t, "A-1", src.last.RequiredFilingID)
}

func TestHandleFact_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		kind   string
	}{
		{"missing params", "/api/facts?ticker=ACME", nil, http.StatusBadRequest, "InvalidRequest"},
		{"bad frequency", "/api/facts?ticker=ACME&concept=revenue&period=2024&frequency=weekly", nil, http.StatusBadRequest, "InvalidRequest"},
		{"not found", "/api/facts?ticker=ACME&concept=revenue&period=2024", fmt.Errorf("revenue: %w", facts.ErrNotFound), http.StatusNotFound, "NotFound"},
		{"unknown concept", "/api/facts?ticker=ACME&concept=nope&period=2024", facts.ErrUnknownConcept, http.StatusNotFound, "UnknownConcept"},
		{"unknown entity", "/api/facts?ticker=ZZZ&concept=revenue&period=2024", facts.ErrUnknownEntity, http.StatusNotFound, "UnknownEntity"},
		{"upstream", "/api/facts?ticker=ACME&concept=revenue&period=2024", facts.ErrUpstreamUnavailable, http.StatusBadGateway, "UpstreamUnavailable"},
		{"deadline", "/api/facts?ticker=ACME&concept=revenue&period=2024", context.DeadlineExceeded, http.StatusGatewayTimeout, "Timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, NewHandler(&stubFacts{err: tt.err}, nil), tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Kind string `json:"kind"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Error.Kind)
		})
	}
}

func TestHandleCacheStats(t *testing.T) {
	rec := get(t, NewHandler(&stubFacts{}, nil), "/api/edgar/cache-stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"hits":3,"misses":1,"loads":1,"entries":1}`, rec.Body.String())
}
