// Package edgar provides HTTP handlers for single-fact lookups against SEC
// company facts.
package edgar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apiCalc "factcalc/pkg/api/calc"
	coreCalc "factcalc/pkg/core/calc"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/store"
)

// FactSource is the resolver surface the handlers need.
type FactSource interface {
	GetFact(ctx context.Context, q facts.Query) (facts.Fact, error)
	CacheStats() store.Stats
}

// Handler serves the fact endpoints.
type Handler struct {
	facts  FactSource
	logger *slog.Logger
}

// NewHandler creates a fact handler.
func NewHandler(src FactSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{facts: src, logger: logger}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/facts", h.HandleFact)
	mux.HandleFunc("/api/edgar/cache-stats", h.HandleCacheStats)
}

// HandleFact handles GET /api/facts?ticker=&concept=&period=&frequency=
// with optional segment and filing_id.
func (h *Handler) HandleFact(w http.ResponseWriter, r *http.Request) {
	if apiCalc.Preflight(w, r, "GET") {
		return
	}
	if r.Method != http.MethodGet {
		apiCalc.WriteError(w, http.StatusMethodNotAllowed, coreCalc.KindInvalidRequest, "method not allowed", nil)
		return
	}

	params := r.URL.Query()
	var missing []string
	for _, key := range []string{"ticker", "concept", "period"} {
		if strings.TrimSpace(params.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		apiCalc.WriteError(w, http.StatusBadRequest, coreCalc.KindInvalidRequest,
			"missing query parameters: "+strings.Join(missing, ", "), nil)
		return
	}
	freq, err := facts.ParseFrequency(params.Get("frequency"))
	if err != nil {
		apiCalc.WriteCalcError(w, err)
		return
	}

	q := facts.Query{
		Ticker:           strings.ToUpper(strings.TrimSpace(params.Get("ticker"))),
		Concept:          strings.TrimSpace(params.Get("concept")),
		Period:           params.Get("period"),
		Frequency:        freq,
		Segment:          params.Get("segment"),
		RequiredFilingID: params.Get("filing_id"),
	}
	f, err := h.facts.GetFact(r.Context(), q)
	if errors.Is(err, facts.ErrNotFound) {
		apiCalc.WriteError(w, http.StatusNotFound, "NotFound", err.Error(), nil)
		return
	}
	if err != nil {
		h.logger.Warn("api: fact lookup failed", "ticker", q.Ticker, "concept", q.Concept, "period", q.Period, "error", err)
		apiCalc.WriteCalcError(w, err)
		return
	}
	apiCalc.WriteJSON(w, http.StatusOK, f)
}

// HandleCacheStats handles GET /api/edgar/cache-stats.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	if apiCalc.Preflight(w, r, "GET") {
		return
	}
	apiCalc.WriteJSON(w, http.StatusOK, h.facts.CacheStats())
}
