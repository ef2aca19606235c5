package config

import (
	"net/http"

	apiCalc "factcalc/pkg/api/calc"
	coreConfig "factcalc/pkg/core/config"
)

// Response is the effective, non-secret runtime configuration.
type Response struct {
	EngineVersion    string  `json:"engine_version"`
	SECRateLimit     int     `json:"sec_rate_limit"`
	CacheTTL         string  `json:"cache_ttl"`
	RequestTimeout   string  `json:"request_timeout"`
	StaleAfter       string  `json:"stale_after"`
	MaxMagnitude     float64 `json:"max_magnitude"`
	DurableCache     string  `json:"durable_cache"`
	History          bool    `json:"history"`
	CustomConceptMap bool    `json:"custom_concept_map"`
	CustomMetrics    bool    `json:"custom_metrics"`
	Multipliers      string  `json:"multipliers,omitempty"`
	FXRates          string  `json:"fx_rates,omitempty"`
}

// Handler holds dependencies for config endpoints
type Handler struct {
	cfg           coreConfig.Config
	engineVersion string
}

// NewHandler creates a new config handler
func NewHandler(cfg coreConfig.Config, engineVersion string) *Handler {
	return &Handler{cfg: cfg, engineVersion: engineVersion}
}

// HandleConfig handles GET /api/config.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if apiCalc.Preflight(w, r, "GET") {
		return
	}

	durable := "none"
	switch {
	case h.cfg.DatabaseURL != "":
		durable = "postgres"
	case h.cfg.DatasetDir != "":
		durable = "file"
	}
	apiCalc.WriteJSON(w, http.StatusOK, Response{
		EngineVersion:    h.engineVersion,
		SECRateLimit:     h.cfg.SECRateLimit,
		CacheTTL:         h.cfg.CacheTTL.String(),
		RequestTimeout:   h.cfg.RequestTimeout.String(),
		StaleAfter:       h.cfg.StaleAfter.String(),
		MaxMagnitude:     h.cfg.MaxMagnitude,
		DurableCache:     durable,
		History:          h.cfg.History,
		CustomConceptMap: h.cfg.ConceptMapPath != "",
		CustomMetrics:    h.cfg.MetricsPath != "",
		Multipliers:      h.cfg.Multipliers,
		FXRates:          h.cfg.FXRates,
	})
}
