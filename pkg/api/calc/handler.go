// Package calc provides HTTP handlers for metric and formula calculations.
package calc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	coreCalc "factcalc/pkg/core/calc"
	"factcalc/pkg/core/metric"
)

// MaxRequestBytes bounds a calculation request body.
const MaxRequestBytes = 64 << 10

// Calculator is the engine surface the handlers need.
type Calculator interface {
	Calculate(ctx context.Context, req coreCalc.Request) (*coreCalc.Result, error)
	Registry() *metric.Registry
}

// Handler serves the calculation endpoints.
type Handler struct {
	engine Calculator
	logger *slog.Logger
}

// NewHandler creates a calculation handler.
func NewHandler(engine Calculator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/calc", h.HandleCalculate)
	mux.HandleFunc("/api/metrics", h.HandleMetrics)
	mux.HandleFunc("/healthz", HandleHealth)
}

// HandleHealth handles GET /healthz.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "engine_version": coreCalc.EngineVersion})
}

// HandleCalculate handles POST /api/calc.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	if Preflight(w, r, "POST") {
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, coreCalc.KindInvalidRequest, "method not allowed", nil)
		return
	}

	var req coreCalc.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, coreCalc.KindInvalidRequest, "invalid request body: "+err.Error(), nil)
		return
	}

	res, err := h.engine.Calculate(r.Context(), req)
	if err != nil {
		WriteCalcError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

// MetricsResponse lists the registry.
type MetricsResponse struct {
	Metrics []metric.Definition `json:"metrics"`
}

// HandleMetrics handles GET /api/metrics.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if Preflight(w, r, "GET") {
		return
	}
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, coreCalc.KindInvalidRequest, "method not allowed", nil)
		return
	}

	reg := h.engine.Registry()
	names := reg.Names()
	sort.Strings(names)
	resp := MetricsResponse{Metrics: make([]metric.Definition, 0, len(names))}
	for _, name := range names {
		if def, ok := reg.Get(name); ok {
			resp.Metrics = append(resp.Metrics, def)
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// ErrorBody is the error envelope shared by every endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Kind      coreCalc.ErrorKind `json:"kind"`
	Message   string             `json:"message"`
	Missing   []string           `json:"missing,omitempty"`
	Flags     []string           `json:"quality_flags,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(kind coreCalc.ErrorKind) int {
	switch kind {
	case coreCalc.KindInvalidRequest, coreCalc.KindUnsafeExpression:
		return http.StatusBadRequest
	case coreCalc.KindUnknownEntity, coreCalc.KindUnknownConcept, coreCalc.KindUnknownMetric:
		return http.StatusNotFound
	case coreCalc.KindMissingInputs, coreCalc.KindEvaluation:
		return http.StatusUnprocessableEntity
	case coreCalc.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case coreCalc.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// WriteCalcError writes err in the error envelope with its mapped status.
func WriteCalcError(w http.ResponseWriter, err error) {
	ce := coreCalc.AsError(err)
	body := ErrorBody{Error: ErrorDetail{
		Kind:      ce.Kind,
		Message:   ce.Reason,
		Missing:   ce.Missing,
		Flags:     ce.Flags,
		Retryable: ce.Retryable(),
	}}
	WriteJSON(w, StatusFor(ce.Kind), body)
}

// WriteError writes a plain error envelope.
func WriteError(w http.ResponseWriter, status int, kind coreCalc.ErrorKind, msg string, missing []string) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{Kind: kind, Message: msg, Missing: missing}})
}

// WriteJSON encodes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Preflight sets CORS headers for local dev and answers OPTIONS. It
// reports whether the request has been fully handled.
func Preflight(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}
