// Package edgar is the client for the SEC EDGAR XBRL company-facts API and
// the ticker to CIK directory.
package edgar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// CompanyFacts is the body of /api/xbrl/companyfacts/CIK##########.json.
// Facts is keyed by taxonomy ("us-gaap", "ifrs-full", "dei") and then by
// concept name.
type CompanyFacts struct {
	CIK        json.Number                        `json:"cik"`
	EntityName string                             `json:"entityName"`
	Facts      map[string]map[string]ConceptFacts `json:"facts"`
}

// ConceptFacts holds every reported value of one concept, grouped by unit
// ("USD", "shares", "USD/shares", "EUR").
type ConceptFacts struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactEntry `json:"units"`
}

// FactEntry is one reported value. Start is empty for instant facts.
// Dimensions and Estimated are not part of the public companyfacts feed;
// they are carried for datasets that include segment members or
// estimate markers.
type FactEntry struct {
	Value      float64           `json:"val"`
	Start      string            `json:"start,omitempty"`
	End        string            `json:"end"`
	Accession  string            `json:"accn"`
	FiscalYear int               `json:"fy"`
	FiscalPer  string            `json:"fp"`
	Form       string            `json:"form"`
	Filed      string            `json:"filed"`
	Frame      string            `json:"frame,omitempty"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Estimated  bool              `json:"estimated,omitempty"`
}

// IsAmendment reports whether the entry came from an amended filing
// (10-K/A, 10-Q/A).
func (e FactEntry) IsAmendment() bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(e.Form)), "/A")
}

// ErrNotFound is returned when EDGAR has no document at the requested URL.
var ErrNotFound = errors.New("edgar: not found")

// ErrTickerNotFound is returned by LookupCIK for unknown tickers.
var ErrTickerNotFound = errors.New("edgar: ticker not found")

// APIError is a non-200 response from EDGAR.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("edgar: API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Is makes a 404 APIError match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether the request may succeed when retried.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
