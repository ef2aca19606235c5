package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL hosts the XBRL APIs.
	DefaultBaseURL = "https://data.sec.gov"

	// DefaultTickersURL is the ticker to CIK directory.
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"

	// DefaultArchivesURL hosts filing indexes and documents.
	DefaultArchivesURL = "https://www.sec.gov/Archives/edgar/data"

	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the SEC fair-access ceiling (requests per second).
	DefaultRateLimit = 10

	// DefaultUserAgent is sent when none is configured. SEC rejects
	// requests without a contact in the User-Agent.
	DefaultUserAgent = "factcalc admin@example.com"
)

// Client fetches company facts and resolves tickers. Safe for concurrent use.
type Client struct {
	baseURL     string
	tickersURL  string
	archivesURL string
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
	maxRetries  int
	retryDelay  time.Duration

	tickerMu sync.Mutex
	tickers  map[string]string // ticker -> padded CIK
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets the XBRL API host.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTickersURL sets the ticker directory location.
func WithTickersURL(u string) ClientOption {
	return func(c *Client) {
		c.tickersURL = u
	}
}

// WithArchivesURL sets the filing archive host used for citations.
func WithArchivesURL(u string) ClientOption {
	return func(c *Client) {
		c.archivesURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithRetry sets the retry budget for transient failures.
func WithRetry(maxRetries int, baseDelay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = baseDelay
	}
}

// NewClient creates a new EDGAR client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		tickersURL:  DefaultTickersURL,
		archivesURL: DefaultArchivesURL,
		userAgent:   DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     slog.Default(),
		maxRetries: 3,
		retryDelay: 500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CompanyFacts fetches every XBRL fact reported by the company.
func (c *Client) CompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	padded, err := PadCIK(cik)
	if err != nil {
		return nil, err
	}
	var result CompanyFacts
	endpoint := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.baseURL, padded)
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, fmt.Errorf("edgar: company facts for CIK %s: %w", padded, err)
	}
	return &result, nil
}

// LookupCIK resolves a ticker symbol to a zero-padded CIK. A numeric input
// is treated as a CIK and only padded. The directory is loaded on first use
// and kept for the life of the client.
func (c *Client) LookupCIK(ctx context.Context, ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty ticker", ErrTickerNotFound)
	}
	if isDigits(normalized) {
		return PadCIK(normalized)
	}

	c.tickerMu.Lock()
	defer c.tickerMu.Unlock()

	if c.tickers == nil {
		tickers, err := c.loadTickers(ctx)
		if err != nil {
			return "", err
		}
		c.tickers = tickers
	}

	if cik, ok := c.tickers[normalized]; ok {
		return cik, nil
	}
	return "", fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
}

// FilingIndexURL is the human-readable index page for a filing, used as the
// citation source of a fact.
func (c *Client) FilingIndexURL(cik, accession string) string {
	return FilingIndexURL(c.archivesURL, cik, accession)
}

// FilingIndexURL builds an index URL under archivesURL.
func FilingIndexURL(archivesURL, cik, accession string) string {
	if accession == "" {
		return ""
	}
	trimmed := strings.TrimLeft(cik, "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return fmt.Sprintf("%s/%s/%s/%s-index.htm",
		archivesURL, trimmed, strings.ReplaceAll(accession, "-", ""), accession)
}

// PadCIK normalizes a CIK to 10 digits.
func PadCIK(cik string) (string, error) {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if cik == "" || !isDigits(cik) || len(cik) > 10 {
		return "", fmt.Errorf("edgar: invalid CIK %q", cik)
	}
	return fmt.Sprintf("%010s", cik), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// loadTickers fetches the directory.
// Format: {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
func (c *Client) loadTickers(ctx context.Context) (map[string]string, error) {
	type tickerEntry struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}

	var resp map[string]tickerEntry
	if err := c.get(ctx, c.tickersURL, &resp); err != nil {
		return nil, fmt.Errorf("edgar: load ticker directory: %w", err)
	}

	tickers := make(map[string]string, len(resp))
	for _, entry := range resp {
		tickers[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
	}
	c.logger.Info("edgar: ticker directory loaded", "tickers", len(tickers))
	return tickers, nil
}

// get performs a rate-limited GET with retries and decodes JSON into result.
func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	attempt := 0
	return withRetry(ctx, c.maxRetries, c.retryDelay, func() error {
		attempt++
		if attempt > 1 {
			c.logger.Warn("edgar: retrying request", "endpoint", endpoint, "attempt", attempt)
		}
		return c.do(ctx, endpoint, result)
	})
}

func (c *Client) do(ctx context.Context, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("edgar: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("edgar: request", "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   endpoint,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
