// Package config loads and validates factcalc configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SEC fetch settings. The SEC rejects requests without a contact
	// User-Agent.
	SECUserAgent  string
	SECRateLimit  int // requests per second
	SECBaseURL    string
	SECMaxRetries int

	// Cache settings.
	CacheTTL    time.Duration
	DatabaseURL string // Optional durable tier; empty disables Postgres.
	DatasetDir  string // Optional file tier used when DatabaseURL is empty.

	// Engine settings.
	RequestTimeout time.Duration
	StaleAfter     time.Duration
	MaxMagnitude   float64
	ConceptMapPath string // Empty uses the embedded map.
	MetricsPath    string // Empty uses the embedded registry.
	Multipliers    string // e.g. "Percent=100,Days=360"
	FXRates        string // e.g. "EUR=1.08,JPY=0.0067", rates to USD
	History        bool   // Resolve earlier periods for avg/ttm/yoy/qoq/cagr.

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are reported rather than silently replaced by defaults.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVal := func(key string, def int) int {
		v, err := envInt(key, def)
		collect(err)
		return v
	}
	floatVal := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		collect(err)
		return v
	}
	boolVal := func(key string, def bool) bool {
		v, err := envBool(key, def)
		collect(err)
		return v
	}
	durVal := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		collect(err)
		return v
	}

	cfg := Config{
		Port:           intVal("FACTCALC_PORT", 8080),
		ReadTimeout:    durVal("FACTCALC_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   durVal("FACTCALC_WRITE_TIMEOUT", 60*time.Second),
		SECUserAgent:   envStr("SEC_USER_AGENT", ""),
		SECRateLimit:   intVal("SEC_RATE_LIMIT", 10),
		SECBaseURL:     envStr("SEC_BASE_URL", ""),
		SECMaxRetries:  intVal("SEC_MAX_RETRIES", 3),
		CacheTTL:       durVal("FACTCALC_CACHE_TTL", 15*time.Minute),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		DatasetDir:     envStr("FACTCALC_DATASET_DIR", ""),
		RequestTimeout: durVal("FACTCALC_REQUEST_TIMEOUT", 30*time.Second),
		StaleAfter:     durVal("FACTCALC_STALE_AFTER", 550*24*time.Hour),
		MaxMagnitude:   floatVal("FACTCALC_MAX_MAGNITUDE", 1e13),
		ConceptMapPath: envStr("FACTCALC_CONCEPT_MAP", ""),
		MetricsPath:    envStr("FACTCALC_METRICS", ""),
		Multipliers:    envStr("FACTCALC_MULTIPLIERS", ""),
		FXRates:        envStr("FACTCALC_FX_RATES", ""),
		History:        boolVal("FACTCALC_HISTORY", true),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:    envStr("OTEL_SERVICE_NAME", "factcalc"),
		OTELInsecure:   boolVal("OTEL_EXPORTER_OTLP_INSECURE", false),
		LogLevel:       envStr("FACTCALC_LOG_LEVEL", "info"),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SECUserAgent) == "" {
		return fmt.Errorf("config: SEC_USER_AGENT is required (e.g. \"Example Corp admin@example.com\")")
	}
	if c.SECRateLimit <= 0 || c.SECRateLimit > 10 {
		return fmt.Errorf("config: SEC_RATE_LIMIT must be between 1 and 10")
	}
	if c.SECMaxRetries < 0 {
		return fmt.Errorf("config: SEC_MAX_RETRIES must not be negative")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: FACTCALC_CACHE_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: FACTCALC_REQUEST_TIMEOUT must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("config: FACTCALC_STALE_AFTER must be positive")
	}
	if c.MaxMagnitude <= 0 {
		return fmt.Errorf("config: FACTCALC_MAX_MAGNITUDE must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps FACTCALC_LOG_LEVEL onto a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: FACTCALC_LOG_LEVEL %q: %w", s, err)
	}
	return l, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
