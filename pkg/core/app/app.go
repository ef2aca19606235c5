// Package app wires the SEC client, caches, resolver and calculation
// engine from configuration. Binaries build one Services value and share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"factcalc/pkg/core/calc"
	"factcalc/pkg/core/concept"
	"factcalc/pkg/core/config"
	"factcalc/pkg/core/edgar"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
	"factcalc/pkg/core/store"
)

const defaultRetryDelay = 500 * time.Millisecond

// Services holds the long-lived collaborators.
type Services struct {
	Config   config.Config
	Logger   *slog.Logger
	SEC      *edgar.Client
	Resolver *facts.Resolver
	Registry *metric.Registry
	Engine   *calc.Engine

	pool *pgxpool.Pool
}

// Build constructs Services. fetcher overrides the SEC client when non-nil,
// which tests use to serve canned documents.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, fetcher facts.Fetcher) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, Logger: logger}

	concepts, err := loadConcepts(cfg.ConceptMapPath)
	if err != nil {
		return nil, err
	}
	registry, err := loadRegistry(cfg.MetricsPath)
	if err != nil {
		return nil, err
	}
	multipliers, err := metric.ParseMultipliers(cfg.Multipliers)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	s.Registry = registry

	if fetcher == nil {
		opts := []edgar.ClientOption{
			edgar.WithUserAgent(cfg.SECUserAgent),
			edgar.WithRateLimit(cfg.SECRateLimit),
			edgar.WithRetry(cfg.SECMaxRetries, defaultRetryDelay),
			edgar.WithLogger(logger),
		}
		if cfg.SECBaseURL != "" {
			opts = append(opts, edgar.WithBaseURL(cfg.SECBaseURL))
		}
		s.SEC = edgar.NewClient(opts...)
		fetcher = s.SEC
	}

	resolverOpts := []facts.Option{
		facts.WithLogger(logger),
		facts.WithDatasetCache(store.NewCache[*facts.RawFilingDataset](store.WithTTL(cfg.CacheTTL))),
	}
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		s.pool = pool
	}
	if s.pool != nil || cfg.DatasetDir != "" {
		durable := store.NewDatasetStore(s.pool, cfg.DatasetDir, logger)
		if err := durable.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		resolverOpts = append(resolverOpts, facts.WithDatasetStore(durable))
	}
	rates, err := facts.ParseStaticRates(facts.DefaultCanonicalUnit, cfg.FXRates)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	if rates != nil {
		resolverOpts = append(resolverOpts, facts.WithCurrencyNormalizer(rates))
	}
	s.Resolver = facts.NewResolver(concepts, fetcher, resolverOpts...)

	engineOpts := []calc.Option{
		calc.WithLogger(logger),
		calc.WithMultipliers(multipliers),
		calc.WithTimeout(cfg.RequestTimeout),
		calc.WithStaleAfter(cfg.StaleAfter),
		calc.WithMaxMagnitude(cfg.MaxMagnitude),
	}
	if cfg.History {
		engineOpts = append(engineOpts, calc.WithHistory(calc.NewResolverHistory(s.Resolver)))
	}
	s.Engine = calc.NewEngine(s.Resolver, registry, engineOpts...)

	logger.Info("app: services ready",
		"metrics", registry.Count(),
		"concepts", len(concepts.Names()),
		"durable_cache", s.pool != nil || cfg.DatasetDir != "",
		"history", cfg.History,
	)
	return s, nil
}

// Close releases the resolver caches and the database pool.
func (s *Services) Close() {
	if s.Resolver != nil {
		s.Resolver.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func loadConcepts(path string) (*concept.Map, error) {
	if path == "" {
		return concept.Default()
	}
	m, err := concept.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: concept map: %w", err)
	}
	return m, nil
}

func loadRegistry(path string) (*metric.Registry, error) {
	if path == "" {
		return metric.Default()
	}
	r, err := metric.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}
	return r, nil
}
