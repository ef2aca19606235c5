package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	apiCalc "factcalc/pkg/api/calc"
	apiConfig "factcalc/pkg/api/config"
	apiEdgar "factcalc/pkg/api/edgar"
	"factcalc/pkg/core/app"
	"factcalc/pkg/core/calc"
	"factcalc/pkg/core/config"
	"factcalc/pkg/core/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("factcalc api starting", "version", version, "engine", calc.EngineVersion, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	services, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer services.Close()

	mux := http.NewServeMux()
	apiCalc.NewHandler(services.Engine, logger).Register(mux)
	apiEdgar.NewHandler(services.Resolver, logger).Register(mux)
	mux.HandleFunc("/api/config", apiConfig.NewHandler(cfg, calc.EngineVersion).HandleConfig)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("routes registered",
		"calc", "POST /api/calc",
		"metrics", "GET /api/metrics",
		"facts", "GET /api/facts",
		"cache", "GET /api/edgar/cache-stats",
		"config", "GET /api/config",
		"health", "GET /healthz",
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("factcalc api shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("factcalc api stopped")
	return nil
}
