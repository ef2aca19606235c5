package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const datasetSchema = `
CREATE TABLE IF NOT EXISTS filing_datasets (
	cache_key  TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DatasetStore is the durable tier behind the in-memory cache. It keeps
// fetched datasets in Postgres when a pool is configured and in JSON files
// under a directory otherwise. A store with neither is a no-op.
type DatasetStore struct {
	pool    *pgxpool.Pool
	fileDir string
	logger  *slog.Logger
	now     func() time.Time
}

// datasetFile is the on-disk wrapper for the file tier.
type datasetFile struct {
	Key       string          `json:"key"`
	FetchedAt time.Time       `json:"fetched_at"`
	Data      json.RawMessage `json:"data"`
}

// NewDatasetStore creates a durable store. pool may be nil; dir may be
// empty. When both are unset the store never hits.
func NewDatasetStore(pool *pgxpool.Pool, dir string, logger *slog.Logger) *DatasetStore {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("store: dataset dir unavailable, file tier disabled", "dir", dir, "error", err)
			dir = ""
		}
	}
	return &DatasetStore{pool: pool, fileDir: dir, logger: logger, now: time.Now}
}

// Enabled reports whether any durable backend is configured.
func (s *DatasetStore) Enabled() bool {
	return s != nil && (s.pool != nil || s.fileDir != "")
}

// EnsureSchema creates the filing_datasets table. No-op without a pool.
func (s *DatasetStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, datasetSchema); err != nil {
		return fmt.Errorf("store: create filing_datasets: %w", err)
	}
	return nil
}

// Load decodes the entry for key into dst when it is younger than maxAge.
// It returns false on a miss or a stale entry.
func (s *DatasetStore) Load(ctx context.Context, key string, maxAge time.Duration, dst any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}

	var (
		data      []byte
		fetchedAt time.Time
	)
	if s.pool != nil {
		err := s.pool.QueryRow(ctx,
			`SELECT data, fetched_at FROM filing_datasets WHERE cache_key = $1`, key,
		).Scan(&data, &fetchedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("store: load %s: %w", key, err)
		}
	} else {
		raw, err := os.ReadFile(s.path(key))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("store: read %s: %w", key, err)
		}
		var entry datasetFile
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger.Warn("store: ignoring corrupt dataset file", "key", key, "error", err)
			return false, nil
		}
		data, fetchedAt = entry.Data, entry.FetchedAt
	}

	if maxAge > 0 && s.now().Sub(fetchedAt) > maxAge {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// Save upserts v under key, stamping the current time.
func (s *DatasetStore) Save(ctx context.Context, key string, v any) error {
	if !s.Enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	fetchedAt := s.now().UTC()

	if s.pool != nil {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO filing_datasets (cache_key, data, fetched_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (cache_key)
			DO UPDATE SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at`,
			key, data, fetchedAt)
		if err != nil {
			return fmt.Errorf("store: save %s: %w", key, err)
		}
		return nil
	}

	fileBytes, err := json.Marshal(datasetFile{Key: key, FetchedAt: fetchedAt, Data: data})
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := os.WriteFile(s.path(key), fileBytes, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

func (s *DatasetStore) path(key string) string {
	safe := strings.NewReplacer("|", "_", "/", "_", ":", "_", " ", "_").Replace(key)
	return filepath.Join(s.fileDir, safe+".json")
}
