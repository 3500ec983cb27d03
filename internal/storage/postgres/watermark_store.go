package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultTable holds one row per source.
const DefaultTable = "source_watermarks"

// WatermarkStoreConfig controls the Postgres connection pool used for watermarks.
type WatermarkStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// WatermarkStore persists per-source watermarks in Postgres.
type WatermarkStore struct {
	pool  pool
	table string
}

// NewWatermarkStore connects to Postgres and ensures the table exists.
func NewWatermarkStore(ctx context.Context, cfg WatermarkStoreConfig) (*WatermarkStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.postgres.dsn is required")
	}
	p, err := connect(ctx, PoolConfig{DSN: cfg.DSN, MaxConns: cfg.MaxConns, MaxConnLifetime: cfg.MaxConnLifetime})
	if err != nil {
		return nil, err
	}
	store, err := NewWatermarkStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWatermarkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewWatermarkStoreWithPool(p pool, table string) (*WatermarkStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &WatermarkStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *WatermarkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the watermark table when it is missing.
func (s *WatermarkStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source     TEXT PRIMARY KEY,
	watermark  TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// GetWatermark returns the stored watermark for a source, if any.
func (s *WatermarkStore) GetWatermark(ctx context.Context, source string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT watermark FROM %s WHERE source = $1`, s.table)
	var wm time.Time
	if err := s.pool.QueryRow(ctx, query, source).Scan(&wm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("select watermark for %s: %w", source, err)
	}
	return wm.UTC(), true, nil
}

// SetWatermark upserts the watermark for a source. A stored watermark never
// moves backwards.
func (s *WatermarkStore) SetWatermark(ctx context.Context, source string, watermark time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s (source, watermark, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (source) DO UPDATE
SET watermark = EXCLUDED.watermark, updated_at = EXCLUDED.updated_at
WHERE %[1]s.watermark < EXCLUDED.watermark`, s.table)
	if _, err := s.pool.Exec(ctx, query, source, watermark.UTC()); err != nil {
		return fmt.Errorf("upsert watermark for %s: %w", source, err)
	}
	return nil
}
