// Package postgres provides Postgres-backed snapshot and history stores.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultSnapshotTable = "listing_snapshots"
	DefaultHistoryTable  = "rank_histories"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	SnapshotTable   string
	HistoryTable    string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists snapshots and rank histories in Postgres.
type Store struct {
	pool          dbPool
	snapshotTable string
	historyTable  string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.SnapshotTable, cfg.HistoryTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool dbPool, snapshotTable, historyTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if snapshotTable == "" {
		snapshotTable = DefaultSnapshotTable
	}
	if historyTable == "" {
		historyTable = DefaultHistoryTable
	}
	for _, table := range []string{snapshotTable, historyTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, snapshotTable: snapshotTable, historyTable: historyTable}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	snapshot_date  DATE        NOT NULL,
	region         TEXT        NOT NULL,
	items          JSONB       NOT NULL,
	item_count     INTEGER     NOT NULL,
	captured_at    TIMESTAMPTZ NOT NULL,
	schema_version INTEGER     NOT NULL,
	PRIMARY KEY (snapshot_date, region)
)`, s.snapshotTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	item_id        TEXT        NOT NULL,
	region         TEXT        NOT NULL,
	canonical_name TEXT        NOT NULL,
	points         JSONB       NOT NULL,
	schema_version INTEGER     NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (item_id, region)
)`, s.historyTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
