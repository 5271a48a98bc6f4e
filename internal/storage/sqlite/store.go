// Package sqlite provides file-backed snapshot and history stores for local runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

const schema = `
CREATE TABLE IF NOT EXISTS listing_snapshots (
	snapshot_date  TEXT    NOT NULL,
	region         TEXT    NOT NULL,
	items          TEXT    NOT NULL,
	item_count     INTEGER NOT NULL,
	captured_at    TEXT    NOT NULL,
	schema_version INTEGER NOT NULL,
	PRIMARY KEY (snapshot_date, region)
);
CREATE TABLE IF NOT EXISTS rank_histories (
	item_id        TEXT    NOT NULL,
	region         TEXT    NOT NULL,
	canonical_name TEXT    NOT NULL,
	points         TEXT    NOT NULL,
	schema_version INTEGER NOT NULL,
	updated_at     TEXT    NOT NULL,
	PRIMARY KEY (item_id, region)
);`

// Store persists snapshots and histories in a SQLite database.
type Store struct {
	db *sql.DB
}

var (
	_ crawler.SnapshotStore = (*Store)(nil)
	_ tracking.HistoryStore = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertSnapshot writes snap, replacing any snapshot of the same date and region.
func (s *Store) UpsertSnapshot(ctx context.Context, snap crawler.Snapshot) error {
	if snap.Region == "" || snap.Date.IsZero() {
		return fmt.Errorf("snapshot date and region are required")
	}
	items := snap.Items
	if items == nil {
		items = []crawler.RankedItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal snapshot items: %w", err)
	}
	version := snap.SchemaVersion
	if version == 0 {
		version = crawler.SchemaVersion
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO listing_snapshots (snapshot_date, region, items, item_count, captured_at, schema_version)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (snapshot_date, region) DO UPDATE
SET items = excluded.items,
	item_count = excluded.item_count,
	captured_at = excluded.captured_at,
	schema_version = excluded.schema_version`,
		snap.Date.String(),
		string(snap.Region),
		string(payload),
		len(items),
		snap.CapturedAt.UTC().Format(time.RFC3339Nano),
		version,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the snapshot of region on date, or every snapshot of
// region newest first when date is zero.
func (s *Store) ListSnapshots(ctx context.Context, region crawler.Region, date crawler.Date) ([]crawler.Snapshot, error) {
	query := `
SELECT snapshot_date, region, items, captured_at, schema_version
FROM listing_snapshots
WHERE region = ?`
	args := []any{string(region)}
	if !date.IsZero() {
		query += ` AND snapshot_date = ?`
		args = append(args, date.String())
	}
	query += ` ORDER BY snapshot_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []crawler.Snapshot{}
	for rows.Next() {
		var (
			day, regionCode, payload, captured string
			version                            int
		)
		if err := rows.Scan(&day, &regionCode, &payload, &captured, &version); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		d, err := crawler.ParseDate(day)
		if err != nil {
			return nil, err
		}
		capturedAt, err := time.Parse(time.RFC3339Nano, captured)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		snap := crawler.Snapshot{Date: d, Region: crawler.Region(regionCode), CapturedAt: capturedAt, SchemaVersion: version}
		if err := json.Unmarshal([]byte(payload), &snap.Items); err != nil {
			return nil, fmt.Errorf("decode snapshot %s/%s: %w", regionCode, day, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// UpsertHistory writes h, replacing the stored series for its key.
func (s *Store) UpsertHistory(ctx context.Context, h tracking.GameHistory) error {
	if h.ItemID == "" || h.Region == "" {
		return fmt.Errorf("history item id and region are required")
	}
	points := h.Points
	if points == nil {
		points = []tracking.HistoryPoint{}
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal history points: %w", err)
	}
	version := h.SchemaVersion
	if version == 0 {
		version = crawler.SchemaVersion
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO rank_histories (item_id, region, canonical_name, points, schema_version, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (item_id, region) DO UPDATE
SET canonical_name = excluded.canonical_name,
	points = excluded.points,
	schema_version = excluded.schema_version,
	updated_at = excluded.updated_at`,
		h.ItemID, string(h.Region), h.CanonicalName, string(payload), version, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

// GetHistory returns the history of itemID in region.
func (s *Store) GetHistory(ctx context.Context, itemID string, region crawler.Region) (tracking.GameHistory, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT item_id, region, canonical_name, points, schema_version
FROM rank_histories
WHERE item_id = ? AND region = ?`, itemID, string(region))
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tracking.GameHistory{}, tracking.ErrHistoryNotFound
	}
	if err != nil {
		return tracking.GameHistory{}, fmt.Errorf("get history: %w", err)
	}
	return h, nil
}

// ListHistories returns the histories of region, or all histories when region
// is empty, ordered by region then item id.
func (s *Store) ListHistories(ctx context.Context, region crawler.Region) ([]tracking.GameHistory, error) {
	query := `
SELECT item_id, region, canonical_name, points, schema_version
FROM rank_histories`
	var args []any
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, string(region))
	}
	query += ` ORDER BY region, item_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query histories: %w", err)
	}
	defer rows.Close()

	out := []tracking.GameHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate histories: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(row scanner) (tracking.GameHistory, error) {
	var (
		h       tracking.GameHistory
		region  string
		payload string
	)
	if err := row.Scan(&h.ItemID, &region, &h.CanonicalName, &payload, &h.SchemaVersion); err != nil {
		return tracking.GameHistory{}, err
	}
	h.Region = crawler.Region(region)
	if err := json.Unmarshal([]byte(payload), &h.Points); err != nil {
		return tracking.GameHistory{}, fmt.Errorf("decode points of %s: %w", h.ItemID, err)
	}
	return h, nil
}
