package postgres

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

var _ crawler.SnapshotStore = (*Store)(nil)

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
	query := fmt.Sprintf(`
INSERT INTO %s (snapshot_date, region, items, item_count, captured_at, schema_version)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (snapshot_date, region) DO UPDATE
SET items = EXCLUDED.items,
	item_count = EXCLUDED.item_count,
	captured_at = EXCLUDED.captured_at,
	schema_version = EXCLUDED.schema_version`, s.snapshotTable)

	if _, err := s.pool.Exec(ctx, query,
		snap.Date.Time,
		string(snap.Region),
		payload,
		len(items),
		snap.CapturedAt,
		version,
	); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the snapshot of region on date, or every snapshot of
// region newest first when date is zero.
func (s *Store) ListSnapshots(ctx context.Context, region crawler.Region, date crawler.Date) ([]crawler.Snapshot, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if date.IsZero() {
		query := fmt.Sprintf(`
SELECT snapshot_date, region, items, captured_at, schema_version
FROM %s
WHERE region = $1
ORDER BY snapshot_date DESC`, s.snapshotTable)
		rows, err = s.pool.Query(ctx, query, string(region))
	} else {
		query := fmt.Sprintf(`
SELECT snapshot_date, region, items, captured_at, schema_version
FROM %s
WHERE region = $1 AND snapshot_date = $2`, s.snapshotTable)
		rows, err = s.pool.Query(ctx, query, string(region), date.Time)
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []crawler.Snapshot{}
	for rows.Next() {
		var (
			day        time.Time
			regionCode string
			payload    []byte
			captured   time.Time
			version    int
		)
		if err := rows.Scan(&day, &regionCode, &payload, &captured, &version); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap := crawler.Snapshot{
			Date:          crawler.DateOf(day),
			Region:        crawler.Region(regionCode),
			CapturedAt:    captured.UTC(),
			SchemaVersion: version,
		}
		if err := json.Unmarshal(payload, &snap.Items); err != nil {
			return nil, fmt.Errorf("decode snapshot %s/%s: %w", regionCode, snap.Date, err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
