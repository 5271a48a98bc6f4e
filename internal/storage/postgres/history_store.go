package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

var _ tracking.HistoryStore = (*Store)(nil)

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
	query := fmt.Sprintf(`
INSERT INTO %s (item_id, region, canonical_name, points, schema_version, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (item_id, region) DO UPDATE
SET canonical_name = EXCLUDED.canonical_name,
	points = EXCLUDED.points,
	schema_version = EXCLUDED.schema_version,
	updated_at = NOW()`, s.historyTable)

	if _, err := s.pool.Exec(ctx, query, h.ItemID, string(h.Region), h.CanonicalName, payload, version); err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

// GetHistory returns the history of itemID in region.
func (s *Store) GetHistory(ctx context.Context, itemID string, region crawler.Region) (tracking.GameHistory, error) {
	query := fmt.Sprintf(`
SELECT item_id, region, canonical_name, points, schema_version
FROM %s
WHERE item_id = $1 AND region = $2`, s.historyTable)

	h, err := scanHistory(s.pool.QueryRow(ctx, query, itemID, string(region)))
	if errors.Is(err, pgx.ErrNoRows) {
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
	var (
		rows pgx.Rows
		err  error
	)
	base := fmt.Sprintf(`
SELECT item_id, region, canonical_name, points, schema_version
FROM %s`, s.historyTable)
	if region == "" {
		rows, err = s.pool.Query(ctx, base+`
ORDER BY region, item_id`)
	} else {
		rows, err = s.pool.Query(ctx, base+`
WHERE region = $1
ORDER BY region, item_id`, string(region))
	}
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

func scanHistory(row pgx.Row) (tracking.GameHistory, error) {
	var (
		h       tracking.GameHistory
		region  string
		payload []byte
	)
	if err := row.Scan(&h.ItemID, &region, &h.CanonicalName, &payload, &h.SchemaVersion); err != nil {
		return tracking.GameHistory{}, err
	}
	h.Region = crawler.Region(region)
	if err := json.Unmarshal(payload, &h.Points); err != nil {
		return tracking.GameHistory{}, fmt.Errorf("decode points of %s: %w", h.ItemID, err)
	}
	return h, nil
}
