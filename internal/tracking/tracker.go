package tracking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/metrics"
)

// Result summarizes one tracker pass over a snapshot.
type Result struct {
	Updated    []GameHistory
	Collisions []Collision
	Skipped    bool
}

// Tracker applies snapshots to stored histories.
type Tracker struct {
	store  HistoryStore
	logger *zap.Logger
}

// NewTracker builds a Tracker backed by store.
func NewTracker(store HistoryStore, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, logger: logger}
}

// Update loads the region's histories, applies snapshot and persists every
// touched history. Snapshots of regions outside the registry's restriction are
// skipped.
func (t *Tracker) Update(ctx context.Context, snapshot crawler.Snapshot, registry Registry) (Result, error) {
	logger := t.logger.With(zap.String("region", string(snapshot.Region)), zap.Stringer("date", snapshot.Date))
	if !registry.TracksRegion(snapshot.Region) {
		logger.Debug("region not tracked")
		return Result{Skipped: true}, nil
	}

	stored, err := t.store.ListHistories(ctx, snapshot.Region)
	if err != nil {
		return Result{}, &crawler.PersistenceError{Op: "load histories", Region: snapshot.Region, Err: err}
	}
	prior := make(map[Key]GameHistory, len(stored))
	for _, h := range stored {
		prior[h.Key()] = h
	}

	result := Result{
		Updated:    UpdateHistories(snapshot, registry.Items, prior),
		Collisions: FindCollisions(snapshot, registry.Items),
	}
	for _, c := range result.Collisions {
		metrics.ObserveCollision()
		logger.Warn("external id matches several tracked items",
			zap.String("external_id", c.ExternalID),
			zap.String("chosen", c.Chosen),
			zap.Int("candidates", len(c.Candidates)),
		)
	}

	for _, h := range result.Updated {
		if err := t.store.UpsertHistory(ctx, h); err != nil {
			return result, &crawler.PersistenceError{
				Op:     fmt.Sprintf("upsert history %s", h.ItemID),
				Region: snapshot.Region,
				Err:    err,
			}
		}
		latest, _ := h.Latest()
		kind := "tracked"
		if latest.Change == ChangeNew {
			kind = ChangeNew
		}
		metrics.ObserveHistoryPoint(string(snapshot.Region), kind)
		logger.Info("history updated",
			zap.String("item_id", h.ItemID),
			zap.String("name", h.CanonicalName),
			zap.Int("rank", latest.Rank),
			zap.String("change", latest.Change),
		)
	}
	return result, nil
}
