package tracking

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/metrics"
)

// RebuildReport counts what a rebuild replayed.
type RebuildReport struct {
	Snapshots int `json:"snapshots"`
	Histories int `json:"histories"`
}

// Rebuild regenerates the histories of every tracked region from stored
// snapshots, replaying them oldest first. Existing histories for the same
// keys are replaced wholesale.
func Rebuild(
	ctx context.Context,
	snapshots crawler.SnapshotStore,
	histories HistoryStore,
	registry Registry,
	regions []crawler.Region,
	logger *zap.Logger,
) (RebuildReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := registry.Validate(); err != nil {
		return RebuildReport{}, err
	}

	var report RebuildReport
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !registry.TracksRegion(region) {
			continue
		}
		stored, err := snapshots.ListSnapshots(ctx, region, crawler.Date{})
		if err != nil {
			return report, &crawler.PersistenceError{Op: "list snapshots", Region: region, Err: err}
		}
		slices.SortFunc(stored, func(a, b crawler.Snapshot) int { return a.Date.Compare(b.Date.Time) })

		rebuilt := make(map[Key]GameHistory)
		for _, snap := range stored {
			for _, h := range UpdateHistories(snap, registry.Items, rebuilt) {
				rebuilt[h.Key()] = h
			}
		}
		keys := make([]Key, 0, len(rebuilt))
		for k := range rebuilt {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b Key) int { return strings.Compare(a.ItemID, b.ItemID) })
		for _, k := range keys {
			h := rebuilt[k]
			if err := histories.UpsertHistory(ctx, h); err != nil {
				return report, &crawler.PersistenceError{Op: fmt.Sprintf("upsert history %s", h.ItemID), Region: region, Err: err}
			}
			metrics.ObserveHistoryPoint(string(region), "rebuild")
		}
		report.Snapshots += len(stored)
		report.Histories += len(rebuilt)
		logger.Info("region histories rebuilt",
			zap.String("region", string(region)),
			zap.Int("snapshots", len(stored)),
			zap.Int("histories", len(rebuilt)),
		)
	}
	return report, nil
}
