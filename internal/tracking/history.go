package tracking

import (
	"context"
	"errors"
	"slices"
	"strconv"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// ChangeNew marks the first point of a history.
const ChangeNew = "new"

// ErrHistoryNotFound is returned when no history exists for an (item, region) pair.
var ErrHistoryNotFound = errors.New("history not found")

// HistoryPoint is the rank of a tracked item on one day.
type HistoryPoint struct {
	Date   crawler.Date `json:"date"`
	Rank   int          `json:"rank"`
	Change string       `json:"change"`
}

// Key identifies a history.
type Key struct {
	ItemID string
	Region crawler.Region
}

// GameHistory is the dated rank series of one external id in one region.
type GameHistory struct {
	ItemID        string         `json:"item_id"`
	CanonicalName string         `json:"name"`
	Region        crawler.Region `json:"region"`
	Points        []HistoryPoint `json:"history"`
	SchemaVersion int            `json:"schema_version"`
}

// Key returns the (item, region) key of h.
func (h GameHistory) Key() Key {
	return Key{ItemID: h.ItemID, Region: h.Region}
}

// Latest returns the most recent point.
func (h GameHistory) Latest() (HistoryPoint, bool) {
	if len(h.Points) == 0 {
		return HistoryPoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}

// HistoryStore persists rank histories.
type HistoryStore interface {
	UpsertHistory(ctx context.Context, h GameHistory) error
	// GetHistory returns ErrHistoryNotFound when nothing is stored.
	GetHistory(ctx context.Context, itemID string, region crawler.Region) (GameHistory, error)
	// ListHistories returns every history of region, or of all regions when region is empty.
	ListHistories(ctx context.Context, region crawler.Region) ([]GameHistory, error)
}

// RenderChange formats the movement from previous to current rank. A smaller
// rank number is an improvement and renders positive.
func RenderChange(previous, current int) string {
	delta := previous - current
	switch {
	case delta > 0:
		return "+" + strconv.Itoa(delta)
	case delta < 0:
		return strconv.Itoa(delta)
	default:
		return "0"
	}
}

// withPoint returns points with p placed at its date, replacing any point
// already recorded for that date, and every change recomputed.
func withPoint(points []HistoryPoint, p HistoryPoint) []HistoryPoint {
	out := slices.Clone(points)
	i, found := slices.BinarySearchFunc(out, p.Date, func(hp HistoryPoint, d crawler.Date) int {
		return hp.Date.Compare(d.Time)
	})
	if found {
		out[i] = p
	} else {
		out = slices.Insert(out, i, p)
	}
	for j := range out {
		if j == 0 {
			out[j].Change = ChangeNew
			continue
		}
		out[j].Change = RenderChange(out[j-1].Rank, out[j].Rank)
	}
	return out
}

// UpdateHistories applies one snapshot to the prior histories and returns the
// histories it touched, in snapshot rank order. prior is not modified. When an
// external id appears more than once in the snapshot only its best rank counts.
func UpdateHistories(snapshot crawler.Snapshot, items []TrackedItem, prior map[Key]GameHistory) []GameHistory {
	matcher := NewMatcher(items)
	seen := make(map[string]struct{}, len(snapshot.Items))
	var updated []GameHistory

	for _, ranked := range snapshot.Items {
		if _, dup := seen[ranked.ExternalID]; dup {
			continue
		}
		seen[ranked.ExternalID] = struct{}{}

		item, ok := matcher.Match(ranked.ExternalID)
		if !ok {
			continue
		}
		key := Key{ItemID: ranked.ExternalID, Region: snapshot.Region}
		h, exists := prior[key]
		if !exists {
			h = GameHistory{ItemID: ranked.ExternalID, Region: snapshot.Region}
		}
		h.CanonicalName = item.Name()
		h.SchemaVersion = crawler.SchemaVersion
		h.Points = withPoint(h.Points, HistoryPoint{Date: snapshot.Date, Rank: ranked.AbsoluteRank})
		updated = append(updated, h)
	}
	return updated
}
