package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

type snapshotKey struct {
	date   string
	region crawler.Region
}

// SnapshotStore keeps snapshots in-memory keyed by (date, region).
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[snapshotKey]crawler.Snapshot
}

var _ crawler.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore constructs an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[snapshotKey]crawler.Snapshot)}
}

// UpsertSnapshot stores a copy of snap, replacing any earlier one for its key.
func (s *SnapshotStore) UpsertSnapshot(_ context.Context, snap crawler.Snapshot) error {
	if snap.Region == "" || snap.Date.IsZero() {
		return errors.New("snapshot date and region are required")
	}
	snap.Items = slices.Clone(snap.Items)
	if snap.Items == nil {
		snap.Items = []crawler.RankedItem{}
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = crawler.SchemaVersion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{date: snap.Date.String(), region: snap.Region}] = snap
	return nil
}

// ListSnapshots returns the snapshot of region on date, or every snapshot of
// region newest first when date is zero.
func (s *SnapshotStore) ListSnapshots(_ context.Context, region crawler.Region, date crawler.Date) ([]crawler.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []crawler.Snapshot{}
	for key, snap := range s.snapshots {
		if key.region != region {
			continue
		}
		if !date.IsZero() && key.date != date.String() {
			continue
		}
		snap.Items = slices.Clone(snap.Items)
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b crawler.Snapshot) int { return b.Date.Compare(a.Date.Time) })
	return out, nil
}
