package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

// HistoryStore keeps rank histories in-memory.
type HistoryStore struct {
	mu        sync.RWMutex
	histories map[tracking.Key]tracking.GameHistory
}

var _ tracking.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore constructs an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[tracking.Key]tracking.GameHistory)}
}

// UpsertHistory stores a copy of h.
func (s *HistoryStore) UpsertHistory(_ context.Context, h tracking.GameHistory) error {
	if h.ItemID == "" || h.Region == "" {
		return errors.New("history item id and region are required")
	}
	h.Points = slices.Clone(h.Points)
	if h.SchemaVersion == 0 {
		h.SchemaVersion = crawler.SchemaVersion
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[h.Key()] = h
	return nil
}

// GetHistory returns the history of itemID in region.
func (s *HistoryStore) GetHistory(_ context.Context, itemID string, region crawler.Region) (tracking.GameHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[tracking.Key{ItemID: itemID, Region: region}]
	if !ok {
		return tracking.GameHistory{}, tracking.ErrHistoryNotFound
	}
	h.Points = slices.Clone(h.Points)
	return h, nil
}

// ListHistories returns the histories of region, or of all regions when
// region is empty, ordered by region then item id.
func (s *HistoryStore) ListHistories(_ context.Context, region crawler.Region) ([]tracking.GameHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []tracking.GameHistory{}
	for key, h := range s.histories {
		if region != "" && key.Region != region {
			continue
		}
		h.Points = slices.Clone(h.Points)
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b tracking.GameHistory) int {
		if c := strings.Compare(string(a.Region), string(b.Region)); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return out, nil
}
