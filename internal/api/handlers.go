package api

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

// TrackedSummary is one row of the tracked item overview.
type TrackedSummary struct {
	ItemID       string         `json:"item_id"`
	Name         string         `json:"name"`
	Region       crawler.Region `json:"region"`
	CurrentRank  int            `json:"current_rank"`
	LatestChange string         `json:"latest_change"`
	LatestDate   crawler.Date   `json:"latest_date"`
	Points       int            `json:"points"`
}

type snapshotsResponse struct {
	Region    crawler.Region     `json:"region"`
	Snapshots []crawler.Snapshot `json:"snapshots"`
}

type trackedResponse struct {
	Items []TrackedSummary `json:"items"`
}

func regionParam(r *http.Request) crawler.Region {
	return crawler.Region(strings.TrimSpace(chi.URLParam(r, "region")))
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	region := regionParam(r)
	var date crawler.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := crawler.ParseDate(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}
	snaps, err := s.snapshots.ListSnapshots(r.Context(), region, date)
	if err != nil {
		s.logger.Error("list snapshots failed", zap.String("region", string(region)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if snaps == nil {
		snaps = []crawler.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, snapshotsResponse{Region: region, Snapshots: snaps})
}

func (s *Server) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	region := regionParam(r)
	snaps, err := s.snapshots.ListSnapshots(r.Context(), region, crawler.Date{})
	if err != nil {
		s.logger.Error("list snapshots failed", zap.String("region", string(region)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	if len(snaps) == 0 {
		s.writeError(w, http.StatusNotFound, "no snapshot for region")
		return
	}
	s.writeJSON(w, http.StatusOK, snaps[0])
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	region := regionParam(r)
	itemID := chi.URLParam(r, "itemID")
	h, err := s.histories.GetHistory(r.Context(), itemID, region)
	switch {
	case errors.Is(err, tracking.ErrHistoryNotFound):
		s.writeError(w, http.StatusNotFound, "history not found")
	case err != nil:
		s.logger.Error("get history failed", zap.String("region", string(region)), zap.String("item_id", itemID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load history")
	default:
		s.writeJSON(w, http.StatusOK, h)
	}
}

func (s *Server) trackedSummary(w http.ResponseWriter, r *http.Request) {
	region := crawler.Region(strings.TrimSpace(r.URL.Query().Get("region")))
	hists, err := s.histories.ListHistories(r.Context(), region)
	if err != nil {
		s.logger.Error("list histories failed", zap.String("region", string(region)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list histories")
		return
	}
	s.writeJSON(w, http.StatusOK, trackedResponse{Items: Summarize(hists)})
}

func (s *Server) getRegistry(w http.ResponseWriter, _ *http.Request) {
	if s.registry == nil {
		s.writeError(w, http.StatusNotFound, "registry not configured")
		return
	}
	reg, err := s.registry()
	if err != nil {
		s.logger.Error("load registry failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load registry")
		return
	}
	if reg.Items == nil {
		reg.Items = []tracking.TrackedItem{}
	}
	if reg.Regions == nil {
		reg.Regions = []crawler.Region{}
	}
	s.writeJSON(w, http.StatusOK, reg)
}

// Summarize reduces histories to their latest point, ordered by region then
// current rank. Histories without points are left out.
func Summarize(hists []tracking.GameHistory) []TrackedSummary {
	out := make([]TrackedSummary, 0, len(hists))
	for _, h := range hists {
		latest, ok := h.Latest()
		if !ok {
			continue
		}
		out = append(out, TrackedSummary{
			ItemID:       h.ItemID,
			Name:         h.CanonicalName,
			Region:       h.Region,
			CurrentRank:  latest.Rank,
			LatestChange: latest.Change,
			LatestDate:   latest.Date,
			Points:       len(h.Points),
		})
	}
	slices.SortStableFunc(out, func(a, b TrackedSummary) int {
		if c := strings.Compare(string(a.Region), string(b.Region)); c != 0 {
			return c
		}
		return a.CurrentRank - b.CurrentRank
	})
	return out
}
