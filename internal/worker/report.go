package worker

import (
	"time"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

// Run outcome labels.
const (
	OutcomeNoOutput        = "no output"
	OutcomeCompleteSuccess = "complete success"
	OutcomeCompleteFailure = "complete failure"
	OutcomePartialSuccess  = "partial success"
)

// RegionFailure records why a region was given up on.
type RegionFailure struct {
	Region   crawler.Region `json:"region"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error"`
}

// RunReport summarizes one crawl run. A run interrupted part way is still a
// complete report: untouched regions are listed in SkippedRegions.
type RunReport struct {
	RunID            string               `json:"run_id"`
	Date             crawler.Date         `json:"crawl_date"`
	StartedAt        time.Time            `json:"started_at"`
	FinishedAt       time.Time            `json:"finished_at"`
	Outcome          string               `json:"outcome"`
	TotalItems       int                  `json:"total_items"`
	SucceededRegions []crawler.Region     `json:"succeeded_regions"`
	FailedRegions    []crawler.Region     `json:"failed_regions"`
	Failures         []RegionFailure      `json:"failures,omitempty"`
	SkippedRegions   []crawler.Region     `json:"skipped_regions,omitempty"`
	Interrupted      bool                 `json:"interrupted"`
	Collisions       []tracking.Collision `json:"collisions,omitempty"`
	SchemaVersion    int                  `json:"schema_version"`
}

// Duration is the wall time between start and finish.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome labels a run from its region counts.
func Outcome(requested, succeeded, failed int) string {
	switch {
	case requested == 0 || succeeded+failed == 0:
		return OutcomeNoOutput
	case failed == 0:
		return OutcomeCompleteSuccess
	case succeeded == 0:
		return OutcomeCompleteFailure
	default:
		return OutcomePartialSuccess
	}
}
