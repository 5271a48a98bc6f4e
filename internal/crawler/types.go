package crawler

import (
	"net/http"
	"time"
)

// SchemaVersion tags every persisted snapshot and history payload.
const SchemaVersion = 1

// Region is an opaque storefront locale code such as "en-us".
type Region string

// RawItem is one tile extracted from a single result page.
type RawItem struct {
	ExternalID string `json:"external_id"`
	PageIndex  int    `json:"page_index"`
	PageNumber int    `json:"page_number"`
}

// RankedItem is an item positioned across the whole multi-page listing.
type RankedItem struct {
	ExternalID   string `json:"game_name"`
	AbsoluteRank int    `json:"display_rank"`
}

// Snapshot is the full ranked listing captured for one region on one date.
type Snapshot struct {
	Date          Date         `json:"crawl_date"`
	Region        Region       `json:"region"`
	Items         []RankedItem `json:"items"`
	CapturedAt    time.Time    `json:"captured_at"`
	SchemaVersion int          `json:"schema_version"`
}

// PageResult is the outcome of extracting one page.
type PageResult struct {
	// Items holds the tiles that carried both a position and an identifier.
	Items []RawItem
	// Tiles counts every tile element with a position indicator, including dropped ones.
	Tiles int
	// MaxPageMarker is the highest page number referenced by pagination controls, 0 when absent.
	MaxPageMarker int
	// Dropped lists the tiles skipped because their identifier could not be resolved.
	Dropped []*ParseError
}

// FetchRequest captures everything needed to fetch one listing page.
type FetchRequest struct {
	URL     string
	Region  Region
	Page    int
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
