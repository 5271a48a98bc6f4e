package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the rendered body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageExtractor parses one page's content into positioned items.
type PageExtractor interface {
	Extract(content []byte, pageNumber int) (PageResult, error)
}

// Throttle enforces the inter-request politeness delay.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw page artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher computes the content digest used in archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// SnapshotStore persists one snapshot per (date, region) key.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snapshot Snapshot) error
	// ListSnapshots returns the region's snapshots newest first, or only the
	// snapshot for date when date is non-zero.
	ListSnapshots(ctx context.Context, region Region, date Date) ([]Snapshot, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
