// Package auto fetches listing pages over plain HTTP and promotes them to a
// headless render when the response looks client-side rendered.
package auto

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// Detector decides whether a probe response needs a headless render.
type Detector interface {
	ShouldPromote(resp crawler.FetchResponse) bool
}

// FetchCloser is a Fetcher that owns resources.
type FetchCloser interface {
	crawler.Fetcher
	Close() error
}

// Fetcher composes a cheap probe fetcher and a headless fetcher.
type Fetcher struct {
	probe    FetchCloser
	headless FetchCloser
	detect   Detector
	logger   *zap.Logger
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New builds a promoting fetcher. All three collaborators are required.
func New(probe, headless FetchCloser, detect Detector, logger *zap.Logger) (*Fetcher, error) {
	if probe == nil || headless == nil || detect == nil {
		return nil, errors.New("auto fetcher needs a probe fetcher, a headless fetcher and a detector")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detect: detect, logger: logger}, nil
}

// Fetch probes the page and re-fetches it headless when the detector asks.
// Probe transport errors are returned as is; the headless fetch is not a
// fallback for an unreachable storefront.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, err
	}
	if !f.detect.ShouldPromote(resp) {
		return resp, nil
	}
	f.logger.Debug("promoting page to headless",
		zap.String("region", string(request.Region)),
		zap.Int("page", request.Page),
		zap.Int("probe_bytes", len(resp.Body)),
	)
	rendered, err := f.headless.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("headless render: %w", err)
	}
	rendered.UsedHeadless = true
	return rendered, nil
}

// Close releases both fetchers.
func (f *Fetcher) Close() error {
	return errors.Join(f.probe.Close(), f.headless.Close())
}
