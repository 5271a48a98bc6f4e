package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/metrics"
)

// Source defaults for the storefront listing.
const (
	DefaultPageSize    = 24
	DefaultMaxPages    = 50
	DefaultPageTimeout = 30 * time.Second
)

// PageCrawlerConfig controls a region page walk.
type PageCrawlerConfig struct {
	URLTemplate   string
	PageSize      int
	MaxPages      int
	PageTimeout   time.Duration
	ArchivePrefix string
}

// PageCrawler walks the result pages of one region and assigns absolute ranks.
type PageCrawler struct {
	cfg       PageCrawlerConfig
	fetcher   Fetcher
	extractor PageExtractor
	throttle  Throttle
	archive   BlobStore
	hasher    Hasher
	clock     Clock
	logger    *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewPageCrawler constructs a PageCrawler. throttle, archive, hasher and clock
// may be nil. With a hasher, archived pages are named after their content
// digest so a re-crawl on the same date never overwrites a differing page.
func NewPageCrawler(
	cfg PageCrawlerConfig,
	fetcher Fetcher,
	extractor PageExtractor,
	throttle Throttle,
	archive BlobStore,
	hasher Hasher,
	clock Clock,
	logger *zap.Logger,
) *PageCrawler {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if clock == nil {
		clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageCrawler{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		throttle:  throttle,
		archive:   archive,
		hasher:    hasher,
		clock:     clock,
		logger:    logger,
	}
}

// AbsoluteRank positions a tile across the whole listing.
func AbsoluteRank(pageNumber, pageSize, pageIndex int) int {
	return (pageNumber-1)*pageSize + pageIndex + 1
}

// Crawl is CrawlOn for the current day of the crawler's clock.
func (c *PageCrawler) Crawl(ctx context.Context, region Region) ([]RankedItem, error) {
	return c.CrawlOn(ctx, region, DateOf(c.clock.Now()))
}

// CrawlOn returns the region's ranked listing, archiving its pages under date.
// It returns an empty slice and no error when the region has no listing, and
// a *FetchError when the first page cannot be fetched.
func (c *PageCrawler) CrawlOn(ctx context.Context, region Region, date Date) ([]RankedItem, error) {
	logger := c.logger.With(zap.String("region", string(region)))
	var (
		items []RankedItem
		seen  = make(map[int]struct{})
	)

	for page := 1; page <= c.cfg.MaxPages; page++ {
		result, err := c.crawlPage(ctx, region, date, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("crawl region %s: %w", region, ctx.Err())
			}
			if page == 1 {
				return nil, err
			}
			logger.Warn("page failed; treating as end of listing", zap.Int("page", page), zap.Error(err))
			return c.finish(logger, items, page-1), nil
		}

		for _, raw := range result.Items {
			if raw.PageIndex < 0 || raw.PageIndex >= c.cfg.PageSize {
				logger.Warn("dropping item with out-of-range position",
					zap.Int("page", page),
					zap.Int("index", raw.PageIndex),
					zap.String("external_id", raw.ExternalID),
				)
				continue
			}
			rank := AbsoluteRank(page, c.cfg.PageSize, raw.PageIndex)
			if _, dup := seen[rank]; dup {
				logger.Warn("dropping duplicate position", zap.Int("page", page), zap.Int("rank", rank))
				continue
			}
			seen[rank] = struct{}{}
			items = append(items, RankedItem{ExternalID: raw.ExternalID, AbsoluteRank: rank})
		}
		logger.Debug("page extracted",
			zap.Int("page", page),
			zap.Int("tiles", result.Tiles),
			zap.Int("items", len(result.Items)),
			zap.Int("max_page_marker", result.MaxPageMarker),
		)

		switch {
		case page == 1 && result.Tiles == 0:
			logger.Info("region has no listing")
			return []RankedItem{}, nil
		case result.Tiles < c.cfg.PageSize:
			return c.finish(logger, items, page), nil
		case result.MaxPageMarker > 0 && result.MaxPageMarker <= page:
			return c.finish(logger, items, page), nil
		}
	}

	logger.Warn("page cap reached", zap.Int("max_pages", c.cfg.MaxPages))
	return c.finish(logger, items, c.cfg.MaxPages), nil
}

func (c *PageCrawler) finish(logger *zap.Logger, items []RankedItem, pages int) []RankedItem {
	slices.SortFunc(items, func(a, b RankedItem) int { return a.AbsoluteRank - b.AbsoluteRank })
	logger.Info("region crawled", zap.Int("pages", pages), zap.Int("items", len(items)))
	if items == nil {
		return []RankedItem{}
	}
	return items
}

func (c *PageCrawler) crawlPage(ctx context.Context, region Region, date Date, page int) (PageResult, error) {
	url, err := PageURL(c.cfg.URLTemplate, region, page)
	if err != nil {
		return PageResult{}, err
	}
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx, url); err != nil {
			return PageResult{}, &FetchError{Region: region, Page: page, URL: url, Err: err}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()

	c.logger.Info("fetching page", zap.String("region", string(region)), zap.Int("page", page), zap.String("url", url))
	resp, err := c.fetcher.Fetch(fetchCtx, FetchRequest{URL: url, Region: region, Page: page})
	if err == nil && resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err != nil {
		outcome := "error"
		if IsTimeout(err) {
			outcome = "timeout"
		}
		metrics.ObservePage(string(region), outcome)
		return PageResult{}, &FetchError{Region: region, Page: page, URL: url, Timeout: IsTimeout(err), Err: err}
	}
	c.archivePage(ctx, region, date, page, resp.Body)

	result, err := c.extractor.Extract(resp.Body, page)
	if err != nil {
		metrics.ObservePage(string(region), "parse_error")
		return PageResult{}, fmt.Errorf("extract region %s page %d: %w", region, page, err)
	}
	for _, dropped := range result.Dropped {
		c.logger.Warn("dropped item",
			zap.String("region", string(region)),
			zap.Int("page", dropped.Page),
			zap.Int("index", dropped.Index),
			zap.Error(dropped),
		)
	}
	metrics.ObservePage(string(region), "ok")
	return result, nil
}

func (c *PageCrawler) archivePage(ctx context.Context, region Region, date Date, page int, body []byte) {
	if c.archive == nil {
		return
	}
	name := fmt.Sprintf("page-%03d.html", page)
	if c.hasher != nil {
		digest, err := c.hasher.Hash(body)
		if err != nil {
			c.logger.Warn("hash page failed", zap.String("region", string(region)), zap.Int("page", page), zap.Error(err))
			return
		}
		name = fmt.Sprintf("page-%03d-%s.html", page, digest)
	}
	key := path.Join(
		strings.Trim(c.cfg.ArchivePrefix, "/"),
		date.String(),
		string(region),
		name,
	)
	uri, err := c.archive.PutObject(ctx, key, "text/html; charset=utf-8", body)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Warn("archive page failed", zap.String("region", string(region)), zap.Int("page", page), zap.Error(err))
		}
		return
	}
	c.logger.Debug("page archived", zap.String("uri", uri))
}
