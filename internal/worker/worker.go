// Package worker drives a crawl run: regions one after another, each retried
// on failure, each successful listing persisted and applied to the tracked
// histories.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/metrics"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
)

// DefaultPublishTimeout bounds the run report publish.
const DefaultPublishTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/JakeFAU/storefront-rank-tracker/internal/worker")

// errEmptyListing marks an attempt that finished without any ranked item.
var errEmptyListing = errors.New("no items ranked")

// RegionCrawler returns the ranked listing of one region for the run date.
type RegionCrawler interface {
	CrawlOn(ctx context.Context, region crawler.Region, date crawler.Date) ([]crawler.RankedItem, error)
}

// HistoryTracker applies a snapshot to the tracked histories.
type HistoryTracker interface {
	Update(ctx context.Context, snapshot crawler.Snapshot, registry tracking.Registry) (tracking.Result, error)
}

// Publisher emits the run report.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Worker behavior.
type Config struct {
	// RegionDelay is slept between regions, not after the last one.
	RegionDelay time.Duration
	// Topic receives the run report; empty disables publishing.
	Topic          string
	PublishTimeout time.Duration
}

// Worker executes crawl runs. It is not safe for concurrent Run calls.
type Worker struct {
	crawler   RegionCrawler
	snapshots crawler.SnapshotStore
	tracker   HistoryTracker
	retry     crawler.RetryPolicy
	publisher Publisher
	ids       IDGenerator
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. publisher, ids and clock may be nil.
func New(
	regionCrawler RegionCrawler,
	snapshots crawler.SnapshotStore,
	tracker HistoryTracker,
	retry crawler.RetryPolicy,
	publisher Publisher,
	ids IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if retry == nil {
		retry = crawler.NewFixedRetryPolicy(1, 0)
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if clock == nil {
		clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		crawler:   regionCrawler,
		snapshots: snapshots,
		tracker:   tracker,
		retry:     retry,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Run crawls regions in order and returns the finalized report. The only
// error is a configuration error, returned before any region is touched.
// Cancellation stops the run between regions; the partial report is still
// finalized and published.
func (w *Worker) Run(ctx context.Context, regions []crawler.Region, registry tracking.Registry) (RunReport, error) {
	if err := registry.Validate(); err != nil {
		return RunReport{}, err
	}

	started := w.clock.Now()
	report := RunReport{
		RunID:            w.newRunID(),
		Date:             crawler.DateOf(started),
		StartedAt:        started,
		SucceededRegions: []crawler.Region{},
		FailedRegions:    []crawler.Region{},
		SchemaVersion:    crawler.SchemaVersion,
	}
	ctx, span := tracer.Start(ctx, "crawl run", trace.WithAttributes(
		attribute.String("run_id", report.RunID),
		attribute.String("crawl_date", report.Date.String()),
		attribute.Int("regions", len(regions)),
	))
	defer span.End()

	logger := w.logger.With(zap.String("run_id", report.RunID), zap.Stringer("date", report.Date))
	if sc := span.SpanContext(); sc.HasTraceID() {
		logger = logger.With(zap.String("trace_id", sc.TraceID().String()))
	}
	logger.Info("crawl run started", zap.Int("regions", len(regions)), zap.Int("tracked_items", len(registry.Items)))

	for i, region := range regions {
		if ctx.Err() != nil {
			report.Interrupted = true
			report.SkippedRegions = append(report.SkippedRegions, regions[i:]...)
			logger.Warn("crawl run interrupted", zap.Int("skipped", len(regions)-i))
			break
		}

		n, collisions, attempts, err := w.processRegion(ctx, report.Date, region, registry, logger)
		report.Collisions = append(report.Collisions, collisions...)
		switch {
		case err == nil:
			report.TotalItems += n
			report.SucceededRegions = append(report.SucceededRegions, region)
			metrics.ObserveRegionResult("succeeded")
		case ctx.Err() != nil:
			report.Interrupted = true
			report.SkippedRegions = append(report.SkippedRegions, regions[i:]...)
			logger.Warn("crawl run interrupted", zap.String("region", string(region)), zap.Int("skipped", len(regions)-i))
		default:
			report.FailedRegions = append(report.FailedRegions, region)
			report.Failures = append(report.Failures, RegionFailure{Region: region, Attempts: attempts, Error: err.Error()})
			metrics.ObserveRegionResult("failed")
			logger.Error("region failed", zap.String("region", string(region)), zap.Int("attempts", attempts), zap.Error(err))
		}
		if report.Interrupted {
			break
		}

		if i < len(regions)-1 {
			if err := crawler.Sleep(ctx, w.cfg.RegionDelay); err != nil && ctx.Err() != nil {
				report.Interrupted = true
				report.SkippedRegions = append(report.SkippedRegions, regions[i+1:]...)
				logger.Warn("crawl run interrupted", zap.Int("skipped", len(regions)-i-1))
				break
			}
		}
	}

	report.FinishedAt = w.clock.Now()
	report.Outcome = Outcome(len(regions), len(report.SucceededRegions), len(report.FailedRegions))
	metrics.ObserveRun(report.Outcome, report.Duration())
	span.SetAttributes(attribute.String("outcome", report.Outcome), attribute.Int("total_items", report.TotalItems))
	logger.Info("crawl run finished",
		zap.String("outcome", report.Outcome),
		zap.Int("total_items", report.TotalItems),
		zap.Int("succeeded", len(report.SucceededRegions)),
		zap.Int("failed", len(report.FailedRegions)),
		zap.Int("skipped", len(report.SkippedRegions)),
		zap.Int("collisions", len(report.Collisions)),
		zap.Duration("duration", report.Duration()),
	)
	w.publish(ctx, report, logger)
	return report, nil
}

// processRegion runs the retry loop for one region. It returns the ranked
// item count, the attempts used and the last error when every attempt failed.
func (w *Worker) processRegion(
	ctx context.Context,
	date crawler.Date,
	region crawler.Region,
	registry tracking.Registry,
	logger *zap.Logger,
) (int, []tracking.Collision, int, error) {
	ctx, span := tracer.Start(ctx, "crawl region", trace.WithAttributes(attribute.String("region", string(region))))
	defer span.End()

	logger = logger.With(zap.String("region", string(region)))
	for attempt := 1; ; attempt++ {
		n, collisions, err := w.attempt(ctx, date, region, registry, logger)
		if err == nil {
			metrics.ObserveRegionAttempt("succeeded")
			span.SetAttributes(attribute.Int("attempts", attempt), attribute.Int("items", n))
			return n, collisions, attempt, nil
		}
		metrics.ObserveRegionAttempt("failed")
		span.RecordError(err, trace.WithAttributes(attribute.Int("attempt", attempt)))
		if ctx.Err() != nil || !w.retry.ShouldRetry(err, attempt) {
			span.SetStatus(codes.Error, err.Error())
			return 0, nil, attempt, err
		}
		backoff := w.retry.Backoff(attempt)
		logger.Warn("region attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", w.retry.MaxAttempts()),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := crawler.Sleep(ctx, backoff); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, nil, attempt, err
		}
	}
}

func (w *Worker) attempt(
	ctx context.Context,
	date crawler.Date,
	region crawler.Region,
	registry tracking.Registry,
	logger *zap.Logger,
) (int, []tracking.Collision, error) {
	items, err := w.crawler.CrawlOn(ctx, region, date)
	if err != nil {
		return 0, nil, err
	}
	if len(items) == 0 {
		return 0, nil, errEmptyListing
	}

	snapshot := crawler.Snapshot{
		Date:          date,
		Region:        region,
		Items:         items,
		CapturedAt:    w.clock.Now(),
		SchemaVersion: crawler.SchemaVersion,
	}
	if err := w.snapshots.UpsertSnapshot(ctx, snapshot); err != nil {
		var perr *crawler.PersistenceError
		if errors.As(err, &perr) {
			return 0, nil, err
		}
		return 0, nil, &crawler.PersistenceError{Op: "upsert snapshot", Region: region, Err: err}
	}
	metrics.ObserveItems(string(region), len(items))

	var collisions []tracking.Collision
	if w.tracker != nil {
		result, err := w.tracker.Update(ctx, snapshot, registry)
		if err != nil {
			return 0, nil, fmt.Errorf("track histories: %w", err)
		}
		collisions = result.Collisions
		logger.Info("histories updated", zap.Int("updated", len(result.Updated)), zap.Bool("untracked_region", result.Skipped))
	}
	logger.Info("region crawled", zap.Int("items", len(items)))
	return len(items), collisions, nil
}

func (w *Worker) newRunID() string {
	if w.ids == nil {
		return fmt.Sprintf("run-%d", w.clock.Now().UnixNano())
	}
	id, err := w.ids.NewID()
	if err != nil {
		w.logger.Warn("run id generation failed", zap.Error(err))
		return fmt.Sprintf("run-%d", w.clock.Now().UnixNano())
	}
	return id
}

// publish sends the report even when ctx has been canceled.
func (w *Worker) publish(ctx context.Context, report RunReport, logger *zap.Logger) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.PublishTimeout)
	defer cancel()
	id, err := w.publisher.Publish(pubCtx, w.cfg.Topic, report)
	if err != nil {
		logger.Error("publish run report failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run report published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}
