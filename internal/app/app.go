// Package app builds the long-lived services a command needs from the loaded
// configuration and shuts them down again.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/clock/system"
	"github.com/JakeFAU/storefront-rank-tracker/internal/config"
	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/extract"
	"github.com/JakeFAU/storefront-rank-tracker/internal/fetcher/auto"
	"github.com/JakeFAU/storefront-rank-tracker/internal/fetcher/breaker"
	collyfetcher "github.com/JakeFAU/storefront-rank-tracker/internal/fetcher/colly"
	"github.com/JakeFAU/storefront-rank-tracker/internal/fetcher/headless"
	"github.com/JakeFAU/storefront-rank-tracker/internal/hash/sha256"
	"github.com/JakeFAU/storefront-rank-tracker/internal/headless/detector"
	"github.com/JakeFAU/storefront-rank-tracker/internal/id/uuid"
	"github.com/JakeFAU/storefront-rank-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/storefront-rank-tracker/internal/publisher/pubsub"
	"github.com/JakeFAU/storefront-rank-tracker/internal/storage/gcs"
	"github.com/JakeFAU/storefront-rank-tracker/internal/storage/local"
	"github.com/JakeFAU/storefront-rank-tracker/internal/storage/memory"
	"github.com/JakeFAU/storefront-rank-tracker/internal/storage/postgres"
	"github.com/JakeFAU/storefront-rank-tracker/internal/storage/sqlite"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
	"github.com/JakeFAU/storefront-rank-tracker/internal/worker"
)

// FetchCloser is a Fetcher that owns resources.
type FetchCloser interface {
	crawler.Fetcher
	Close() error
}

// App holds the shared services for one command invocation.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Clock     *system.Clock
	Snapshots crawler.SnapshotStore
	Histories tracking.HistoryStore

	closers []func() error
}

// New opens the configured snapshot and history storage.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk, err := system.FromName(cfg.Crawler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: crawler.timezone: %w", crawler.ErrConfig, err)
	}
	a := &App{Config: cfg, Logger: logger, Clock: clk}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Storage.DSN,
			SnapshotTable:   cfg.Storage.SnapshotTable,
			HistoryTable:    cfg.Storage.HistoryTable,
			MaxConns:        cfg.Storage.MaxConns,
			MinConns:        cfg.Storage.MinConns,
			MaxConnLifetime: cfg.Storage.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		a.Snapshots, a.Histories = store, store
		a.onClose(func() error { store.Close(); return nil })
		logger.Info("using postgres storage")
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		a.Snapshots, a.Histories = store, store
		a.onClose(store.Close)
		logger.Info("using sqlite storage", zap.String("path", cfg.Storage.SQLitePath))
	case config.DriverMemory:
		a.Snapshots, a.Histories = memory.NewSnapshotStore(), memory.NewHistoryStore()
		logger.Warn("using in-memory storage, nothing is persisted")
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", crawler.ErrConfig, cfg.Storage.Driver)
	}
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases every service in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadRegistry returns the effective tracked-item registry for the App's
// configuration. See EffectiveRegistry.
func (a *App) LoadRegistry() (tracking.Registry, error) {
	return EffectiveRegistry(a.Config)
}

// EffectiveRegistry reads the registry file named by cfg. Until the file
// exists the configured patterns and regions stand in for it; once written,
// the file alone is authoritative, so removing every item does not reseed.
func EffectiveRegistry(cfg config.Config) (tracking.Registry, error) {
	reg, found, err := tracking.ReadRegistry(cfg.Tracking.RegistryFile)
	if err != nil {
		return tracking.Registry{}, err
	}
	if !found {
		reg = tracking.NewRegistry(cfg.Tracking.Patterns, cfg.TrackedRegions())
	}
	return reg, nil
}

// SaveRegistry writes reg to the registry file.
func (a *App) SaveRegistry(reg tracking.Registry) error {
	return tracking.SaveRegistry(a.Config.Tracking.RegistryFile, reg)
}

// NewFetcher builds the configured page fetcher wrapped in the circuit
// breaker. The App closes it.
func (a *App) NewFetcher() (FetchCloser, error) {
	cfg := a.Config
	var base FetchCloser
	switch cfg.Crawler.Fetcher {
	case config.FetcherHTTP:
		base = a.newHTTPFetcher()
	case config.FetcherHeadless:
		f, err := a.newHeadlessFetcher()
		if err != nil {
			return nil, err
		}
		base = f
	case config.FetcherAuto:
		renderer, err := a.newHeadlessFetcher()
		if err != nil {
			return nil, err
		}
		f, err := auto.New(
			a.newHTTPFetcher(),
			renderer,
			detector.NewHeuristic(cfg.Headless.PromotionThreshold, cfg.Headless.PromotionMarker),
			a.Logger.Named("fetcher"),
		)
		if err != nil {
			return nil, fmt.Errorf("build auto fetcher: %w", err)
		}
		base = f
	default:
		return nil, fmt.Errorf("%w: unknown fetcher %q", crawler.ErrConfig, cfg.Crawler.Fetcher)
	}

	fetcher := base
	if cfg.Breaker.Enabled {
		fetcher = breaker.New(base, breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OpenTimeout:      cfg.Breaker.OpenTimeout,
		}, a.Logger.Named("breaker"))
	}
	a.onClose(fetcher.Close)
	return fetcher, nil
}

func (a *App) newHTTPFetcher() *collyfetcher.Fetcher {
	return collyfetcher.New(collyfetcher.Config{
		UserAgent: a.Config.Crawler.UserAgent,
		Timeout:   a.Config.Crawler.PageTimeout,
	})
}

func (a *App) newHeadlessFetcher() (*headless.Fetcher, error) {
	cfg := a.Config
	f, err := headless.NewChromedp(headless.Config{
		MaxParallel:       1,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Headless.NavTimeout,
		WaitSelector:      cfg.Headless.WaitSelector,
		SelectorTimeout:   cfg.Headless.SelectorTimeout,
		ExecPath:          cfg.Headless.ExecPath,
		Logger:            a.Logger.Named("headless"),
	})
	if err != nil {
		return nil, fmt.Errorf("start headless fetcher: %w", err)
	}
	return f, nil
}

// NewArchive builds the raw page archive; nil when archiving is off.
func (a *App) NewArchive(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Backend {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveMemory:
		return memory.NewBlobStore(), nil
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case config.ArchiveGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown archive backend %q", crawler.ErrConfig, cfg.Backend)
	}
}

// NewPublisher builds the run report publisher; nil when no topic is set.
func (a *App) NewPublisher(ctx context.Context) (worker.Publisher, error) {
	cfg := a.Config.PubSub
	if cfg.Topic == "" {
		return nil, nil
	}
	client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsub.New(client)
	a.onClose(pub.Close)
	return pub, nil
}

// NewPageCrawler assembles the region page walker around fetcher.
func (a *App) NewPageCrawler(fetcher crawler.Fetcher, archive crawler.BlobStore) *crawler.PageCrawler {
	cfg := a.Config
	return crawler.NewPageCrawler(
		crawler.PageCrawlerConfig{
			URLTemplate:   cfg.Crawler.URLTemplate,
			PageSize:      cfg.Crawler.PageSize,
			MaxPages:      cfg.Crawler.MaxPages,
			PageTimeout:   cfg.Crawler.PageTimeout,
			ArchivePrefix: cfg.Archive.Prefix,
		},
		fetcher,
		extract.New(cfg.Extractor),
		ratelimit.New(ratelimit.Config{Delay: cfg.Crawler.RequestDelay}),
		archive,
		sha256.NewShort(12),
		a.Clock,
		a.Logger.Named("crawler"),
	)
}

// NewWorker wires the full crawl pipeline.
func (a *App) NewWorker(ctx context.Context) (*worker.Worker, error) {
	fetcher, err := a.NewFetcher()
	if err != nil {
		return nil, err
	}
	archive, err := a.NewArchive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.NewPublisher(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.Config
	return worker.New(
		a.NewPageCrawler(fetcher, archive),
		a.Snapshots,
		tracking.NewTracker(a.Histories, a.Logger.Named("tracker")),
		crawler.NewFixedRetryPolicy(cfg.Crawler.MaxRetries, cfg.Crawler.RetryBackoff),
		publisher,
		uuid.NewGenerator(),
		a.Clock,
		worker.Config{RegionDelay: cfg.Crawler.RegionDelay, Topic: cfg.PubSub.Topic},
		a.Logger.Named("worker"),
	), nil
}

// ResolveRegions returns the configured regions collapsed per country. An
// empty list is a configuration error.
func (a *App) ResolveRegions() ([]crawler.Region, error) {
	codes := a.Config.RegionCodes()
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: regions.codes is empty", crawler.ErrConfig)
	}
	return codes, nil
}
