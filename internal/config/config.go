// Package config loads and validates tracker configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/extract"
	"github.com/JakeFAU/storefront-rank-tracker/internal/headless/detector"
	"github.com/JakeFAU/storefront-rank-tracker/internal/logging"
	"github.com/JakeFAU/storefront-rank-tracker/internal/regions"
)

// EnvPrefix prefixes every environment override, e.g. RANKCRAWLER_STORAGE_DSN.
const EnvPrefix = "RANKCRAWLER"

// Fetcher names.
const (
	FetcherHeadless = "headless"
	FetcherHTTP     = "http"
	// FetcherAuto probes over HTTP and renders headless only when needed.
	FetcherAuto = "auto"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig  `mapstructure:"crawler"`
	Headless  HeadlessConfig `mapstructure:"headless"`
	Extractor extract.Config `mapstructure:"extractor"`
	Regions   RegionsConfig  `mapstructure:"regions"`
	Tracking  TrackingConfig `mapstructure:"tracking"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Archive   ArchiveConfig  `mapstructure:"archive"`
	PubSub    PubSubConfig   `mapstructure:"pubsub"`
	Breaker   BreakerConfig  `mapstructure:"breaker"`
	Server    ServerConfig   `mapstructure:"server"`
	Logging   logging.Config `mapstructure:"logging"`
}

// CrawlerConfig governs the page walk and the run loop.
type CrawlerConfig struct {
	URLTemplate  string        `mapstructure:"url_template"`
	PageSize     int           `mapstructure:"page_size"`
	MaxPages     int           `mapstructure:"max_pages"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	RegionDelay  time.Duration `mapstructure:"region_delay"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	UserAgent    string        `mapstructure:"user_agent"`
	Fetcher      string        `mapstructure:"fetcher"`
	// Timezone names the IANA zone snapshot dates are taken in.
	Timezone string `mapstructure:"timezone"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	WaitSelector    string        `mapstructure:"wait_selector"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout"`
	ExecPath        string        `mapstructure:"exec_path"`
	// PromotionThreshold and PromotionMarker tune the auto fetcher.
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
	PromotionMarker    string `mapstructure:"promotion_marker"`
}

// RegionsConfig lists the storefront locales to crawl.
type RegionsConfig struct {
	Codes           []string `mapstructure:"codes"`
	DefaultLanguage string   `mapstructure:"default_language"`
}

// TrackingConfig locates the tracked-item registry. Patterns and Regions
// seed the registry when the file does not exist yet.
type TrackingConfig struct {
	RegistryFile string   `mapstructure:"registry_file"`
	Patterns     []string `mapstructure:"patterns"`
	Regions      []string `mapstructure:"regions"`
}

// StorageConfig selects the snapshot and history backend.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	SnapshotTable   string        `mapstructure:"snapshot_table"`
	HistoryTable    string        `mapstructure:"history_table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig controls the raw page archive.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds the run report destination.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// BreakerConfig tunes the fetch circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.url_template", crawler.DefaultURLTemplate)
	v.SetDefault("crawler.page_size", crawler.DefaultPageSize)
	v.SetDefault("crawler.max_pages", crawler.DefaultMaxPages)
	v.SetDefault("crawler.request_delay", 2*time.Second)
	v.SetDefault("crawler.region_delay", 2*time.Second)
	v.SetDefault("crawler.page_timeout", crawler.DefaultPageTimeout)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_backoff", 5*time.Second)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.fetcher", FetcherHeadless)
	v.SetDefault("crawler.timezone", "")
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.wait_selector", extract.DefaultTileSelector)
	v.SetDefault("headless.selector_timeout", 30*time.Second)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.promotion_threshold", detector.DefaultBodyLengthThreshold)
	v.SetDefault("headless.promotion_marker", detector.DefaultListingMarker)
	v.SetDefault("extractor.tile_selector", extract.DefaultTileSelector)
	v.SetDefault("extractor.index_attr", extract.DefaultIndexAttr)
	v.SetDefault("extractor.link_selector", extract.DefaultLinkSelector)
	v.SetDefault("extractor.meta_attr", extract.DefaultMetaAttr)
	v.SetDefault("extractor.id_key", extract.DefaultIDKey)
	v.SetDefault("extractor.pagination_selector", extract.DefaultPaginationSelector)
	v.SetDefault("regions.codes", []string{})
	v.SetDefault("regions.default_language", regions.DefaultLanguage)
	v.SetDefault("tracking.registry_file", "tracked.yaml")
	v.SetDefault("tracking.patterns", []string{})
	v.SetDefault("tracking.regions", []string{})
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.sqlite_path", "rank-tracker.db")
	v.SetDefault("storage.snapshot_table", "listing_snapshots")
	v.SetDefault("storage.history_table", "rank_histories")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.min_conns", 0)
	v.SetDefault("storage.max_conn_lifetime", time.Hour)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_timeout", time.Minute)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. Every failure
// wraps crawler.ErrConfig.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{crawler.ErrConfig}, args...)...))
		}
	}

	check(strings.Contains(c.Crawler.URLTemplate, "{region}") && strings.Contains(c.Crawler.URLTemplate, "{page}"),
		"crawler.url_template must contain {region} and {page}")
	check(c.Crawler.PageSize > 0, "crawler.page_size must be > 0")
	check(c.Crawler.MaxPages > 0, "crawler.max_pages must be > 0")
	check(c.Crawler.RequestDelay >= 0, "crawler.request_delay must be >= 0")
	check(c.Crawler.RegionDelay >= 0, "crawler.region_delay must be >= 0")
	check(c.Crawler.PageTimeout > 0, "crawler.page_timeout must be > 0")
	check(c.Crawler.MaxRetries > 0, "crawler.max_retries must be > 0")
	check(c.Crawler.RetryBackoff >= 0, "crawler.retry_backoff must be >= 0")
	check(c.Crawler.Fetcher == FetcherHeadless || c.Crawler.Fetcher == FetcherHTTP || c.Crawler.Fetcher == FetcherAuto,
		"crawler.fetcher must be %q, %q or %q, got %q", FetcherHeadless, FetcherHTTP, FetcherAuto, c.Crawler.Fetcher)

	switch c.Storage.Driver {
	case DriverPostgres:
		check(c.Storage.DSN != "", "storage.dsn is required for the postgres driver")
	case DriverSQLite:
		check(c.Storage.SQLitePath != "", "storage.sqlite_path is required for the sqlite driver")
	case DriverMemory:
	default:
		check(false, "unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory, "":
	case ArchiveLocal:
		check(c.Archive.BaseDir != "", "archive.base_dir is required for the local archive")
	case ArchiveGCS:
		check(c.Archive.Bucket != "", "archive.bucket is required for the gcs archive")
	default:
		check(false, "unknown archive.backend %q", c.Archive.Backend)
	}

	check(c.PubSub.Topic == "" || c.PubSub.ProjectID != "", "pubsub.project_id is required when pubsub.topic is set")
	check(!c.Breaker.Enabled || c.Breaker.FailureThreshold > 0, "breaker.failure_threshold must be > 0")
	check(c.Server.Port > 0, "server.port must be > 0")

	return errors.Join(errs...)
}

// RegionCodes returns the configured regions, collapsed per country.
func (c Config) RegionCodes() []crawler.Region {
	codes := make([]crawler.Region, 0, len(c.Regions.Codes))
	for _, code := range c.Regions.Codes {
		codes = append(codes, crawler.Region(code))
	}
	return regions.Collapse(codes, c.Regions.DefaultLanguage)
}

// TrackedRegions returns the tracking restriction list.
func (c Config) TrackedRegions() []crawler.Region {
	out := make([]crawler.Region, 0, len(c.Tracking.Regions))
	for _, code := range c.Tracking.Regions {
		out = append(out, crawler.Region(strings.TrimSpace(code)))
	}
	return out
}
