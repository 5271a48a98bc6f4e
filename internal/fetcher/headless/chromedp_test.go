package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewChromedp(Config{MaxParallel: -1}); err == nil {
		t.Fatal("expected error for negative max parallel")
	}
	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(fetcher.limiter) != 2 {
		t.Fatalf("expected limiter capacity 2, got %d", cap(fetcher.limiter))
	}
}

func TestLogSelectorWait(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	fetcher := &Fetcher{cfg: Config{
		WaitSelector:    DefaultWaitSelector,
		SelectorTimeout: time.Second,
		Logger:          zap.New(core),
	}}

	fetcher.logSelectorWait("https://store.test/en-us/1", nil)
	if logs.Len() != 0 {
		t.Fatalf("expected no log for a visible selector, got %d", logs.Len())
	}

	fetcher.logSelectorWait("https://store.test/en-us/9", context.DeadlineExceeded)
	entries := logs.FilterMessage("wait selector not visible").All()
	if len(entries) != 1 {
		t.Fatalf("expected one selector wait entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["url"] != "https://store.test/en-us/9" || fields["selector"] != DefaultWaitSelector {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %v", entries[0].Level)
	}
}

func TestNewChromedpDefaultsLogger(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = fetcher.Close() })
	if fetcher.cfg.Logger == nil {
		t.Fatal("expected a default logger")
	}
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	if got := fetcher.navTimeout(); got != 45*time.Second {
		t.Fatalf("expected default nav timeout, got %v", got)
	}
	fetcher.cfg.NavigationTimeout = time.Second
	if got := fetcher.navTimeout(); got != time.Second {
		t.Fatalf("expected override to be used, got %v", got)
	}
}

func TestCloneHeaderAndNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}}
	cloned := cloneHeader(src)
	cloned.Add("X-Test", "c")
	if len(src["X-Test"]) != 2 {
		t.Fatalf("source header mutated: %+v", src)
	}

	netHeaders := toNetworkHeaders(src)
	switch v := netHeaders["X-Test"].(type) {
	case []string:
		if len(v) != 2 {
			t.Fatalf("expected two entries, got %v", v)
		}
	default:
		t.Fatalf("expected []string, got %T", v)
	}
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  204,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	if status != 204 || headers.Get("X-Request-ID") != "abc" || url != "https://example.com/rendered" {
		t.Fatalf("unexpected snapshot values: status=%d headers=%v url=%s", status, headers, url)
	}

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	if status != http.StatusOK || url != "https://final" {
		t.Fatalf("expected fallback values, got status=%d url=%s", status, url)
	}
}

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = fetcher.Close() }()

	if fetcher.cfg.WaitSelector != DefaultWaitSelector {
		t.Fatalf("expected default wait selector, got %q", fetcher.cfg.WaitSelector)
	}
	if fetcher.cfg.SelectorTimeout != DefaultSelectorTimeout {
		t.Fatalf("expected default selector timeout, got %v", fetcher.cfg.SelectorTimeout)
	}
	if fetcher.cfg.UserAgent == "" {
		t.Fatal("expected a default user agent")
	}
}

func TestFetchCanceledWhileWaitingForSlot(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = fetcher.Close() }()
	fetcher.limiter <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetcher.Fetch(ctx, crawler.FetchRequest{URL: "https://store.test/en-us/1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
}
