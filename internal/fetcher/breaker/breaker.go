// Package breaker short-circuits page fetches while the storefront is failing.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/metrics"
)

// Config controls when the breaker opens and how long it stays open.
type Config struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// Fetcher decorates another Fetcher with a circuit breaker. Transport errors
// and 5xx responses count as failures; caller cancellation does not.
type Fetcher struct {
	next crawler.Fetcher
	cb   *gobreaker.CircuitBreaker[crawler.FetchResponse]
}

var _ crawler.Fetcher = (*Fetcher)(nil)

type serverError struct {
	status int
}

func (e *serverError) Error() string { return fmt.Sprintf("server error status %d", e.status) }

// New wraps next. A zero FailureThreshold defaults to 5 consecutive failures.
func New(next crawler.Fetcher, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        "storefront-fetch",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ObserveBreakerState(to.String())
			logger.Warn("fetch breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Fetcher{next: next, cb: gobreaker.NewCircuitBreaker[crawler.FetchResponse](settings)}
}

// Fetch runs the wrapped fetch through the breaker.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := f.cb.Execute(func() (crawler.FetchResponse, error) {
		resp, err := f.next.Fetch(ctx, req)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &serverError{status: resp.StatusCode}
		}
		return resp, nil
	})
	var statusErr *serverError
	switch {
	case errors.As(err, &statusErr):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s short-circuited: %w", req.URL, err)
	case err != nil:
		return crawler.FetchResponse{}, err
	}
	return resp, nil
}

// State reports the breaker state.
func (f *Fetcher) State() string {
	return f.cb.State().String()
}

// Close closes the wrapped fetcher when it holds resources.
func (f *Fetcher) Close() error {
	if closer, ok := f.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
