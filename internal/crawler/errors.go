package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrConfig marks configuration that prevents a run from starting.
var ErrConfig = errors.New("config error")

// FetchError reports a failed page fetch.
type FetchError struct {
	Region  Region
	Page    int
	URL     string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	kind := "fetch failed"
	if e.Timeout {
		kind = "fetch timed out"
	}
	return fmt.Sprintf("%s: region %s page %d: %v", kind, e.Region, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports one tile whose identifier could not be resolved.
type ParseError struct {
	Page   int
	Index  int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse page %d item %d: %s", e.Page, e.Index, e.Reason)
}

// PersistenceError reports a snapshot or history write failure.
type PersistenceError struct {
	Op     string
	Region Region
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for region %s: %v", e.Op, e.Region, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTimeout reports whether err stems from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
