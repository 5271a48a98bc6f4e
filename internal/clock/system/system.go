// Package system provides the wall clock used to date crawl snapshots.
package system

import (
	"fmt"
	"time"
)

// Clock implements crawler.Clock. Snapshot dates follow the clock's location,
// so a crawl started just after local midnight is filed under the local day.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting times in loc; nil means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// FromName resolves an IANA zone name such as "Asia/Hong_Kong". An empty name
// yields a UTC clock.
func FromName(name string) (*Clock, error) {
	if name == "" {
		return New(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the configured location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
