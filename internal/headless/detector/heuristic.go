// Package detector decides when a plain HTTP listing page has to be rendered
// in headless Chrome before its tiles can be extracted.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// Defaults for the promotion heuristic.
const (
	DefaultBodyLengthThreshold = 2048
	DefaultListingMarker       = `ems-sdk-grid`
)

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// ListingMarker is a byte sequence every server-rendered listing page
	// carries. A successful page without it is promoted.
	ListingMarker []byte
}

// NewHeuristic creates a new detector. Zero values pick the defaults.
func NewHeuristic(threshold int, marker string) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyLengthThreshold
	}
	if marker == "" {
		marker = DefaultListingMarker
	}
	return &Heuristic{BodyLengthThreshold: threshold, ListingMarker: []byte(marker)}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless {
		return false
	}
	body := resp.Body
	if len(body) == 0 {
		return true
	}
	if len(h.ListingMarker) > 0 && bytes.Contains(body, h.ListingMarker) {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return len(h.ListingMarker) > 0
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Malformed: the rest of the document counts as script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
