package tracking

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case and diacritics and drops everything that is not a
// letter or digit, so "Délta Force" and "SLUS-DeltaForce" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matcher resolves external ids against an ordered list of tracked items.
type Matcher struct {
	items    []TrackedItem
	patterns []string
}

// NewMatcher precomputes normalized patterns. Items whose pattern normalizes
// to nothing never match.
func NewMatcher(items []TrackedItem) *Matcher {
	m := &Matcher{
		items:    make([]TrackedItem, len(items)),
		patterns: make([]string, len(items)),
	}
	copy(m.items, items)
	for i, item := range items {
		m.patterns[i] = Normalize(item.MatchPattern)
	}
	return m
}

// Match returns the first tracked item, in registry order, whose pattern is
// contained in externalID.
func (m *Matcher) Match(externalID string) (TrackedItem, bool) {
	id := Normalize(externalID)
	for i, p := range m.patterns {
		if p != "" && strings.Contains(id, p) {
			return m.items[i], true
		}
	}
	return TrackedItem{}, false
}

// MatchAll returns every tracked item whose pattern is contained in externalID.
func (m *Matcher) MatchAll(externalID string) []TrackedItem {
	id := Normalize(externalID)
	var out []TrackedItem
	for i, p := range m.patterns {
		if p != "" && strings.Contains(id, p) {
			out = append(out, m.items[i])
		}
	}
	return out
}

// Match resolves externalID to the canonical name of the first matching item.
func Match(externalID string, items []TrackedItem) (string, bool) {
	item, ok := NewMatcher(items).Match(externalID)
	if !ok {
		return "", false
	}
	return item.Name(), true
}
