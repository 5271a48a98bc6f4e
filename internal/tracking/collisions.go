package tracking

import (
	"github.com/antzucaro/matchr"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// PatternScore pairs a matching pattern with its Jaro-Winkler similarity to the id.
type PatternScore struct {
	Pattern    string  `json:"pattern"`
	Similarity float64 `json:"similarity"`
}

// Collision is an external id claimed by more than one tracked pattern.
type Collision struct {
	ExternalID string         `json:"external_id"`
	Region     crawler.Region `json:"region"`
	Chosen     string         `json:"chosen"`
	Candidates []PatternScore `json:"candidates"`
}

// FindCollisions reports snapshot items matched by several tracked items. The
// first item in registry order still wins; the scores help an operator decide
// whether a pattern needs tightening.
func FindCollisions(snapshot crawler.Snapshot, items []TrackedItem) []Collision {
	matcher := NewMatcher(items)
	seen := make(map[string]struct{})
	var out []Collision
	for _, ranked := range snapshot.Items {
		if _, dup := seen[ranked.ExternalID]; dup {
			continue
		}
		seen[ranked.ExternalID] = struct{}{}

		matches := matcher.MatchAll(ranked.ExternalID)
		if len(matches) < 2 {
			continue
		}
		id := Normalize(ranked.ExternalID)
		c := Collision{ExternalID: ranked.ExternalID, Region: snapshot.Region, Chosen: matches[0].Name()}
		for _, m := range matches {
			c.Candidates = append(c.Candidates, PatternScore{
				Pattern:    m.MatchPattern,
				Similarity: matchr.JaroWinkler(Normalize(m.MatchPattern), id, false),
			})
		}
		out = append(out, c)
	}
	return out
}
