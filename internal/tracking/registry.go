package tracking

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// TrackedItem is one product the operator wants to follow.
type TrackedItem struct {
	CanonicalName string `yaml:"name,omitempty" json:"name"`
	MatchPattern  string `yaml:"pattern" json:"pattern"`
}

// Name returns the canonical name, falling back to the pattern.
func (t TrackedItem) Name() string {
	if t.CanonicalName != "" {
		return t.CanonicalName
	}
	return t.MatchPattern
}

// Registry is the ordered tracked-item list plus the regions tracking applies to.
// An empty region list tracks every region. Registry values are never mutated
// in place; Add and Remove return updated copies.
type Registry struct {
	Items   []TrackedItem    `yaml:"items" json:"items"`
	Regions []crawler.Region `yaml:"regions,omitempty" json:"regions"`
}

// NewRegistry builds a registry from bare patterns.
func NewRegistry(patterns []string, regions []crawler.Region) Registry {
	var r Registry
	for _, p := range patterns {
		r = r.AddItem(TrackedItem{MatchPattern: p})
	}
	for _, region := range regions {
		r = r.AddRegion(region)
	}
	return r
}

func (r Registry) clone() Registry {
	return Registry{Items: slices.Clone(r.Items), Regions: slices.Clone(r.Regions)}
}

func (r Registry) indexOf(pattern string) int {
	return slices.IndexFunc(r.Items, func(t TrackedItem) bool {
		return strings.EqualFold(strings.TrimSpace(t.MatchPattern), strings.TrimSpace(pattern))
	})
}

// AddItem appends item unless its pattern is already present.
func (r Registry) AddItem(item TrackedItem) Registry {
	item.MatchPattern = strings.TrimSpace(item.MatchPattern)
	item.CanonicalName = strings.TrimSpace(item.CanonicalName)
	if item.MatchPattern == "" || r.indexOf(item.MatchPattern) >= 0 {
		return r.clone()
	}
	out := r.clone()
	out.Items = append(out.Items, item)
	return out
}

// RemoveItem drops the item with the given pattern if present.
func (r Registry) RemoveItem(pattern string) Registry {
	out := r.clone()
	if i := out.indexOf(pattern); i >= 0 {
		out.Items = slices.Delete(out.Items, i, i+1)
	}
	return out
}

// AddRegion appends region to the tracking restriction unless present.
func (r Registry) AddRegion(region crawler.Region) Registry {
	out := r.clone()
	region = crawler.Region(strings.TrimSpace(string(region)))
	if region != "" && !slices.Contains(out.Regions, region) {
		out.Regions = append(out.Regions, region)
	}
	return out
}

// RemoveRegion drops region from the tracking restriction.
func (r Registry) RemoveRegion(region crawler.Region) Registry {
	out := r.clone()
	if i := slices.Index(out.Regions, region); i >= 0 {
		out.Regions = slices.Delete(out.Regions, i, i+1)
	}
	return out
}

// TracksRegion reports whether histories are kept for region.
func (r Registry) TracksRegion(region crawler.Region) bool {
	return len(r.Regions) == 0 || slices.Contains(r.Regions, region)
}

// Validate rejects registries a run cannot use.
func (r Registry) Validate() error {
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: tracked-item registry is empty", crawler.ErrConfig)
	}
	var errs []error
	for i, item := range r.Items {
		if Normalize(item.MatchPattern) == "" {
			errs = append(errs, fmt.Errorf("item %d: pattern %q has no letters or digits", i, item.MatchPattern))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", crawler.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// LoadRegistry reads a YAML registry file. A missing file yields an empty registry.
func LoadRegistry(path string) (Registry, error) {
	reg, _, err := ReadRegistry(path)
	return reg, err
}

// ReadRegistry reads a YAML registry file and reports whether the file
// existed. A missing file yields an empty registry and false.
func ReadRegistry(path string) (Registry, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Registry{}, false, nil
	}
	if err != nil {
		return Registry{}, false, fmt.Errorf("read registry %s: %w", path, err)
	}
	var raw Registry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Registry{}, true, fmt.Errorf("decode registry %s: %w", path, err)
	}
	// Rebuild through Add so duplicates in a hand-edited file collapse.
	var reg Registry
	for _, item := range raw.Items {
		reg = reg.AddItem(item)
	}
	for _, region := range raw.Regions {
		reg = reg.AddRegion(region)
	}
	return reg, true, nil
}

// SaveRegistry writes the registry as YAML, replacing the file atomically.
func SaveRegistry(path string, reg Registry) error {
	data, err := yaml.Marshal(reg)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
