// Package extract turns a rendered storefront listing page into raw items.
package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	json "github.com/goccy/go-json"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// Default selectors for the storefront product grid.
const (
	DefaultTileSelector       = `div[data-qa*="productTile"][data-qa-index]`
	DefaultIndexAttr          = "data-qa-index"
	DefaultLinkSelector       = "a"
	DefaultMetaAttr           = "data-telemetry-meta"
	DefaultIDKey              = "id"
	DefaultPaginationSelector = "button, a"
)

// Config names the selectors and attributes used to read a listing page.
type Config struct {
	TileSelector       string `mapstructure:"tile_selector"`
	IndexAttr          string `mapstructure:"index_attr"`
	LinkSelector       string `mapstructure:"link_selector"`
	MetaAttr           string `mapstructure:"meta_attr"`
	IDKey              string `mapstructure:"id_key"`
	PaginationSelector string `mapstructure:"pagination_selector"`
}

func (c Config) withDefaults() Config {
	if c.TileSelector == "" {
		c.TileSelector = DefaultTileSelector
	}
	if c.IndexAttr == "" {
		c.IndexAttr = DefaultIndexAttr
	}
	if c.LinkSelector == "" {
		c.LinkSelector = DefaultLinkSelector
	}
	if c.MetaAttr == "" {
		c.MetaAttr = DefaultMetaAttr
	}
	if c.IDKey == "" {
		c.IDKey = DefaultIDKey
	}
	if c.PaginationSelector == "" {
		c.PaginationSelector = DefaultPaginationSelector
	}
	return c
}

// Extractor implements crawler.PageExtractor with goquery.
type Extractor struct {
	cfg Config
}

var _ crawler.PageExtractor = (*Extractor)(nil)

// New builds an Extractor; empty fields fall back to the storefront defaults.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg.withDefaults()}
}

// Extract reads every product tile of the page. Tiles without a usable
// position or identifier are reported in PageResult.Dropped.
func (e *Extractor) Extract(content []byte, pageNumber int) (crawler.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return crawler.PageResult{}, fmt.Errorf("parse page %d: %w", pageNumber, err)
	}

	var result crawler.PageResult
	tiles := doc.Find(e.cfg.TileSelector)
	result.Tiles = tiles.Length()
	result.Items = make([]crawler.RawItem, 0, result.Tiles)

	tiles.Each(func(i int, tile *goquery.Selection) {
		rawIndex, _ := tile.Attr(e.cfg.IndexAttr)
		index, err := strconv.Atoi(strings.TrimSpace(rawIndex))
		if err != nil || index < 0 {
			result.Dropped = append(result.Dropped, &crawler.ParseError{
				Page:   pageNumber,
				Index:  i,
				Reason: fmt.Sprintf("invalid position %q", rawIndex),
			})
			return
		}
		id, reason := e.identifier(tile)
		if id == "" {
			result.Dropped = append(result.Dropped, &crawler.ParseError{Page: pageNumber, Index: index, Reason: reason})
			return
		}
		result.Items = append(result.Items, crawler.RawItem{
			ExternalID: id,
			PageIndex:  index,
			PageNumber: pageNumber,
		})
	})

	result.MaxPageMarker = e.maxPageMarker(doc)
	return result, nil
}

func (e *Extractor) identifier(tile *goquery.Selection) (string, string) {
	link := tile.Find(e.cfg.LinkSelector).First()
	if link.Length() == 0 {
		return "", "missing link"
	}
	meta, ok := link.Attr(e.cfg.MetaAttr)
	if !ok || strings.TrimSpace(meta) == "" {
		return "", "missing " + e.cfg.MetaAttr
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(meta), &fields); err != nil {
		return "", fmt.Sprintf("undecodable %s: %v", e.cfg.MetaAttr, err)
	}
	switch v := fields[e.cfg.IDKey].(type) {
	case string:
		if id := strings.TrimSpace(v); id != "" {
			return id, ""
		}
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), ""
	}
	return "", "missing " + e.cfg.IDKey + " in " + e.cfg.MetaAttr
}

// maxPageMarker returns the highest page number referenced by a pagination
// control, or 0 when the page has none.
func (e *Extractor) maxPageMarker(doc *goquery.Document) int {
	highest := 0
	doc.Find(e.cfg.PaginationSelector).Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > highest {
			highest = n
		}
	})
	return highest
}
