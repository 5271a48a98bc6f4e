package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func tile(index int, id string) string {
	return fmt.Sprintf(
		`<li><div data-qa="ems-sdk-grid#productTile%d" data-qa-index="%d"><a href="/product/%s" data-telemetry-meta='{"id":"%s","index":%d,"name":"Game"}'>Game</a></div></li>`,
		index, index, id, id, index,
	)
}

func listing(tiles []string, pages ...int) []byte {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, t := range tiles {
		b.WriteString(t)
	}
	b.WriteString("</ul><nav>")
	for _, p := range pages {
		fmt.Fprintf(&b, `<button data-qa="page-%d">%d</button>`, p, p)
	}
	b.WriteString(`<a href="/help">Help</a></nav></body></html>`)
	return []byte(b.String())
}

func TestExtractFullPage(t *testing.T) {
	t.Parallel()

	tiles := make([]string, 0, 24)
	for i := 0; i < 24; i++ {
		tiles = append(tiles, tile(i, fmt.Sprintf("EP0001-PPSA%05d_00-GAME%02d", i, i)))
	}

	result, err := New(Config{}).Extract(listing(tiles, 1, 2, 3, 7), 2)
	require.NoError(t, err)
	require.Equal(t, 24, result.Tiles)
	require.Len(t, result.Items, 24)
	require.Empty(t, result.Dropped)
	require.Equal(t, 7, result.MaxPageMarker)
	require.Equal(t, "EP0001-PPSA00000_00-GAME00", result.Items[0].ExternalID)
	require.Equal(t, 23, result.Items[23].PageIndex)
	require.Equal(t, 2, result.Items[23].PageNumber)
}

func TestExtractDropsTilesWithoutIdentifier(t *testing.T) {
	t.Parallel()

	tiles := []string{
		tile(0, "UP0001-DELTAFORCE"),
		`<div data-qa="productTile1" data-qa-index="1"><a href="/x">No meta</a></div>`,
		`<div data-qa="productTile2" data-qa-index="2"><a data-telemetry-meta='{"name":"x"}'>No id</a></div>`,
		`<div data-qa="productTile3" data-qa-index="3"><a data-telemetry-meta='{broken'>Bad</a></div>`,
		`<div data-qa="productTile4" data-qa-index="4"><span>No link</span></div>`,
		tile(5, "UP0002-OTHER"),
	}

	result, err := New(Config{}).Extract(listing(tiles), 1)
	require.NoError(t, err)
	require.Equal(t, 6, result.Tiles)
	require.Len(t, result.Items, 2)
	require.Equal(t, 5, result.Items[1].PageIndex)
	require.Len(t, result.Dropped, 4)
	for i, dropped := range result.Dropped {
		require.Equal(t, 1, dropped.Page)
		require.Equal(t, i+1, dropped.Index)
	}
	require.Zero(t, result.MaxPageMarker)
}

func TestExtractIgnoresElementsWithoutPosition(t *testing.T) {
	t.Parallel()

	tiles := []string{
		`<div data-qa="productTile0"><a data-telemetry-meta='{"id":"NOPOS"}'>x</a></div>`,
		tile(0, "WITHPOS"),
	}
	result, err := New(Config{}).Extract(listing(tiles), 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Tiles)
	require.Equal(t, "WITHPOS", result.Items[0].ExternalID)
}

func TestExtractInvalidPosition(t *testing.T) {
	t.Parallel()

	tiles := []string{`<div data-qa="productTile0" data-qa-index="first"><a data-telemetry-meta='{"id":"A"}'>x</a></div>`}
	result, err := New(Config{}).Extract(listing(tiles), 1)
	require.NoError(t, err)
	require.Empty(t, result.Items)
	require.Len(t, result.Dropped, 1)
	require.Contains(t, result.Dropped[0].Error(), "invalid position")
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()

	result, err := New(Config{}).Extract([]byte("<html><body><p>No results</p></body></html>"), 1)
	require.NoError(t, err)
	require.Zero(t, result.Tiles)
	require.NotNil(t, result.Items)
	require.Empty(t, result.Items)
}

func TestExtractCustomSelectors(t *testing.T) {
	t.Parallel()

	page := []byte(`<section class="grid"><article class="card" data-pos="0"><a data-info='{"sku":1234}'>x</a></article></section>`)
	e := New(Config{TileSelector: "article.card", IndexAttr: "data-pos", MetaAttr: "data-info", IDKey: "sku"})
	result, err := e.Extract(page, 1)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "1234", result.Items[0].ExternalID)
}
