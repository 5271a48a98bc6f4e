package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pageFetcher struct {
	mu     sync.Mutex
	calls  []FetchRequest
	errs   map[int]error
	status map[int]int
}

func (f *pageFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.errs[req.Page]; ok {
		return FetchResponse{}, err
	}
	status := http.StatusOK
	if code, ok := f.status[req.Page]; ok {
		status = code
	}
	return FetchResponse{URL: req.URL, StatusCode: status, Body: []byte(fmt.Sprintf("page-%d", req.Page))}, nil
}

func (f *pageFetcher) pages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Page)
	}
	return out
}

type scriptedExtractor struct {
	results map[int]PageResult
	err     map[int]error
}

func (e *scriptedExtractor) Extract(content []byte, pageNumber int) (PageResult, error) {
	if !strings.HasPrefix(string(content), "page-") {
		return PageResult{}, errors.New("unexpected body")
	}
	if err, ok := e.err[pageNumber]; ok {
		return PageResult{}, err
	}
	return e.results[pageNumber], nil
}

type recordingArchive struct {
	mu    sync.Mutex
	paths []string
}

func (a *recordingArchive) PutObject(_ context.Context, path string, _ string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
	return "mem://" + path, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func page(number, n int) PageResult {
	items := make([]RawItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, RawItem{ExternalID: fmt.Sprintf("id-%d-%d", number, i), PageIndex: i, PageNumber: number})
	}
	return PageResult{Items: items, Tiles: n}
}

func newTestCrawler(f Fetcher, e PageExtractor, maxPages int) *PageCrawler {
	return NewPageCrawler(
		PageCrawlerConfig{URLTemplate: "https://store.test/{region}/list/{page}", PageSize: 24, MaxPages: maxPages},
		f, e, nil, nil, nil, nil, zap.NewNop(),
	)
}

func TestCrawlShortFirstPageStopsAfterOnePage(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 5, 23} {
		k := k
		t.Run(fmt.Sprintf("%d items", k), func(t *testing.T) {
			t.Parallel()
			f := &pageFetcher{}
			c := newTestCrawler(f, &scriptedExtractor{results: map[int]PageResult{1: page(1, k)}}, 50)

			items, err := c.Crawl(context.Background(), "en-us")
			require.NoError(t, err)
			require.Len(t, items, k)
			for i, item := range items {
				require.Equal(t, i+1, item.AbsoluteRank)
			}
			require.Equal(t, []int{1}, f.pages())
		})
	}
}

func TestCrawlTwoPagesProducesContiguousRanks(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{}
	c := newTestCrawler(f, &scriptedExtractor{results: map[int]PageResult{
		1: page(1, 24),
		2: page(2, 10),
	}}, 50)

	items, err := c.Crawl(context.Background(), "en-gb")
	require.NoError(t, err)
	require.Len(t, items, 34)
	for i, item := range items {
		require.Equal(t, i+1, item.AbsoluteRank)
	}
	require.Equal(t, "id-2-0", items[24].ExternalID)
	require.Equal(t, []int{1, 2}, f.pages())
	require.Equal(t, "https://store.test/en-gb/list/2", f.calls[1].URL)
}

func TestCrawlEmptyFirstPageIsNotAFailure(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{}
	c := newTestCrawler(f, &scriptedExtractor{results: map[int]PageResult{1: {}}}, 50)

	items, err := c.Crawl(context.Background(), "ar-ae")
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
	require.Equal(t, []int{1}, f.pages())
}

func TestCrawlFirstPageTimeoutEscalates(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{errs: map[int]error{1: timeoutErr{}}}
	c := newTestCrawler(f, &scriptedExtractor{}, 50)

	items, err := c.Crawl(context.Background(), "ja-jp")
	require.Nil(t, items)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.True(t, fetchErr.Timeout)
	require.Equal(t, 1, fetchErr.Page)
	require.Equal(t, Region("ja-jp"), fetchErr.Region)
}

func TestCrawlFirstPageErrorStatusEscalates(t *testing.T) {
	t.Parallel()

	f := &pageFetcher{status: map[int]int{1: http.StatusNotFound}}
	c := newTestCrawler(f, &scriptedExtractor{results: map[int]PageResult{1: page(1, 3)}}, 50)

	_, err := c.Crawl(context.Background(), "xx-zz")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.False(t, fetchErr.Timeout)
}

func TestCrawlLaterPageFailureEndsListing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    *pageFetcher
		e    *scriptedExtractor
	}{
		{
			name: "timeout",
			f:    &pageFetcher{errs: map[int]error{3: timeoutErr{}}},
			e:    &scriptedExtractor{results: map[int]PageResult{1: page(1, 24), 2: page(2, 24)}},
		},
		{
			name: "connection error",
			f:    &pageFetcher{errs: map[int]error{3: errors.New("connection reset")}},
			e:    &scriptedExtractor{results: map[int]PageResult{1: page(1, 24), 2: page(2, 24)}},
		},
		{
			name: "parse error",
			f:    &pageFetcher{},
			e: &scriptedExtractor{
				results: map[int]PageResult{1: page(1, 24), 2: page(2, 24)},
				err:     map[int]error{3: errors.New("broken markup")},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestCrawler(tt.f, tt.e, 50)
			items, err := c.Crawl(context.Background(), "de-de")
			require.NoError(t, err)
			require.Len(t, items, 48)
			require.Equal(t, []int{1, 2, 3}, tt.f.pages())
		})
	}
}

func TestCrawlKeepsRankGapForUnreadableTile(t *testing.T) {
	t.Parallel()

	// Three tiles rendered; the middle one had no readable id.
	first := PageResult{Tiles: 3, Items: []RawItem{
		{ExternalID: "UP1-FIRST", PageIndex: 0, PageNumber: 1},
		{ExternalID: "UP1-THIRD", PageIndex: 2, PageNumber: 1},
	}}
	c := newTestCrawler(&pageFetcher{}, &scriptedExtractor{results: map[int]PageResult{1: first}}, 50)

	items, err := c.Crawl(context.Background(), "en-au")
	require.NoError(t, err)
	require.Equal(t, []RankedItem{
		{ExternalID: "UP1-FIRST", AbsoluteRank: 1},
		{ExternalID: "UP1-THIRD", AbsoluteRank: 3},
	}, items)
}

func TestCrawlStopsAtPaginationMarker(t *testing.T) {
	t.Parallel()

	second := page(2, 24)
	second.MaxPageMarker = 2
	f := &pageFetcher{}
	c := newTestCrawler(f, &scriptedExtractor{results: map[int]PageResult{
		1: func() PageResult { p := page(1, 24); p.MaxPageMarker = 2; return p }(),
		2: second,
		3: page(3, 24),
	}}, 50)

	items, err := c.Crawl(context.Background(), "fr-fr")
	require.NoError(t, err)
	require.Len(t, items, 48)
	require.Equal(t, []int{1, 2}, f.pages())
}

func TestCrawlHonorsPageCap(t *testing.T) {
	t.Parallel()

	results := make(map[int]PageResult)
	for i := 1; i <= 10; i++ {
		results[i] = page(i, 24)
	}
	f := &pageFetcher{}
	c := newTestCrawler(f, &scriptedExtractor{results: results}, 3)

	items, err := c.Crawl(context.Background(), "en-ca")
	require.NoError(t, err)
	require.Len(t, items, 72)
	require.Equal(t, 72, items[71].AbsoluteRank)
	require.Equal(t, []int{1, 2, 3}, f.pages())
}

func TestCrawlDropsInvalidPositions(t *testing.T) {
	t.Parallel()

	first := PageResult{
		Tiles: 4,
		Items: []RawItem{
			{ExternalID: "b", PageIndex: 1, PageNumber: 1},
			{ExternalID: "a", PageIndex: 0, PageNumber: 1},
			{ExternalID: "dup", PageIndex: 1, PageNumber: 1},
			{ExternalID: "far", PageIndex: 30, PageNumber: 1},
		},
		Dropped: []*ParseError{{Page: 1, Index: 2, Reason: "missing identifier"}},
	}
	c := newTestCrawler(&pageFetcher{}, &scriptedExtractor{results: map[int]PageResult{1: first}}, 50)

	items, err := c.Crawl(context.Background(), "ko-kr")
	require.NoError(t, err)
	require.Equal(t, []RankedItem{
		{ExternalID: "a", AbsoluteRank: 1},
		{ExternalID: "b", AbsoluteRank: 2},
	}, items)
}

func TestCrawlArchivesPages(t *testing.T) {
	t.Parallel()

	archive := &recordingArchive{}
	c := NewPageCrawler(
		PageCrawlerConfig{URLTemplate: "https://store.test/{region}/{page}", ArchivePrefix: "/raw/"},
		&pageFetcher{},
		&scriptedExtractor{results: map[int]PageResult{1: page(1, 24), 2: page(2, 2)}},
		nil,
		archive,
		nil,
		fixedClock{now: time.Date(2025, 9, 1, 23, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)

	_, err := c.Crawl(context.Background(), "en-hk")
	require.NoError(t, err)
	require.Equal(t, []string{
		"raw/2025-09-01/en-hk/page-001.html",
		"raw/2025-09-01/en-hk/page-002.html",
	}, archive.paths)
}

func TestCrawlOnArchivesUnderRunDate(t *testing.T) {
	t.Parallel()

	archive := &recordingArchive{}
	c := NewPageCrawler(
		PageCrawlerConfig{URLTemplate: "https://store.test/{region}/{page}", ArchivePrefix: "raw"},
		&pageFetcher{},
		&scriptedExtractor{results: map[int]PageResult{1: page(1, 24), 2: page(2, 1)}},
		nil,
		archive,
		nil,
		// The clock has already crossed into the next day.
		fixedClock{now: time.Date(2025, 9, 2, 0, 0, 5, 0, time.UTC)},
		zap.NewNop(),
	)

	runDate, err := ParseDate("2025-09-01")
	require.NoError(t, err)
	_, err = c.CrawlOn(context.Background(), "en-us", runDate)
	require.NoError(t, err)
	require.Equal(t, []string{
		"raw/2025-09-01/en-us/page-001.html",
		"raw/2025-09-01/en-us/page-002.html",
	}, archive.paths)
}

type lengthHasher struct{}

func (lengthHasher) Hash(data []byte) (string, error) {
	return fmt.Sprintf("%012x", len(data)), nil
}

func TestCrawlArchivesPagesByDigest(t *testing.T) {
	t.Parallel()

	archive := &recordingArchive{}
	c := NewPageCrawler(
		PageCrawlerConfig{URLTemplate: "https://store.test/{region}/{page}", ArchivePrefix: "raw"},
		&pageFetcher{},
		&scriptedExtractor{results: map[int]PageResult{1: page(1, 3)}},
		nil,
		archive,
		lengthHasher{},
		fixedClock{now: time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)},
		zap.NewNop(),
	)

	_, err := c.Crawl(context.Background(), "en-us")
	require.NoError(t, err)
	require.Len(t, archive.paths, 1)
	require.Regexp(t, `^raw/2025-09-01/en-us/page-001-[0-9a-f]{12}\.html$`, archive.paths[0])
}

func TestCrawlCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &pageFetcher{errs: map[int]error{1: context.Canceled}}
	c := newTestCrawler(f, &scriptedExtractor{}, 50)

	_, err := c.Crawl(ctx, "en-us")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAbsoluteRank(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, AbsoluteRank(1, 24, 0))
	require.Equal(t, 24, AbsoluteRank(1, 24, 23))
	require.Equal(t, 25, AbsoluteRank(2, 24, 0))
	require.Equal(t, 34, AbsoluteRank(2, 24, 9))
}
