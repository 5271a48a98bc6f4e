package regions

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

func TestCollapsePrefersDefaultLanguage(t *testing.T) {
	t.Parallel()

	got := Collapse([]crawler.Region{"de-ch", "fr-ch", "it-ch", "en-hk", "zh-hant-hk", "zh-hans-hk", "ja-jp", "ar-ae", "en-ae"}, "en")
	require.Equal(t, []crawler.Region{"de-ch", "en-ae", "en-hk", "ja-jp"}, got)
}

func TestCollapseTieBreaksLexicographically(t *testing.T) {
	t.Parallel()

	got := Collapse([]crawler.Region{"nl-be", "fr-be", "fr-be", " ", "en-us"}, "")
	require.Equal(t, []crawler.Region{"en-us", "fr-be"}, got)
}

func TestCollapseCandidates(t *testing.T) {
	t.Parallel()

	got := Collapse(Candidates, DefaultLanguage)
	seen := make(map[string]bool)
	for _, code := range got {
		c := Country(code)
		require.False(t, seen[c], "duplicate country %s", c)
		seen[c] = true
	}
	require.Contains(t, got, crawler.Region("en-us"))
	require.Contains(t, got, crawler.Region("en-hk"))
	require.Contains(t, got, crawler.Region("zh-hans-cn"))
	require.Contains(t, got, crawler.Region("de-de"))
	require.NotContains(t, got, crawler.Region("ar-ae"))
	require.True(t, slices.IsSorted(got))
}

func TestCountry(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tw", Country("zh-hant-tw"))
	require.Equal(t, "us", Country("en-us"))
	require.Equal(t, "xx", Country("xx"))
}

type statusFetcher map[crawler.Region]int

func (f statusFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	code, ok := f[req.Region]
	if !ok {
		return crawler.FetchResponse{}, errors.New("dial failed")
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: code}, nil
}

func TestProbe(t *testing.T) {
	t.Parallel()

	f := statusFetcher{"en-us": http.StatusOK, "en-xx": http.StatusNotFound, "ja-jp": http.StatusOK}
	got, err := Probe(context.Background(), f, nil, crawler.DefaultURLTemplate, []crawler.Region{"en-us", "en-xx", "en-yy", "ja-jp"}, nil)
	require.NoError(t, err)
	require.Equal(t, []crawler.Region{"en-us", "ja-jp"}, got)

	_, err = Probe(context.Background(), f, nil, "https://bad.test/", []crawler.Region{"en-us"}, nil)
	require.ErrorIs(t, err, crawler.ErrConfig)
}
