// Package regions builds the ordered region registry a run iterates over.
package regions

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
)

// DefaultLanguage is the language prefix preferred when several codes share a country.
const DefaultLanguage = "en"

// Candidates are the storefront locale codes known to exist.
var Candidates = []crawler.Region{
	"ar-ae", "ar-bh", "ar-kw", "ar-lb", "ar-om", "ar-qa", "ar-sa", "bg-bg", "cs-cz", "da-dk", "de-at", "de-ch", "de-de",
	"el-gr", "en-ae", "en-au", "en-bh", "en-bg", "en-ca", "en-cy", "en-cz", "en-dk", "en-fi", "en-gb", "en-gr", "en-hk",
	"en-hr", "en-hu", "en-id", "en-ie", "en-il", "en-in", "en-is", "en-kw", "en-lb", "en-mt", "en-my", "en-nz", "en-no",
	"en-om", "en-ph", "en-pl", "en-qa", "en-ro", "en-sa", "en-se", "en-sg", "en-si", "en-sk", "en-th", "en-tr", "en-tw",
	"en-us", "en-vn", "en-za", "es-ar", "es-bo", "es-cl", "es-co", "es-cr", "es-ec", "es-es", "es-gt", "es-hn", "es-mx",
	"es-ni", "es-pa", "es-pe", "es-py", "es-sv", "es-uy", "fi-fi", "fr-be", "fr-ca", "fr-ch", "fr-fr", "fr-lu", "he-il",
	"hr-hr", "hu-hu", "it-ch", "it-it", "ja-jp", "ko-kr", "nb-no", "nl-be", "nl-nl", "pl-pl", "pt-br", "pt-pt", "ro-ro",
	"ru-ru", "sk-sk", "sl-si", "sr-rs", "sv-se", "th-th", "tr-tr", "uk-ua", "zh-hans-cn", "zh-hans-hk", "zh-hant-hk", "zh-hant-tw",
}

// Country returns the trailing segment of a locale code.
func Country(code crawler.Region) string {
	s := string(code)
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Collapse keeps one code per country. A code with the preferred language
// prefix wins; otherwise the lexicographically smallest code does. The result
// is sorted and free of duplicates and blanks.
func Collapse(codes []crawler.Region, language string) []crawler.Region {
	if language == "" {
		language = DefaultLanguage
	}
	prefix := strings.ToLower(language) + "-"
	preferred := func(c crawler.Region) bool { return strings.HasPrefix(strings.ToLower(string(c)), prefix) }

	chosen := make(map[string]crawler.Region)
	for _, raw := range codes {
		code := crawler.Region(strings.TrimSpace(string(raw)))
		if code == "" {
			continue
		}
		country := strings.ToLower(Country(code))
		current, ok := chosen[country]
		switch {
		case !ok:
			chosen[country] = code
		case preferred(code) && !preferred(current):
			chosen[country] = code
		case preferred(code) == preferred(current) && code < current:
			chosen[country] = code
		}
	}

	out := make([]crawler.Region, 0, len(chosen))
	for _, code := range chosen {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// Probe fetches the first listing page of each candidate and returns the
// codes that answered 200, in input order. throttle may be nil.
func Probe(
	ctx context.Context,
	fetcher crawler.Fetcher,
	throttle crawler.Throttle,
	template string,
	candidates []crawler.Region,
	logger *zap.Logger,
) ([]crawler.Region, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var valid []crawler.Region
	for _, code := range candidates {
		if err := ctx.Err(); err != nil {
			return valid, err
		}
		url, err := crawler.PageURL(template, code, 1)
		if err != nil {
			return nil, err
		}
		if throttle != nil {
			if err := throttle.Wait(ctx, url); err != nil {
				return valid, err
			}
		}
		resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Region: code, Page: 1})
		switch {
		case err != nil:
			logger.Warn("region probe failed", zap.String("region", string(code)), zap.Error(err))
		case resp.StatusCode != http.StatusOK:
			logger.Info("region unavailable", zap.String("region", string(code)), zap.Int("status", resp.StatusCode))
		default:
			valid = append(valid, code)
		}
	}
	return valid, nil
}
