package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/storefront-rank-tracker/internal/crawler"
	"github.com/JakeFAU/storefront-rank-tracker/internal/tracking"
	"github.com/JakeFAU/storefront-rank-tracker/internal/worker"
)

func listingPage(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i, id := range ids {
		fmt.Fprintf(&b,
			`<li><div data-qa="ems-sdk-grid#productTile%d" data-qa-index="%d"><a data-telemetry-meta='{"id":"%s"}'>x</a></div></li>`,
			i, i, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func newStorefront(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/en-us/category/preorders/1":
			_, _ = w.Write([]byte(listingPage("UP1-OTHER", "SLUS-12345-DeltaForce-Edition", "UP3-THIRD")))
		case "/en-gb/category/preorders/1":
			_, _ = w.Write([]byte(listingPage("EP1-DELTA-FORCE", "EP2-OTHER")))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	registry := filepath.Join(dir, "tracked.yaml")
	cfg := fmt.Sprintf(`
crawler:
  url_template: %s/{region}/category/preorders/{page}
  fetcher: http
  request_delay: 0s
  region_delay: 0s
  retry_backoff: 0s
  max_retries: 2
regions:
  codes: [en-us, en-gb, fr-xx]
tracking:
  registry_file: %s
  patterns: ["Delta Force"]
storage:
  driver: memory
logging:
  development: false
  level: error
`, baseURL, registry)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, registry
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandPrintsReport(t *testing.T) {
	t.Parallel()

	srv := newStorefront(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "crawl")
	require.NoError(t, err)

	var report worker.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, worker.OutcomePartialSuccess, report.Outcome)
	require.Equal(t, 5, report.TotalItems)
	require.Equal(t, []crawler.Region{"en-gb", "en-us"}, report.SucceededRegions)
	require.Equal(t, []crawler.Region{"fr-xx"}, report.FailedRegions)
	require.NotEmpty(t, report.RunID)
}

func TestCrawlCommandRegionFlag(t *testing.T) {
	t.Parallel()

	srv := newStorefront(t)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "crawl", "--region", "en-us")
	require.NoError(t, err)

	var report worker.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, worker.OutcomeCompleteSuccess, report.Outcome)
	require.Equal(t, 3, report.TotalItems)
}

func TestTrackedCommands(t *testing.T) {
	t.Parallel()

	cfgPath, registryPath := writeConfig(t, "http://unused.test")

	_, err := run(t, "--config", cfgPath, "tracked", "add", "Delta Force", "Ghost of Yotei")
	require.NoError(t, err)
	_, err = run(t, "--config", cfgPath, "tracked", "add", "delta force")
	require.NoError(t, err)
	_, err = run(t, "--config", cfgPath, "tracked", "region", "add", "en-us")
	require.NoError(t, err)

	reg, err := tracking.LoadRegistry(registryPath)
	require.NoError(t, err)
	require.Len(t, reg.Items, 2, "adding an existing pattern is a no-op")
	require.Equal(t, []crawler.Region{"en-us"}, reg.Regions)

	out, err := run(t, "--config", cfgPath, "tracked", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Ghost of Yotei")
	require.Contains(t, out, "regions: en-us")

	_, err = run(t, "--config", cfgPath, "tracked", "remove", "Ghost of Yotei")
	require.NoError(t, err)
	_, err = run(t, "--config", cfgPath, "tracked", "region", "remove", "en-us")
	require.NoError(t, err)

	out, err = run(t, "--config", cfgPath, "tracked", "list")
	require.NoError(t, err)
	require.NotContains(t, out, "Ghost of Yotei")
	require.Contains(t, out, "regions: all")
}

func TestTrackedCommandsStartFromConfiguredPatterns(t *testing.T) {
	t.Parallel()

	cfgPath, registryPath := writeConfig(t, "http://unused.test")

	out, err := run(t, "--config", cfgPath, "tracked", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Delta Force")

	_, err = run(t, "--config", cfgPath, "tracked", "add", "Borderlands 4")
	require.NoError(t, err)

	reg, err := tracking.LoadRegistry(registryPath)
	require.NoError(t, err)
	require.Equal(t, []tracking.TrackedItem{
		{MatchPattern: "Delta Force"},
		{MatchPattern: "Borderlands 4"},
	}, reg.Items)

	_, err = run(t, "--config", cfgPath, "tracked", "remove", "Delta Force", "Borderlands 4")
	require.NoError(t, err)
	out, err = run(t, "--config", cfgPath, "tracked", "list")
	require.NoError(t, err)
	require.NotContains(t, out, "Delta Force", "an emptied registry stays empty")
}

func TestTrackedAddRejectsEmptyPattern(t *testing.T) {
	t.Parallel()

	cfgPath, _ := writeConfig(t, "http://unused.test")
	_, err := run(t, "--config", cfgPath, "tracked", "add", "---")
	require.ErrorIs(t, err, crawler.ErrConfig)
}

func TestRegionsList(t *testing.T) {
	t.Parallel()

	cfgPath, _ := writeConfig(t, "http://unused.test")
	out, err := run(t, "--config", cfgPath, "regions", "list")
	require.NoError(t, err)
	require.Equal(t, "en-gb\nen-us\nfr-xx\n", out)
}

func TestRegionsProbe(t *testing.T) {
	t.Parallel()

	srv := newStorefront(t)
	cfgPath, _ := writeConfig(t, srv.URL)
	out, err := run(t, "--config", cfgPath, "regions", "probe", "--candidate", "en-us,es-us,en-gb,de-de")
	require.NoError(t, err)
	require.Equal(t, "en-gb\nen-us\n", out)
}

func TestRebuildCommand(t *testing.T) {
	t.Parallel()

	cfgPath, _ := writeConfig(t, "http://unused.test")
	out, err := run(t, "--config", cfgPath, "rebuild")
	require.NoError(t, err)
	require.JSONEq(t, `{"snapshots":0,"histories":0}`, out)
}

func TestInvalidConfigFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  page_size: 0\n"), 0o600))
	_, err := run(t, "--config", path, "regions", "list")
	require.ErrorIs(t, err, crawler.ErrConfig)
}
