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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/book-harvester/internal/config"
	"github.com/JakeFAU/book-harvester/internal/harvest"
)

// fakeCatalog serves a one-page catalog whose middle book is too short.
func fakeCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	long := strings.Repeat("word ", 50)
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/books", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"count":3,"next":null,"previous":null,"results":[
			{"id":1,"title":"Alpha","authors":[{"name":"Ann"}],"formats":{"text/plain; charset=utf-8":"%[1]s/texts/1.txt"}},
			{"id":2,"title":"Beta","authors":[],"formats":{"text/plain; charset=utf-8":"%[1]s/texts/2.txt"}},
			{"id":3,"title":"Gamma","authors":[{"name":"Gil"}],"formats":{"text/html":"%[1]s/texts/3.html"}}
		]}`, srv.URL)
	})
	mux.HandleFunc("/texts/1.txt", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(long)) })
	mux.HandleFunc("/texts/2.txt", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("too short")) })
	mux.HandleFunc("/texts/3.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><script>x()</script><p>" + long + "</p></body></html>"))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, catalogURL string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Harvest.CatalogURL = catalogURL
	cfg.Harvest.ForceHTTPS = false
	cfg.Harvest.TargetBooks = 2
	cfg.Harvest.MinWords = 40
	cfg.Harvest.ConcurrentRequests = 2
	cfg.Harvest.RequestsDelay = 0
	cfg.Harvest.RetryLimit = 1
	cfg.Harvest.InitialBackoff = time.Millisecond
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func useApp(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := newApp
	newApp = func(string, string) (*app, error) {
		return &app{cfg: cfg, logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHarvestThenStatus(t *testing.T) {
	srv := fakeCatalog(t)
	cfg := testConfig(t, srv.URL)
	useApp(t, cfg)

	out, err := execute(t, "harvest")
	require.NoError(t, err, out)
	assert.Contains(t, strings.ToLower(out), "harvest summary")
	assert.Contains(t, out, "2 / 2")

	for _, name := range []string{"1.txt", "3.txt", "metadata.json", "collected_ids.json"} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}
	assert.NoFileExists(t, filepath.Join(cfg.Output.Dir, "2.txt"))

	html, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "3.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(html), "x()")

	out, err = execute(t, "status", "--recent", "5")
	require.NoError(t, err, out)
	assert.Contains(t, strings.ToLower(out), "checkpoint")
	assert.Contains(t, out, "2 / 2")
	assert.Contains(t, out, "Gamma")
}

func TestHarvestFailsOnUnreachableCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	useApp(t, testConfig(t, srv.URL))

	out, err := execute(t, "harvest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page 1")
	assert.Contains(t, strings.ToLower(out), "harvest summary")
}

func TestHarvestFlagsOverrideConfig(t *testing.T) {
	cfg := testConfig(t, "https://gutendex.example")
	cmd := newHarvestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--target", "7", "--min-words", "3", "--concurrency", "4"}))

	got, err := applyHarvestFlags(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Harvest.TargetBooks)
	assert.Equal(t, 3, got.Harvest.MinWords)
	assert.Equal(t, 4, got.Harvest.ConcurrentRequests)

	bad := newHarvestCmd()
	require.NoError(t, bad.ParseFlags([]string{"--target", "0"}))
	_, err = applyHarvestFlags(bad, cfg)
	assert.ErrorContains(t, err, "target_books")
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BOOK_HARVESTER_DOTENV_CHECK=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BOOK_HARVESTER_DOTENV_CHECK") })

	require.NoError(t, loadDotenv(path))
	assert.Equal(t, "loaded", os.Getenv("BOOK_HARVESTER_DOTENV_CHECK"))
	assert.NoError(t, loadDotenv(filepath.Join(dir, "missing.env")))
	assert.NoError(t, loadDotenv(""))
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderSummary(&buf, harvest.Summary{RunID: "r1", Accepted: 3, Target: 5, SavedThisRun: 1, Dropped: 2, Exhausted: true})
	out := buf.String()
	assert.Contains(t, out, "3 / 5")
	assert.Contains(t, out, "r1")
	assert.Contains(t, out, "true")
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
