package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
)

const listingBody = `<html><body>
<div class="item_def_loop"><div class="title_h"><h2 class="lato_font">
<a href="%[1]s/tt0068646/">دانلود فیلم The Godfather</a></h2></div></div>
</body></html>`

const detailBody = `<html><body><div class="dllink_holder_ham"><div class="body_dllink_movies">
<div class="itemdl"><div class="side_left"><div class="head_left_side"><h3>1080p</h3></div></div>
<span class="item_meta size_dl">2 GB</span>
<a class="btn_row btn_dl" href="https://dl.example/godfather.mkv?token=1">dl</a></div>
</div></div></body></html>`

func testConfig(baseURL string) config.Config {
	return config.Config{
		Store: config.StoreConfig{Driver: config.DriverMemory, Timeout: time.Second},
		Cookie: config.CookieConfig{
			Name: "session", Value: "abc", Domain: "digimoviez.com", Expires: "2028-12-12T06:11:29.470Z",
		},
		Site:    config.SiteConfig{BaseURL: baseURL, Source: "DigiMovie", InitialPage: 2},
		Crawler: config.CrawlerConfig{MaxConsecutiveFailures: 3, ItemConcurrency: 1},
		HTTP:    config.HTTPConfig{UserAgent: "catalog-crawler-test", Timeout: 5 * time.Second},
		Logging: config.LoggingConfig{Level: "info"},
		Selectors: extract.DefaultRules(),
	}
}

func newSite(t *testing.T, cookies *atomic.Int32) *httptest.Server {
	t.Helper()
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "" {
			cookies.Add(1)
		}
		switch r.URL.Path {
		case "/page/2/", "/page/1/":
			fmt.Fprintf(w, listingBody, ts.URL)
		case "/tt0068646":
			fmt.Fprint(w, detailBody)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCrawlEndToEndWithMemoryStore(t *testing.T) {
	t.Parallel()

	var cookies atomic.Int32
	site := newSite(t, &cookies)
	cfg := testConfig(site.URL)
	cfg.Archive.Dir = t.TempDir()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotEmpty(t, a.RunID())
	defer func() { require.NoError(t, a.Close(context.Background())) }()

	require.NoError(t, a.Crawl(context.Background()))

	store, ok := a.Store().(*memory.Store)
	require.True(t, ok)
	rec, found := store.Record("tt0068646")
	require.True(t, found)
	require.Equal(t, "tt0068646", rec.Slug)
	bundle, found := store.Bundle("tt0068646")
	require.True(t, found)
	require.Equal(t, "https://dl.example/godfather.mkv", *bundle.Sections[0].DownloadLink)
	require.Equal(t, []int{1, 0}, store.CheckpointHistory())
	require.Equal(t, int32(4), cookies.Load(), "two listings and two detail fetches carry the cookie")

	entries, err := os.ReadDir(cfg.Archive.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	pages, err := filepath.Glob(filepath.Join(cfg.Archive.Dir, "*", "page-*.html"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
}

func TestCrawlCancelledIsCleanStop(t *testing.T) {
	t.Parallel()

	var cookies atomic.Int32
	site := newSite(t, &cookies)
	a, err := New(context.Background(), testConfig(site.URL), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Crawl(ctx))
	require.Empty(t, a.Store().(*memory.Store).CheckpointHistory())
}

func TestCrawlAbortIsAnError(t *testing.T) {
	t.Parallel()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	cfg := testConfig(down.URL)
	cfg.Crawler.MaxConsecutiveFailures = 1
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Error(t, a.Crawl(context.Background()))
}

func TestCrawlWithMetricsServerAndRateLimit(t *testing.T) {
	t.Parallel()

	var cookies atomic.Int32
	site := newSite(t, &cookies)
	cfg := testConfig(site.URL)
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	cfg.HTTP.RequestsPerSecond = 100
	cfg.HTTP.Burst = 2

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Crawl(context.Background()))
}

func TestNewFailsFast(t *testing.T) {
	t.Parallel()

	t.Run("unreachable mongo uri", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig("https://digimoviez.com")
		cfg.Store = config.StoreConfig{
			Driver:   config.DriverMongo,
			Database: "db",
			Timeout:  time.Second,
			Mongo:    config.MongoConfig{URI: "not-a-mongo-uri"},
		}
		_, err := New(context.Background(), cfg, nil)
		require.Error(t, err)
	})

	t.Run("bad postgres dsn", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig("https://digimoviez.com")
		cfg.Store = config.StoreConfig{
			Driver:   config.DriverPostgres,
			Timeout:  time.Second,
			Postgres: config.PostgresConfig{DSN: "postgres://crawler@localhost:notaport/catalog"},
		}
		_, err := New(context.Background(), cfg, nil)
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig("https://digimoviez.com")
		cfg.Store.Driver = "sqlite"
		_, err := New(context.Background(), cfg, nil)
		require.Error(t, err)
	})

	t.Run("invalid selector", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig("https://digimoviez.com")
		cfg.Selectors.Item = "div[["
		_, err := New(context.Background(), cfg, nil)
		require.Error(t, err)
	})
}
