// Package app builds the crawl's long-lived services from configuration and
// owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/crawler"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
	"github.com/JakeFAU/catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/catalog-crawler/internal/storage/memory"
	mongostore "github.com/JakeFAU/catalog-crawler/internal/storage/mongo"
	"github.com/JakeFAU/catalog-crawler/internal/storage/postgres"
)

const shutdownTimeout = 5 * time.Second

// App holds the store, fetcher and metrics shared by the CLI commands.
type App struct {
	cfg       config.Config
	runID     string
	logger    *zap.Logger
	store     catalog.Store
	fetcher   catalog.Fetcher
	extractor *extract.Extractor
	registry  *prometheus.Registry
	metrics   *metrics.Crawl
	archive   *local.Archive
}

// New connects the configured store and builds the crawl pipeline. It fails
// fast when the store is unreachable or the selector table is invalid.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	extractor, err := extract.New(cfg.Selectors, cfg.Site.BaseURL, cfg.Site.Source)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return nil, err
	}

	var archive *local.Archive
	if cfg.Archive.Dir != "" {
		archive, err = local.New(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	if cfg.Cookie.Name == "" {
		logger.Warn("no session cookie configured; requests are sent anonymously")
	}
	var fetcher catalog.Fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		Cookie: collyfetcher.Cookie{
			Name:    cfg.Cookie.Name,
			Value:   cfg.Cookie.Value,
			Domain:  cfg.Cookie.Domain,
			Expires: cfg.Cookie.Expires,
		},
	})
	if cfg.HTTP.RequestsPerSecond > 0 {
		limiter := ratelimit.New(ratelimit.Config{RPS: cfg.HTTP.RequestsPerSecond, Burst: cfg.HTTP.Burst}, m)
		fetcher = ratelimit.Wrap(fetcher, limiter)
	}

	return &App{
		cfg:       cfg,
		runID:     runID,
		logger:    logger,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		registry:  registry,
		metrics:   m,
		archive:   archive,
	}, nil
}

// OpenStore connects the store selected by cfg.Store.Driver and pings it.
func OpenStore(ctx context.Context, cfg config.Config) (catalog.Store, error) {
	var (
		store catalog.Store
		err   error
	)
	switch cfg.Store.Driver {
	case config.DriverMongo:
		store, err = mongostore.Connect(ctx, mongostore.Config{
			URI:         cfg.Store.Mongo.URI,
			Database:    cfg.Store.Database,
			Timeout:     cfg.Store.Timeout,
			InitialPage: cfg.Site.InitialPage,
			Source:      cfg.Site.Source,
		})
	case config.DriverPostgres:
		store, err = postgres.Connect(ctx, postgres.Config{
			DSN:         cfg.Store.Postgres.DSN,
			MaxConns:    cfg.Store.Postgres.MaxConns,
			Timeout:     cfg.Store.Timeout,
			InitialPage: cfg.Site.InitialPage,
			Source:      cfg.Site.Source,
		})
	case config.DriverMemory:
		store = memory.New(cfg.Site.InitialPage, cfg.Site.Source)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, fmt.Errorf("ping %s store: %w", cfg.Store.Driver, err)
	}
	return store, nil
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the connected store.
func (a *App) Store() catalog.Store { return a.store }

// RunID identifies this process in logs.
func (a *App) RunID() string { return a.runID }

// Engine builds a crawl engine over the app's services.
func (a *App) Engine() (*crawler.Engine, error) {
	opts := []crawler.Option{crawler.WithMetrics(a.metrics)}
	if a.archive != nil {
		opts = append(opts, crawler.WithArchiver(a.archive))
	}
	return crawler.NewEngine(crawler.Config{
		BaseURL:                a.cfg.Site.BaseURL,
		PolitenessDelay:        a.cfg.Crawler.PolitenessDelay,
		FailureBackoff:         a.cfg.Crawler.FailureBackoff,
		MaxConsecutiveFailures: a.cfg.Crawler.MaxConsecutiveFailures,
		ItemConcurrency:        a.cfg.Crawler.ItemConcurrency,
		StopOnEmptyPage:        a.cfg.Crawler.StopOnEmptyPage,
	}, a.fetcher, a.extractor, a.store, a.logger.Named("engine"), opts...)
}

// Crawl runs the engine to completion, serving metrics while it runs when
// metrics.listen_addr is set. Cancellation is a clean stop and returns nil.
func (a *App) Crawl(ctx context.Context) error {
	engine, err := a.Engine()
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		srv := metrics.NewServer(addr, metrics.NewRouter(a.metrics, a.registry, a.store.Ping), a.logger.Named("metrics"))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	err = engine.Run(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		a.logger.Info("crawl stopped by signal")
		return nil
	default:
		return err
	}
}

// Close releases the store connection.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down")
	if err := a.store.Close(ctx); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
