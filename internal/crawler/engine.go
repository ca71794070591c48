package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// ErrAborted is returned by Run when listing fetches fail too many times in a row.
var ErrAborted = errors.New("crawler: aborted after consecutive listing failures")

const defaultMaxConsecutiveFailures = 3

// State is the engine's position in the crawl lifecycle.
type State int32

// Engine states.
const (
	StateIdle State = iota
	StateRunning
	StatePageAdvance
	StateBackoff
	StateAborted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePageAdvance:
		return "page_advance"
	case StateBackoff:
		return "backoff"
	case StateAborted:
		return "aborted"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config controls paging, pacing and failure handling.
type Config struct {
	BaseURL                string
	PolitenessDelay        time.Duration
	FailureBackoff         time.Duration
	MaxConsecutiveFailures int
	// ItemConcurrency bounds how many items of one page are processed at once.
	ItemConcurrency int
	// StopOnEmptyPage ends the run at the first listing page with no items.
	StopOnEmptyPage bool
}

// Archiver keeps a copy of each fetched listing page.
type Archiver interface {
	ArchiveListing(ctx context.Context, page int, doc *goquery.Document) (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithArchiver snapshots every listing page before extraction.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithMetrics records crawl progress on m.
func WithMetrics(m *metrics.Crawl) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine walks listing pages from the checkpoint down to page 1.
type Engine struct {
	cfg       Config
	fetcher   catalog.Fetcher
	extractor *extract.Extractor
	resolver  *DetailResolver
	store     catalog.Store
	archiver  Archiver
	metrics   *metrics.Crawl
	pauser    pauseController
	logger    *zap.Logger

	state   atomic.Int32
	running atomic.Bool
}

// NewEngine wires an Engine. A zero failure threshold or concurrency falls
// back to 3 and 1.
func NewEngine(
	cfg Config,
	fetcher catalog.Fetcher,
	extractor *extract.Extractor,
	store catalog.Store,
	logger *zap.Logger,
	opts ...Option,
) (*Engine, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.PolitenessDelay = max(cfg.PolitenessDelay, 0)
	cfg.FailureBackoff = max(cfg.FailureBackoff, 0)
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		store:     store,
		pauser:    &timerPauseController{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewDetailResolver(cfg.BaseURL, fetcher, extractor, e.metrics)
	return e, nil
}

// State reports the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// ListingURL returns the address of listing page n.
func (e *Engine) ListingURL(page int) string {
	return fmt.Sprintf("%s/page/%d/", e.cfg.BaseURL, page)
}

// Run crawls from the stored checkpoint down to page 1. It returns nil when
// page 1 has been processed, ErrAborted when the failure threshold is hit, and
// ctx.Err() when cancelled. A cancelled run leaves the checkpoint on the
// interrupted page.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("crawler: engine is already running")
	}
	defer e.running.Store(false)

	e.setState(StateRunning)
	page, err := e.store.ReadCheckpoint(ctx)
	if err != nil {
		e.setState(StateIdle)
		return fmt.Errorf("read checkpoint: %w", err)
	}
	e.logger.Info("crawl starting", zap.Int("page", page))

	failures := 0
	for page > 0 {
		if err := ctx.Err(); err != nil {
			return e.interrupted(page, err)
		}

		doc, err := e.fetchListing(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return e.interrupted(page, ctxErr)
			}
			failures++
			e.metrics.SetConsecutiveFailures(failures)
			e.metrics.ObservePage(metrics.PageFailed)
			e.logger.Warn("listing fetch failed",
				zap.Int("page", page),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
			if failures >= e.cfg.MaxConsecutiveFailures {
				e.setState(StateAborted)
				e.metrics.ObservePage(metrics.PageAborted)
				e.logger.Error("aborting crawl", zap.Int("page", page), zap.Int("consecutive_failures", failures))
				return fmt.Errorf("%w: page %d failed %d times: %w", ErrAborted, page, failures, err)
			}
			e.setState(StateBackoff)
			e.pauser.Pause(ctx, e.cfg.FailureBackoff)
			e.setState(StateRunning)
			continue
		}
		failures = 0
		e.metrics.SetConsecutiveFailures(0)

		stop, err := e.processPage(ctx, page, doc)
		if err != nil {
			return e.interrupted(page, err)
		}
		e.advance(ctx, page)
		if stop {
			e.logger.Info("stopping at empty listing page", zap.Int("page", page))
			break
		}
		page--
		if page > 0 {
			e.pauser.Pause(ctx, e.cfg.PolitenessDelay)
			e.setState(StateRunning)
		}
	}

	e.setState(StateDone)
	e.logger.Info("crawl finished")
	return nil
}

func (e *Engine) interrupted(page int, err error) error {
	e.setState(StateIdle)
	e.logger.Info("crawl interrupted", zap.Int("page", page), zap.Error(err))
	return err
}

func (e *Engine) fetchListing(ctx context.Context, page int) (*goquery.Document, error) {
	url := e.ListingURL(page)
	start := time.Now()
	doc, err := e.fetcher.Fetch(ctx, url)
	e.metrics.ObserveFetch("listing", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", url, err)
	}
	return doc, nil
}

// processPage handles every item on a listing page and returns once all of
// them have finished. stop is true when the page was empty and the engine is
// configured to stop there. A non-nil error means the page was interrupted by
// cancellation and must not be checkpointed.
func (e *Engine) processPage(ctx context.Context, page int, doc *goquery.Document) (stop bool, err error) {
	if e.archiver != nil {
		if path, err := e.archiver.ArchiveListing(ctx, page, doc); err != nil {
			e.logger.Warn("archive listing failed", zap.Int("page", page), zap.Error(err))
		} else {
			e.logger.Debug("archived listing", zap.Int("page", page), zap.String("path", path))
		}
	}

	records := e.extractor.Listing(doc, page)
	if len(records) == 0 {
		e.metrics.ObservePage(metrics.PageEmpty)
		e.logger.Warn("listing page has no items", zap.Int("page", page))
		return e.cfg.StopOnEmptyPage, nil
	}

	// Started items run to completion even if ctx is cancelled mid-page.
	itemCtx := context.WithoutCancel(ctx)
	var skipped atomic.Bool
	p := pool.New().WithMaxGoroutines(e.cfg.ItemConcurrency)
	for _, rec := range records {
		if ctx.Err() != nil {
			skipped.Store(true)
			break
		}
		p.Go(func() {
			if ctx.Err() != nil {
				skipped.Store(true)
				return
			}
			e.processItem(itemCtx, page, rec)
		})
	}
	p.Wait()
	if skipped.Load() {
		return false, ctx.Err()
	}

	e.metrics.ObservePage(metrics.PageOK)
	e.logger.Info("listing page processed", zap.Int("page", page), zap.Int("items", len(records)))
	return false, nil
}

// processItem resolves and persists one record. Failures are logged and
// counted; they never fail the page.
func (e *Engine) processItem(ctx context.Context, page int, rec catalog.Record) {
	logger := e.logger.With(
		zap.Int("page", page),
		zap.String("imdb_id", rec.IMDBID),
		zap.String("slug", rec.Slug),
	)
	if rec.IMDBID == "" {
		e.metrics.ObserveItem(metrics.ItemMissingID)
		logger.Warn("discarding item without imdb id", zap.String("title", rec.Title))
		return
	}

	variants, detailErr := e.resolver.Resolve(ctx, rec.Slug)
	if detailErr != nil {
		logger.Warn("detail resolution failed", zap.Error(detailErr))
		variants = nil
	}

	var errs []error
	if err := e.store.UpsertRecord(ctx, rec); err != nil {
		e.metrics.ObserveStoreError("upsert_record")
		errs = append(errs, err)
	}
	if err := e.store.UpsertBundle(ctx, rec.IMDBID, rec.Slug, variants); err != nil {
		e.metrics.ObserveStoreError("upsert_bundle")
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		e.metrics.ObserveItem(metrics.ItemStoreFailed)
		logger.Error("persist item failed", zap.Error(err))
		return
	}

	if detailErr != nil {
		e.metrics.ObserveItem(metrics.ItemDetailFailed)
		return
	}
	if len(variants) == 0 {
		e.metrics.ObserveItem(metrics.ItemNoVariants)
		logger.Debug("stored record without download variants")
		return
	}
	e.metrics.ObserveItem(metrics.ItemStored)
	logger.Debug("stored record", zap.Int("variants", len(variants)))
}

// advance writes checkpoint page-1. A failed write is logged and the crawl
// continues; the next run repeats idempotent work.
func (e *Engine) advance(ctx context.Context, page int) {
	next := page - 1
	if err := e.store.WriteCheckpoint(context.WithoutCancel(ctx), next); err != nil {
		e.metrics.ObserveStoreError("write_checkpoint")
		e.logger.Error("write checkpoint failed", zap.Int("page", next), zap.Error(err))
	} else {
		e.metrics.SetCheckpoint(next)
	}
	e.setState(StatePageAdvance)
}
