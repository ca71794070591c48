// Package metrics exposes Prometheus collectors for the catalog crawl.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Page results.
const (
	PageOK      = "ok"
	PageEmpty   = "empty"
	PageFailed  = "failed"
	PageAborted = "aborted"
)

// Item results.
const (
	ItemStored       = "stored"
	ItemMissingID    = "missing_id"
	ItemNoVariants   = "no_variants"
	ItemDetailFailed = "detail_failed"
	ItemStoreFailed  = "store_failed"
)

// Crawl holds the collectors updated by the crawl engine. A nil *Crawl is
// valid and records nothing.
type Crawl struct {
	pages               *prometheus.CounterVec
	items               *prometheus.CounterVec
	fetchErrors         *prometheus.CounterVec
	storeErrors         *prometheus.CounterVec
	fetchDuration       *prometheus.HistogramVec
	rateLimitDelay      *prometheus.HistogramVec
	checkpoint          prometheus.Gauge
	consecutiveFailures prometheus.Gauge

	// HTTP server collectors, used by Middleware.
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors against reg.
func New(reg prometheus.Registerer) (*Crawl, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Crawl{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawler_pages_total",
			Help: "Listing pages processed, partitioned by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawler_items_total",
			Help: "Listing items processed, partitioned by result.",
		}, []string{"result"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawler_fetch_errors_total",
			Help: "Failed fetches, partitioned by page kind.",
		}, []string{"kind"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawler_store_errors_total",
			Help: "Failed store operations, partitioned by operation.",
		}, []string{"op"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_crawler_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by page kind.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"kind"}),
		rateLimitDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_crawler_rate_limit_delay_seconds",
			Help:    "Time requests spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"host"}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_crawler_checkpoint_page",
			Help: "Last checkpoint written.",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_crawler_consecutive_failures",
			Help: "Consecutive listing fetch failures on the current page.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	for _, collector := range []prometheus.Collector{
		m.pages,
		m.items,
		m.fetchErrors,
		m.storeErrors,
		m.fetchDuration,
		m.rateLimitDelay,
		m.checkpoint,
		m.consecutiveFailures,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register crawl collector: %w", err)
		}
	}
	return m, nil
}

// ObservePage counts a processed listing page.
func (m *Crawl) ObservePage(result string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(result).Inc()
}

// ObserveItem counts a processed listing item.
func (m *Crawl) ObserveItem(result string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(result).Inc()
}

// ObserveFetch records a fetch of the given kind ("listing" or "detail").
func (m *Crawl) ObserveFetch(kind string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveRateLimitDelay records how long a request to host waited for a token.
func (m *Crawl) ObserveRateLimitDelay(host string, d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelay.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveStoreError counts a failed store operation.
func (m *Crawl) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// SetCheckpoint records the last checkpoint written.
func (m *Crawl) SetCheckpoint(page int) {
	if m == nil {
		return
	}
	m.checkpoint.Set(float64(page))
}

// SetConsecutiveFailures records the current failure streak.
func (m *Crawl) SetConsecutiveFailures(n int) {
	if m == nil {
		return
	}
	m.consecutiveFailures.Set(float64(n))
}
