package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

var errEmptySlug = errors.New("crawler: item has no slug")

// DetailResolver turns an item slug into its download variants.
type DetailResolver struct {
	baseURL   string
	fetcher   catalog.Fetcher
	extractor *extract.Extractor
	metrics   *metrics.Crawl
}

// NewDetailResolver constructs a DetailResolver for detail pages under baseURL.
func NewDetailResolver(baseURL string, fetcher catalog.Fetcher, extractor *extract.Extractor,
	m *metrics.Crawl,
) *DetailResolver {
	return &DetailResolver{
		baseURL:   strings.TrimRight(baseURL, "/"),
		fetcher:   fetcher,
		extractor: extractor,
		metrics:   m,
	}
}

// URL returns the detail page address for slug.
func (r *DetailResolver) URL(slug string) string {
	return r.baseURL + "/" + slug
}

// Resolve fetches the detail page for slug once and extracts its variants.
func (r *DetailResolver) Resolve(ctx context.Context, slug string) ([]catalog.Variant, error) {
	if slug == "" {
		return nil, errEmptySlug
	}
	url := r.URL(slug)
	start := time.Now()
	doc, err := r.fetcher.Fetch(ctx, url)
	r.metrics.ObserveFetch("detail", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", url, err)
	}
	return r.extractor.Detail(doc), nil
}
