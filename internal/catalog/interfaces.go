package catalog

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher performs a single GET and returns the parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Store persists records, bundles and the crawl checkpoint. Every call is a
// single round trip; implementations never buffer or retry.
type Store interface {
	// UpsertRecord replaces the record stored under rec.IMDBID, inserting it
	// when absent.
	UpsertRecord(ctx context.Context, rec Record) error
	// UpsertBundle replaces the bundle for imdbID. It is a no-op when
	// variants is empty.
	UpsertBundle(ctx context.Context, imdbID, slug string, variants []Variant) error
	// ReadCheckpoint returns the next page to crawl, or the configured
	// initial page when no checkpoint exists yet.
	ReadCheckpoint(ctx context.Context) (int, error)
	// WriteCheckpoint overwrites the checkpoint unconditionally.
	WriteCheckpoint(ctx context.Context, page int) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
