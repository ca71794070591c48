// Package memory provides an in-memory catalog.Store for dry runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Store keeps records, bundles and the checkpoint in process memory.
type Store struct {
	mu          sync.RWMutex
	records     map[string]catalog.Record
	bundles     map[string]catalog.Bundle
	checkpoint  *int
	history     []int
	initialPage int
	source      string
	now         func() time.Time
}

// New constructs a Store. initialPage is returned by ReadCheckpoint until a
// checkpoint has been written.
func New(initialPage int, source string) *Store {
	return &Store{
		records:     make(map[string]catalog.Record),
		bundles:     make(map[string]catalog.Bundle),
		initialPage: initialPage,
		source:      source,
		now:         time.Now,
	}
}

// UpsertRecord replaces the record keyed by rec.IMDBID.
func (s *Store) UpsertRecord(_ context.Context, rec catalog.Record) error {
	if rec.IMDBID == "" {
		return catalog.ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.IMDBID] = rec
	return nil
}

// UpsertBundle replaces the bundle keyed by imdbID unless variants is empty.
func (s *Store) UpsertBundle(_ context.Context, imdbID, slug string, variants []catalog.Variant) error {
	if len(variants) == 0 {
		return nil
	}
	if imdbID == "" {
		return catalog.ErrMissingID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sections := append([]catalog.Variant(nil), variants...)
	s.bundles[imdbID] = catalog.NewBundle(imdbID, slug, s.source, sections, s.now())
	return nil
}

// ReadCheckpoint returns the stored page or the initial page.
func (s *Store) ReadCheckpoint(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return s.initialPage, nil
	}
	return *s.checkpoint, nil
}

// WriteCheckpoint overwrites the checkpoint.
func (s *Store) WriteCheckpoint(_ context.Context, page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := page
	s.checkpoint = &p
	s.history = append(s.history, page)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Record returns the stored record for imdbID.
func (s *Store) Record(imdbID string) (catalog.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[imdbID]
	return rec, ok
}

// Bundle returns the stored bundle for imdbID.
func (s *Store) Bundle(imdbID string) (catalog.Bundle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bundles[imdbID]
	return b, ok
}

// RecordCount reports how many records are stored.
func (s *Store) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// CheckpointHistory returns every checkpoint written, in order.
func (s *Store) CheckpointHistory() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int(nil), s.history...)
}
