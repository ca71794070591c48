// Package postgres implements catalog.Store on Postgres JSONB tables.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const defaultTimeout = 10 * time.Second

// Schema creates the tables used by Store. Connect applies it on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS movies (
	imdb_id    TEXT PRIMARY KEY,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS download_links (
	imdb_id      TEXT PRIMARY KEY,
	slug         TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	doc          JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS progress (
	id        SMALLINT PRIMARY KEY,
	last_page INTEGER NOT NULL
);`

const (
	upsertRecordSQL = `
INSERT INTO movies (imdb_id, doc) VALUES ($1, $2)
ON CONFLICT (imdb_id) DO UPDATE SET doc = EXCLUDED.doc`

	upsertBundleSQL = `
INSERT INTO download_links (imdb_id, slug, last_updated, doc) VALUES ($1, $2, $3, $4)
ON CONFLICT (imdb_id) DO UPDATE
SET slug = EXCLUDED.slug, last_updated = EXCLUDED.last_updated, doc = EXCLUDED.doc`

	readCheckpointSQL = `SELECT last_page FROM progress WHERE id = $1`

	writeCheckpointSQL = `
INSERT INTO progress (id, last_page) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET last_page = EXCLUDED.last_page`
)

// progressID keys the single checkpoint row.
const progressID = 1

// Config controls the Postgres connection pool.
type Config struct {
	DSN         string
	MaxConns    int32
	Timeout     time.Duration
	InitialPage int
	Source      string
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store writes records, bundles and the checkpoint into Postgres.
type Store struct {
	pool        pool
	timeout     time.Duration
	initialPage int
	source      string
	now         func() time.Time
}

// Connect opens a pool, pings it and applies Schema.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, cfg Config) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		pool:        p,
		timeout:     timeout,
		initialPage: cfg.InitialPage,
		source:      cfg.Source,
		now:         time.Now,
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertRecord replaces the movies row keyed by imdb_id.
func (s *Store) UpsertRecord(ctx context.Context, rec catalog.Record) error {
	if rec.IMDBID == "" {
		return catalog.ErrMissingID
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.IMDBID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, upsertRecordSQL, rec.IMDBID, doc); err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.IMDBID, err)
	}
	return nil
}

// UpsertBundle replaces the download_links row keyed by imdb_id. Nothing is
// sent when variants is empty.
func (s *Store) UpsertBundle(ctx context.Context, imdbID, slug string, variants []catalog.Variant) error {
	if len(variants) == 0 {
		return nil
	}
	if imdbID == "" {
		return catalog.ErrMissingID
	}
	bundle := catalog.NewBundle(imdbID, slug, s.source, variants, s.now())
	doc, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle %s: %w", imdbID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, upsertBundleSQL, imdbID, slug, bundle.LastUpdated, doc); err != nil {
		return fmt.Errorf("upsert bundle %s: %w", imdbID, err)
	}
	return nil
}

// ReadCheckpoint returns the stored page, or the initial page when no row exists.
func (s *Store) ReadCheckpoint(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var page int32
	err := s.pool.QueryRow(ctx, readCheckpointSQL, progressID).Scan(&page)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.initialPage, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return int(page), nil
}

// WriteCheckpoint upserts the single progress row.
func (s *Store) WriteCheckpoint(ctx context.Context, page int) error {
	if page < 0 || page > math.MaxInt32 {
		return fmt.Errorf("checkpoint %d out of range", page)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.pool.Exec(ctx, writeCheckpointSQL, progressID, int32(page)); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", page, err)
	}
	return nil
}

// Ping checks the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
