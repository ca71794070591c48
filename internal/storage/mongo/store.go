// Package mongostore implements catalog.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Collection names.
const (
	RecordsCollection  = "movies"
	BundlesCollection  = "download_links"
	ProgressCollection = "progress"
)

const defaultTimeout = 10 * time.Second

// Config controls the MongoDB connection.
type Config struct {
	URI         string
	Database    string
	Timeout     time.Duration
	InitialPage int
	Source      string
}

type collection interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{},
		opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{},
		opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
}

// Store persists records, bundles and the checkpoint in three collections.
type Store struct {
	client      *mongo.Client
	records     collection
	bundles     collection
	progress    collection
	timeout     time.Duration
	initialPage int
	source      string
	now         func() time.Time
}

type progressDoc struct {
	LastPage *int64 `bson:"last_page"`
}

// Connect dials MongoDB, pings the primary and ensures the unique indexes.
// An unreachable server is reported here rather than on the first write.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("store.mongo.uri is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("store.database is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(timeout)
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	recs := db.Collection(RecordsCollection)
	bundles := db.Collection(BundlesCollection)
	if err := ensureIndexes(connectCtx, recs, bundles); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := newStore(recs, bundles, db.Collection(ProgressCollection), cfg)
	s.client = client
	return s, nil
}

func newStore(records, bundles, progress collection, cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{
		records:     records,
		bundles:     bundles,
		progress:    progress,
		timeout:     timeout,
		initialPage: cfg.InitialPage,
		source:      cfg.Source,
		now:         time.Now,
	}
}

func ensureIndexes(ctx context.Context, colls ...*mongo.Collection) error {
	for _, c := range colls {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: "imdb_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("imdb_id_unique"),
		}
		if _, err := c.Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("create index on %s: %w", c.Name(), err)
		}
	}
	return nil
}

// UpsertRecord replaces the record document keyed by imdb_id, inserting it when missing.
func (s *Store) UpsertRecord(ctx context.Context, rec catalog.Record) error {
	if rec.IMDBID == "" {
		return catalog.ErrMissingID
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.D{{Key: "imdb_id", Value: rec.IMDBID}}
	if _, err := s.records.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.IMDBID, err)
	}
	return nil
}

// UpsertBundle replaces the bundle document keyed by imdb_id. Nothing is sent
// when variants is empty.
func (s *Store) UpsertBundle(ctx context.Context, imdbID, slug string, variants []catalog.Variant) error {
	if len(variants) == 0 {
		return nil
	}
	if imdbID == "" {
		return catalog.ErrMissingID
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	bundle := catalog.NewBundle(imdbID, slug, s.source, variants, s.now())
	filter := bson.D{{Key: "imdb_id", Value: imdbID}}
	if _, err := s.bundles.ReplaceOne(ctx, filter, bundle, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("upsert bundle %s: %w", imdbID, err)
	}
	return nil
}

// ReadCheckpoint returns last_page from the progress document, or the initial
// page when no document exists yet.
func (s *Store) ReadCheckpoint(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc progressDoc
	err := s.progress.FindOne(ctx, bson.D{}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s.initialPage, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	if doc.LastPage == nil {
		return s.initialPage, nil
	}
	return int(*doc.LastPage), nil
}

// WriteCheckpoint upserts the single progress document.
func (s *Store) WriteCheckpoint(ctx context.Context, page int) error {
	if page < 0 || page > math.MaxInt32 {
		return fmt.Errorf("checkpoint %d out of range", page)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "last_page", Value: int32(page)}}}}
	if _, err := s.progress.UpdateOne(ctx, bson.D{}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", page, err)
	}
	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
