// Package catalog defines the records produced by the crawl pipeline and the
// interfaces its stages depend on.
package catalog

import (
	"errors"
	"time"
)

// ErrMissingID is returned when a record or bundle without an IMDB id reaches
// the store. Such records are extraction failures and must not be persisted.
var ErrMissingID = errors.New("catalog: imdb id is required")

// ContentType classifies a catalog item by its title text.
type ContentType string

// Content types assigned during listing extraction.
const (
	ContentMovie     ContentType = "Movie"
	ContentAnimation ContentType = "Animation"
	ContentUnknown   ContentType = "Unknown"
)

// Record is one crawled catalog item. It is rebuilt on every crawl of its
// listing page and upserted by IMDBID (last write wins).
type Record struct {
	IMDBID          string      `bson:"imdb_id" json:"imdb_id"`
	Slug            string      `bson:"slug" json:"slug"`
	Title           string      `bson:"title" json:"title"`
	ContentType     ContentType `bson:"content_type" json:"content_type"`
	IMDBRating      string      `bson:"imdb_rating" json:"imdb_rating"`
	Duration        string      `bson:"duration" json:"duration"`
	Genres          []string    `bson:"genres" json:"genres"`
	Director        string      `bson:"director" json:"director"`
	Stars           []string    `bson:"stars" json:"stars"`
	Country         string      `bson:"country" json:"country"`
	Description     string      `bson:"description" json:"description"`
	MetacriticScore string      `bson:"metacritic_score" json:"metacritic_score"`
	Awards          string      `bson:"awards" json:"awards"`
	ImageURL        string      `bson:"image_url" json:"image_url"`
	HasSubtitle     bool        `bson:"has_subtitle" json:"has_subtitle"`
	TrailerLink     string      `bson:"trailer_link" json:"trailer_link"`
	PageNumber      int         `bson:"page_number" json:"page_number"`
	Source          string      `bson:"source" json:"source"`
}

// Variant is one downloadable rendition listed on a detail page.
type Variant struct {
	Quality      string  `bson:"quality" json:"quality"`
	Size         string  `bson:"size" json:"size"`
	SubType      *string `bson:"sub_type" json:"sub_type"`
	Encoder      *string `bson:"encoder" json:"encoder"`
	DownloadLink *string `bson:"download_link" json:"download_link"`
}

// Bundle is the full set of variants for one item, replaced as a whole on
// every write.
type Bundle struct {
	IMDBID      string    `bson:"imdb_id" json:"imdb_id"`
	Slug        string    `bson:"slug" json:"slug"`
	LastUpdated time.Time `bson:"last_updated" json:"last_updated"`
	Sections    []Variant `bson:"sections" json:"sections"`
	Source      string    `bson:"source" json:"source"`
}

// NewBundle assembles a bundle stamped with the given time.
func NewBundle(imdbID, slug, source string, variants []Variant, now time.Time) Bundle {
	return Bundle{
		IMDBID:      imdbID,
		Slug:        slug,
		LastUpdated: now.UTC(),
		Sections:    variants,
		Source:      source,
	}
}
