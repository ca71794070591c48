// Package extract turns listing and detail pages into catalog records and
// download variants. Extraction is pure: it never performs I/O and a selector
// that matches nothing yields the field's zero value instead of an error.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Extractor applies a compiled selector table to fetched documents.
type Extractor struct {
	rules   compiledRules
	baseURL string
	source  string
}

// New compiles rules and returns an Extractor. baseURL is trimmed from detail
// links to derive slugs; source tags every record.
func New(rules Rules, baseURL, source string) (*Extractor, error) {
	compiled, err := rules.compile()
	if err != nil {
		return nil, fmt.Errorf("extract rules: %w", err)
	}
	return &Extractor{
		rules:   compiled,
		baseURL: strings.TrimRight(baseURL, "/"),
		source:  source,
	}, nil
}

// Listing returns one record per item node in document order. Records whose
// IMDB id could not be derived are returned with an empty IMDBID; callers
// must discard them before persistence.
func (e *Extractor) Listing(doc *goquery.Document, page int) []catalog.Record {
	if doc == nil {
		return nil
	}
	var records []catalog.Record
	doc.FindMatcher(e.rules.item).Each(func(_ int, item *goquery.Selection) {
		records = append(records, e.listingItem(item, page))
	})
	return records
}

func (e *Extractor) listingItem(item *goquery.Selection, page int) catalog.Record {
	r := e.rules
	slugHref, _ := firstAttr(item, r.slugLink, "href")
	titleHref, _ := firstAttr(item, r.titleLink, "href")
	title, _ := firstText(item, r.titleLink)
	rating, _ := firstText(item, r.imdbRating)
	duration, _ := firstText(item, r.duration)
	genres, _ := allText(item, r.genres)
	director, _ := firstText(item, r.director)
	stars, _ := allText(item, r.stars)
	country, _ := firstText(item, r.country)
	description, _ := firstText(item, r.description)
	metacritic, _ := firstText(item, r.metacritic)
	awards, _ := firstText(item, r.awards)
	image, _ := firstAttr(item, r.image, r.imageAttr)
	trailer, _ := firstAttr(item, r.trailer, r.trailerAttr)

	return catalog.Record{
		IMDBID:          IMDBIDFromHref(titleHref, r.idPrefix),
		Slug:            SlugFromHref(e.baseURL, slugHref),
		Title:           title,
		ContentType:     Classify(title),
		IMDBRating:      rating,
		Duration:        duration,
		Genres:          genres,
		Director:        director,
		Stars:           stars,
		Country:         country,
		Description:     description,
		MetacriticScore: metacritic,
		Awards:          awards,
		ImageURL:        image,
		HasSubtitle:     exists(item, r.subtitle),
		TrailerLink:     trailer,
		PageNumber:      page,
		Source:          e.source,
	}
}

// Detail returns one variant per download node that carries a usable link.
func (e *Extractor) Detail(doc *goquery.Document) []catalog.Variant {
	if doc == nil {
		return nil
	}
	r := e.rules
	var variants []catalog.Variant
	doc.FindMatcher(r.download).Each(func(_ int, section *goquery.Selection) {
		href, _ := firstAttr(section, r.downloadLink, r.linkAttr)
		link := CleanLink(href)
		if link == "" {
			return
		}
		quality, _ := firstText(section, r.quality)
		size, _ := firstText(section, r.size)
		v := catalog.Variant{
			Quality:      quality,
			Size:         size,
			DownloadLink: &link,
		}
		if encoder, ok := firstText(section, r.encoder); ok {
			encoder = strings.TrimSpace(strings.TrimPrefix(encoder, r.encoderPrefix))
			v.Encoder = &encoder
		}
		if r.subType != nil {
			if sub, ok := firstText(section, r.subType); ok {
				v.SubType = &sub
			}
		}
		variants = append(variants, v)
	})
	return variants
}

// Classify derives the content type from title keywords. Movie takes
// precedence over Animation.
func Classify(title string) catalog.ContentType {
	switch {
	case strings.Contains(title, "فیلم"):
		return catalog.ContentMovie
	case strings.Contains(title, "انیمیشن"):
		return catalog.ContentAnimation
	default:
		return catalog.ContentUnknown
	}
}

// CleanLink drops everything from the first '?' on.
func CleanLink(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// IMDBIDFromHref returns the first path segment of href that starts with
// prefix, or "" when none does.
func IMDBIDFromHref(href, prefix string) string {
	if prefix == "" {
		return ""
	}
	for _, segment := range strings.Split(href, "/") {
		if strings.HasPrefix(segment, prefix) {
			return segment
		}
	}
	return ""
}

// SlugFromHref strips the site base address and trailing slashes from a
// detail link.
func SlugFromHref(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if baseURL != "" {
		href = strings.TrimPrefix(href, strings.TrimRight(baseURL, "/")+"/")
	}
	return strings.TrimRight(href, "/")
}
