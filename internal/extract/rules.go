package extract

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Rules is the selector table for the listing and detail templates. Listing
// field selectors are evaluated relative to each matched Item node, detail
// field selectors relative to each matched Download node.
type Rules struct {
	Item        string `mapstructure:"item"`
	SlugLink    string `mapstructure:"slug_link"`
	TitleLink   string `mapstructure:"title_link"`
	IMDBRating  string `mapstructure:"imdb_rating"`
	Duration    string `mapstructure:"duration"`
	Genres      string `mapstructure:"genres"`
	Director    string `mapstructure:"director"`
	Stars       string `mapstructure:"stars"`
	Country     string `mapstructure:"country"`
	Description string `mapstructure:"description"`
	Metacritic  string `mapstructure:"metacritic"`
	Awards      string `mapstructure:"awards"`
	Image       string `mapstructure:"image"`
	Subtitle    string `mapstructure:"subtitle"`
	Trailer     string `mapstructure:"trailer"`

	Download     string `mapstructure:"download"`
	Quality      string `mapstructure:"quality"`
	Size         string `mapstructure:"size"`
	Encoder      string `mapstructure:"encoder"`
	SubType      string `mapstructure:"sub_type"`
	DownloadLink string `mapstructure:"download_link"`

	// ImageAttr, TrailerAttr and LinkAttr name the attributes read from the
	// Image, Trailer and DownloadLink nodes.
	ImageAttr   string `mapstructure:"image_attr"`
	TrailerAttr string `mapstructure:"trailer_attr"`
	LinkAttr    string `mapstructure:"link_attr"`
	// IDPrefix marks the detail-link path segment that carries the IMDB id.
	IDPrefix string `mapstructure:"id_prefix"`
	// EncoderPrefix is stripped from the encoder label.
	EncoderPrefix string `mapstructure:"encoder_prefix"`
}

// DefaultRules returns the selector table for the listing and detail pages
// of the target site.
func DefaultRules() Rules {
	return Rules{
		Item:        ".item_def_loop",
		SlugLink:    ".title_h h2.lato_font a",
		TitleLink:   "h2.lato_font a",
		IMDBRating:  ".imdb_rate_holder .rate_num strong",
		Duration:    ".meta_item ul li:nth-child(2) .res_item",
		Genres:      "li:nth-child(3) .res_item a",
		Director:    "li:nth-child(4) .res_item a",
		Stars:       "li:nth-child(5) .res_item a",
		Country:     "li:nth-child(6) .res_item a",
		Description: ".plot_text",
		Metacritic:  ".greenlab",
		Awards:      ".award_item .text_hover",
		Image:       ".cover img",
		Subtitle:    ".subtitles_item",
		Trailer:     ".show_trailer",

		Download:     ".dllink_holder_ham .body_dllink_movies .itemdl",
		Quality:      ".side_left .head_left_side h3",
		Size:         ".item_meta.size_dl",
		Encoder:      ".item_meta.encoder_dl",
		DownloadLink: ".btn_row.btn_dl",

		ImageAttr:     "src",
		TrailerAttr:   "data-trailerlink",
		LinkAttr:      "href",
		IDPrefix:      "tt",
		EncoderPrefix: "Encoder : ",
	}
}

type compiledRules struct {
	item, slugLink, titleLink, imdbRating, duration  cascadia.Selector
	genres, director, stars, country, description    cascadia.Selector
	metacritic, awards, image, subtitle, trailer     cascadia.Selector
	download, quality, size, encoder, downloadLink   cascadia.Selector
	subType                                          cascadia.Selector // nil when unset
	imageAttr, trailerAttr, linkAttr                 string
	idPrefix, encoderPrefix                          string
}

func (r Rules) compile() (compiledRules, error) {
	c := compiledRules{
		imageAttr:     r.ImageAttr,
		trailerAttr:   r.TrailerAttr,
		linkAttr:      r.LinkAttr,
		idPrefix:      r.IDPrefix,
		encoderPrefix: r.EncoderPrefix,
	}
	required := []struct {
		name string
		src  string
		dst  *cascadia.Selector
	}{
		{"item", r.Item, &c.item},
		{"slug_link", r.SlugLink, &c.slugLink},
		{"title_link", r.TitleLink, &c.titleLink},
		{"imdb_rating", r.IMDBRating, &c.imdbRating},
		{"duration", r.Duration, &c.duration},
		{"genres", r.Genres, &c.genres},
		{"director", r.Director, &c.director},
		{"stars", r.Stars, &c.stars},
		{"country", r.Country, &c.country},
		{"description", r.Description, &c.description},
		{"metacritic", r.Metacritic, &c.metacritic},
		{"awards", r.Awards, &c.awards},
		{"image", r.Image, &c.image},
		{"subtitle", r.Subtitle, &c.subtitle},
		{"trailer", r.Trailer, &c.trailer},
		{"download", r.Download, &c.download},
		{"quality", r.Quality, &c.quality},
		{"size", r.Size, &c.size},
		{"encoder", r.Encoder, &c.encoder},
		{"download_link", r.DownloadLink, &c.downloadLink},
	}
	for _, sel := range required {
		if sel.src == "" {
			return compiledRules{}, fmt.Errorf("selector %s is empty", sel.name)
		}
		compiled, err := cascadia.Compile(sel.src)
		if err != nil {
			return compiledRules{}, fmt.Errorf("compile selector %s %q: %w", sel.name, sel.src, err)
		}
		*sel.dst = compiled
	}
	if r.SubType != "" {
		compiled, err := cascadia.Compile(r.SubType)
		if err != nil {
			return compiledRules{}, fmt.Errorf("compile selector sub_type %q: %w", r.SubType, err)
		}
		c.subType = compiled
	}
	if c.linkAttr == "" {
		return compiledRules{}, fmt.Errorf("link_attr is empty")
	}
	return c, nil
}
