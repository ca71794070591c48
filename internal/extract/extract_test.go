package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const listingHTML = `<html><body>
<div class="item_def_loop">
  <div class="title_h"><h2 class="lato_font"><a href="https://digimoviez.com/tt0111161/">دانلود فیلم The Shawshank Redemption</a></h2></div>
  <div class="imdb_rate_holder"><span class="rate_num"><strong>9.3</strong></span></div>
  <div class="meta_item"><ul>
    <li><span class="res_item">ignored</span></li>
    <li><span class="res_item">142 دقیقه</span></li>
    <li><span class="res_item"><a>Drama</a><a>Crime</a></span></li>
    <li><span class="res_item"><a>Frank Darabont</a></span></li>
    <li><span class="res_item"><a>Tim Robbins</a><a>Morgan Freeman</a></span></li>
    <li><span class="res_item"><a>USA</a></span></li>
  </ul></div>
  <div class="plot_text"> Two imprisoned men bond. </div>
  <span class="greenlab">82</span>
  <div class="award_item"><span class="text_hover">Nominated for 7 Oscars</span></div>
  <div class="cover"><img src="https://cdn.example/shawshank.jpg"></div>
  <div class="subtitles_item">زیرنویس</div>
  <a class="show_trailer" data-trailerlink="https://cdn.example/trailer.mp4">trailer</a>
</div>
<div class="item_def_loop">
  <div class="title_h"><h2 class="lato_font"><a href="https://digimoviez.com/no-imdb-here/">دانلود انیمیشن Coco</a></h2></div>
</div>
</body></html>`

const detailHTML = `<html><body><div class="dllink_holder_ham"><div class="body_dllink_movies">
  <div class="itemdl">
    <div class="side_left"><div class="head_left_side"><h3> 1080p BluRay </h3></div></div>
    <span class="item_meta encoder_dl">Encoder : PSA</span>
    <span class="item_meta size_dl"> 2.1 GB </span>
    <a class="btn_row btn_dl" href="https://dl.example/movie.1080p.mkv?md5=abc&expires=99">download</a>
  </div>
  <div class="itemdl">
    <div class="side_left"><div class="head_left_side"><h3>720p</h3></div></div>
    <span class="item_meta size_dl">900 MB</span>
    <a class="btn_row btn_dl" href="?md5=only-query">broken</a>
  </div>
  <div class="itemdl">
    <div class="side_left"><div class="head_left_side"><h3>480p</h3></div></div>
    <span class="item_meta size_dl">400 MB</span>
    <a class="btn_row btn_dl" href="https://dl.example/movie.480p.mkv">download</a>
  </div>
</div></div></body></html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := New(DefaultRules(), "https://digimoviez.com", "DigiMovie")
	require.NoError(t, err)
	return ex
}

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestListingExtractsFullRecord(t *testing.T) {
	t.Parallel()

	records := newTestExtractor(t).Listing(mustDoc(t, listingHTML), 42)
	require.Len(t, records, 2)

	rec := records[0]
	require.Equal(t, "tt0111161", rec.IMDBID)
	require.Equal(t, "tt0111161", rec.Slug)
	require.Equal(t, "دانلود فیلم The Shawshank Redemption", rec.Title)
	require.Equal(t, catalog.ContentMovie, rec.ContentType)
	require.Equal(t, "9.3", rec.IMDBRating)
	require.Equal(t, "142 دقیقه", rec.Duration)
	require.Equal(t, []string{"Drama", "Crime"}, rec.Genres)
	require.Equal(t, "Frank Darabont", rec.Director)
	require.Equal(t, []string{"Tim Robbins", "Morgan Freeman"}, rec.Stars)
	require.Equal(t, "USA", rec.Country)
	require.Equal(t, "Two imprisoned men bond.", rec.Description)
	require.Equal(t, "82", rec.MetacriticScore)
	require.Equal(t, "Nominated for 7 Oscars", rec.Awards)
	require.Equal(t, "https://cdn.example/shawshank.jpg", rec.ImageURL)
	require.True(t, rec.HasSubtitle)
	require.Equal(t, "https://cdn.example/trailer.mp4", rec.TrailerLink)
	require.Equal(t, 42, rec.PageNumber)
	require.Equal(t, "DigiMovie", rec.Source)
}

func TestListingDegradesMissingFieldsToZeroValues(t *testing.T) {
	t.Parallel()

	records := newTestExtractor(t).Listing(mustDoc(t, listingHTML), 7)
	require.Len(t, records, 2)

	rec := records[1]
	require.Empty(t, rec.IMDBID, "no tt segment means no id")
	require.Equal(t, "no-imdb-here", rec.Slug)
	require.Equal(t, catalog.ContentAnimation, rec.ContentType)
	require.Empty(t, rec.IMDBRating)
	require.Empty(t, rec.Genres)
	require.NotNil(t, rec.Genres)
	require.False(t, rec.HasSubtitle)
	require.Empty(t, rec.TrailerLink)
}

func TestListingEmptyDocument(t *testing.T) {
	t.Parallel()

	ex := newTestExtractor(t)
	require.Empty(t, ex.Listing(mustDoc(t, "<html><body></body></html>"), 1))
	require.Nil(t, ex.Listing(nil, 1))
}

func TestDetailExtractsVariantsAndDropsEmptyLinks(t *testing.T) {
	t.Parallel()

	variants := newTestExtractor(t).Detail(mustDoc(t, detailHTML))
	require.Len(t, variants, 2)

	first := variants[0]
	require.Equal(t, "1080p BluRay", first.Quality)
	require.Equal(t, "2.1 GB", first.Size)
	require.NotNil(t, first.Encoder)
	require.Equal(t, "PSA", *first.Encoder)
	require.NotNil(t, first.DownloadLink)
	require.Equal(t, "https://dl.example/movie.1080p.mkv", *first.DownloadLink)
	require.Nil(t, first.SubType)

	second := variants[1]
	require.Equal(t, "480p", second.Quality)
	require.Nil(t, second.Encoder, "missing encoder node stays absent")
	require.Equal(t, "https://dl.example/movie.480p.mkv", *second.DownloadLink)
}

func TestDetailWithSubTypeSelector(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.SubType = ".item_meta.sub_dl"
	ex, err := New(rules, "https://digimoviez.com", "DigiMovie")
	require.NoError(t, err)

	body := `<div class="dllink_holder_ham"><div class="body_dllink_movies"><div class="itemdl">
<span class="item_meta sub_dl">Softsub</span>
<a class="btn_row btn_dl" href="https://dl.example/a.mkv">x</a></div></div></div>`
	variants := ex.Detail(mustDoc(t, body))
	require.Len(t, variants, 1)
	require.NotNil(t, variants[0].SubType)
	require.Equal(t, "Softsub", *variants[0].SubType)
}

func TestCleanLink(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://x/file.mp4", CleanLink("https://x/file.mp4?sig=abc&exp=99"))
	require.Equal(t, "https://x/file.mp4", CleanLink("https://x/file.mp4"))
	require.Equal(t, "", CleanLink("?only=query"))
	require.Equal(t, "", CleanLink(""))
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, catalog.ContentMovie, Classify("دانلود فیلم Inception"))
	require.Equal(t, catalog.ContentAnimation, Classify("دانلود انیمیشن Up"))
	require.Equal(t, catalog.ContentUnknown, Classify("دانلود سریال Dark"))
	require.Equal(t, catalog.ContentMovie, Classify("فیلم انیمیشن"), "movie keyword is checked first")
}

func TestIMDBIDFromHref(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tt1375666", IMDBIDFromHref("https://digimoviez.com/tt1375666/", "tt"))
	require.Equal(t, "", IMDBIDFromHref("https://digimoviez.com/inception/", "tt"))
	require.Equal(t, "", IMDBIDFromHref("", "tt"))
	require.Equal(t, "", IMDBIDFromHref("https://digimoviez.com/tt1/", ""))
}

func TestSlugFromHref(t *testing.T) {
	t.Parallel()

	require.Equal(t, "inception-2010", SlugFromHref("https://digimoviez.com", "https://digimoviez.com/inception-2010/"))
	require.Equal(t, "inception-2010", SlugFromHref("https://digimoviez.com/", "https://digimoviez.com/inception-2010"))
	require.Equal(t, "", SlugFromHref("https://digimoviez.com", ""))
}

func TestNewRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	rules := DefaultRules()
	rules.Item = "div[["
	_, err := New(rules, "", "")
	require.Error(t, err)

	rules = DefaultRules()
	rules.Quality = ""
	_, err = New(rules, "", "")
	require.ErrorContains(t, err, "quality")
}
