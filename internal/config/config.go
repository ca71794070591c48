// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/catalog-crawler/internal/extract"
	"github.com/JakeFAU/catalog-crawler/internal/storage/local"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Store     StoreConfig   `mapstructure:"store"`
	Cookie    CookieConfig  `mapstructure:"cookie"`
	Site      SiteConfig    `mapstructure:"site"`
	Crawler   CrawlerConfig `mapstructure:"crawler"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Logging   LoggingConfig `mapstructure:"logging"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	Archive   local.Config  `mapstructure:"archive"`
	Selectors extract.Rules `mapstructure:"selectors"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Database string         `mapstructure:"database"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MongoConfig holds the MongoDB connection string.
type MongoConfig struct {
	URI string `mapstructure:"uri"`
}

// PostgresConfig holds the Postgres pool settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// CookieConfig is the session cookie sent with every request.
type CookieConfig struct {
	Name    string `mapstructure:"name"`
	Value   string `mapstructure:"value"`
	Domain  string `mapstructure:"domain"`
	Expires string `mapstructure:"expires"`
}

// SiteConfig identifies the crawled site.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Source      string `mapstructure:"source"`
	InitialPage int    `mapstructure:"initial_page"`
}

// CrawlerConfig governs pacing and failure handling.
type CrawlerConfig struct {
	PolitenessDelay        time.Duration `mapstructure:"politeness_delay"`
	FailureBackoff         time.Duration `mapstructure:"failure_backoff"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	ItemConcurrency        int           `mapstructure:"item_concurrency"`
	StopOnEmptyPage        bool          `mapstructure:"stop_on_empty_page"`
}

// HTTPConfig configures the page fetcher. RequestsPerSecond <= 0 leaves
// fetches unthrottled beyond the politeness delay.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features and the optional log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// legacyEnv maps keys to the unprefixed environment variables earlier
// deployments used. The prefixed CRAWLER_* name still wins when both are set.
var legacyEnv = map[string]string{
	"store.mongo.uri": "MONGO_URI",
	"store.database":  "DB_NAME",
	"cookie.name":     "DM_COOKIE_NAME",
	"cookie.value":    "DM_COOKIE_VALUE",
	"cookie.expires":  "DM_COOKIE_EXPIRES",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "CRAWLER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.database", "digimoviez_fetcher")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("cookie.name", "")
	v.SetDefault("cookie.value", "")
	v.SetDefault("cookie.domain", "digimoviez.com")
	v.SetDefault("cookie.expires", "2028-12-12T06:11:29.470Z")
	v.SetDefault("site.base_url", "https://digimoviez.com")
	v.SetDefault("site.source", "DigiMovie")
	v.SetDefault("site.initial_page", 889)
	v.SetDefault("crawler.politeness_delay", time.Second)
	v.SetDefault("crawler.failure_backoff", 5*time.Second)
	v.SetDefault("crawler.max_consecutive_failures", 3)
	v.SetDefault("crawler.item_concurrency", 1)
	v.SetDefault("crawler.stop_on_empty_page", false)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)")
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("archive.dir", "")
	setSelectorDefaults(v, extract.DefaultRules())
}

func setSelectorDefaults(v *viper.Viper, r extract.Rules) {
	for key, value := range map[string]string{
		"item":           r.Item,
		"slug_link":      r.SlugLink,
		"title_link":     r.TitleLink,
		"imdb_rating":    r.IMDBRating,
		"duration":       r.Duration,
		"genres":         r.Genres,
		"director":       r.Director,
		"stars":          r.Stars,
		"country":        r.Country,
		"description":    r.Description,
		"metacritic":     r.Metacritic,
		"awards":         r.Awards,
		"image":          r.Image,
		"subtitle":       r.Subtitle,
		"trailer":        r.Trailer,
		"download":       r.Download,
		"quality":        r.Quality,
		"size":           r.Size,
		"encoder":        r.Encoder,
		"sub_type":       r.SubType,
		"download_link":  r.DownloadLink,
		"image_attr":     r.ImageAttr,
		"trailer_attr":   r.TrailerAttr,
		"link_attr":      r.LinkAttr,
		"id_prefix":      r.IDPrefix,
		"encoder_prefix": r.EncoderPrefix,
	} {
		v.SetDefault("selectors."+key, value)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for the mongo driver")
		}
		if c.Store.Database == "" {
			return fmt.Errorf("store.database is required for the mongo driver")
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of %s, %s, %s; got %q",
			DriverMongo, DriverPostgres, DriverMemory, c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store.timeout must be > 0")
	}
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute http(s) url, got %q", c.Site.BaseURL)
	}
	if c.Site.InitialPage < 0 {
		return fmt.Errorf("site.initial_page must be >= 0")
	}
	if c.Crawler.PolitenessDelay < 0 || c.Crawler.FailureBackoff < 0 {
		return fmt.Errorf("crawler delays must be >= 0")
	}
	if c.Crawler.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("crawler.max_consecutive_failures must be > 0")
	}
	if c.Crawler.ItemConcurrency <= 0 {
		return fmt.Errorf("crawler.item_concurrency must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if (c.Cookie.Name == "") != (c.Cookie.Value == "") {
		return fmt.Errorf("cookie.name and cookie.value must be set together")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
