// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// Report archive backends.
const (
	ReportStoreNone  = "none"
	ReportStoreLocal = "local"
	ReportStoreGCS   = "gcs"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig        `mapstructure:"site"`
	Crawler   CrawlerConfig     `mapstructure:"crawler"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Selectors catalog.Selectors `mapstructure:"selectors"`
	DB        DBConfig          `mapstructure:"db"`
	Output    OutputConfig      `mapstructure:"output"`
	Report    ReportConfig      `mapstructure:"report"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// SiteConfig identifies the catalog being crawled.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Name is stored on every product row. Defaults to the base URL host.
	Name string `mapstructure:"name"`
}

// CrawlerConfig governs scheduling and politeness.
type CrawlerConfig struct {
	MaxConcurrentCategories int           `mapstructure:"max_concurrent_categories"`
	PageDelay               time.Duration `mapstructure:"page_delay"`
	MaxPagesPerCategory     int           `mapstructure:"max_pages_per_category"`
	UserAgent               string        `mapstructure:"user_agent"`
	RespectRobots           bool          `mapstructure:"respect_robots"`
	// RequestsPerSecond caps fetches per host across all categories; 0 disables it.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the product table. An empty DSN disables Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxConns     int32  `mapstructure:"max_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
	ChunkSize    int    `mapstructure:"chunk_size"`
}

// OutputConfig controls the CSV snapshot. An empty path disables it.
type OutputConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

// ReportConfig selects where the JSON run report is archived.
type ReportConfig struct {
	Store     string `mapstructure:"store"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds the topic the run report is announced on.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the optional /metrics and /healthz listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Environment variables use the
// CATALOG prefix, e.g. CATALOG_SITE_BASE_URL.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if cfg.Site.Name == "" {
		if u, err := url.Parse(cfg.Site.BaseURL); err == nil {
			cfg.Site.Name = u.Hostname()
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default so AutomaticEnv can override it.
	v.SetDefault("site.base_url", "")
	v.SetDefault("site.name", "")
	v.SetDefault("crawler.max_concurrent_categories", 10)
	v.SetDefault("crawler.page_delay", "1.5s")
	v.SetDefault("crawler.max_pages_per_category", 500)
	v.SetDefault("crawler.user_agent", "catalog-crawler/1.0")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("http.timeout_seconds", 15)

	sel := catalog.DefaultSelectors()
	v.SetDefault("selectors.nav_container", sel.NavContainer)
	v.SetDefault("selectors.menu_column", sel.MenuColumn)
	v.SetDefault("selectors.leaf_links", sel.LeafLinks)
	v.SetDefault("selectors.index_links", sel.IndexLinks)
	v.SetDefault("selectors.heading", sel.Heading)
	v.SetDefault("selectors.product_card", sel.ProductCard)
	v.SetDefault("selectors.name_link", sel.NameLink)
	v.SetDefault("selectors.price", sel.Price)
	v.SetDefault("selectors.image", sel.Image)
	v.SetDefault("selectors.sku", "")
	v.SetDefault("selectors.sku_attr", "")
	v.SetDefault("selectors.next_page", sel.NextPage)
	v.SetDefault("selectors.decimal_separator", sel.DecimalSeparator)

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "products")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("db.chunk_size", 500)
	v.SetDefault("output.csv_path", "")
	v.SetDefault("report.store", ReportStoreNone)
	v.SetDefault("report.local_dir", "reports")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.prefix", "catalog-runs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL, got %q", c.Site.BaseURL)
	}
	if c.Crawler.MaxConcurrentCategories <= 0 {
		return errors.New("crawler.max_concurrent_categories must be > 0")
	}
	if c.Crawler.PageDelay < 0 {
		return errors.New("crawler.page_delay must be >= 0")
	}
	if c.Crawler.MaxPagesPerCategory <= 0 {
		return errors.New("crawler.max_pages_per_category must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return errors.New("crawler.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return errors.New("http.timeout_seconds must be > 0")
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	switch c.Report.Store {
	case ReportStoreNone, "":
	case ReportStoreLocal:
		if c.Report.LocalDir == "" {
			return errors.New("report.local_dir must be set when report.store is local")
		}
	case ReportStoreGCS:
		if c.Report.GCSBucket == "" {
			return errors.New("report.gcs_bucket must be set when report.store is gcs")
		}
	default:
		return fmt.Errorf("report.store must be one of none, local, gcs; got %q", c.Report.Store)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestTimeout is the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
