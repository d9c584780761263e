// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backend names accepted by store.backend.
const (
	StoreNone     = "none"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Rendered fetch engines accepted by headless.engine.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Store      StoreConfig      `mapstructure:"store"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Export     ExportConfig     `mapstructure:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool              `mapstructure:"development"`
	Level       string            `mapstructure:"level"`
	File        LoggingFileConfig `mapstructure:"file"`
}

// LoggingFileConfig configures the rotating log file.
type LoggingFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// CrawlerConfig governs the traversal.
type CrawlerConfig struct {
	MaxDepth    int    `mapstructure:"max_depth"`
	UserAgent   string `mapstructure:"user_agent"`
	DomainsFile string `mapstructure:"domains_file"`
	OutputDir   string `mapstructure:"output_dir"`
}

// HTTPConfig configures the static fetch path.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the rendered fetch path.
type HeadlessConfig struct {
	Engine              string   `mapstructure:"engine"`
	NavTimeoutSeconds   int      `mapstructure:"nav_timeout_seconds"`
	ReadyTimeoutSeconds int      `mapstructure:"ready_timeout_seconds"`
	ReadyText           string   `mapstructure:"ready_text"`
	UserAgent           string   `mapstructure:"user_agent"`
	WindowWidth         int      `mapstructure:"window_width"`
	WindowHeight        int      `mapstructure:"window_height"`
	Locale              string   `mapstructure:"locale"`
	HeadfulDomains      []string `mapstructure:"headful_domains"`
}

// ClassifierConfig overrides the built-in keyword list when non-empty.
type ClassifierConfig struct {
	Keywords []string `mapstructure:"keywords"`
}

// StoreConfig selects the queryable record store.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// SQLiteConfig points at the sqlite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PubSubConfig holds metadata for product notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ExportConfig controls the post-run upload of crawl logs.
type ExportConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig sets the listen address of the metrics endpoint. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied to the environment first when present.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional; absent .env is normal

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age_days", 14)
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; ProductCrawler/1.0)")
	v.SetDefault("crawler.domains_file", "domain_config.json")
	v.SetDefault("crawler.output_dir", "output")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("headless.engine", EngineChromedp)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.ready_timeout_seconds", 6)
	v.SetDefault("headless.ready_text", "Add to Bag")
	v.SetDefault("headless.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36")
	v.SetDefault("headless.window_width", 1280)
	v.SetDefault("headless.window_height", 800)
	v.SetDefault("headless.locale", "en-US")
	v.SetDefault("headless.headful_domains", []string{})
	v.SetDefault("classifier.keywords", []string{})
	v.SetDefault("store.backend", StoreNone)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "product_pages")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("store.postgres.max_conn_lifetime", "30m")
	v.SetDefault("store.sqlite.path", "output/pages.db")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "crawl-logs")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if strings.TrimSpace(c.Crawler.OutputDir) == "" {
		return fmt.Errorf("crawler.output_dir must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
	}
	if c.Headless.ReadyTimeoutSeconds < 0 {
		return fmt.Errorf("headless.ready_timeout_seconds must be >= 0")
	}
	switch c.Headless.Engine {
	case EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("headless.engine %q is not supported", c.Headless.Engine)
	}
	switch c.Store.Backend {
	case StoreNone, StoreMemory:
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set when store.backend is postgres")
		}
	case StoreSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set when store.backend is sqlite")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	if (c.PubSub.TopicName == "") != (c.PubSub.ProjectID == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// FetchTimeout is the static fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout is the rendered navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSeconds) * time.Second
}

// ReadyTimeout is the best-effort readiness wait for rendered pages.
func (c Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Headless.ReadyTimeoutSeconds) * time.Second
}
