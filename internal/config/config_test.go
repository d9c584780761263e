package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxDepth != 3 {
		t.Fatalf("expected default max depth 3, got %d", cfg.Crawler.MaxDepth)
	}
	if got := cfg.FetchTimeout(); got != 10*time.Second {
		t.Fatalf("expected 10s fetch timeout, got %v", got)
	}
	if got := cfg.NavTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s nav timeout, got %v", got)
	}
	if got := cfg.ReadyTimeout(); got != 6*time.Second {
		t.Fatalf("expected 6s ready timeout, got %v", got)
	}
	if cfg.Headless.ReadyText != "Add to Bag" {
		t.Fatalf("unexpected ready text %q", cfg.Headless.ReadyText)
	}
	if cfg.Store.Backend != StoreNone {
		t.Fatalf("expected store backend none, got %q", cfg.Store.Backend)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
  level: debug
crawler:
  max_depth: 1
  domains_file: /etc/crawler/domains.json
  output_dir: /tmp/out
http:
  timeout_seconds: 5
headless:
  engine: rod
  headful_domains: ["nykaafashion.com"]
classifier:
  keywords: ["add to cart", "buy"]
store:
  backend: sqlite
  sqlite:
    path: /tmp/out/pages.db
pubsub:
  project_id: proj
  topic_name: products
export:
  gcs_bucket: crawl-bucket
metrics:
  addr: ":9090"
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Crawler.MaxDepth != 1 || cfg.Crawler.OutputDir != "/tmp/out" {
		t.Fatalf("expected crawler overrides, got %+v", cfg.Crawler)
	}
	if cfg.Headless.Engine != EngineRod || len(cfg.Headless.HeadfulDomains) != 1 {
		t.Fatalf("expected headless overrides, got %+v", cfg.Headless)
	}
	if len(cfg.Classifier.Keywords) != 2 {
		t.Fatalf("expected keyword override, got %v", cfg.Classifier.Keywords)
	}
	if cfg.Store.Backend != StoreSQLite || cfg.Store.SQLite.Path != "/tmp/out/pages.db" {
		t.Fatalf("expected sqlite store, got %+v", cfg.Store)
	}
	if cfg.Store.Postgres.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("expected default conn lifetime, got %v", cfg.Store.Postgres.MaxConnLifetime)
	}
	if cfg.Export.GCSBucket != "crawl-bucket" || cfg.Export.Prefix != "crawl-logs" {
		t.Fatalf("unexpected export config %+v", cfg.Export)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Fatalf("unexpected metrics addr %q", cfg.Metrics.Addr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_MAX_DEPTH", "7")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxDepth != 7 {
		t.Fatalf("expected env override, got %d", cfg.Crawler.MaxDepth)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Crawler:  CrawlerConfig{MaxDepth: 3, OutputDir: "output"},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Headless: HeadlessConfig{Engine: EngineChromedp, NavTimeoutSeconds: 30, ReadyTimeoutSeconds: 6},
		Store:    StoreConfig{Backend: StoreNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "negative depth", mutate: func(c *Config) { c.Crawler.MaxDepth = -1 }, want: "crawler.max_depth"},
		{name: "empty output", mutate: func(c *Config) { c.Crawler.OutputDir = " " }, want: "crawler.output_dir"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "invalid nav timeout", mutate: func(c *Config) { c.Headless.NavTimeoutSeconds = 0 }, want: "headless.nav_timeout_seconds"},
		{name: "negative ready timeout", mutate: func(c *Config) { c.Headless.ReadyTimeoutSeconds = -1 }, want: "headless.ready_timeout_seconds"},
		{name: "unknown engine", mutate: func(c *Config) { c.Headless.Engine = "webkit" }, want: "headless.engine"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, want: "store.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = StorePostgres }, want: "store.postgres.dsn"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Backend = StoreSQLite }, want: "store.sqlite.path"},
		{name: "pubsub half configured", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
