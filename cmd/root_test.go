package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/config"
	"github.com/JakeFAU/product-crawler/internal/crawler"
)

type fakeApp struct {
	only   []string
	stats  []crawler.Stats
	runErr error
	closed bool
}

func (f *fakeApp) Run(_ context.Context, only []string) ([]crawler.Stats, error) {
	f.only = only
	return f.stats, f.runErr
}

func (f *fakeApp) Close() { f.closed = true }

// stubFactories swaps the app and logger factories for the duration of a test.
func stubFactories(t *testing.T, fake *fakeApp, factoryErr error) *config.Config {
	t.Helper()
	var captured config.Config
	origApp, origLogger := newApp, newLogger
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		captured = cfg
		if factoryErr != nil {
			return nil, factoryErr
		}
		return fake, nil
	}
	newLogger = func(config.LoggingConfig) (*zap.Logger, error) { return zap.NewNop(), nil }
	t.Cleanup(func() {
		newApp, newLogger = origApp, origLogger
	})
	return &captured
}

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestCrawlCommandAppliesFlagOverrides(t *testing.T) {
	fake := &fakeApp{stats: []crawler.Stats{{Domain: "shop.example.com", Visited: 2, Persisted: 2}}}
	cfg := stubFactories(t, fake, nil)

	err := execute("crawl", "--domains", "/tmp/domains.json", "--max-depth", "1",
		"--domain", "shop.example.com", "--domain", "store.example.com")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/domains.json", cfg.Crawler.DomainsFile)
	assert.Equal(t, 1, cfg.Crawler.MaxDepth)
	assert.Equal(t, []string{"shop.example.com", "store.example.com"}, fake.only)
	assert.True(t, fake.closed)
}

func TestCrawlCommandKeepsConfiguredDefaults(t *testing.T) {
	fake := &fakeApp{}
	cfg := stubFactories(t, fake, nil)

	require.NoError(t, execute("crawl"))
	assert.Equal(t, 3, cfg.Crawler.MaxDepth)
	assert.Equal(t, "domain_config.json", cfg.Crawler.DomainsFile)
	assert.Empty(t, fake.only)
}

func TestCrawlCommandRejectsNegativeDepth(t *testing.T) {
	fake := &fakeApp{}
	stubFactories(t, fake, nil)

	err := execute("crawl", "--max-depth", "-1")
	require.ErrorContains(t, err, "max_depth")
	assert.False(t, fake.closed)
}

func TestCrawlCommandReportsBootstrapFailure(t *testing.T) {
	stubFactories(t, &fakeApp{}, errors.New("postgres unreachable"))

	err := execute("crawl")
	require.ErrorContains(t, err, "postgres unreachable")
}

func TestCrawlCommandReportsRunError(t *testing.T) {
	fake := &fakeApp{runErr: errors.New("domains not configured: nope.example")}
	stubFactories(t, fake, nil)

	err := execute("crawl", "--domain", "nope.example")
	require.ErrorContains(t, err, "nope.example")
	assert.True(t, fake.closed)
}

func TestCrawlCommandMissingConfigFile(t *testing.T) {
	stubFactories(t, &fakeApp{}, nil)

	err := execute("crawl", "--config", "/nonexistent/config.yaml")
	require.ErrorContains(t, err, "load config")
}

func TestCrawlCommandRejectsArgs(t *testing.T) {
	stubFactories(t, &fakeApp{}, nil)

	require.Error(t, execute("crawl", "extra"))
}
