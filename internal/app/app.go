// Package app builds the long-lived crawl services from configuration and runs
// one traversal per configured domain.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/product-crawler/internal/api"
	"github.com/JakeFAU/product-crawler/internal/classifier"
	"github.com/JakeFAU/product-crawler/internal/clock/system"
	"github.com/JakeFAU/product-crawler/internal/config"
	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/domains"
	"github.com/JakeFAU/product-crawler/internal/export"
	collyfetcher "github.com/JakeFAU/product-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/product-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/product-crawler/internal/id/uuid"
	"github.com/JakeFAU/product-crawler/internal/metrics"
	pubsubpublisher "github.com/JakeFAU/product-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/product-crawler/internal/sink"
	"github.com/JakeFAU/product-crawler/internal/storage/csvlog"
	"github.com/JakeFAU/product-crawler/internal/storage/gcs"
	"github.com/JakeFAU/product-crawler/internal/storage/memory"
	"github.com/JakeFAU/product-crawler/internal/storage/postgres"
	"github.com/JakeFAU/product-crawler/internal/storage/sqlite"
)

const (
	shutdownTimeout = 5 * time.Second
	// exportTimeout bounds the crawl-log upload, which runs even after the
	// crawl context is cancelled.
	exportTimeout = 2 * time.Minute
)

// App holds the shared services for a crawl run. It is built once at startup
// and closed when the command finishes.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	domains      *domains.Store
	crawlLog     *csvlog.Log
	store        crawler.RecordStore
	orchestrator *crawler.Orchestrator
	progress     *tracker
	server       *api.Server
	blobs        export.BlobStore
	closers      []closer
}

type closer struct {
	name string
	fn   func() error
}

// Option adjusts how New builds the App.
type Option func(*options)

type options struct {
	rendered crawler.PageFetcher
	blobs    export.BlobStore
}

// WithRenderedFetcher replaces the browser engine chosen from configuration.
func WithRenderedFetcher(f crawler.PageFetcher) Option {
	return func(o *options) { o.rendered = f }
}

// WithBlobStore sends the crawl-log export to blobs instead of GCS.
func WithBlobStore(blobs export.BlobStore) Option {
	return func(o *options) { o.blobs = blobs }
}

// New wires every component named by cfg. It fails fast when a configured
// backend cannot be reached; partially opened resources are released.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{
		cfg:      cfg,
		logger:   logger,
		progress: newTracker(),
		blobs:    o.blobs,
	}
	if err := a.build(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	a.domains = domains.Load(a.cfg.Crawler.DomainsFile, a.logger)
	a.logger.Info("domain configuration loaded",
		zap.String("path", a.cfg.Crawler.DomainsFile),
		zap.Int("domains", a.domains.Len()),
	)

	crawlLog, err := csvlog.New(csvlog.Config{Dir: a.cfg.Crawler.OutputDir})
	if err != nil {
		return fmt.Errorf("init crawl log: %w", err)
	}
	a.crawlLog = crawlLog

	sinkOpts, err := a.openMirrors(ctx)
	if err != nil {
		return err
	}

	rendered := o.rendered
	if rendered == nil {
		rendered, err = a.renderedFetcher()
		if err != nil {
			return err
		}
	}
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.FetchTimeout(),
	})

	cls := classifier.New(a.domains, a.cfg.Classifier.Keywords)
	a.logger.Info("classifier configured", zap.Strings("keywords", cls.Keywords()))

	a.orchestrator = crawler.NewOrchestrator(
		a.domains,
		crawler.NewStrategyFetcher(static, rendered, a.logger),
		cls,
		sink.New(crawlLog, uuid.New(), system.New(), a.logger, sinkOpts...),
		a.logger,
	)

	if a.cfg.Metrics.Addr != "" {
		var serverOpts []api.Option
		if counter, ok := a.store.(api.ProductCounter); ok {
			serverOpts = append(serverOpts, api.WithProductCounter(counter))
		}
		a.server = api.NewServer(a.progress, a.logger, serverOpts...)
		if _, err := a.server.Start(a.cfg.Metrics.Addr); err != nil {
			a.server = nil
			return fmt.Errorf("start metrics server: %w", err)
		}
	}
	return nil
}

// openMirrors connects the optional record store and product notifications.
func (a *App) openMirrors(ctx context.Context) ([]sink.Option, error) {
	var opts []sink.Option

	switch a.cfg.Store.Backend {
	case config.StoreMemory:
		a.store = memory.NewRecordStore()
	case config.StorePostgres:
		pg := a.cfg.Store.Postgres
		store, err := postgres.NewRecordStore(ctx, postgres.Config{
			DSN:             pg.DSN,
			Table:           pg.Table,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, closer{name: "postgres", fn: func() error {
			store.Close()
			return nil
		}})
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		a.store = store
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, a.cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, closer{name: "sqlite", fn: store.Close})
		a.store = store
	}
	if a.store != nil {
		a.logger.Info("record store enabled", zap.String("backend", a.cfg.Store.Backend))
		opts = append(opts, sink.WithRecordStore(a.store))
	}

	if a.cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		a.closers = append(a.closers, closer{name: "pubsub", fn: pub.Close})
		a.logger.Info("product notifications enabled", zap.String("topic", a.cfg.PubSub.TopicName))
		opts = append(opts, sink.WithPublisher(pub, a.cfg.PubSub.TopicName))
	}
	return opts, nil
}

func (a *App) renderedFetcher() (crawler.PageFetcher, error) {
	if !headless.BrowserAvailable() {
		a.logger.Warn("no local browser found; domains that require rendering will be skipped")
		return headless.NewNoop(), nil
	}
	h := a.cfg.Headless
	userAgent := h.UserAgent
	if userAgent == "" {
		userAgent = a.cfg.Crawler.UserAgent
	}
	f, err := headless.New(headless.Config{
		Engine:            h.Engine,
		UserAgent:         userAgent,
		NavigationTimeout: a.cfg.NavTimeout(),
		ReadyTimeout:      a.cfg.ReadyTimeout(),
		ReadyText:         h.ReadyText,
		WindowWidth:       h.WindowWidth,
		WindowHeight:      h.WindowHeight,
		Locale:            h.Locale,
		HeadfulDomains:    h.HeadfulDomains,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init rendered fetcher: %w", err)
	}
	return f, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run crawls every configured domain concurrently, or only the keys in only
// when it is non-empty. Each domain runs exactly once; a panicking traversal is
// logged and does not affect the others. Stats are returned in configuration
// order.
func (a *App) Run(ctx context.Context, only []string) ([]crawler.Stats, error) {
	entries, err := a.selectEntries(only)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		a.logger.Warn("no domains configured; nothing to crawl")
		return nil, nil
	}

	maxDepth := a.cfg.Crawler.MaxDepth
	results := make([]crawler.Stats, len(entries))
	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			results[i] = a.crawlDomain(ctx, entry, maxDepth)
			return nil
		})
	}
	_ = g.Wait() // traversals never return errors

	a.logSummary(results)
	a.exportLogs(ctx, entries)
	return results, nil
}

func (a *App) crawlDomain(ctx context.Context, entry domains.Entry, maxDepth int) (stats crawler.Stats) {
	stats = crawler.Stats{Domain: entry.Key}
	a.progress.start(entry.Key)
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("traversal panicked",
				zap.String("domain", entry.Key),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		}
		a.progress.finish(stats)
	}()
	if logged, err := a.crawlLog.Logged(entry.Key); err != nil {
		a.logger.Warn("read crawl log", zap.String("domain", entry.Key), zap.Error(err))
	} else if logged > 0 {
		a.logger.Info("resuming domain", zap.String("domain", entry.Key), zap.Int("already_logged", logged))
	}
	return a.orchestrator.Run(ctx, domains.SeedURL(entry.Raw), entry.Key, maxDepth)
}

func (a *App) selectEntries(only []string) ([]domains.Entry, error) {
	entries := a.domains.Entries()
	if len(only) == 0 {
		return entries, nil
	}
	wanted := make(map[string]bool, len(only))
	for _, key := range only {
		wanted[domains.NormalizeKey(key)] = false
	}
	var selected []domains.Entry
	for _, entry := range entries {
		if _, ok := wanted[entry.Key]; ok {
			wanted[entry.Key] = true
			selected = append(selected, entry)
		}
	}
	var missing []string
	for key, found := range wanted {
		if !found {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("domains not configured: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

func (a *App) logSummary(results []crawler.Stats) {
	var total crawler.Stats
	for _, s := range results {
		total.Visited += s.Visited
		total.Fetched += s.Fetched
		total.Failed += s.Failed
		total.Products += s.Products
		total.Persisted += s.Persisted
	}
	a.logger.Info("crawl finished",
		zap.Int("domains", len(results)),
		zap.Int("visited", total.Visited),
		zap.Int("fetched", total.Fetched),
		zap.Int("failed", total.Failed),
		zap.Int("products", total.Products),
		zap.Int("persisted", total.Persisted),
	)
}

// exportLogs uploads the crawl logs of entries when an export target is
// configured. It runs on a detached context so an interrupted crawl still ships
// what it wrote. Failures are logged; the local logs remain authoritative.
func (a *App) exportLogs(ctx context.Context, entries []domains.Entry) {
	if a.blobs == nil && a.cfg.Export.GCSBucket == "" {
		return
	}
	files := a.logFiles(entries)
	if len(files) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()

	blobs := a.blobs
	if blobs == nil {
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Export.GCSBucket})
		if err != nil {
			a.logger.Warn("open export bucket", zap.Error(err))
			return
		}
		defer func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("close export bucket", zap.Error(err))
			}
		}()
		blobs = store
	}

	uris, err := export.New(blobs, a.cfg.Export.Prefix, a.logger).Export(ctx, files)
	if err != nil {
		a.logger.Warn("crawl log export incomplete", zap.Int("exported", len(uris)), zap.Error(err))
		return
	}
	a.logger.Info("crawl logs exported", zap.Int("files", len(uris)))
}

// logFiles returns the existing crawl-log paths of entries, once each.
func (a *App) logFiles(entries []domains.Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	var files []string
	for _, entry := range entries {
		path := a.crawlLog.Path(entry.Key)
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				a.logger.Warn("stat crawl log", zap.String("file", path), zap.Error(err))
			}
			continue
		}
		files = append(files, path)
	}
	return files
}

// Close shuts down the metrics server and releases backend connections in
// reverse order of opening.
func (a *App) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown metrics server", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close "+c.name, zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync() // stderr sync fails on some terminals
}

type tracker struct {
	mu        sync.Mutex
	running   map[string]struct{}
	completed []crawler.Stats
}

func newTracker() *tracker {
	return &tracker{running: make(map[string]struct{})}
}

func (t *tracker) start(domain string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[domain] = struct{}{}
}

func (t *tracker) finish(stats crawler.Stats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, stats.Domain)
	t.completed = append(t.completed, stats)
}

// Running lists domains whose traversal has started but not finished.
func (t *tracker) Running() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.running))
	for domain := range t.running {
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

// Completed lists finished traversals in completion order.
func (t *tracker) Completed() []crawler.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]crawler.Stats(nil), t.completed...)
}
