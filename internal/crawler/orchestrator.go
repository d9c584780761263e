package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/domains"
	"github.com/JakeFAU/product-crawler/internal/metrics"
)

// ConfigLookup resolves the per-domain configuration.
type ConfigLookup interface {
	Lookup(key string) domains.Config
}

// Orchestrator runs bounded breadth-first traversals. One Orchestrator may run
// many domains concurrently; every Run owns its own frontier and visited set.
type Orchestrator struct {
	configs    ConfigLookup
	fetcher    Fetcher
	classifier Classifier
	links      LinkExtractor
	sink       Sink
	logger     *zap.Logger
}

// NewOrchestrator wires the traversal collaborators.
func NewOrchestrator(configs ConfigLookup, fetcher Fetcher, classifier Classifier, sink Sink, logger *zap.Logger) *Orchestrator {
	if configs == nil {
		configs = domains.Empty()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		configs:    configs,
		fetcher:    fetcher,
		classifier: classifier,
		sink:       sink,
		logger:     logger.Named("orchestrator"),
	}
}

// Run crawls domainURL breadth-first up to maxDepth link hops. Pages that fail to
// fetch are skipped, every fetched page is persisted, and only non-product pages
// are expanded. Run returns when the frontier is empty or ctx is done.
func (o *Orchestrator) Run(ctx context.Context, domainURL, domainKey string, maxDepth int) Stats {
	logger := o.logger.With(zap.String("domain", domainKey))
	rendered := o.configs.Lookup(domainKey).RequiresRenderedFetch
	stats := Stats{Domain: domainKey}

	metrics.IncActiveTraversals()
	defer metrics.DecActiveTraversals()

	state := newCrawlState()
	state.enqueue(NormalizeSeed(domainURL), 0)
	logger.Info("traversal started",
		zap.String("seed", NormalizeSeed(domainURL)),
		zap.Int("max_depth", maxDepth),
		zap.String("strategy", string(StrategyFor(rendered))),
	)

	for {
		item, ok := state.dequeue()
		if !ok {
			break
		}
		if item.depth > maxDepth {
			continue
		}
		if err := ctx.Err(); err != nil {
			logger.Warn("traversal stopped early", zap.Error(err))
			break
		}
		o.visit(ctx, logger, state, item, domainKey, rendered, maxDepth, &stats)
	}

	stats.Visited = state.visitedCount()
	logger.Info("traversal finished",
		zap.Int("visited", stats.Visited),
		zap.Int("fetched", stats.Fetched),
		zap.Int("failed", stats.Failed),
		zap.Int("products", stats.Products),
		zap.Int("persisted", stats.Persisted),
	)
	return stats
}

func (o *Orchestrator) visit(
	ctx context.Context,
	logger *zap.Logger,
	state *crawlState,
	item frontierItem,
	domainKey string,
	rendered bool,
	maxDepth int,
	stats *Stats,
) {
	page := o.fetcher.Fetch(ctx, item.url, rendered)
	if !page.Available() {
		stats.Failed++
		return
	}
	stats.Fetched++

	result := o.classifier.Classify(item.url, domainKey, page)
	metrics.ObserveClassification(domainKey, string(result.Rule))
	logger.Debug("page classified",
		zap.String("url", item.url),
		zap.Int("depth", item.depth),
		zap.Bool("product", result.IsProduct),
		zap.String("reason", result.Reason),
	)

	written, err := o.sink.Record(ctx, domainKey, item.url, result.Reason, result.IsProduct)
	switch {
	case err != nil:
		logger.Error("persist page", zap.String("url", item.url), zap.Error(err))
	case written:
		stats.Persisted++
	}

	if result.IsProduct {
		stats.Products++
		return
	}
	next := item.depth + 1
	if next > maxDepth {
		return
	}
	for _, link := range o.links.Extract(item.url, page.HTML) {
		state.enqueue(link, next)
	}
}
