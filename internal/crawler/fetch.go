package crawler

import (
	"context"
	"errors"
	"mime"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/metrics"
)

var (
	// ErrNotHTML is returned by fetch engines when the response is not an HTML document.
	ErrNotHTML = errors.New("response is not html")
	// ErrEmptyBody marks an HTML response with nothing in it; it is treated as unavailable.
	ErrEmptyBody = errors.New("response body is empty")
)

// IsHTMLContentType reports whether a Content-Type header names an HTML document.
func IsHTMLContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// StrategyFetcher picks the static or rendered engine per call and collapses
// every engine error into an unavailable FetchResult.
type StrategyFetcher struct {
	static   PageFetcher
	rendered PageFetcher
	logger   *zap.Logger
}

// NewStrategyFetcher wires the two engines. A nil rendered engine makes rendered
// fetches fall back to the static one.
func NewStrategyFetcher(static, rendered PageFetcher, logger *zap.Logger) *StrategyFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rendered == nil {
		rendered = static
	}
	return &StrategyFetcher{
		static:   static,
		rendered: rendered,
		logger:   logger.Named("fetch"),
	}
}

// Fetch implements Fetcher.
func (f *StrategyFetcher) Fetch(ctx context.Context, url string, rendered bool) FetchResult {
	strategy := StrategyFor(rendered)
	engine := f.static
	if rendered {
		engine = f.rendered
	}

	page, err := engine.Fetch(ctx, url)
	if err == nil && len(strings.TrimSpace(string(page.Body))) == 0 {
		err = ErrEmptyBody
	}
	if err != nil {
		metrics.ObserveFetch(url, string(strategy), "unavailable", 0, 0)
		f.logger.Debug("fetch unavailable",
			zap.String("url", url),
			zap.String("strategy", string(strategy)),
			zap.Int("status", page.StatusCode),
			zap.Error(err),
		)
		return FetchResult{}
	}

	metrics.ObserveFetch(url, string(strategy), metrics.StatusClass(page.StatusCode), len(page.Body), page.Duration)
	f.logger.Debug("page fetched",
		zap.String("url", url),
		zap.String("final_url", page.FinalURL),
		zap.String("strategy", string(strategy)),
		zap.Int("status", page.StatusCode),
		zap.String("content_type", page.ContentType),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("duration", page.Duration),
	)
	return Fetched(string(page.Body))
}
