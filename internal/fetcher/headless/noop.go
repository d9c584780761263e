package headless

import (
	"context"
	"errors"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/JakeFAU/product-crawler/internal/crawler"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("rendered fetcher not configured")

// Noop implements crawler.PageFetcher but always fails, so domains that require
// rendering are skipped when no browser is available.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns ErrNotConfigured.
func (Noop) Fetch(_ context.Context, _ string) (crawler.Page, error) {
	return crawler.Page{}, ErrNotConfigured
}

// BrowserAvailable reports whether a local Chrome or Chromium binary can be found
// on the usual install paths.
func BrowserAvailable() bool {
	_, ok := launcher.LookPath()
	return ok
}
