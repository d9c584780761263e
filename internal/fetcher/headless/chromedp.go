package headless

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/crawler"
)

// Chromedp implements crawler.PageFetcher using chromedp and Chrome.
type Chromedp struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a rendered fetcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) *Chromedp {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chromedp{cfg: cfg.withDefaults(), logger: logger.Named("chromedp")}
}

func (f *Chromedp) allocatorOptions(rawURL string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(f.cfg.WindowWidth, f.cfg.WindowHeight),
	)
	if f.cfg.headful(rawURL) {
		opts = append(opts, chromedp.Flag("headless", false))
	} else {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	if f.cfg.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", f.cfg.Locale))
	}
	return opts
}

// Fetch launches a browser, navigates, waits briefly for the ready text and
// returns the rendered DOM. The browser is closed on every return path.
func (f *Chromedp) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions(rawURL)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	// Start the browser on the long-lived context so the navigation timeout
	// below does not tear it down.
	if err := chromedp.Run(browserCtx); err != nil {
		return crawler.Page{}, fmt.Errorf("start browser: %w", err)
	}

	meta := newResponseMeta()
	chromedp.ListenTarget(browserCtx, meta.captureEvent)

	start := time.Now()
	navCtx, navCancel := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx, f.setupAction(), chromedp.Navigate(rawURL)); err != nil {
		return crawler.Page{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	f.waitReady(browserCtx, rawURL)

	var html, finalURL string
	captureCtx, captureCancel := context.WithTimeout(browserCtx, f.cfg.NavigationTimeout)
	defer captureCancel()
	if err := chromedp.Run(captureCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return crawler.Page{}, fmt.Errorf("capture html: %w", err)
	}

	status, mimeType, responseURL := meta.snapshotWithFallbacks(rawURL, finalURL)
	if mimeType != "" && !crawler.IsHTMLContentType(mimeType) {
		return crawler.Page{}, fmt.Errorf("%w: %q", crawler.ErrNotHTML, mimeType)
	}

	return crawler.Page{
		FinalURL:    responseURL,
		StatusCode:  status,
		ContentType: mimeType,
		Body:        []byte(html),
		Duration:    time.Since(start),
	}, nil
}

func (f *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			override := emulation.SetUserAgentOverride(f.cfg.UserAgent)
			if f.cfg.Locale != "" {
				override = override.WithAcceptLanguage(f.cfg.Locale)
			}
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if f.cfg.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(f.cfg.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		return nil
	})
}

// waitReady waits for an element containing the ready text. A miss is normal.
func (f *Chromedp) waitReady(ctx context.Context, rawURL string) {
	if f.cfg.ReadyText == "" || f.cfg.ReadyTimeout == 0 {
		return
	}
	readyCtx, cancel := context.WithTimeout(ctx, f.cfg.ReadyTimeout)
	defer cancel()
	if err := chromedp.Run(readyCtx, chromedp.WaitVisible(readyXPath(f.cfg.ReadyText), chromedp.BySearch)); err != nil {
		f.logger.Debug("ready text not seen", zap.String("url", rawURL), zap.Error(err))
	}
}

// readyXPath builds an XPath matching any element whose text contains text.
func readyXPath(text string) string {
	return fmt.Sprintf("//*[contains(text(), %s)]", xpathLiteral(text))
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

type responseMeta struct {
	mu       sync.RWMutex
	status   int
	mimeType string
	url      string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return // keep the first document response
	}
	m.status = int(event.Response.Status)
	m.mimeType = event.Response.MimeType
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string, string) {
	m.mu.RLock()
	status, mimeType, url := m.status, m.mimeType, m.url
	m.mu.RUnlock()

	switch {
	case finalURL != "":
		url = finalURL
	case url == "":
		url = requestURL
	}
	if status == 0 {
		status = 200
	}
	return status, mimeType, url
}
