package headless

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/crawler"
)

// Rod implements crawler.PageFetcher using go-rod with stealth patches applied.
type Rod struct {
	cfg    Config
	logger *zap.Logger
}

// NewRod creates a rendered fetcher backed by go-rod.
func NewRod(cfg Config, logger *zap.Logger) *Rod {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rod{cfg: cfg.withDefaults(), logger: logger.Named("rod")}
}

func (f *Rod) launcher(ctx context.Context, rawURL string) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(!f.cfg.headful(rawURL)).
		Set("window-size", f.cfg.windowSize())
	if f.cfg.Locale != "" {
		l = l.Set("lang", f.cfg.Locale)
	}
	return l
}

// Fetch launches a browser, renders rawURL and returns its DOM. The browser
// process is killed and its profile removed on every return path.
func (f *Rod) Fetch(ctx context.Context, rawURL string) (crawler.Page, error) {
	l := f.launcher(ctx, rawURL)
	defer l.Cleanup()
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return crawler.Page{}, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return crawler.Page{}, fmt.Errorf("connect browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			f.logger.Debug("close browser", zap.Error(err))
		}
	}()

	page, err := stealth.Page(browser)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("open page: %w", err)
	}
	if err := f.setupPage(page); err != nil {
		return crawler.Page{}, err
	}

	start := time.Now()
	nav := page.Timeout(f.cfg.NavigationTimeout)
	var status int
	var mimeType string
	wait := nav.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		status, mimeType = e.Response.Status, e.Response.MIMEType
		return true
	})

	if err := nav.Navigate(rawURL); err != nil {
		return crawler.Page{}, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return crawler.Page{}, fmt.Errorf("wait load %s: %w", rawURL, err)
	}
	wait()

	f.waitReady(page, rawURL)

	html, err := page.Timeout(f.cfg.NavigationTimeout).HTML()
	if err != nil {
		return crawler.Page{}, fmt.Errorf("capture html: %w", err)
	}
	if mimeType != "" && !crawler.IsHTMLContentType(mimeType) {
		return crawler.Page{}, fmt.Errorf("%w: %q", crawler.ErrNotHTML, mimeType)
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}
	if status == 0 {
		status = 200
	}

	return crawler.Page{
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: mimeType,
		Body:        []byte(html),
		Duration:    time.Since(start),
	}, nil
}

func (f *Rod) setupPage(page *rod.Page) error {
	if f.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      f.cfg.UserAgent,
			AcceptLanguage: f.cfg.Locale,
		}); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             f.cfg.WindowWidth,
		Height:            f.cfg.WindowHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	return nil
}

// waitReady looks for an element whose text contains the ready text. A miss is normal.
func (f *Rod) waitReady(page *rod.Page, rawURL string) {
	if f.cfg.ReadyText == "" || f.cfg.ReadyTimeout == 0 {
		return
	}
	if _, err := page.Timeout(f.cfg.ReadyTimeout).ElementR("*", regexp.QuoteMeta(f.cfg.ReadyText)); err != nil {
		f.logger.Debug("ready text not seen", zap.String("url", rawURL), zap.Error(err))
	}
}
