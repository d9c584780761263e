// Package headless contains fetch engines that render pages in a browser.
// Every Fetch call launches its own browser session and tears it down before
// returning, so no session is ever shared between calls or domains.
package headless

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/domains"
)

// Engine names.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultReadyTimeout      = 6 * time.Second
	defaultWindowWidth       = 1280
	defaultWindowHeight      = 800
)

// Config controls the behavior of the rendered fetchers.
type Config struct {
	Engine            string
	UserAgent         string
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	ReadyText         string
	WindowWidth       int
	WindowHeight      int
	Locale            string
	HeadfulDomains    []string
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.ReadyTimeout < 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = defaultWindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = defaultWindowHeight
	}
	return c
}

// headful reports whether rawURL's host must be rendered with a visible window.
func (c Config) headful(rawURL string) bool {
	key := domains.NormalizeKey(rawURL)
	for _, d := range c.HeadfulDomains {
		if domains.NormalizeKey(d) == key {
			return true
		}
	}
	return false
}

func (c Config) windowSize() string {
	return strconv.Itoa(c.WindowWidth) + "," + strconv.Itoa(c.WindowHeight)
}

// New returns the rendered fetch engine named by cfg.Engine.
func New(cfg Config, logger *zap.Logger) (crawler.PageFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Engine) {
	case "", EngineChromedp:
		return NewChromedp(cfg, logger), nil
	case EngineRod:
		return NewRod(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown headless engine %q", cfg.Engine)
	}
}
