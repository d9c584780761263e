// Package cmd defines the CLI commands of the productcrawler executable.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/app"
	"github.com/JakeFAU/product-crawler/internal/config"
	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/logging"
)

// App is the part of *app.App the commands use. Tests swap in a fake.
type App interface {
	Run(ctx context.Context, only []string) ([]crawler.Stats, error)
	Close()
}

// newApp is the application factory; a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger builds the process logger from configuration.
var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.Development,
		Level:       cfg.Level,
		File: logging.FileOptions{
			Path:       cfg.File.Path,
			MaxSizeMB:  cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAgeDays: cfg.File.MaxAgeDays,
		},
	})
}

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "productcrawler",
		Short: "Crawls configured shop domains and records which pages are product pages.",
		Long: `productcrawler walks each configured domain breadth-first, classifies every
fetched page as product or non-product, and appends the result to a per-domain
CSV log. Already-logged URLs are never written twice, so reruns only add new pages.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML or JSON)")
	cmd.AddCommand(newCrawlCmd(opts))
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Fallback().Error("command failed", zap.Error(err))
		return 1
	}
	return 0
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
