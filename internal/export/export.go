// Package export uploads the per-domain crawl logs to object storage once a run
// has finished.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/metrics"
)

const csvContentType = "text/csv"

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Exporter copies local crawl logs into a BlobStore under a prefix.
type Exporter struct {
	blobs  BlobStore
	prefix string
	logger *zap.Logger
}

// New builds an Exporter.
func New(blobs BlobStore, prefix string, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{blobs: blobs, prefix: prefix, logger: logger.Named("export")}
}

// ObjectPath is the object name a local file is uploaded to.
func (e *Exporter) ObjectPath(file string) string {
	return path.Join(e.prefix, filepath.Base(file))
}

// Export uploads every file and returns the URIs written. A failed file is
// logged and skipped; the last error is returned after all files are tried.
func (e *Exporter) Export(ctx context.Context, files []string) ([]string, error) {
	var (
		uris    []string
		lastErr error
	)
	for _, file := range files {
		uri, err := e.upload(ctx, file)
		if err != nil {
			metrics.ObserveMirrorFailure("export")
			e.logger.Warn("export crawl log", zap.String("file", file), zap.Error(err))
			lastErr = err
			continue
		}
		e.logger.Info("exported crawl log", zap.String("file", file), zap.String("uri", uri))
		uris = append(uris, uri)
	}
	return uris, lastErr
}

func (e *Exporter) upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	uri, err := e.blobs.PutObject(ctx, e.ObjectPath(file), csvContentType, f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file, err)
	}
	return uri, nil
}
