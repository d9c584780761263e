// Package sqlite provides a file-backed queryable record store using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/product-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS product_pages (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	domain      TEXT NOT NULL,
	is_product  BOOLEAN NOT NULL,
	reason      TEXT,
	crawled_at  DATETIME NOT NULL,
	UNIQUE (domain, url)
);`

// RecordStore writes page records to a SQLite database file.
type RecordStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*RecordStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between concurrent traversals.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &RecordStore{db: db}, nil
}

// Close closes the database.
func (s *RecordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// SaveRecord inserts a page record. An existing (domain, url) row is left as is.
func (s *RecordStore) SaveRecord(ctx context.Context, record crawler.Record) error {
	if record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	const query = `
INSERT INTO product_pages (id, url, domain, is_product, reason, crawled_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(domain, url) DO NOTHING;`

	var reason sql.NullString
	if record.Reason != nil {
		reason = sql.NullString{String: *record.Reason, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.URL,
		record.Domain,
		record.IsProduct,
		reason,
		record.CrawledAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert page record: %w", err)
	}
	return nil
}

// CountProducts returns how many product pages are stored for domain.
func (s *RecordStore) CountProducts(ctx context.Context, domain string) (int64, error) {
	const query = `SELECT count(*) FROM product_pages WHERE domain = ? AND is_product;`
	var n int64
	if err := s.db.QueryRowContext(ctx, query, domain).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
