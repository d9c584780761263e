// Package csvlog implements the durable per-domain crawl log: one append-only CSV
// file per domain whose rows are [reason, url]. The file is also the dedup
// source of truth, so reruns never write a URL twice.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

const fileExt = ".csv"

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Config captures the parameters for the crawl log.
type Config struct {
	// Dir is the directory holding one CSV file per domain.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Log appends rows to per-domain CSV files.
type Log struct {
	dir string

	mu sync.Mutex
	// keyed by file path: domain keys that share a FileName share one log.
	files map[string]*domainLog
}

// domainLog guards one file. seen is loaded from disk on first use.
type domainLog struct {
	mu     sync.Mutex
	path   string
	seen   map[string]struct{}
	loaded bool
}

// New creates the output directory if needed and verifies it is writable.
func New(cfg Config) (*Log, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat output directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output path %s is not a directory", cfg.Dir)
	}

	testFile := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("output directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Log{
		dir:   cfg.Dir,
		files: make(map[string]*domainLog),
	}, nil
}

// FileName maps a domain key to its CSV file name.
func FileName(domainKey string) string {
	name := invalidFilenameChars.ReplaceAllString(strings.ToLower(domainKey), "_")
	name = strings.Trim(name, ".")
	if name == "" {
		name = "unknown"
	}
	return name + fileExt
}

// Path returns the CSV path for domainKey.
func (l *Log) Path(domainKey string) string {
	return filepath.Join(l.dir, FileName(domainKey))
}

// Dir returns the output directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) domain(domainKey string) *domainLog {
	path := l.Path(domainKey)
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.files[path]
	if !ok {
		d = &domainLog{path: path}
		l.files[path] = d
	}
	return d
}

// Logged returns how many URLs domainKey's log already holds.
func (l *Log) Logged(domainKey string) (int, error) {
	d := l.domain(domainKey)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.load(); err != nil {
		return 0, err
	}
	return len(d.seen), nil
}

// Append writes [reason, url] unless url is already logged for domainKey.
// It reports whether a row was written.
func (l *Log) Append(domainKey, reason, url string) (bool, error) {
	d := l.domain(domainKey)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.load(); err != nil {
		return false, err
	}
	if _, ok := d.seen[url]; ok {
		return false, nil
	}
	if err := d.write(reason, url); err != nil {
		return false, err
	}
	d.seen[url] = struct{}{}
	return true, nil
}

func (d *domainLog) load() error {
	if d.loaded {
		return nil
	}
	rows, err := readRows(d.path)
	if err != nil {
		return err
	}
	d.seen = make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		d.seen[row[1]] = struct{}{}
	}
	d.loaded = true
	return nil
}

func (d *domainLog) write(reason, url string) error {
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open crawl log %s: %w", d.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{reason, url}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write crawl log %s: %w", d.path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush crawl log %s: %w", d.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close crawl log %s: %w", d.path, err)
	}
	return nil
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open crawl log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read crawl log %s: %w", path, err)
		}
		rows = append(rows, row)
	}
}
