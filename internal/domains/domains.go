// Package domains holds the per-domain crawl settings: whether pages need a
// rendered fetch and which URL substrings identify product pages.
package domains

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// keyDelimiter replaces viper's "." so that domain keys keep their dots.
const keyDelimiter = "::"

// Config is the immutable per-domain configuration.
type Config struct {
	RequiresRenderedFetch bool     `mapstructure:"requires_js"`
	ProductURLPatterns    []string `mapstructure:"product_url_patterns"`
}

// Entry pairs a configured key with its normalized form and settings.
type Entry struct {
	// Raw is the key exactly as configured; it doubles as the crawl seed.
	Raw    string
	Key    string
	Config Config
}

// Store is a read-only lookup of domain settings keyed by normalized domain key.
// It is safe for concurrent use because nothing mutates it after Load.
type Store struct {
	entries []Entry
	byKey   map[string]Config
}

// New builds a Store from raw keys. Later duplicates of the same normalized key
// are ignored.
func New(raw map[string]Config) *Store {
	s := &Store{byKey: make(map[string]Config, len(raw))}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		norm := NormalizeKey(k)
		if norm == "" {
			continue
		}
		if _, dup := s.byKey[norm]; dup {
			continue
		}
		cfg := raw[k]
		cfg.ProductURLPatterns = append([]string(nil), cfg.ProductURLPatterns...)
		s.byKey[norm] = cfg
		s.entries = append(s.entries, Entry{Raw: k, Key: norm, Config: cfg})
	}
	return s
}

// Empty returns a Store with no domains.
func Empty() *Store {
	return New(nil)
}

// Load reads the domain configuration file. A missing or unparseable file
// yields an empty Store; the problem is logged, never returned.
func Load(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(path) == "" {
		logger.Warn("No domain config file set; using empty domain configuration")
		return Empty()
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Domain config file not found; using empty domain configuration", zap.String("path", path))
		} else {
			logger.Error("Domain config file unreadable", zap.String("path", path), zap.Error(err))
		}
		return Empty()
	}
	raw, err := read(path)
	if err != nil {
		logger.Error("Error loading domain config", zap.String("path", path), zap.Error(err))
		return Empty()
	}
	store := New(raw)
	logger.Info("Loaded domain config", zap.String("path", path), zap.Int("domains", store.Len()))
	return store
}

func read(path string) (map[string]Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read domain config: %w", err)
	}
	raw := make(map[string]Config)
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("decode domain config: %w", err)
	}
	return raw, nil
}

// Lookup returns the settings for a domain key, or the zero Config (static
// fetch, no patterns) when the key is unknown.
func (s *Store) Lookup(key string) Config {
	if s == nil {
		return Config{}
	}
	return s.byKey[NormalizeKey(key)]
}

// Entries lists configured domains in key order.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports the number of configured domains.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// NormalizeKey reduces a host or URL to its domain key: lowercase host with any
// scheme and a leading "www." removed. The port, if any, is kept.
func NormalizeKey(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		host = u.Host
	} else if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		host = raw[:i]
	}
	return strings.TrimPrefix(host, "www.")
}

// SeedURL turns a configured key into the URL a traversal starts from. Keys
// without a scheme are crawled over https.
func SeedURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}
