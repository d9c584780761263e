package crawler

import (
	"context"
	"time"
)

// PageFetcher is a single fetch engine (static HTTP or a rendered browser).
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Fetcher returns page HTML for a URL using the requested strategy.
type Fetcher interface {
	Fetch(ctx context.Context, url string, rendered bool) FetchResult
}

// Classifier decides whether a page is a product page.
type Classifier interface {
	Classify(url, domainKey string, page FetchResult) Classification
}

// Sink persists a classified page at most once per (domain, url).
type Sink interface {
	Record(ctx context.Context, domainKey, url, reason string, isProduct bool) (bool, error)
}

// RecordStore is the queryable mirror of persisted pages.
type RecordStore interface {
	SaveRecord(ctx context.Context, record Record) error
}

// Publisher pushes product notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
