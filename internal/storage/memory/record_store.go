package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/product-crawler/internal/crawler"
)

// RecordStore keeps mirrored page records in memory for development/testing.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]crawler.Record
	order   []string
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]crawler.Record)}
}

func recordKey(domain, url string) string {
	return domain + "\x00" + url
}

// SaveRecord stores record. A second record for the same (domain, url) is ignored,
// matching the unique constraint of the SQL backends.
func (s *RecordStore) SaveRecord(_ context.Context, record crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(record.Domain, record.URL)
	if _, exists := s.records[key]; exists {
		return nil
	}
	s.records[key] = cloneRecord(record)
	s.order = append(s.order, key)
	return nil
}

// Records returns all records in insertion order.
func (s *RecordStore) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, cloneRecord(s.records[key]))
	}
	return out
}

// CountProducts returns how many product pages are stored for domain.
func (s *RecordStore) CountProducts(_ context.Context, domain string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.records {
		if rec.Domain == domain && rec.IsProduct {
			n++
		}
	}
	return n, nil
}

func cloneRecord(rec crawler.Record) crawler.Record {
	if rec.Reason != nil {
		reason := *rec.Reason
		rec.Reason = &reason
	}
	return rec
}
