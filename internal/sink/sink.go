// Package sink implements the persistence step of a traversal: dedup against the
// durable crawl log, append, then mirror into the record store and announce
// products.
package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/metrics"
)

// DurableLog is the append-only per-domain record used for dedup.
type DurableLog interface {
	Append(domainKey, reason, url string) (bool, error)
}

// Sink implements crawler.Sink.
type Sink struct {
	log       DurableLog
	store     crawler.RecordStore
	publisher crawler.Publisher
	topic     string
	ids       crawler.IDGenerator
	clock     crawler.Clock
	logger    *zap.Logger
}

// Option customizes a Sink.
type Option func(*Sink)

// WithRecordStore mirrors every new record into store.
func WithRecordStore(store crawler.RecordStore) Option {
	return func(s *Sink) { s.store = store }
}

// WithPublisher announces new product pages on topic.
func WithPublisher(publisher crawler.Publisher, topic string) Option {
	return func(s *Sink) {
		s.publisher = publisher
		s.topic = topic
	}
}

// New builds a Sink around the durable log.
func New(log DurableLog, ids crawler.IDGenerator, clock crawler.Clock, logger *zap.Logger, opts ...Option) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sink{
		log:    log,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("sink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends (reason, url) to domainKey's log unless url is already there.
// The store mirror and product notice are best-effort; only a failed durable
// append is returned as an error.
func (s *Sink) Record(ctx context.Context, domainKey, url, reason string, isProduct bool) (bool, error) {
	written, err := s.log.Append(domainKey, reason, url)
	if err != nil {
		return false, fmt.Errorf("append crawl log: %w", err)
	}
	if !written {
		return false, nil
	}
	metrics.ObserveRecord(domainKey, isProduct)

	logger := s.logger.With(zap.String("domain", domainKey), zap.String("url", url))
	if s.store != nil {
		if err := s.mirror(ctx, domainKey, url, reason, isProduct); err != nil {
			metrics.ObserveMirrorFailure("store")
			logger.Warn("mirror record", zap.Error(err))
		}
	}
	if isProduct && s.publisher != nil && s.topic != "" {
		notice := crawler.ProductNotice{URL: url, Domain: domainKey, Reason: reason}
		if _, err := s.publisher.Publish(ctx, s.topic, notice); err != nil {
			metrics.ObserveMirrorFailure("publish")
			logger.Warn("publish product notice", zap.Error(err))
		}
	}
	return true, nil
}

func (s *Sink) mirror(ctx context.Context, domainKey, url, reason string, isProduct bool) error {
	id, err := s.ids.NewID()
	if err != nil {
		return err
	}
	record := crawler.Record{
		ID:        id,
		URL:       url,
		Domain:    domainKey,
		IsProduct: isProduct,
		CrawledAt: s.clock.Now(),
	}
	if isProduct {
		r := reason
		record.Reason = &r
	}
	if err := s.store.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}
