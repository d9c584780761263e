// Package crawler implements the per-domain crawl-and-classify engine: the
// bounded breadth-first traversal, the fetch strategy switch, link extraction,
// and the shared types used by classifiers, fetchers and sinks.
package crawler
