// Package main hosts the productcrawler entrypoint.
//
// A run loads service configuration (viper: --config file, CRAWLER_* env, .env)
// and the domain configuration file, then starts one traversal per domain.
// Each traversal fetches pages with colly, or with a headless browser (chromedp
// or rod) for domains marked requires_js, classifies them, and appends new
// pages to output/<domain>.csv. Optional mirrors: a record store (memory,
// postgres, sqlite), Pub/Sub product notices, and a GCS upload of the CSV logs
// after the run.
//
// Quick checklist:
//   - go run ./cmd/productcrawler crawl --config config.yaml
//   - go run ./cmd/productcrawler crawl --domains domain_config.json --max-depth 2 --domain shop.example.com
//   - SIGINT/SIGTERM stops traversals after the page in flight; the logs stay consistent.
package main
