package crawler

import "time"

// Strategy names the fetch path used for a URL.
type Strategy string

// Fetch strategies selected from the domain configuration.
const (
	StrategyStatic   Strategy = "static"
	StrategyRendered Strategy = "rendered"
)

// StrategyFor maps the requires_js flag of a domain to a fetch strategy.
func StrategyFor(rendered bool) Strategy {
	if rendered {
		return StrategyRendered
	}
	return StrategyStatic
}

// Page is what a concrete fetch engine returns on success. Any status code is
// a success as long as the document is HTML.
type Page struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// FetchResult is the outcome the traversal sees. A zero value means the page was
// unavailable; the reason is not carried because the only reaction is to skip.
type FetchResult struct {
	HTML string
	ok   bool
}

// Fetched builds an available FetchResult.
func Fetched(html string) FetchResult {
	return FetchResult{HTML: html, ok: true}
}

// Available reports whether the fetch produced HTML.
func (r FetchResult) Available() bool {
	return r.ok
}

// Rule identifies which step of the classification chain decided a result.
type Rule string

// Classification rules, in precedence order.
const (
	RulePattern        Rule = "pattern"
	RuleStructuredData Rule = "structured_data"
	RuleMetadata       Rule = "metadata"
	RuleKeyword        Rule = "keyword"
	RuleNone           Rule = "none"
	RuleError          Rule = "error"
)

// ReasonNoMatch is the reason recorded when no rule matched.
const ReasonNoMatch = "no match"

// Classification is the product/non-product decision for one page.
type Classification struct {
	IsProduct bool
	Reason    string
	Rule      Rule
}

// Record is one persisted page as mirrored into the queryable store.
type Record struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Domain    string    `json:"domain"`
	IsProduct bool      `json:"is_product"`
	Reason    *string   `json:"reason"`
	CrawledAt time.Time `json:"crawled_at"`
}

// ProductNotice is published when a product page is persisted for the first time.
type ProductNotice struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

// Stats summarizes one domain traversal.
type Stats struct {
	Domain    string `json:"domain"`
	Visited   int    `json:"visited"`
	Fetched   int    `json:"fetched"`
	Failed    int    `json:"failed"`
	Products  int    `json:"products"`
	Persisted int    `json:"persisted"`
}
