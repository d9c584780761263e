// Package classifier decides whether a fetched page is a product page using an
// ordered chain of heuristics: URL pattern, structured data, page metadata and
// keyword scan. The first rule that matches wins.
package classifier

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/product-crawler/internal/crawler"
	"github.com/JakeFAU/product-crawler/internal/domains"
	"github.com/JakeFAU/product-crawler/internal/htmldoc"
)

// Reasons recorded for the fixed rules.
const (
	ReasonStructuredData = "structured-data type: Product"
	ReasonMetadata       = "metadata type=product"
	patternReasonPrefix  = "matched pattern: "
	errorReasonPrefix    = "classification error: "
)

const (
	structuredDataProductType = "Product"
	metadataTypeTag           = "og:type"
	metadataProductValue      = "product"
)

// DefaultKeywords is the built-in product keyword list, checked in order.
var DefaultKeywords = []string{
	"add to cart",
	"add to bag",
	"add to basket",
	"buy now",
	"add to wishlist",
	"select size",
	"size chart",
	"product details",
	"in stock",
	"out of stock",
	"buy",
	"sku",
}

// ConfigLookup resolves the per-domain configuration.
type ConfigLookup interface {
	Lookup(key string) domains.Config
}

type keyword struct {
	text string
	// whole requires the match to have no word character on either side.
	whole bool
}

func (k keyword) matches(text string) bool {
	if !k.whole {
		return strings.Contains(text, k.text)
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], k.text)
		if i < 0 {
			return false
		}
		start := from + i
		if bounded(text, start, start+len(k.text)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

// bounded reports whether text[start:end] has no word character on either
// side. Letters and digits of every script are word characters, so "sku" does
// not match inside "ñsku".
func bounded(text string, start, end int) bool {
	before, _ := utf8.DecodeLastRuneInString(text[:start])
	after, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(before) && !isWordRune(after)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// Classifier implements crawler.Classifier. It holds no mutable state and is
// safe for concurrent use by every traversal.
type Classifier struct {
	configs  ConfigLookup
	keywords []keyword
}

// New builds a Classifier. An empty keyword list selects DefaultKeywords.
func New(configs ConfigLookup, keywords []string) *Classifier {
	if configs == nil {
		configs = domains.Empty()
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	return &Classifier{
		configs:  configs,
		keywords: compileKeywords(keywords),
	}
}

// compileKeywords lowercases the list and builds whole-word matchers for
// single-word entries. Phrases keep plain substring matching.
func compileKeywords(raw []string) []keyword {
	out := make([]keyword, 0, len(raw))
	for _, entry := range raw {
		text := strings.ToLower(strings.TrimSpace(entry))
		if text == "" {
			continue
		}
		out = append(out, keyword{text: text, whole: !strings.ContainsAny(text, " \t")})
	}
	return out
}

// Keywords returns the effective keyword list in match order.
func (c *Classifier) Keywords() []string {
	out := make([]string, len(c.keywords))
	for i, kw := range c.keywords {
		out[i] = kw.text
	}
	return out
}

// Classify implements crawler.Classifier.
func (c *Classifier) Classify(url, domainKey string, page crawler.FetchResult) crawler.Classification {
	if pattern, ok := c.matchPattern(url, domainKey); ok {
		return crawler.Classification{
			IsProduct: true,
			Reason:    patternReasonPrefix + pattern,
			Rule:      crawler.RulePattern,
		}
	}
	if !page.Available() {
		return noMatch()
	}

	doc, err := htmldoc.Parse(page.HTML)
	if err != nil {
		return crawler.Classification{
			Reason: errorReasonPrefix + err.Error(),
			Rule:   crawler.RuleError,
		}
	}
	return c.classifyDocument(doc)
}

func (c *Classifier) matchPattern(url, domainKey string) (string, bool) {
	for _, pattern := range c.configs.Lookup(domainKey).ProductURLPatterns {
		if pattern == "" {
			continue
		}
		if strings.Contains(url, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func (c *Classifier) classifyDocument(doc *htmldoc.Document) (result crawler.Classification) {
	defer func() {
		if r := recover(); r != nil {
			result = crawler.Classification{
				Reason: errorReasonPrefix + fmt.Sprint(r),
				Rule:   crawler.RuleError,
			}
		}
	}()

	for _, t := range doc.StructuredDataTypes() {
		if t == structuredDataProductType {
			return crawler.Classification{IsProduct: true, Reason: ReasonStructuredData, Rule: crawler.RuleStructuredData}
		}
	}
	if content, ok := doc.MetaContent(metadataTypeTag); ok && strings.EqualFold(content, metadataProductValue) {
		return crawler.Classification{IsProduct: true, Reason: ReasonMetadata, Rule: crawler.RuleMetadata}
	}
	text := doc.VisibleText()
	for _, kw := range c.keywords {
		if kw.matches(text) {
			return crawler.Classification{IsProduct: true, Reason: kw.text, Rule: crawler.RuleKeyword}
		}
	}
	return noMatch()
}

func noMatch() crawler.Classification {
	return crawler.Classification{Reason: crawler.ReasonNoMatch, Rule: crawler.RuleNone}
}
