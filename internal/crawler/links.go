package crawler

import (
	"github.com/JakeFAU/product-crawler/internal/htmldoc"
)

// LinkExtractor collects same-host links from a fetched page.
type LinkExtractor struct{}

// Extract returns the de-duplicated, fragment-free absolute links on baseURL's
// host, in document order. Unparseable input yields nil.
func (LinkExtractor) Extract(baseURL, html string) []string {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil
	}
	doc, err := htmldoc.Parse(html)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, href := range doc.Hrefs() {
		link, ok := resolveLink(base, href)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
