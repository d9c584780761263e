// Package htmldoc wraps goquery behind the handful of typed queries the crawler
// needs: anchor hrefs, structured-data blocks, a named meta tag, and visible text.
package htmldoc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const structuredDataSelector = `script[type="application/ld+json"]`

// hiddenTags never contribute visible text.
var hiddenTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {},
}

// blockTags break words: their text is separated from the text around them.
var blockTags = map[string]struct{}{
	"address": {}, "article": {}, "aside": {}, "blockquote": {}, "br": {},
	"button": {}, "dd": {}, "details": {}, "div": {}, "dl": {}, "dt": {},
	"fieldset": {}, "figcaption": {}, "figure": {}, "footer": {}, "form": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"header": {}, "hr": {}, "li": {}, "main": {}, "nav": {}, "ol": {},
	"option": {}, "p": {}, "pre": {}, "section": {}, "summary": {},
	"table": {}, "tbody": {}, "td": {}, "tfoot": {}, "th": {}, "thead": {},
	"title": {}, "tr": {}, "ul": {},
}

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Hrefs returns the raw href attribute of every anchor, in document order.
func (d *Document) Hrefs() []string {
	var out []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, href)
		}
	})
	return out
}

// StructuredDataTypes returns the declared @type values of every JSON-LD block.
// Blocks that fail to decode are skipped.
func (d *Document) StructuredDataTypes() []string {
	var out []string
	d.doc.Find(structuredDataSelector).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return
		}
		out = append(out, collectTypes(payload)...)
	})
	return out
}

// MetaContent returns the content of the first <meta> whose property or name
// attribute equals name.
func (d *Document) MetaContent(name string) (string, bool) {
	var (
		content string
		found   bool
	)
	d.doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		if !strings.EqualFold(prop, name) {
			prop, _ = s.Attr("name")
		}
		if !strings.EqualFold(prop, name) {
			return true
		}
		content, found = s.Attr("content")
		return !found
	})
	return strings.TrimSpace(content), found
}

// VisibleText returns the lowercased page text with scripts, styles and
// templates removed and whitespace collapsed. Block elements are word
// boundaries, so "<li>Home</li><li>Buy</li>" reads "home buy".
func (d *Document) VisibleText() string {
	var b strings.Builder
	for _, n := range d.doc.Nodes {
		writeVisibleText(&b, n)
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}

func writeVisibleText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if _, hidden := hiddenTags[n.Data]; hidden {
			return
		}
		if _, block := blockTags[n.Data]; block {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisibleText(b, c)
	}
}

// collectTypes walks a decoded JSON-LD value: a single node, an array of nodes,
// or a node carrying an @graph.
func collectTypes(v any) []string {
	switch node := v.(type) {
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, collectTypes(item)...)
		}
		return out
	case map[string]any:
		var out []string
		switch t := node["@type"].(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
		if graph, ok := node["@graph"]; ok {
			out = append(out, collectTypes(graph)...)
		}
		return out
	default:
		return nil
	}
}
