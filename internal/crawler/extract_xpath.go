package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// XPathExtractor extracts text from the nodes matching a configured XPath
// expression.
type XPathExtractor struct {
	expr          string
	minTextLength int
	includeHTML   bool
	clock         Clock
}

// NewXPathExtractor builds an XPath-driven extraction strategy. The
// expression is validated lazily on first use.
func NewXPathExtractor(expr string, minTextLength int, includeHTML bool, clock Clock) *XPathExtractor {
	return &XPathExtractor{
		expr:          expr,
		minTextLength: minTextLength,
		includeHTML:   includeHTML,
		clock:         clock,
	}
}

// Strategy implements Extractor.
func (e *XPathExtractor) Strategy() string { return StrategyXPath }

// Extract implements Extractor.
func (e *XPathExtractor) Extract(_ context.Context, page Page) (PageRecord, error) {
	root, err := htmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return PageRecord{}, fmt.Errorf("parse html: %w", err)
	}
	nodes, err := htmlquery.QueryAll(root, e.expr)
	if err != nil {
		return PageRecord{}, fmt.Errorf("xpath %q: %w", e.expr, err)
	}

	var parts []string
	for _, node := range nodes {
		if part := normalizeWhitespace(htmlquery.InnerText(node)); part != "" {
			parts = append(parts, part)
		}
	}
	text := strings.Join(parts, "\n\n")
	if len(text) < e.minTextLength {
		return PageRecord{}, ErrExtractionEmpty
	}

	title, category := "", (*string)(nil)
	if doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(page.Body)); docErr == nil {
		title, category = docMetadata(doc)
	}
	return assembleRecord(page, title, category, text, e.Strategy(), e.includeHTML, e.clock), nil
}
