package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// boilerplateSelector matches regions stripped before main-content isolation.
const boilerplateSelector = `script, style, noscript, iframe, svg, form, nav, header, footer, aside,
	[role="navigation"], [role="banner"], [role="contentinfo"],
	.nav, .navbar, .menu, .sidebar, .breadcrumb, .footer, .header,
	.ad, .ads, .advert, .advertisement, .cookie-banner, .social-share`

// mainContainerSelector lists containers tried, in order, as the page's main
// content region before falling back to <body>.
var mainContainerSelectors = []string{
	"main", "article", `[role="main"]`,
	"#content", "#main", ".content", ".main-content", ".post", ".article-body",
}

// blockSelector enumerates the block-level elements whose boundaries become
// paragraph breaks in the extracted text.
const blockSelector = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, dt, dd"

// HeuristicExtractor isolates main text by structural boilerplate removal:
// navigation, ads, and chrome are stripped, the densest content container is
// selected, and block boundaries become paragraph breaks.
type HeuristicExtractor struct {
	minTextLength int
	includeHTML   bool
	clock         Clock
}

// NewHeuristicExtractor builds the default extraction strategy.
func NewHeuristicExtractor(minTextLength int, includeHTML bool, clock Clock) *HeuristicExtractor {
	return &HeuristicExtractor{
		minTextLength: minTextLength,
		includeHTML:   includeHTML,
		clock:         clock,
	}
}

// Strategy implements Extractor.
func (e *HeuristicExtractor) Strategy() string { return StrategyHeuristic }

// Extract implements Extractor.
func (e *HeuristicExtractor) Extract(_ context.Context, page Page) (PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return PageRecord{}, fmt.Errorf("parse html: %w", err)
	}

	title, category := docMetadata(doc)
	doc.Find(boilerplateSelector).Remove()

	container := doc.Find("body")
	for _, sel := range mainContainerSelectors {
		if candidate := doc.Find(sel).First(); candidate.Length() > 0 {
			if len(normalizeWhitespace(candidate.Text())) > 0 {
				container = candidate
				break
			}
		}
	}

	text := blockText(container)
	if len(text) < e.minTextLength {
		return PageRecord{}, ErrExtractionEmpty
	}

	return assembleRecord(page, title, category, text, e.Strategy(), e.includeHTML, e.clock), nil
}

// CSSExtractor extracts text from the nodes matching a configured selector.
type CSSExtractor struct {
	selector      string
	minTextLength int
	includeHTML   bool
	clock         Clock
}

// NewCSSExtractor builds a selector-driven extraction strategy.
func NewCSSExtractor(selector string, minTextLength int, includeHTML bool, clock Clock) *CSSExtractor {
	return &CSSExtractor{
		selector:      selector,
		minTextLength: minTextLength,
		includeHTML:   includeHTML,
		clock:         clock,
	}
}

// Strategy implements Extractor.
func (e *CSSExtractor) Strategy() string { return StrategyCSS }

// Extract implements Extractor.
func (e *CSSExtractor) Extract(_ context.Context, page Page) (PageRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return PageRecord{}, fmt.Errorf("parse html: %w", err)
	}

	title, category := docMetadata(doc)

	var parts []string
	doc.Find(e.selector).Each(func(_ int, s *goquery.Selection) {
		if part := normalizeWhitespace(s.Text()); part != "" {
			parts = append(parts, part)
		}
	})
	text := strings.Join(parts, "\n\n")
	if len(text) < e.minTextLength {
		return PageRecord{}, ErrExtractionEmpty
	}

	return assembleRecord(page, title, category, text, e.Strategy(), e.includeHTML, e.clock), nil
}

// blockText emits one line per block element, preserving paragraph
// boundaries while collapsing whitespace within each block. Containers with
// no block markup fall back to their collapsed text.
func blockText(container *goquery.Selection) string {
	var parts []string
	container.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Skip blocks whose text is fully covered by a nested block (e.g. a
		// list item wrapping paragraphs) to avoid duplicated output.
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if part := normalizeWhitespace(s.Text()); part != "" {
			parts = append(parts, part)
		}
	})
	if len(parts) == 0 {
		return normalizeWhitespace(container.Text())
	}
	return strings.Join(parts, "\n\n")
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func docMetadata(doc *goquery.Document) (title string, category *string) {
	title = normalizeWhitespace(doc.Find("title").First().Text())
	for _, sel := range []string{
		`meta[property="article:section"]`,
		`meta[name="category"]`,
		`meta[property="og:type"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if content = strings.TrimSpace(content); content != "" {
				category = &content
				return title, category
			}
		}
	}
	return title, nil
}

func assembleRecord(page Page, title string, category *string, text, strategy string, includeHTML bool, clock Clock) PageRecord {
	record := PageRecord{
		URL:                page.URL,
		Title:              title,
		MainText:           text,
		ExtractionStrategy: strategy,
		Metadata: RecordMetadata{
			Timestamp: clock.Now(),
			Category:  category,
		},
	}
	if includeHTML {
		html := string(page.Body)
		record.HTML = &html
	}
	return record
}

// extractLinks returns every followable href on the page, resolved against
// its final URL. Canonicalization and scope filtering happen at enqueue time.
func extractLinks(page Page) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(page.baseURL())
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, parseErr := url.Parse(href)
		if parseErr != nil {
			return
		}
		resolved := base.ResolveReference(ref).String()
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		links = append(links, resolved)
	})
	return links
}
