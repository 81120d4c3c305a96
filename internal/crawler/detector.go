package crawler

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// spaMarkers indicate an application shell whose content arrives via script.
var spaMarkers = [][]byte{
	[]byte("__next_data__"),
	[]byte("data-reactroot"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("ng-app"),
	[]byte("window.__apollo_state__"),
}

// scrollMarkers indicate lazy loading triggered by scrolling.
var scrollMarkers = []string{
	"infinite-scroll",
	"data-infinite",
	"load-more",
	"data-lazy-load",
	"data-next-page-url",
}

// nextLinkTexts matches the textual "next page" conventions.
var nextLinkTexts = map[string]struct{}{
	"next":        {},
	"next page":   {},
	"next ›":      {},
	"next »":      {},
	"older":       {},
	"older posts": {},
	"›":           {},
	"»":           {},
}

// HeuristicDetector flags pages that need headless rendering and finds
// pagination or infinite-scroll continuations in fetched markup.
type HeuristicDetector struct {
	minHTMLBytes int
}

// NewHeuristicDetector constructs a detector with the configured threshold.
func NewHeuristicDetector(minHTMLBytes int) *HeuristicDetector {
	return &HeuristicDetector{minHTMLBytes: minHTMLBytes}
}

// NeedsRender reports whether the static body looks script-generated: empty
// or suspiciously short markup, or a known application-shell marker.
func (d *HeuristicDetector) NeedsRender(page Page) bool {
	if len(page.Body) == 0 {
		return true
	}
	if d.minHTMLBytes > 0 && len(page.Body) < d.minHTMLBytes {
		return true
	}
	lower := bytes.ToLower(page.Body)
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Detect inspects the page for a continuation. Next-page links win over
// infinite-scroll markers so a crawl follows explicit pagination when a page
// offers both.
func (d *HeuristicDetector) Detect(page Page) DetectionResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return DetectionResult{Kind: DetectNone}
	}

	if next := d.findNextLink(doc, page); next != "" {
		return DetectionResult{Kind: DetectNextPage, NextURL: next}
	}
	if d.hasScrollMarkers(doc, page.Body) {
		return DetectionResult{Kind: DetectInfiniteScroll}
	}
	return DetectionResult{Kind: DetectNone}
}

func (d *HeuristicDetector) findNextLink(doc *goquery.Document, page Page) string {
	base, err := url.Parse(page.baseURL())
	if err != nil {
		return ""
	}

	// rel="next" is the structural convention; honor it first.
	if href, ok := doc.Find(`link[rel="next"], a[rel="next"]`).First().Attr("href"); ok {
		return resolveNext(base, href)
	}

	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if _, ok := nextLinkTexts[text]; ok {
			found = s.AttrOr("href", "")
			return false
		}
		class := strings.ToLower(s.AttrOr("class", ""))
		if strings.Contains(class, "next") && strings.Contains(class, "pag") {
			found = s.AttrOr("href", "")
			return false
		}
		return true
	})
	if found != "" {
		return resolveNext(base, found)
	}

	// Numbered pagination: inside a pagination container, follow the link
	// immediately after the current page marker.
	pager := doc.Find(`nav.pagination, ul.pagination, div.pagination, .pager`).First()
	if pager.Length() > 0 {
		current := pager.Find(".current, .active, [aria-current]").First()
		if current.Length() > 0 {
			if href, ok := nextNumberedLink(pager, current); ok {
				return resolveNext(base, href)
			}
		}
	}
	return ""
}

func nextNumberedLink(pager, current *goquery.Selection) (string, bool) {
	currentNum, ok := pageNumber(current.Text())
	if !ok {
		return "", false
	}
	var href string
	pager.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if num, numOK := pageNumber(s.Text()); numOK && num == currentNum+1 {
			href = s.AttrOr("href", "")
			return false
		}
		return true
	})
	return href, href != ""
}

func pageNumber(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	n := 0
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func (d *HeuristicDetector) hasScrollMarkers(doc *goquery.Document, body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range scrollMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return doc.Find(`[data-infinite-scroll], .infinite-scroll, button.load-more, a.load-more`).Length() > 0
}

func resolveNext(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// baseURL picks the URL links should resolve against: the post-redirect
// location when known.
func (p Page) baseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}
