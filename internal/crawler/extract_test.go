package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/agarwalvipin/crawlai/internal/clock/system"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html>
<head>
	<title>  Widget   Review </title>
	<meta property="article:section" content="Reviews">
</head>
<body>
	<nav><a href="/">Home</a> <a href="/reviews">Reviews</a></nav>
	<header><h1 class="header">Site Banner</h1></header>
	<article>
		<h1>Widget Review</h1>
		<p>The widget performed admirably under sustained load testing.</p>
		<p>Battery   life exceeded
		the advertised figures.</p>
		<ul><li>Pros: sturdy build</li><li>Cons: heavy</li></ul>
	</article>
	<aside class="sidebar">Trending now</aside>
	<footer>Copyright</footer>
	<script>analytics();</script>
</body>
</html>`

func TestHeuristicExtractorIsolatesMainContent(t *testing.T) {
	e := NewHeuristicExtractor(10, false, system.New())
	record, err := e.Extract(context.Background(), staticPage("https://example.com/review", articleHTML))
	require.NoError(t, err)

	require.Equal(t, "Widget Review", record.Title)
	require.Equal(t, StrategyHeuristic, record.ExtractionStrategy)
	require.NotNil(t, record.Metadata.Category)
	require.Equal(t, "Reviews", *record.Metadata.Category)
	require.WithinDuration(t, time.Now().UTC(), record.Metadata.Timestamp, time.Minute)
	require.Nil(t, record.HTML)

	require.Contains(t, record.MainText, "Widget Review\n\n")
	require.Contains(t, record.MainText, "The widget performed admirably under sustained load testing.")
	require.Contains(t, record.MainText, "Battery life exceeded the advertised figures.")
	require.Contains(t, record.MainText, "Pros: sturdy build")

	require.NotContains(t, record.MainText, "Home")
	require.NotContains(t, record.MainText, "Site Banner")
	require.NotContains(t, record.MainText, "Trending now")
	require.NotContains(t, record.MainText, "Copyright")
	require.NotContains(t, record.MainText, "analytics")
}

func TestHeuristicExtractorIncludeHTML(t *testing.T) {
	e := NewHeuristicExtractor(10, true, system.New())
	record, err := e.Extract(context.Background(), staticPage("https://example.com/review", articleHTML))
	require.NoError(t, err)
	require.NotNil(t, record.HTML)
	require.Equal(t, articleHTML, *record.HTML)
}

func TestHeuristicExtractorEmptyPage(t *testing.T) {
	e := NewHeuristicExtractor(80, false, system.New())
	page := staticPage("https://example.com/thin", `<html><body><p>hi</p></body></html>`)
	_, err := e.Extract(context.Background(), page)
	require.ErrorIs(t, err, ErrExtractionEmpty)
}

func TestCSSExtractor(t *testing.T) {
	e := NewCSSExtractor("div.product-desc", 5, false, system.New())
	page := staticPage("https://example.com/p", `<html><body>
		<div class="product-desc">First   block</div>
		<p>ignored elsewhere</p>
		<div class="product-desc">Second block</div></body></html>`)

	record, err := e.Extract(context.Background(), page)
	require.NoError(t, err)
	require.Equal(t, StrategyCSS, record.ExtractionStrategy)
	require.Equal(t, "First block\n\nSecond block", record.MainText)
}

func TestCSSExtractorNoMatches(t *testing.T) {
	e := NewCSSExtractor("div.missing", 5, false, system.New())
	page := staticPage("https://example.com/p", `<html><body><p>text</p></body></html>`)
	_, err := e.Extract(context.Background(), page)
	require.ErrorIs(t, err, ErrExtractionEmpty)
}

func TestExtractLinks(t *testing.T) {
	page := staticPage("https://example.com/dir/page", `<html><body>
		<a href="/absolute">a</a>
		<a href="relative">b</a>
		<a href="https://other.org/x">c</a>
		<a href="#section">skip</a>
		<a href="mailto:x@example.com">skip</a>
		<a href="javascript:void(0)">skip</a>
		<a href="/absolute">dup</a>
	</body></html>`)

	links := extractLinks(page)
	require.Equal(t, []string{
		"https://example.com/absolute",
		"https://example.com/dir/relative",
		"https://other.org/x",
	}, links)
}

func TestExtractLinksUsesFinalURL(t *testing.T) {
	page := Page{
		URL:      "https://example.com/old",
		FinalURL: "https://example.com/moved/here",
		Body:     []byte(`<a href="sibling">s</a>`),
	}
	links := extractLinks(page)
	require.Equal(t, []string{"https://example.com/moved/sibling"}, links)
}

func TestNormalizeWhitespace(t *testing.T) {
	require.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c "))
	require.Equal(t, "", normalizeWhitespace("   \n "))
}
