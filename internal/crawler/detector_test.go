package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func staticPage(url, body string) Page {
	return Page{URL: url, FinalURL: url, StatusCode: 200, Body: []byte(body)}
}

func TestHeuristicDetectorNeedsRender(t *testing.T) {
	d := NewHeuristicDetector(100)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "empty body", body: "", want: true},
		{name: "tiny body", body: "<html><body>hi</body></html>", want: true},
		{name: "react shell", body: pad(`<div id="root"></div>`, 200), want: true},
		{name: "next shell", body: pad(`<script id="__NEXT_DATA__"></script>`, 200), want: true},
		{name: "plain document", body: pad("<p>server rendered content</p>", 200), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.NeedsRender(staticPage("https://example.com/", tt.body))
			require.Equal(t, tt.want, got)
		})
	}
}

// pad grows body past the detector's size threshold without adding markers.
func pad(body string, size int) string {
	if len(body) >= size {
		return body
	}
	return body + "<!-- " + strings.Repeat("x", size-len(body)) + " -->"
}

func TestDetectRelNextLink(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/list", `<html><head>
		<link rel="next" href="/list?page=2"></head><body></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectNextPage, res.Kind)
	require.Equal(t, "https://example.com/list?page=2", res.NextURL)
}

func TestDetectNextLinkText(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/blog", `<html><body>
		<a href="/blog/page/2">Next &rsaquo;</a></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectNextPage, res.Kind)
	require.Equal(t, "https://example.com/blog/page/2", res.NextURL)
}

func TestDetectNumberedPagination(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/items", `<html><body>
		<ul class="pagination">
			<li><a href="/items?p=1">1</a></li>
			<li class="current">2</li>
			<li><a href="/items?p=3">3</a></li>
		</ul></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectNextPage, res.Kind)
	require.Equal(t, "https://example.com/items?p=3", res.NextURL)
}

func TestDetectInfiniteScroll(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/feed", `<html><body>
		<div data-infinite-scroll="true"></div></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectInfiniteScroll, res.Kind)
	require.Empty(t, res.NextURL)
}

func TestDetectNextPageWinsOverScroll(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/feed", `<html><body>
		<div class="infinite-scroll"></div>
		<a rel="next" href="/feed?page=2">more</a></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectNextPage, res.Kind)
}

func TestDetectNothing(t *testing.T) {
	d := NewHeuristicDetector(0)
	page := staticPage("https://example.com/about", `<html><body>
		<p>Just a normal page with <a href="/contact">a link</a>.</p></body></html>`)

	res := d.Detect(page)
	require.Equal(t, DetectNone, res.Kind)
}
