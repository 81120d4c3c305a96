// Package crawler implements the recursive crawl engine: the frontier, the
// politeness controller, the dual-mode fetcher (static colly / headless
// chromedp), pagination and dynamic-content detection, pluggable content
// extraction, deduplication, and the JSON-lines sink, all orchestrated by the
// Engine worker pool.
package crawler
