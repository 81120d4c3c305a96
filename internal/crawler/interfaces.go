package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a URL without executing JavaScript.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer loads a URL in a headless browsing context. scrollSteps bounds the
// number of scroll simulation rounds performed before the DOM is captured.
type Renderer interface {
	Render(ctx context.Context, rawURL string, scrollSteps int) (Page, error)
	Close(ctx context.Context) error
}

// Detector inspects fetched content for rendering needs and follow-up
// pagination or infinite-scroll content.
type Detector interface {
	NeedsRender(page Page) bool
	Detect(page Page) DetectionResult
}

// Extractor isolates main content from a fetched page. Implementations return
// ErrExtractionEmpty when no text above the configured minimum survives.
type Extractor interface {
	Extract(ctx context.Context, page Page) (PageRecord, error)
	Strategy() string
}

// RobotsPolicy answers whether a URL may be fetched and what delay the domain
// requests.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context, host string) time.Duration
}

// Sink persists accepted records and non-fatal failures.
type Sink interface {
	Write(record PageRecord) error
	WriteFailure(url, reason string, at time.Time) error
	Close() error
}

// RetryPolicy decides whether and when to retry a failed fetch.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes content fingerprints for deduplication.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (a seam for testing).
type Clock interface {
	Now() time.Time
}
