package crawler

import (
	"net/http"
	"time"
)

// FrontierEntry is a URL waiting to be crawled. Depth counts link hops from a
// seed; pagination entries inherit the depth of the page that linked them.
type FrontierEntry struct {
	URL          string
	CanonicalURL string
	Depth        int
	Origin       string
	Pagination   bool
}

// Page is raw fetched content plus transport metadata.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Rendered   bool
}

// PageRecord is the persisted output for one accepted page.
type PageRecord struct {
	URL                string         `json:"url"`
	CanonicalURL       string         `json:"canonical_url"`
	Title              string         `json:"title"`
	MainText           string         `json:"main_text"`
	HTML               *string        `json:"html"`
	Metadata           RecordMetadata `json:"metadata"`
	ExtractionStrategy string         `json:"extraction_strategy"`
}

// RecordMetadata carries per-record bookkeeping fields.
type RecordMetadata struct {
	Timestamp   time.Time `json:"timestamp"`
	Category    *string   `json:"category"`
	ContentHash string    `json:"content_hash"`
}

// Detection is the result of inspecting a page for follow-up content.
type Detection int

// Detection outcomes.
const (
	DetectNone Detection = iota
	DetectNextPage
	DetectInfiniteScroll
)

func (d Detection) String() string {
	switch d {
	case DetectNextPage:
		return "next-page"
	case DetectInfiniteScroll:
		return "infinite-scroll"
	default:
		return "none"
	}
}

// DetectionResult pairs a Detection with the resolved next-page URL when one
// was found.
type DetectionResult struct {
	Kind    Detection
	NextURL string
}

// Rejection reasons reported in outcomes and the failure log.
const (
	ReasonRobotsDisallowed = "robots-disallowed"
	ReasonExtractionEmpty  = "extraction-empty"
	ReasonDuplicateURL     = "duplicate-url"
	ReasonDuplicateContent = "duplicate-content"
)

// RunStats summarizes one crawl run.
type RunStats struct {
	RunID    string
	Accepted int
	Rejected int
	Failed   int
}
