package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors shared across the engine.
var (
	// ErrExtractionEmpty is returned when no usable text could be isolated.
	ErrExtractionEmpty = errors.New("extraction produced no text")

	// ErrFrontierDone signals that the frontier is empty and no jobs remain
	// in flight.
	ErrFrontierDone = errors.New("frontier exhausted")

	// ErrStartURLInvalid marks an unusable seed URL (fatal config error).
	ErrStartURLInvalid = errors.New("invalid start url")

	// ErrStartUnreachable marks a run whose seeds all failed before any page
	// was accepted.
	ErrStartUnreachable = errors.New("start url unreachable")

	// ErrOutputFile marks an output path that could not be opened or written.
	ErrOutputFile = errors.New("output file not writable")

	// ErrRendererDisabled indicates rendering has been disabled via configuration.
	ErrRendererDisabled = errors.New("renderer disabled")
)

// FetchError wraps a failed fetch with enough context to classify it.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying: timeouts,
// connection resets, 5xx responses, and rate limiting. Everything else
// (404, malformed URLs, TLS failures) is permanent.
func (e *FetchError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode >= 400 {
		return false
	}
	return transientNetErr(e.Err)
}

// RateLimited reports whether the server signalled throttling.
func (e *FetchError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func transientNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// Resets and refused connections are worth another attempt.
		return true
	}
	return false
}
