package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during canonicalization. They
// identify campaigns, not content.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"gclid":        {},
	"fbclid":       {},
	"mc_cid":       {},
	"mc_eid":       {},
	"ref":          {},
	"ref_src":      {},
}

// CanonicalizeURL normalizes a URL to the stable key used for deduplication.
// It lowercases the scheme and host, removes default ports and fragments,
// strips tracking query parameters, sorts the remaining query, and collapses
// trailing slashes on non-root paths.
func CanonicalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return canonicalize(u)
}

func canonicalize(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if _, tracking := trackingParams[strings.ToLower(key)]; tracking {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// hostOf extracts the lowercased hostname, or "" when the URL is unusable.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
