package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsMaxBytes caps how much of a robots.txt body is read.
const robotsMaxBytes = 1 << 20

// DomainPolicy is the cached crawl policy for one host. Immutable once
// fetched; shared read-only across workers.
type DomainPolicy struct {
	Host       string
	group      *robotstxt.Group
	CrawlDelay time.Duration
	FetchedOK  bool
}

// Allows tests a URL path against the policy's disallow rules.
func (p *DomainPolicy) Allows(path string) bool {
	if p == nil || p.group == nil {
		return true
	}
	return p.group.Test(path)
}

// RobotsCache fetches, parses, and caches robots.txt per host for the
// duration of a run. Unreachable or malformed robots files degrade to
// allow-all with the configured default delay: an absent robots.txt must not
// block crawling, but is no invitation to hammer the host.
type RobotsCache struct {
	client       *http.Client
	userAgent    string
	defaultDelay time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	policies map[string]*DomainPolicy
	fetching map[string]*sync.Once
}

// NewRobotsCache builds a RobotsCache.
func NewRobotsCache(userAgent string, defaultDelay time.Duration, logger *zap.Logger) *RobotsCache {
	return &RobotsCache{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent:    userAgent,
		defaultDelay: defaultDelay,
		logger:       logger,
		policies:     make(map[string]*DomainPolicy),
		fetching:     make(map[string]*sync.Once),
	}
}

// Policy returns the cached DomainPolicy for the URL's host, fetching
// robots.txt on first encounter. Concurrent callers for the same host share a
// single fetch.
func (r *RobotsCache) Policy(ctx context.Context, parsed *url.URL) *DomainPolicy {
	hostKey := strings.ToLower(parsed.Host)

	r.mu.Lock()
	if policy, ok := r.policies[hostKey]; ok {
		r.mu.Unlock()
		return policy
	}
	once, ok := r.fetching[hostKey]
	if !ok {
		once = &sync.Once{}
		r.fetching[hostKey] = once
	}
	r.mu.Unlock()

	once.Do(func() {
		policy := r.fetch(ctx, parsed.Scheme, hostKey)
		r.mu.Lock()
		r.policies[hostKey] = policy
		delete(r.fetching, hostKey)
		r.mu.Unlock()
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if policy, ok := r.policies[hostKey]; ok {
		return policy
	}
	// The once winner raced a context cancellation; fall back to permissive.
	return &DomainPolicy{Host: hostKey, CrawlDelay: r.defaultDelay}
}

// Allowed reports whether rawURL may be fetched under its host's robots
// rules. Unparseable URLs are denied.
func (r *RobotsCache) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	target := parsed.Path
	if parsed.RawQuery != "" {
		// Disallow patterns may match on the query ("Disallow: /search?").
		target += "?" + parsed.RawQuery
	}
	return r.Policy(ctx, parsed).Allows(target)
}

// CrawlDelay returns the delay the host requests, or the default when the
// host has not been seen or requested none.
func (r *RobotsCache) CrawlDelay(_ context.Context, host string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if policy, ok := r.policies[strings.ToLower(host)]; ok && policy.CrawlDelay > 0 {
		return policy.CrawlDelay
	}
	return r.defaultDelay
}

func (r *RobotsCache) fetch(ctx context.Context, scheme, hostKey string) *DomainPolicy {
	fallback := &DomainPolicy{Host: hostKey, CrawlDelay: r.defaultDelay}
	if scheme == "" {
		scheme = "http"
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, hostKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return fallback
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("robots fetch failed; allowing host with default delay",
			zap.String("host", hostKey), zap.Error(err))
		return fallback
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
	if err != nil {
		r.logger.Warn("robots read failed; allowing host with default delay",
			zap.String("host", hostKey), zap.Error(err))
		return fallback
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		r.logger.Warn("robots parse failed; allowing host with default delay",
			zap.String("host", hostKey), zap.Error(err))
		return fallback
	}

	policy := &DomainPolicy{Host: hostKey, CrawlDelay: r.defaultDelay, FetchedOK: true}
	if group := data.FindGroup(r.userAgent); group != nil {
		policy.group = group
		if group.CrawlDelay > policy.CrawlDelay {
			policy.CrawlDelay = group.CrawlDelay
		}
	}
	return policy
}
