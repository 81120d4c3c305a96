package crawler

import (
	"context"
	"strings"
	"sync"
)

// urlMarker is the slice of the dedup store the frontier needs: an atomic
// membership-check-and-insert over canonical URLs.
type urlMarker interface {
	MarkURL(canonical string) bool
}

// domainScope restricts the crawl to the seed hosts and any configured extra
// domains, including their subdomains.
type domainScope struct {
	hosts map[string]struct{}
}

func newDomainScope(hosts []string) *domainScope {
	scope := &domainScope{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			scope.hosts[h] = struct{}{}
		}
	}
	return scope
}

func (s *domainScope) contains(host string) bool {
	host = strings.ToLower(host)
	if _, ok := s.hosts[host]; ok {
		return true
	}
	for allowed := range s.hosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// Frontier is the shared traversal queue. Entries dequeue in discovery (FIFO)
// order; membership is checked atomically against the dedup store so the same
// canonical URL is never queued or visited twice. Outstanding work counts both
// queued and in-flight entries, which lets Next detect completion without
// polling.
type Frontier struct {
	mu          sync.Mutex
	cond        *sync.Cond
	entries     []FrontierEntry
	outstanding int

	scope          *domainScope
	maxDepth       int
	seen           urlMarker
	preferSameHost bool
}

// NewFrontier builds a frontier scoped to allowedHosts and bounded by maxDepth.
func NewFrontier(allowedHosts []string, maxDepth int, seen urlMarker, preferSameHost bool) *Frontier {
	f := &Frontier{
		scope:          newDomainScope(allowedHosts),
		maxDepth:       maxDepth,
		seen:           seen,
		preferSameHost: preferSameHost,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add enqueues rawURL at the given depth if it canonicalizes, falls inside the
// domain scope and depth budget, and has not been seen. Returns true when the
// entry was queued.
func (f *Frontier) Add(rawURL string, depth int, origin string) bool {
	return f.add(rawURL, depth, origin, false)
}

// AddPagination enqueues a next-page link at the depth of its originating
// page. Pagination follows a logical sequence, so it must not consume depth
// budget.
func (f *Frontier) AddPagination(rawURL string, originDepth int, origin string) bool {
	return f.add(rawURL, originDepth, origin, true)
}

func (f *Frontier) add(rawURL string, depth int, origin string, pagination bool) bool {
	if depth > f.maxDepth {
		return false
	}
	canonical, err := CanonicalizeURL(rawURL)
	if err != nil {
		return false
	}
	if !f.scope.contains(hostOf(canonical)) {
		return false
	}
	if !f.seen.MarkURL(canonical) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, FrontierEntry{
		URL:          rawURL,
		CanonicalURL: canonical,
		Depth:        depth,
		Origin:       origin,
		Pagination:   pagination,
	})
	f.outstanding++
	f.cond.Signal()
	return true
}

// Next blocks until an entry is available, all outstanding work has finished
// (ErrFrontierDone), or ctx ends. lastHost biases dequeue toward the worker's
// previous domain when same-host preference is enabled, improving politeness
// cache reuse. Callers must invoke Done once per dequeued entry.
func (f *Frontier) Next(ctx context.Context, lastHost string) (FrontierEntry, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if err := ctx.Err(); err != nil {
			return FrontierEntry{}, err
		}
		if len(f.entries) > 0 {
			return f.pop(lastHost), nil
		}
		if f.outstanding == 0 {
			return FrontierEntry{}, ErrFrontierDone
		}
		f.cond.Wait()
	}
}

func (f *Frontier) pop(lastHost string) FrontierEntry {
	idx := 0
	if f.preferSameHost && lastHost != "" {
		for i, e := range f.entries {
			if hostOf(e.CanonicalURL) == lastHost {
				idx = i
				break
			}
		}
	}
	entry := f.entries[idx]
	f.entries = append(f.entries[:idx], f.entries[idx+1:]...)
	return entry
}

// Done marks a previously dequeued entry as finished. When the outstanding
// count reaches zero every blocked Next call is released.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outstanding > 0 {
		f.outstanding--
	}
	if f.outstanding == 0 {
		f.cond.Broadcast()
	}
}

// Len returns the number of queued (not in-flight) entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// InScope reports whether host falls inside the crawl's domain scope.
func (f *Frontier) InScope(host string) bool {
	return f.scope.contains(host)
}
