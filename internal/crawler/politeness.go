package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// penaltyCap bounds how far rate-limit penalties can stretch a domain's delay.
const penaltyCap = 10

// domainBudget is the mutable politeness state for one host.
type domainBudget struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	slots     *semaphore.Weighted
	baseDelay time.Duration
	delay     time.Duration
}

func (b *domainBudget) penalize() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := b.delay * 2
	if next == 0 {
		next = time.Second
	}
	base := b.baseDelay
	if base == 0 {
		base = time.Second
	}
	if maxDelay := base * penaltyCap; next > maxDelay {
		next = maxDelay
	}
	if next > b.delay {
		b.delay = next
		b.limiter.SetLimit(rate.Every(next))
	}
	return b.delay
}

// Politeness gates every fetch behind a per-domain delay and concurrency
// budget. Authorized fetch starts to one host are spaced at least the host's
// effective crawl-delay apart; in-flight requests per host never exceed the
// configured cap.
type Politeness struct {
	robots        RobotsPolicy
	floorDelay    time.Duration
	maxConcurrent int64

	mu      sync.Mutex
	domains map[string]*domainBudget
}

// NewPoliteness builds a controller. floorDelay is the minimum spacing applied
// to every host regardless of what robots.txt requests.
func NewPoliteness(robots RobotsPolicy, floorDelay time.Duration, maxConcurrent int) *Politeness {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Politeness{
		robots:        robots,
		floorDelay:    floorDelay,
		maxConcurrent: int64(maxConcurrent),
		domains:       make(map[string]*domainBudget),
	}
}

// Acquire blocks until host may be fetched, returning a release func that
// must run on every exit path of the fetch.
func (p *Politeness) Acquire(ctx context.Context, host string) (func(), error) {
	budget := p.budgetFor(ctx, host)

	if err := budget.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire domain slot: %w", err)
	}
	if err := budget.limiter.Wait(ctx); err != nil {
		budget.slots.Release(1)
		return nil, fmt.Errorf("wait domain delay: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() { budget.slots.Release(1) })
	}
	return release, nil
}

// Penalize doubles the host's effective delay in response to a rate-limit
// signal, capped at 10x the base. The penalty persists for the rest of the
// run. Returns the new effective delay.
func (p *Politeness) Penalize(ctx context.Context, host string) time.Duration {
	return p.budgetFor(ctx, host).penalize()
}

// Delay reports the host's current effective delay.
func (p *Politeness) Delay(ctx context.Context, host string) time.Duration {
	budget := p.budgetFor(ctx, host)
	budget.mu.Lock()
	defer budget.mu.Unlock()
	return budget.delay
}

func (p *Politeness) budgetFor(ctx context.Context, host string) *domainBudget {
	key := strings.ToLower(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	if budget, ok := p.domains[key]; ok {
		return budget
	}

	delay := p.floorDelay
	if p.robots != nil {
		if robotsDelay := p.robots.CrawlDelay(ctx, key); robotsDelay > delay {
			delay = robotsDelay
		}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	budget := &domainBudget{
		limiter:   limiter,
		slots:     semaphore.NewWeighted(p.maxConcurrent),
		baseDelay: delay,
		delay:     delay,
	}
	p.domains[key] = budget
	return budget
}
