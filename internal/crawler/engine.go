package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine drives a fixed-size worker pool over the frontier, executing the
// per-URL pipeline: politeness authorization, static fetch, optional render
// escalation, pagination detection, extraction, dedup, and persistence.
type Engine struct {
	cfg       Config
	frontier  *Frontier
	dedup     *DedupStore
	robots    RobotsPolicy
	polite    *Politeness
	fetcher   Fetcher
	renderer  Renderer
	detector  Detector
	extractor Extractor
	retry     RetryPolicy
	sink      Sink
	clock     Clock
	logger    *zap.Logger

	accepted atomic.Int64
	rejected atomic.Int64
	failed   atomic.Int64

	seedErrMu sync.Mutex
	seedErr   error

	fatalMu  sync.Mutex
	fatalErr error
	cancel   context.CancelFunc

	runID string
}

// NewEngine wires the engine together. renderer may be nil when dynamic
// rendering is disabled.
func NewEngine(
	cfg Config,
	fetcher Fetcher,
	renderer Renderer,
	detector Detector,
	extractor Extractor,
	robots RobotsPolicy,
	retry RetryPolicy,
	sink Sink,
	hasher Hasher,
	clock Clock,
	logger *zap.Logger,
) (*Engine, error) {
	seedHosts := make([]string, 0, len(cfg.StartURLs)+len(cfg.AllowedDomains))
	for _, seed := range cfg.StartURLs {
		canonical, err := CanonicalizeURL(seed)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStartURLInvalid, seed, err)
		}
		seedHosts = append(seedHosts, hostOf(canonical))
	}
	seedHosts = append(seedHosts, cfg.AllowedDomains...)

	dedup := NewDedupStore(hasher)
	return &Engine{
		cfg:       cfg,
		frontier:  NewFrontier(seedHosts, cfg.MaxDepth, dedup, cfg.PreferSameHost),
		dedup:     dedup,
		robots:    robots,
		polite:    NewPoliteness(robots, cfg.EffectiveDelay(), cfg.PerDomainConcurrency),
		fetcher:   fetcher,
		renderer:  renderer,
		detector:  detector,
		extractor: extractor,
		retry:     retry,
		sink:      sink,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Close releases the renderer, if any.
func (e *Engine) Close(ctx context.Context) error {
	if e.renderer == nil {
		return nil
	}
	return e.renderer.Close(ctx)
}

// Stats reports the run counters.
func (e *Engine) Stats() RunStats {
	return RunStats{
		RunID:    e.runID,
		Accepted: int(e.accepted.Load()),
		Rejected: int(e.rejected.Load()),
		Failed:   int(e.failed.Load()),
	}
}

// FrontierLen reports entries still queued (useful after an early stop).
func (e *Engine) FrontierLen() int { return e.frontier.Len() }

// Run crawls until the frontier drains, the page budget is hit, or ctx ends.
// Already-accepted records stay persisted no matter how the run stops.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.cancel = cancel

	e.runID = uuid.NewString()
	e.logger.Info("crawl starting",
		zap.String("run_id", e.runID),
		zap.Strings("seeds", e.cfg.StartURLs),
		zap.Int("workers", e.cfg.Workers),
		zap.Int("max_pages", e.cfg.MaxPages),
		zap.Int("max_depth", e.cfg.MaxDepth),
	)

	if err := e.loadCheckpoint(); err != nil {
		return err
	}

	queued := 0
	for _, seed := range e.cfg.StartURLs {
		if e.frontier.Add(seed, 0, "") {
			queued++
		}
	}
	if queued == 0 {
		return fmt.Errorf("%w: no seed URL could be queued", ErrStartURLInvalid)
	}

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	e.saveCheckpoint()

	stats := e.Stats()
	e.logger.Info("crawl finished",
		zap.String("run_id", e.runID),
		zap.Int("accepted", stats.Accepted),
		zap.Int("rejected", stats.Rejected),
		zap.Int("failed", stats.Failed),
		zap.Int("frontier_remaining", e.frontier.Len()),
	)

	e.fatalMu.Lock()
	fatal := e.fatalErr
	e.fatalMu.Unlock()
	if fatal != nil {
		return fatal
	}

	if stats.Accepted == 0 {
		e.seedErrMu.Lock()
		seedErr := e.seedErr
		e.seedErrMu.Unlock()
		if seedErr != nil {
			return fmt.Errorf("%w: %v", ErrStartUnreachable, seedErr)
		}
	}
	return nil
}

func (e *Engine) worker(ctx context.Context, id int) {
	lastHost := ""
	for {
		entry, err := e.frontier.Next(ctx, lastHost)
		if err != nil {
			if !errors.Is(err, ErrFrontierDone) && !errors.Is(err, context.Canceled) {
				e.logger.Debug("worker stopping", zap.Int("worker", id), zap.Error(err))
			}
			return
		}
		lastHost = hostOf(entry.CanonicalURL)
		e.process(ctx, entry)
		e.frontier.Done()
	}
}

// process runs one crawl job to a terminal state.
func (e *Engine) process(ctx context.Context, entry FrontierEntry) {
	parsed, err := url.Parse(entry.CanonicalURL)
	if err != nil {
		e.finishFailed(entry, fmt.Errorf("parse canonical url: %w", err))
		return
	}

	if !e.robots.Allowed(ctx, entry.CanonicalURL) {
		TotalRobotsDenials.Inc()
		e.finishRejected(entry, ReasonRobotsDisallowed, true)
		return
	}

	page, err := e.fetchWithRetry(ctx, entry, parsed.Host)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.finishFailed(entry, err)
		return
	}

	detection := e.detector.Detect(page)
	page, detection = e.maybeRender(ctx, entry, parsed.Host, page, detection)

	// Discovery happens before accept/reject: duplicates and empty pages
	// still contribute their outgoing links to the traversal.
	if detection.Kind == DetectNextPage && detection.NextURL != "" {
		e.frontier.AddPagination(detection.NextURL, entry.Depth, entry.CanonicalURL)
	}
	for _, link := range extractLinks(page) {
		e.frontier.Add(link, entry.Depth+1, entry.CanonicalURL)
	}

	finalCanonical, err := CanonicalizeURL(page.baseURL())
	if err != nil {
		finalCanonical = entry.CanonicalURL
	}
	if finalCanonical != entry.CanonicalURL {
		// Redirect landed elsewhere; claim the target so it is not queued again.
		e.dedup.MarkURL(finalCanonical)
	}

	record, err := e.extractor.Extract(ctx, page)
	if err != nil {
		if errors.Is(err, ErrExtractionEmpty) {
			e.finishRejected(entry, ReasonExtractionEmpty, true)
			return
		}
		if ctx.Err() != nil {
			return
		}
		e.finishFailed(entry, fmt.Errorf("extract: %w", err))
		return
	}

	hash, reason := e.dedup.Accept(finalCanonical, record.MainText)
	if reason != "" {
		// Expected traversal behavior; not an error and not failure-logged.
		e.finishRejected(entry, reason, false)
		return
	}

	record.URL = entry.URL
	record.CanonicalURL = finalCanonical
	record.Metadata.ContentHash = hash

	// The budget slot is claimed before the write: a worker whose claim
	// lands past MaxPages drops its page instead of persisting it.
	claimed := int(e.accepted.Add(1))
	if e.cfg.MaxPages > 0 && claimed > e.cfg.MaxPages {
		e.accepted.Add(-1)
		return
	}
	if e.cfg.MaxPages > 0 && claimed == e.cfg.MaxPages {
		e.logger.Info("page budget reached; stopping", zap.Int("max_pages", e.cfg.MaxPages))
		e.cancel()
	}

	if err := e.sink.Write(record); err != nil {
		e.accepted.Add(-1)
		e.fail(err)
		return
	}

	TotalAccepted.Inc()
	e.logger.Debug("page accepted",
		zap.String("url", entry.URL),
		zap.String("canonical_url", finalCanonical),
		zap.Int("depth", entry.Depth),
		zap.Bool("rendered", page.Rendered),
	)
}

// fetchWithRetry performs the static fetch under politeness authorization,
// retrying transient failures with backoff. Every attempt re-acquires the
// domain budget so retry spacing honors the crawl delay.
func (e *Engine) fetchWithRetry(ctx context.Context, entry FrontierEntry, host string) (Page, error) {
	attempt := 0
	for {
		page, err := e.fetchOnce(ctx, entry.CanonicalURL, host)
		if err == nil {
			return page, nil
		}

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.RateLimited() {
			TotalRateLimitHits.Inc()
			newDelay := e.polite.Penalize(ctx, host)
			e.logger.Warn("rate limited; increasing domain delay",
				zap.String("host", host), zap.Duration("delay", newDelay))
		}

		if !e.retry.ShouldRetry(err, attempt) {
			return Page{}, err
		}
		backoff := e.retry.Backoff(attempt)
		e.logger.Debug("retrying fetch",
			zap.String("url", entry.CanonicalURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		pause(ctx, backoff)
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("fetch aborted: %w", ctx.Err())
		}
		attempt++
	}
}

func (e *Engine) fetchOnce(ctx context.Context, rawURL, host string) (Page, error) {
	release, err := e.polite.Acquire(ctx, host)
	if err != nil {
		return Page{}, err
	}
	defer release()
	return e.fetcher.Fetch(ctx, rawURL)
}

// maybeRender escalates to the headless renderer when the static body looks
// script-generated or infinite scroll was detected. Render failures fall back
// to the static content.
func (e *Engine) maybeRender(ctx context.Context, entry FrontierEntry, host string, page Page, detection DetectionResult) (Page, DetectionResult) {
	if e.renderer == nil {
		return page, detection
	}
	needsRender := e.detector.NeedsRender(page)
	if !needsRender && detection.Kind != DetectInfiniteScroll {
		return page, detection
	}

	scrolls := 0
	if detection.Kind == DetectInfiniteScroll {
		scrolls = e.cfg.ScrollSteps
	}

	release, err := e.polite.Acquire(ctx, host)
	if err != nil {
		return page, detection
	}
	defer release()

	rendered, err := e.renderer.Render(ctx, entry.CanonicalURL, scrolls)
	if err != nil {
		e.logger.Warn("render failed; using static content",
			zap.String("url", entry.CanonicalURL), zap.Error(err))
		return page, detection
	}
	return rendered, e.detector.Detect(rendered)
}

func (e *Engine) finishRejected(entry FrontierEntry, reason string, logFailure bool) {
	TotalRejected.WithLabelValues(reason).Inc()
	e.rejected.Add(1)
	if logFailure {
		if err := e.sink.WriteFailure(entry.CanonicalURL, reason, e.clock.Now()); err != nil {
			e.logger.Warn("record failure entry", zap.Error(err))
		}
	}
	e.logger.Debug("page rejected",
		zap.String("url", entry.CanonicalURL),
		zap.String("reason", reason),
	)
}

func (e *Engine) finishFailed(entry FrontierEntry, cause error) {
	TotalFailed.Inc()
	e.failed.Add(1)
	if entry.Depth == 0 && !entry.Pagination {
		e.seedErrMu.Lock()
		if e.seedErr == nil {
			e.seedErr = cause
		}
		e.seedErrMu.Unlock()
	}
	if err := e.sink.WriteFailure(entry.CanonicalURL, cause.Error(), e.clock.Now()); err != nil {
		e.logger.Warn("record failure entry", zap.Error(err))
	}
	e.logger.Warn("page failed",
		zap.String("url", entry.CanonicalURL),
		zap.Int("depth", entry.Depth),
		zap.Error(cause),
	)
}

// fail records a fatal error (unwritable output) and stops the run.
func (e *Engine) fail(err error) {
	e.fatalMu.Lock()
	if e.fatalErr == nil {
		e.fatalErr = err
	}
	e.fatalMu.Unlock()
	e.logger.Error("fatal error; stopping crawl", zap.Error(err))
	e.cancel()
}

func (e *Engine) loadCheckpoint() error {
	if e.cfg.CheckpointFile == "" {
		return nil
	}
	f, err := os.Open(e.cfg.CheckpointFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := e.dedup.LoadCheckpoint(f); err != nil {
		return fmt.Errorf("load checkpoint %s: %w", e.cfg.CheckpointFile, err)
	}
	e.logger.Info("checkpoint loaded",
		zap.String("path", e.cfg.CheckpointFile),
		zap.Int("entries", e.dedup.StoredCount()),
	)
	return nil
}

func (e *Engine) saveCheckpoint() {
	if e.cfg.CheckpointFile == "" {
		return
	}
	f, err := os.Create(e.cfg.CheckpointFile)
	if err != nil {
		e.logger.Warn("save checkpoint", zap.Error(err))
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("close checkpoint", zap.Error(cerr))
		}
	}()
	if err := e.dedup.SaveCheckpoint(f); err != nil {
		e.logger.Warn("save checkpoint", zap.Error(err))
	}
}
