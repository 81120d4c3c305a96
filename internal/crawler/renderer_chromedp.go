package crawler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpRenderer renders pages in headless Chrome. Scroll simulation is
// bounded by an explicit step cap so a page that keeps growing can never
// trap a worker.
type ChromedpRenderer struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	settle          time.Duration
	userAgent       string
}

// NewChromedpRenderer creates a renderer, warming up a shared browser
// process. Returns ErrRendererDisabled when rendering is configured off.
func NewChromedpRenderer(cfg Config, logger *zap.Logger) (*ChromedpRenderer, error) {
	if !cfg.RenderEnabled || cfg.RenderMaxConcurrency <= 0 {
		return nil, ErrRendererDisabled
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	settle := cfg.ScrollSettle
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	return &ChromedpRenderer{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.RenderMaxConcurrency),
		timeout:         cfg.RenderTimeout,
		settle:          settle,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (r *ChromedpRenderer) Close(context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Render loads the page with JavaScript enabled, waits for the DOM to become
// ready, performs up to scrollSteps scroll rounds (each followed by a settle
// wait) to surface lazy-loaded content, and returns the resulting DOM.
func (r *ChromedpRenderer) Render(ctx context.Context, rawURL string, scrollSteps int) (Page, error) {
	if r == nil {
		return Page{}, ErrRendererDisabled
	}
	TotalRenders.Inc()

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return Page{}, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
	defer func() { <-r.sem }()

	tabCtx, cancelTab := chromedp.NewContext(r.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newRenderMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(r.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.settle),
		r.scrollActions(scrollSteps),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshot(rawURL, finalURL)
	return Page{
		URL:        rawURL,
		FinalURL:   responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Rendered:   true,
	}, nil
}

// scrollActions builds the bounded scroll loop. Termination is guaranteed by
// the step count alone, never by content-growth heuristics.
func (r *ChromedpRenderer) scrollActions(steps int) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var height float64
		for i := 0; i < steps; i++ {
			err := chromedp.Evaluate(
				`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`,
				&height,
			).Do(ctx)
			if err != nil {
				return fmt.Errorf("scroll step %d: %w", i+1, err)
			}
			if err := chromedp.Sleep(r.settle).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// renderMeta captures the document response observed during navigation.
type renderMeta struct {
	once    sync.Once
	status  int
	headers http.Header
	url     string
}

func newRenderMeta() *renderMeta {
	return &renderMeta{headers: http.Header{}}
}

func (m *renderMeta) captureEvent(ev interface{}) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.once.Do(func() {
		m.status = int(resp.Response.Status)
		m.url = resp.Response.URL
		for k, v := range resp.Response.Headers {
			m.headers.Add(k, fmt.Sprint(v))
		}
	})
}

func (m *renderMeta) snapshot(requestURL, finalURL string) (int, http.Header, string) {
	url := m.url
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, m.headers, url
}
