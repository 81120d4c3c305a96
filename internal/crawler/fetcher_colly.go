package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher using one-shot cloned Colly collectors.
// Robots enforcement and rate limiting live in the engine's own policy
// components, so the collector runs with both disabled.
type CollyFetcher struct {
	baseCollector *colly.Collector
	timeout       time.Duration
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg Config, logger *zap.Logger) *CollyFetcher {
	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &CollyFetcher{
		baseCollector: base,
		timeout:       cfg.RequestTimeout,
		logger:        logger,
	}
}

type collyResult struct {
	page Page
	err  error
}

// Fetch retrieves a page. Non-2xx responses come back as a *FetchError
// carrying the status code so the retry policy can classify them.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	TotalFetches.Inc()

	collector := f.baseCollector.Clone()
	resultCh := make(chan collyResult, 1)
	var once sync.Once
	send := func(res collyResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnResponse(func(r *colly.Response) {
		send(collyResult{page: pageFromResponse(rawURL, r)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		fetchErr := &FetchError{URL: rawURL, Err: err}
		if r != nil {
			fetchErr.StatusCode = r.StatusCode
		}
		send(collyResult{err: fetchErr})
	})

	done := make(chan error, 1)
	go func() {
		visitErr := collector.Visit(rawURL)
		collector.Wait()
		done <- visitErr
	}()

	select {
	case <-ctx.Done():
		return Page{}, &FetchError{URL: rawURL, Err: ctx.Err()}
	case visitErr := <-done:
		select {
		case res := <-resultCh:
			return res.page, res.err
		default:
		}
		if visitErr != nil {
			return Page{}, &FetchError{URL: rawURL, Err: visitErr}
		}
		return Page{}, &FetchError{URL: rawURL, Err: errors.New("fetch produced no response")}
	}
}

func pageFromResponse(rawURL string, r *colly.Response) Page {
	headers := http.Header{}
	if r.Headers != nil {
		for k, v := range *r.Headers {
			cp := make([]string, len(v))
			copy(cp, v)
			headers[k] = cp
		}
	}
	return Page{
		URL:        rawURL,
		FinalURL:   r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
	}
}
