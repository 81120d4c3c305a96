package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFetcherConfig() Config {
	return Config{
		UserAgent:      "crawlai/1.0 test",
		RequestTimeout: 5 * time.Second,
	}
}

func TestCollyFetcherFetch(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	t.Cleanup(server.Close)

	f := NewCollyFetcher(testFetcherConfig(), zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL+"/page")
	require.NoError(t, err)

	require.Equal(t, "crawlai/1.0 test", gotAgent)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Equal(t, server.URL+"/page", page.URL)
	require.Contains(t, string(page.Body), "hello")
	require.Equal(t, "text/html", page.Headers.Get("Content-Type"))
	require.False(t, page.Rendered)
}

func TestCollyFetcherFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>moved</body></html>"))
	})

	f := NewCollyFetcher(testFetcherConfig(), zap.NewNop())
	page, err := f.Fetch(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	require.Equal(t, server.URL+"/old", page.URL)
	require.Equal(t, server.URL+"/new", page.FinalURL)
}

func TestCollyFetcherStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	f := NewCollyFetcher(testFetcherConfig(), zap.NewNop())
	_, err := f.Fetch(context.Background(), server.URL+"/missing")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	require.False(t, fetchErr.Transient())
}

func TestCollyFetcherRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	f := NewCollyFetcher(testFetcherConfig(), zap.NewNop())
	_, err := f.Fetch(context.Background(), server.URL+"/busy")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.True(t, fetchErr.RateLimited())
	require.True(t, fetchErr.Transient())
}

func TestCollyFetcherConnectionRefused(t *testing.T) {
	f := NewCollyFetcher(testFetcherConfig(), zap.NewNop())
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/nothing")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Zero(t, fetchErr.StatusCode)
}
