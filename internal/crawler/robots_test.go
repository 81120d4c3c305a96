package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func robotsServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsCacheDisallow(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nDisallow: /private/\nCrawl-delay: 2\n", http.StatusOK)
	cache := NewRobotsCache("crawlai/1.0", time.Second, zap.NewNop())
	ctx := context.Background()

	require.True(t, cache.Allowed(ctx, server.URL+"/public/page"))
	require.False(t, cache.Allowed(ctx, server.URL+"/private/page"))

	host := server.Listener.Addr().String()
	require.Equal(t, 2*time.Second, cache.CrawlDelay(ctx, host))
}

func TestRobotsCacheQueryStringRules(t *testing.T) {
	server := robotsServer(t, "User-agent: *\nDisallow: /search?\n", http.StatusOK)
	cache := NewRobotsCache("crawlai/1.0", time.Second, zap.NewNop())
	ctx := context.Background()

	require.True(t, cache.Allowed(ctx, server.URL+"/search"))
	require.False(t, cache.Allowed(ctx, server.URL+"/search?q=widgets"))
}

func TestRobotsCacheAgentSpecificGroup(t *testing.T) {
	body := "User-agent: crawlai\nDisallow: /blocked\n\nUser-agent: *\nDisallow:\n"
	server := robotsServer(t, body, http.StatusOK)
	cache := NewRobotsCache("crawlai/1.0 (+https://github.com/agarwalvipin/crawlai)", time.Second, zap.NewNop())
	ctx := context.Background()

	require.False(t, cache.Allowed(ctx, server.URL+"/blocked"))
	require.True(t, cache.Allowed(ctx, server.URL+"/open"))
}

func TestRobotsCacheMissingFileAllowsAll(t *testing.T) {
	server := robotsServer(t, "not found", http.StatusNotFound)
	cache := NewRobotsCache("crawlai/1.0", 300*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	require.True(t, cache.Allowed(ctx, server.URL+"/anything"))
	host := server.Listener.Addr().String()
	require.Equal(t, 300*time.Millisecond, cache.CrawlDelay(ctx, host))
}

func TestRobotsCacheUnreachableHostAllowsAll(t *testing.T) {
	cache := NewRobotsCache("crawlai/1.0", time.Second, zap.NewNop())
	// Port 1 on loopback refuses the connection immediately.
	require.True(t, cache.Allowed(context.Background(), "http://127.0.0.1:1/page"))
}

func TestRobotsCacheUnparseableURLDenied(t *testing.T) {
	cache := NewRobotsCache("crawlai/1.0", time.Second, zap.NewNop())
	require.False(t, cache.Allowed(context.Background(), "http//missing-scheme"))
}

func TestRobotsCacheFetchesOncePerHost(t *testing.T) {
	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow:\n"))
	}))
	t.Cleanup(server.Close)

	cache := NewRobotsCache("crawlai/1.0", time.Second, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.True(t, cache.Allowed(ctx, server.URL+"/page"))
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), fetches.Load())
}
