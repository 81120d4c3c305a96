package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalFetches tracks HTTP requests dispatched by the static fetcher.
	TotalFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_fetches_total",
		Help: "The total number of static HTTP fetches attempted.",
	})
	// TotalRenders tracks pages escalated to the headless renderer.
	TotalRenders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_renders_total",
		Help: "The total number of headless render cycles performed.",
	})
	// TotalAccepted tracks records written to the sink.
	TotalAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_pages_accepted_total",
		Help: "The total number of pages accepted and persisted.",
	})
	// TotalRejected tracks duplicate/out-of-scope/empty rejections.
	TotalRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawlai_pages_rejected_total",
		Help: "The total number of pages rejected, by reason.",
	}, []string{"reason"})
	// TotalFailed tracks jobs that exhausted their retries.
	TotalFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_pages_failed_total",
		Help: "The total number of pages that failed permanently.",
	})
	// TotalRateLimitHits tracks 429 responses and rate-limit signals.
	TotalRateLimitHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_rate_limit_hits_total",
		Help: "The total number of times a domain rate limited the crawler.",
	})
	// TotalRobotsDenials tracks URLs rejected by robots.txt before any fetch.
	TotalRobotsDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawlai_robots_denials_total",
		Help: "The total number of URLs denied by robots.txt rules.",
	})
)
