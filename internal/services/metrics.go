package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bountyscope",
		Name:      "github_rate_limit_remaining",
		Help:      "Remaining upstream requests as last reported by GitHub.",
	})

	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "github_requests_total",
		Help:      "Upstream requests by outcome.",
	}, []string{"outcome"})

	repositoryUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "repository_upserts_total",
		Help:      "Repository get-or-create calls by outcome.",
	}, []string{"outcome"})

	issueUpserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "issue_upserts_total",
		Help:      "Issue upserts by outcome.",
	}, []string{"outcome"})

	commentsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "comments_inserted_total",
		Help:      "Issue comments newly stored.",
	})

	crawlPages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "crawl_pages_total",
		Help:      "Search result pages fetched by crawls.",
	})

	crawlStops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bountyscope",
		Name:      "crawl_stops_total",
		Help:      "Crawl terminations by reason.",
	}, []string{"reason"})
)
