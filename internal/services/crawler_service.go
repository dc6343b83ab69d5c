package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// currencyClause narrows the search to issues that mention money
const currencyClause = "($ OR USD OR dollars)"

// Crawl stop reasons
const (
	StopMaxPages    = "max_pages"
	StopLastPage    = "last_page"
	StopEmptyPage   = "empty_page"
	StopNoBudget    = "no_budget"
	StopRateLimited = "rate_limited"
	StopFetchFailed = "fetch_failed"
	StopCanceled    = "canceled"
)

// CrawlOptions configures one search crawl
type CrawlOptions struct {
	Query         string
	Language      string
	MinAmount     int64
	PerPage       int
	MaxPages      int
	RateThreshold int
	PageDelay     time.Duration
}

// CrawlOptionsFromConfig builds crawl options from the sync configuration
func CrawlOptionsFromConfig(cfg config.SyncConfig) CrawlOptions {
	return CrawlOptions{
		Query:         cfg.Query,
		MinAmount:     cfg.MinAmount,
		PerPage:       cfg.PerPage,
		MaxPages:      cfg.MaxPages,
		RateThreshold: cfg.RateThreshold,
		PageDelay:     cfg.PageDelay,
	}
}

// CrawlResult is what one crawl touched. Upstream failures end the crawl
// early but never surface as errors.
type CrawlResult struct {
	Issues       []*models.Issue
	PagesFetched int
	StopReason   string
}

type CrawlerService struct {
	client       *GitHubClient
	issueService *IssueService
}

func NewCrawlerService(client *GitHubClient, issueService *IssueService) *CrawlerService {
	return &CrawlerService{
		client:       client,
		issueService: issueService,
	}
}

// BuildSearchQuery combines the free-text terms, an optional language and the currency clause
func BuildSearchQuery(query, language string) string {
	q := strings.TrimSpace(query) + " in:title,body"
	if language != "" {
		q += " language:" + language
	}
	return q + " " + currencyClause
}

// Crawl walks the search result pages in order, upserting every item.
// Pages and items are processed sequentially.
func (s *CrawlerService) Crawl(ctx context.Context, opts CrawlOptions) *CrawlResult {
	query := BuildSearchQuery(opts.Query, opts.Language)
	result := &CrawlResult{Issues: []*models.Issue{}, StopReason: StopMaxPages}
	log := logger.WithFields(logrus.Fields{
		"query":    query,
		"language": opts.Language,
	})

	for page := 1; page <= opts.MaxPages; page++ {
		if ctx.Err() != nil {
			result.StopReason = StopCanceled
			break
		}
		if !s.client.Limiter().HasBudget(opts.RateThreshold) {
			log.WithField("remaining", s.client.Limiter().Remaining()).Warn("Rate limit budget exhausted, stopping crawl")
			result.StopReason = StopNoBudget
			break
		}

		items, nextPage, err := s.client.SearchIssues(ctx, query, page, opts.PerPage)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				result.StopReason = StopCanceled
			case errors.Is(err, ErrRateLimited):
				result.StopReason = StopRateLimited
			default:
				result.StopReason = StopFetchFailed
			}
			log.WithField("page", page).WithError(err).Warn("Search page failed, stopping crawl")
			break
		}
		if len(items) == 0 {
			result.StopReason = StopEmptyPage
			break
		}
		result.PagesFetched++
		crawlPages.Inc()

		for _, item := range items {
			issue, outcome := s.issueService.UpsertFromUpstream(ctx, item, opts.MinAmount)
			if issue != nil && outcome.OK() {
				result.Issues = append(result.Issues, issue)
			}
		}

		log.WithFields(logrus.Fields{
			"page":    page,
			"items":   len(items),
			"touched": len(result.Issues),
		}).Info("Processed search page")

		if nextPage == 0 {
			result.StopReason = StopLastPage
			break
		}
		if page == opts.MaxPages {
			break
		}

		if !sleepContext(ctx, opts.PageDelay) {
			result.StopReason = StopCanceled
			break
		}
	}

	crawlStops.WithLabelValues(result.StopReason).Inc()
	return result
}

// CrawlLanguages runs one crawl per language concurrently and merges the results
// in language order. With no languages it runs a single unfiltered crawl.
func (s *CrawlerService) CrawlLanguages(ctx context.Context, opts CrawlOptions, languages []string) *CrawlResult {
	if len(languages) == 0 {
		return s.Crawl(ctx, opts)
	}

	results := make([]*CrawlResult, len(languages))
	var g errgroup.Group
	for i, language := range languages {
		g.Go(func() error {
			langOpts := opts
			langOpts.Language = language
			results[i] = s.Crawl(ctx, langOpts)
			return nil
		})
	}
	_ = g.Wait()

	merged := &CrawlResult{Issues: []*models.Issue{}}
	seen := make(map[string]bool)
	var reasons []string
	for i, r := range results {
		merged.PagesFetched += r.PagesFetched
		reasons = append(reasons, languages[i]+":"+r.StopReason)
		for _, issue := range r.Issues {
			if !seen[issue.ID] {
				seen[issue.ID] = true
				merged.Issues = append(merged.Issues, issue)
			}
		}
	}
	merged.StopReason = strings.Join(reasons, ",")
	return merged
}

// sleepContext waits for d and reports false if ctx ended first
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
