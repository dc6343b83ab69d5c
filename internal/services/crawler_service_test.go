package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// searchServer serves /search/issues from fixed pages, indexed from 1
type searchServer struct {
	mu       sync.Mutex
	requests []url.Values
}

func (s *searchServer) queries() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.requests...)
}

// searchPages registers the search endpoint. A Link header to the following page
// is sent while more pages exist, or always when endless is set.
func (e *testEnv) searchPages(endless bool, pages ...[]*github.Issue) *searchServer {
	srv := &searchServer{}
	e.handle("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		srv.mu.Lock()
		srv.requests = append(srv.requests, r.URL.Query())
		srv.mu.Unlock()

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 0 {
			page = 1
		}

		items := []*github.Issue{}
		if page <= len(pages) {
			items = append(items, pages[page-1]...)
		}
		if endless || page < len(pages) {
			w.Header().Set("Link", fmt.Sprintf(`<%s/search/issues?page=%d>; rel="next"`, e.server.URL, page+1))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_count":        len(items),
			"incomplete_results": false,
			"items":              items,
		})
	})
	return srv
}

func crawlOptions() CrawlOptions {
	return CrawlOptions{
		Query:         "bounty",
		MinAmount:     5000,
		PerPage:       2,
		MaxPages:      5,
		RateThreshold: 10,
	}
}

func TestBuildSearchQuery(t *testing.T) {
	assert.Equal(t, "bounty in:title,body ($ OR USD OR dollars)", BuildSearchQuery(" bounty ", ""))
	assert.Equal(t, "bounty OR reward in:title,body language:Go ($ OR USD OR dollars)", BuildSearchQuery("bounty OR reward", "Go"))
}

func TestCrawlOptionsFromConfig(t *testing.T) {
	opts := CrawlOptionsFromConfig(config.SyncConfig{
		Query:         "bounty",
		Languages:     []string{"Go"},
		MinAmount:     100,
		PerPage:       30,
		MaxPages:      3,
		RateThreshold: 7,
		PageDelay:     time.Second,
	})

	assert.Equal(t, CrawlOptions{
		Query:         "bounty",
		MinAmount:     100,
		PerPage:       30,
		MaxPages:      3,
		RateThreshold: 7,
		PageDelay:     time.Second,
	}, opts)
}

func TestCrawl(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")
	srv := env.searchPages(false,
		[]*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty"), newGHIssue(2, "Typo", "$5 tip")},
		[]*github.Issue{newGHIssue(3, "Dark mode", "bounty: $80")},
	)

	opts := crawlOptions()
	opts.Language = "Go"
	result := env.crawler.Crawl(context.Background(), opts)

	assert.Equal(t, StopLastPage, result.StopReason)
	assert.Equal(t, 2, result.PagesFetched)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, int64(1), result.Issues[0].GithubID)
	assert.Equal(t, int64(3), result.Issues[1].GithubID)
	assert.Equal(t, 2, env.countRows(`SELECT COUNT(*) FROM issues`))

	queries := srv.queries()
	require.Len(t, queries, 2)
	assert.Equal(t, BuildSearchQuery("bounty", "Go"), queries[0].Get("q"))
	assert.Equal(t, "updated", queries[0].Get("sort"))
	assert.Equal(t, "desc", queries[0].Get("order"))
	assert.Equal(t, "2", queries[0].Get("per_page"))
	assert.Equal(t, "1", queries[0].Get("page"))
	assert.Equal(t, "2", queries[1].Get("page"))
}

func TestCrawlIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")
	env.searchPages(false, []*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty", "bug")})

	first := env.crawler.Crawl(context.Background(), crawlOptions())
	second := env.crawler.Crawl(context.Background(), crawlOptions())

	require.Len(t, first.Issues, 1)
	require.Len(t, second.Issues, 1)
	assert.Equal(t, first.Issues[0].ID, second.Issues[0].ID)
	assert.Equal(t, 2, second.Issues[0].FetchCount)
	assert.Equal(t, 1, env.countRows(`SELECT COUNT(*) FROM issues`))
	assert.Equal(t, 1, env.countRows(`SELECT COUNT(*) FROM issue_labels`))
}

func TestCrawlStops(t *testing.T) {
	page := []*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty")}

	t.Run("no budget before the first page", func(t *testing.T) {
		env := newTestEnv(t)
		env.searchPages(true, page)
		env.limiter.Record(9, time.Time{})

		result := env.crawler.Crawl(context.Background(), crawlOptions())
		assert.Equal(t, StopNoBudget, result.StopReason)
		assert.Equal(t, 0, result.PagesFetched)
		assert.Empty(t, result.Issues)
		assert.Equal(t, 0, env.hitCount("/search/issues"))
	})

	t.Run("budget drops after a page", func(t *testing.T) {
		env := newTestEnv(t)
		env.serveRepository(4007, "acme", "widgets")
		env.handle("/search/issues", func(w http.ResponseWriter, r *http.Request) {
			setRateHeaders(w, 5, time.Now().Add(time.Hour))
			w.Header().Set("Link", fmt.Sprintf(`<%s/search/issues?page=2>; rel="next"`, env.server.URL))
			writeJSON(w, http.StatusOK, map[string]interface{}{"total_count": 1, "items": page})
		})

		result := env.crawler.Crawl(context.Background(), crawlOptions())
		assert.Equal(t, StopNoBudget, result.StopReason)
		assert.Equal(t, 1, result.PagesFetched)
		assert.Len(t, result.Issues, 1)
		assert.Equal(t, 1, env.hitCount("/search/issues"))
	})

	t.Run("empty page", func(t *testing.T) {
		env := newTestEnv(t)
		env.serveRepository(4007, "acme", "widgets")
		env.searchPages(true, page)

		result := env.crawler.Crawl(context.Background(), crawlOptions())
		assert.Equal(t, StopEmptyPage, result.StopReason)
		assert.Equal(t, 1, result.PagesFetched)
		assert.Equal(t, 2, env.hitCount("/search/issues"))
	})

	t.Run("max pages", func(t *testing.T) {
		env := newTestEnv(t)
		env.serveRepository(4007, "acme", "widgets")
		env.searchPages(true, page, page, page)

		opts := crawlOptions()
		opts.MaxPages = 2
		result := env.crawler.Crawl(context.Background(), opts)
		assert.Equal(t, StopMaxPages, result.StopReason)
		assert.Equal(t, 2, result.PagesFetched)
		assert.Equal(t, 2, env.hitCount("/search/issues"))
	})

	t.Run("upstream failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.handle("/search/issues", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "boom"})
		})

		result := env.crawler.Crawl(context.Background(), crawlOptions())
		assert.Equal(t, StopFetchFailed, result.StopReason)
		assert.NotNil(t, result.Issues)
		assert.Empty(t, result.Issues)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t)
		env.handle("/search/issues", func(w http.ResponseWriter, r *http.Request) {
			setRateHeaders(w, 0, time.Now().Add(time.Hour))
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "API rate limit exceeded"})
		})

		result := env.crawler.Crawl(context.Background(), crawlOptions())
		assert.Equal(t, StopRateLimited, result.StopReason)
		assert.Equal(t, 0, env.limiter.Remaining())
	})

	t.Run("canceled during page delay", func(t *testing.T) {
		env := newTestEnv(t)
		env.serveRepository(4007, "acme", "widgets")
		env.searchPages(true, page, page)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		opts := crawlOptions()
		opts.PageDelay = 10 * time.Second
		start := time.Now()
		result := env.crawler.Crawl(ctx, opts)

		assert.Equal(t, StopCanceled, result.StopReason)
		assert.Equal(t, 1, result.PagesFetched)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestCrawlSkipsFailedItems(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")

	orphan := newGHIssue(2, "Elsewhere", "$900 bounty")
	orphan.RepositoryURL = github.String("https://api.github.com/repos/ghost/gone")
	broken := newGHIssue(3, "Broken", "$900 bounty")
	broken.User = nil
	env.searchPages(false, []*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty"), orphan, broken})

	result := env.crawler.Crawl(context.Background(), crawlOptions())
	assert.Equal(t, StopLastPage, result.StopReason)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, int64(1), result.Issues[0].GithubID)
}

func TestCrawlLanguages(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")

	byLanguage := map[string][]*github.Issue{
		"Go":   {newGHIssue(1, "Fix crash", "$150 bounty"), newGHIssue(2, "Shared", "$200 bounty")},
		"Rust": {newGHIssue(2, "Shared", "$200 bounty"), newGHIssue(3, "Port", "$300 bounty")},
	}
	env.handle("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		items := []*github.Issue{}
		for language, issues := range byLanguage {
			if strings.Contains(q, "language:"+language) {
				items = issues
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"total_count": len(items), "items": items})
	})

	result := env.crawler.CrawlLanguages(context.Background(), crawlOptions(), []string{"Go", "Rust"})

	assert.Equal(t, "Go:last_page,Rust:last_page", result.StopReason)
	assert.Equal(t, 2, result.PagesFetched)
	require.Len(t, result.Issues, 3)
	assert.Equal(t, int64(1), result.Issues[0].GithubID)
	assert.Equal(t, int64(2), result.Issues[1].GithubID)
	assert.Equal(t, int64(3), result.Issues[2].GithubID)
	assert.Equal(t, 3, env.countRows(`SELECT COUNT(*) FROM issues`))
	assert.Equal(t, 1, env.countRows(`SELECT COUNT(*) FROM repositories`))
}

func TestCrawlLanguagesWithoutLanguages(t *testing.T) {
	env := newTestEnv(t)
	env.serveRepository(4007, "acme", "widgets")
	srv := env.searchPages(false, []*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty")})

	result := env.crawler.CrawlLanguages(context.Background(), crawlOptions(), nil)

	assert.Equal(t, StopLastPage, result.StopReason)
	require.Len(t, result.Issues, 1)
	assert.NotContains(t, srv.queries()[0].Get("q"), "language:")
}

func TestSleepContext(t *testing.T) {
	assert.True(t, sleepContext(context.Background(), 0))
	assert.True(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepContext(ctx, time.Hour))
	assert.False(t, sleepContext(ctx, 0))
}

func TestCrawlCanceledBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	env.searchPages(true, []*github.Issue{newGHIssue(1, "Fix crash", "$150 bounty")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := env.crawler.Crawl(ctx, crawlOptions())
	assert.Equal(t, StopCanceled, result.StopReason)
	assert.Equal(t, 0, env.hitCount("/search/issues"))
}
