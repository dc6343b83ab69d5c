package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const headerRateRemaining = "X-RateLimit-Remaining"

// GitHubClient is the single upstream access point. Every response, success or
// failure, updates the shared RateLimiter.
type GitHubClient struct {
	client  *github.Client
	limiter *RateLimiter
	timeout time.Duration
}

// NewGitHubClient creates a client for cfg.APIURL, authenticated when a token is configured
func NewGitHubClient(cfg config.GitHubConfig, limiter *RateLimiter) (*GitHubClient, error) {
	var httpClient *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(httpClient)
	if cfg.APIURL != "" {
		apiURL := cfg.APIURL
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		baseURL, err := url.Parse(apiURL)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API URL %q: %w", cfg.APIURL, err)
		}
		client.BaseURL = baseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &GitHubClient{
		client:  client,
		limiter: limiter,
		timeout: timeout,
	}, nil
}

// Limiter returns the rate limiter this client reports into
func (c *GitHubClient) Limiter() *RateLimiter {
	return c.limiter
}

// Get fetches urlStr (relative to the API root, or absolute) and decodes the JSON body into v
func (c *GitHubClient) Get(ctx context.Context, urlStr string, params url.Values, v interface{}) error {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(urlStr, "?") {
			sep = "&"
		}
		urlStr += sep + params.Encode()
	}

	return c.call(ctx, "get", func(ctx context.Context) (*github.Response, error) {
		req, err := c.client.NewRequest(http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		return c.client.Do(ctx, req, v)
	})
}

// SearchIssues fetches one page of issue search results and the next page number (0 when last)
func (c *GitHubClient) SearchIssues(ctx context.Context, query string, page, perPage int) ([]*github.Issue, int, error) {
	opts := &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	}

	var result *github.IssuesSearchResult
	var nextPage int
	err := c.call(ctx, "search_issues", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.client.Search.Issues(ctx, query, opts)
		if resp != nil {
			nextPage = resp.NextPage
		}
		return resp, err
	})
	if err != nil {
		return nil, 0, err
	}

	return result.Issues, nextPage, nil
}

// SearchRepositories fetches the first page of repository search results
func (c *GitHubClient) SearchRepositories(ctx context.Context, query, sort string, perPage int) ([]*github.Repository, error) {
	opts := &github.SearchOptions{
		Sort:        sort,
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var result *github.RepositoriesSearchResult
	err := c.call(ctx, "search_repositories", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		result, resp, err = c.client.Search.Repositories(ctx, query, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	return result.Repositories, nil
}

// GetRepository fetches a single repository
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	var repo *github.Repository
	err := c.call(ctx, "get_repository", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = c.client.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	return repo, err
}

// ListIssueComments fetches every comment on an issue, following pagination
func (c *GitHubClient) ListIssueComments(ctx context.Context, owner, name string, number int) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var all []*github.IssueComment
	for {
		var comments []*github.IssueComment
		var nextPage int
		err := c.call(ctx, "list_comments", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			comments, resp, err = c.client.Issues.ListComments(ctx, owner, name, number, opts)
			if resp != nil {
				nextPage = resp.NextPage
			}
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, comments...)
		if nextPage == 0 {
			break
		}
		opts.Page = nextPage
	}

	return all, nil
}

// call runs fn under the request timeout, records the rate headers and classifies the error
func (c *GitHubClient) call(ctx context.Context, endpoint string, fn func(ctx context.Context) (*github.Response, error)) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := fn(ctx)
	c.recordRate(resp, err)

	err = c.classify(err)
	outcome := "ok"
	if err != nil {
		outcome = OutcomeFromError(err).String()
		logger.WithFields(logrus.Fields{
			"endpoint":  endpoint,
			"remaining": c.limiter.Remaining(),
			"error":     err.Error(),
		}).Warn("GitHub request failed")
	}
	upstreamRequests.WithLabelValues(outcome).Inc()

	return err
}

func (c *GitHubClient) recordRate(resp *github.Response, err error) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		c.limiter.Record(rateErr.Rate.Remaining, rateErr.Rate.Reset.Time)
		return
	}
	// responses without rate headers (proxies, test servers) leave the budget untouched
	if resp == nil || resp.Response == nil || resp.Header.Get(headerRateRemaining) == "" {
		return
	}
	c.limiter.Record(resp.Rate.Remaining, resp.Rate.Reset.Time)
}

func (c *GitHubClient) classify(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %s", ErrRateLimited, rateErr.Message)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &UpstreamError{StatusCode: http.StatusForbidden}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch status := respErr.Response.StatusCode; {
		case status == http.StatusNotFound:
			return ErrNotFound
		case status == http.StatusForbidden && c.limiter.Remaining() == 0:
			return ErrRateLimited
		default:
			return &UpstreamError{StatusCode: status}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var timeErr *time.ParseError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &timeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return fmt.Errorf("GitHub request failed: %w", err)
}
