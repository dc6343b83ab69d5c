package workers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/database/dbtest"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingPublisher struct {
	mu     sync.Mutex
	issues []*models.Issue
}

func (p *recordingPublisher) Publish(ctx context.Context, issues []*models.Issue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issues = append(p.issues, issues...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.issues)
}

type workerEnv struct {
	jobRepo     *repositories.JobRepository
	jobService  *services.JobService
	repoRepo    *repositories.GitHubRepositoryRepository
	crawler     *services.CrawlerService
	repoService *services.GitHubRepositoryService
	publisher   *recordingPublisher
	syncConfig  config.SyncConfig
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newWorkerEnv wires the crawl pipeline against a fake GitHub serving one bounty issue
func newWorkerEnv(t *testing.T, searchStatus int) *workerEnv {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		if searchStatus != http.StatusOK {
			writeJSON(w, searchStatus, map[string]string{"message": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_count": 1,
			"items": []interface{}{map[string]interface{}{
				"id":             1,
				"number":         1,
				"title":          "Fix crash",
				"body":           "$150 bounty",
				"state":          "open",
				"html_url":       "https://github.com/acme/widgets/issues/1",
				"url":            "https://api.github.com/repos/acme/widgets/issues/1",
				"repository_url": "https://api.github.com/repos/acme/widgets",
				"user":           map[string]interface{}{"login": "octocat"},
				"created_at":     "2024-03-01T10:00:00Z",
				"updated_at":     "2024-03-02T10:00:00Z",
			}},
		})
	})
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":         4007,
			"name":       "widgets",
			"full_name":  "acme/widgets",
			"owner":      map[string]interface{}{"login": "acme"},
			"language":   "Go",
			"created_at": "2020-01-01T00:00:00Z",
			"updated_at": "2024-01-01T00:00:00Z",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db := dbtest.Open(t)
	client, err := services.NewGitHubClient(config.GitHubConfig{APIURL: server.URL}, services.NewRateLimiter(true))
	require.NoError(t, err)

	env := &workerEnv{
		jobRepo:   repositories.NewJobRepository(db),
		repoRepo:  repositories.NewGitHubRepositoryRepository(db),
		publisher: &recordingPublisher{},
		syncConfig: config.SyncConfig{
			Query:         "bounty",
			MinAmount:     5000,
			PerPage:       10,
			MaxPages:      2,
			RateThreshold: 1,
			Workers:       2,
			PollInterval:  10 * time.Millisecond,
		},
	}
	env.jobService = services.NewJobService(env.jobRepo)
	env.repoService = services.NewGitHubRepositoryService(env.repoRepo, client, services.DefaultRepositoryTTL)
	commentService := services.NewCommentService(repositories.NewIssueCommentRepository(db), client)
	issueService := services.NewIssueService(
		repositories.NewIssueRepository(db), repositories.NewLabelRepository(db),
		env.repoService, commentService, client,
	)
	env.crawler = services.NewCrawlerService(client, issueService)
	return env
}

func (e *workerEnv) newWorker() *CrawlWorker {
	return NewCrawlWorker("crawl-test", e.jobRepo, e.crawler, e.repoService, e.publisher, e.syncConfig)
}

func (e *workerEnv) claim(t *testing.T) *models.Job {
	t.Helper()
	_, err := e.jobService.CreateCrawlJob("bounty", nil)
	require.NoError(t, err)
	job, err := e.jobRepo.GetNextPendingJob(models.JobTypeCrawl, "crawl-test")
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestProcessCrawlJob(t *testing.T) {
	env := newWorkerEnv(t, http.StatusOK)
	job := env.claim(t)

	env.newWorker().processCrawlJob(context.Background(), job)

	stored, err := env.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.IssuesFound)
	require.NotNil(t, stored.CompletedAt)
	require.NotNil(t, stored.WorkerID)
	assert.Equal(t, "crawl-test", *stored.WorkerID)

	assert.Equal(t, 1, env.publisher.count())

	repo, err := env.repoRepo.GetByFullName("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.TotalBounties)
	assert.Equal(t, int64(15000), repo.TotalBountyAmount)
}

func TestProcessCrawlJobFailure(t *testing.T) {
	env := newWorkerEnv(t, http.StatusServiceUnavailable)
	job := env.claim(t)

	env.newWorker().processCrawlJob(context.Background(), job)

	stored, err := env.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, services.StopFetchFailed)
	assert.Equal(t, 0, env.publisher.count())
}

func TestProcessCrawlJobCanceled(t *testing.T) {
	env := newWorkerEnv(t, http.StatusOK)
	job := env.claim(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env.newWorker().processCrawlJob(ctx, job)

	stored, err := env.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, stored.Status)
}

func TestCrawlFailed(t *testing.T) {
	tests := []struct {
		result   services.CrawlResult
		expected bool
	}{
		{services.CrawlResult{StopReason: services.StopFetchFailed}, true},
		{services.CrawlResult{StopReason: services.StopRateLimited}, true},
		{services.CrawlResult{StopReason: services.StopNoBudget}, true},
		{services.CrawlResult{StopReason: services.StopEmptyPage}, false},
		{services.CrawlResult{StopReason: services.StopFetchFailed, PagesFetched: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.result.StopReason, func(t *testing.T) {
			assert.Equal(t, tt.expected, crawlFailed(&tt.result))
		})
	}
}

func TestWorkerManager(t *testing.T) {
	env := newWorkerEnv(t, http.StatusOK)
	manager := NewWorkerManager(env.jobRepo, env.crawler, env.repoService, env.publisher, env.syncConfig)
	require.NoError(t, manager.StartAll())

	job, err := env.jobService.CreateCrawlJob("bounty", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := env.jobRepo.GetByID(job.ID)
		return err == nil && stored.Status == models.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	status := manager.GetWorkerStatus()
	require.Len(t, status, 2)
	assert.Equal(t, "crawl-1", status[0].ID)
	assert.Equal(t, "crawl", status[0].JobType)

	require.NoError(t, manager.StopAll())
	for _, s := range manager.GetWorkerStatus() {
		assert.False(t, s.Running, s.ID)
	}
}

func TestBaseWorkerStopIsIdempotent(t *testing.T) {
	worker := NewBaseWorker("w", models.JobTypeCrawl)
	assert.NoError(t, worker.Stop())
	assert.NoError(t, worker.Stop())
	assert.False(t, worker.wait(context.Background(), time.Hour))
}
