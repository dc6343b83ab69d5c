package workers

import (
	"context"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/sirupsen/logrus"
)

const errorBackoff = 5 * time.Second

// CrawlWorker claims pending crawl jobs and runs them
type CrawlWorker struct {
	*BaseWorker
	jobRepo     *repositories.JobRepository
	crawler     *services.CrawlerService
	repoService *services.GitHubRepositoryService
	publisher   services.IssuePublisher
	syncConfig  config.SyncConfig
}

// NewCrawlWorker creates a new crawl worker
func NewCrawlWorker(
	workerID string,
	jobRepo *repositories.JobRepository,
	crawler *services.CrawlerService,
	repoService *services.GitHubRepositoryService,
	publisher services.IssuePublisher,
	syncConfig config.SyncConfig,
) *CrawlWorker {
	return &CrawlWorker{
		BaseWorker:  NewBaseWorker(workerID, models.JobTypeCrawl),
		jobRepo:     jobRepo,
		crawler:     crawler,
		repoService: repoService,
		publisher:   publisher,
		syncConfig:  syncConfig,
	}
}

// Start begins the crawl worker process
func (w *CrawlWorker) Start(ctx context.Context) error {
	w.setRunning(true)
	defer w.setRunning(false)

	log := logger.WithField("worker_id", w.WorkerID)
	log.Info("Crawl worker started")

	pollInterval := w.syncConfig.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Crawl worker stopping due to context cancellation")
			return ctx.Err()
		case <-w.StopChan:
			log.Info("Crawl worker stopping")
			return nil
		default:
		}

		job, err := w.jobRepo.GetNextPendingJob(models.JobTypeCrawl, w.WorkerID)
		if err != nil {
			log.WithError(err).Error("Failed to claim crawl job")
			w.wait(ctx, errorBackoff)
			continue
		}

		if job == nil {
			w.wait(ctx, pollInterval)
			continue
		}

		w.processCrawlJob(ctx, job)
	}
}

// processCrawlJob runs a claimed job and records its result
func (w *CrawlWorker) processCrawlJob(ctx context.Context, job *models.Job) {
	log := logger.WithFields(logrus.Fields{
		"worker_id": w.WorkerID,
		"job_id":    job.ID,
		"query":     job.Query,
	})
	log.Info("Processing crawl job")

	opts := services.CrawlOptionsFromConfig(w.syncConfig)
	opts.Query = job.Query
	if job.Language != nil {
		opts.Language = *job.Language
	}

	result := w.crawler.Crawl(ctx, opts)
	if result.StopReason == services.StopCanceled {
		// left in-progress; RecoverInterruptedJobs re-queues it on the next start
		log.Warn("Crawl job interrupted")
		return
	}

	w.refreshRepositoryStats(result.Issues)

	if err := w.publisher.Publish(ctx, result.Issues); err != nil {
		log.WithError(err).Error("Failed to publish crawled issues")
	}

	if crawlFailed(result) {
		job.MarkFailed("crawl stopped before the first page: " + result.StopReason)
	} else {
		job.MarkCompleted(len(result.Issues))
	}
	if err := w.jobRepo.Update(job); err != nil {
		log.WithError(err).Error("Failed to update crawl job")
		return
	}

	log.WithFields(logrus.Fields{
		"status":      job.Status,
		"issues":      len(result.Issues),
		"pages":       result.PagesFetched,
		"stop_reason": result.StopReason,
	}).Info("Crawl job finished")
}

// refreshRepositoryStats recomputes the aggregates of every repository the crawl touched
func (w *CrawlWorker) refreshRepositoryStats(issues []*models.Issue) {
	seen := make(map[string]bool)
	for _, issue := range issues {
		if seen[issue.RepositoryID] {
			continue
		}
		seen[issue.RepositoryID] = true

		if _, err := w.repoService.UpdateBountyStats(issue.RepositoryID); err != nil {
			logger.WithField("repository", issue.RepositoryFullName).WithError(err).Warn("Failed to refresh bounty stats")
		}
	}
}

// crawlFailed reports a crawl that ended on an upstream problem before fetching anything
func crawlFailed(result *services.CrawlResult) bool {
	if result.PagesFetched > 0 {
		return false
	}
	switch result.StopReason {
	case services.StopFetchFailed, services.StopRateLimited, services.StopNoBudget:
		return true
	}
	return false
}
