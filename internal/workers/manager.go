package workers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
)

// WorkerManager manages the crawl worker pool
type WorkerManager struct {
	workers     []Worker
	jobRepo     *repositories.JobRepository
	crawler     *services.CrawlerService
	repoService *services.GitHubRepositoryService
	publisher   services.IssuePublisher
	syncConfig  config.SyncConfig
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(
	jobRepo *repositories.JobRepository,
	crawler *services.CrawlerService,
	repoService *services.GitHubRepositoryService,
	publisher services.IssuePublisher,
	syncConfig config.SyncConfig,
) *WorkerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerManager{
		workers:     make([]Worker, 0),
		jobRepo:     jobRepo,
		crawler:     crawler,
		repoService: repoService,
		publisher:   publisher,
		syncConfig:  syncConfig,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// StartAll starts the configured number of crawl workers
func (wm *WorkerManager) StartAll() error {
	count := wm.syncConfig.Workers
	if count <= 0 {
		count = 1
	}

	for i := 0; i < count; i++ {
		worker := NewCrawlWorker(
			fmt.Sprintf("crawl-%d", i+1),
			wm.jobRepo, wm.crawler, wm.repoService, wm.publisher, wm.syncConfig,
		)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	logger.Infof("Started %d crawl workers", len(wm.workers))
	return nil
}

// StopAll gracefully stops all workers
func (wm *WorkerManager) StopAll() error {
	logger.Info("Stopping all workers...")

	// Cancel the context to signal all workers to stop
	wm.cancel()

	for _, worker := range wm.workers {
		if err := worker.Stop(); err != nil {
			logger.WithField("worker_id", worker.GetWorkerID()).WithError(err).Error("Error stopping worker")
		}
	}

	wm.wg.Wait()

	logger.Info("All workers stopped")
	return nil
}

// startWorker starts a single worker in a goroutine
func (wm *WorkerManager) startWorker(worker Worker) {
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		if err := worker.Start(wm.ctx); err != nil && err != context.Canceled {
			logger.WithField("worker_id", worker.GetWorkerID()).WithError(err).Error("Worker stopped with error")
		}
	}()
}

// WorkerStatus is one worker as reported by the health endpoint
type WorkerStatus struct {
	ID      string `json:"id"`
	JobType string `json:"job_type"`
	Running bool   `json:"running"`
}

// GetWorkerStatus returns the status of all workers, ordered by ID
func (wm *WorkerManager) GetWorkerStatus() []WorkerStatus {
	status := make([]WorkerStatus, 0, len(wm.workers))
	for _, worker := range wm.workers {
		status = append(status, WorkerStatus{
			ID:      worker.GetWorkerID(),
			JobType: string(worker.GetJobType()),
			Running: worker.IsRunning(),
		})
	}
	sort.Slice(status, func(i, j int) bool { return status[i].ID < status[j].ID })
	return status
}
