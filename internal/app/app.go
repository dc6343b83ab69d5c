// Package app wires the stores, the upstream client and the services shared by
// the server and the command line tool.
package app

import (
	"database/sql"
	"fmt"

	"github.com/alimgiray/bountyscope/internal/handlers"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/internal/workers"
	"github.com/alimgiray/bountyscope/pkg/config"
)

type App struct {
	Config *config.Config
	DB     *sql.DB

	Limiter *services.RateLimiter
	Client  *services.GitHubClient

	JobRepo *repositories.JobRepository

	RepositoryService *services.GitHubRepositoryService
	CommentService    *services.CommentService
	IssueService      *services.IssueService
	Crawler           *services.CrawlerService
	JobService        *services.JobService
	ExportService     *services.ExportService
	Publisher         services.IssuePublisher
}

// New builds the service graph on top of an open, migrated database
func New(cfg *config.Config, db *sql.DB) (*App, error) {
	limiter := services.NewRateLimiter(cfg.GitHub.Token != "")
	client, err := services.NewGitHubClient(cfg.GitHub, limiter)
	if err != nil {
		return nil, err
	}

	publisher, err := services.NewIssuePublisher(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue publisher: %w", err)
	}

	repoRepo := repositories.NewGitHubRepositoryRepository(db)
	issueRepo := repositories.NewIssueRepository(db)
	labelRepo := repositories.NewLabelRepository(db)
	commentRepo := repositories.NewIssueCommentRepository(db)
	jobRepo := repositories.NewJobRepository(db)

	repoService := services.NewGitHubRepositoryService(repoRepo, client, cfg.Sync.RepositoryTTL)
	commentService := services.NewCommentService(commentRepo, client)
	issueService := services.NewIssueService(issueRepo, labelRepo, repoService, commentService, client)

	return &App{
		Config:            cfg,
		DB:                db,
		Limiter:           limiter,
		Client:            client,
		JobRepo:           jobRepo,
		RepositoryService: repoService,
		CommentService:    commentService,
		IssueService:      issueService,
		Crawler:           services.NewCrawlerService(client, issueService),
		JobService:        services.NewJobService(jobRepo),
		ExportService:     services.NewExportService(issueService),
		Publisher:         publisher,
	}, nil
}

// NewWorkerManager creates the crawl worker pool for this app
func (a *App) NewWorkerManager() *workers.WorkerManager {
	return workers.NewWorkerManager(a.JobRepo, a.Crawler, a.RepositoryService, a.Publisher, a.Config.Sync)
}

// NewScheduler creates the cron scheduler that queues periodic crawls
func (a *App) NewScheduler() *services.SchedulerService {
	return services.NewSchedulerService(a.JobService, a.Config.Sync)
}

// Handlers builds the HTTP handlers; status may be nil when no workers run
func (a *App) Handlers(status handlers.WorkerStatusReporter) *handlers.Handlers {
	return &handlers.Handlers{
		Health:     handlers.NewHealthHandler(a.DB, a.Limiter, status),
		Issue:      handlers.NewIssueHandler(a.IssueService, a.CommentService),
		Repository: handlers.NewRepositoryHandler(a.RepositoryService),
		Sync:       handlers.NewSyncHandler(a.JobService, a.Config.Sync),
		Export:     handlers.NewExportHandler(a.ExportService),
		NotFound:   handlers.NewNotFoundHandler(),
	}
}

// Close releases the publisher. The database is owned by the caller.
func (a *App) Close() error {
	return a.Publisher.Close()
}
