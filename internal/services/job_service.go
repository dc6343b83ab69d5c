package services

import (
	"errors"
	"fmt"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
)

// ErrJobActive is returned when an identical crawl is already pending or running
var ErrJobActive = errors.New("a crawl job is already in progress or pending for this query")

// JobService handles job creation and management
type JobService struct {
	jobRepo *repositories.JobRepository
}

// NewJobService creates a new job service
func NewJobService(jobRepo *repositories.JobRepository) *JobService {
	return &JobService{
		jobRepo: jobRepo,
	}
}

// CreateCrawlJob queues a crawl for query, optionally narrowed to one language
func (s *JobService) CreateCrawlJob(query string, language *string) (*models.Job, error) {
	if language != nil && *language == "" {
		language = nil
	}

	hasActive, err := s.jobRepo.HasActiveJob(models.JobTypeCrawl, query, language)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	if hasActive {
		return nil, ErrJobActive
	}

	job := models.NewCrawlJob(query, language)
	if err := s.jobRepo.Create(job); err != nil {
		return nil, err
	}

	return job, nil
}

// CreateCrawlJobs queues one crawl per language, or a single unfiltered crawl
// when languages is empty. Combinations that are already queued are skipped.
func (s *JobService) CreateCrawlJobs(query string, languages []string) ([]*models.Job, error) {
	if len(languages) == 0 {
		languages = []string{""}
	}

	var created []*models.Job
	for _, language := range languages {
		job, err := s.CreateCrawlJob(query, &language)
		if errors.Is(err, ErrJobActive) {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, job)
	}

	return created, nil
}

// GetJobByID retrieves a job by ID
func (s *JobService) GetJobByID(jobID string) (*models.Job, error) {
	return s.jobRepo.GetByID(jobID)
}

// ListRecentJobs retrieves the most recent jobs
func (s *JobService) ListRecentJobs(limit int) ([]*models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobRepo.ListRecent(limit)
}

// RecoverInterruptedJobs re-queues jobs left in-progress by a previous process
func (s *JobService) RecoverInterruptedJobs() (int64, error) {
	return s.jobRepo.ResetInProgress()
}
