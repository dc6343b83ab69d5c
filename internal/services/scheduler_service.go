package services

import (
	"fmt"

	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SchedulerService queues the periodic bounty crawl
type SchedulerService struct {
	jobService *JobService
	syncConfig config.SyncConfig
	cron       *cron.Cron
}

func NewSchedulerService(jobService *JobService, syncConfig config.SyncConfig) *SchedulerService {
	return &SchedulerService{
		jobService: jobService,
		syncConfig: syncConfig,
		cron:       cron.New(),
	}
}

// StartScheduler registers the crawl on the configured schedule and starts the cron runner.
// The first crawl is queued immediately.
func (s *SchedulerService) StartScheduler() error {
	if _, err := s.cron.AddFunc(s.syncConfig.Schedule, s.scheduleCrawl); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.syncConfig.Schedule, err)
	}

	s.scheduleCrawl()
	s.cron.Start()

	logger.WithField("schedule", s.syncConfig.Schedule).Info("Crawl scheduler started")
	return nil
}

// Stop stops the cron runner and waits for a running enqueue to finish
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *SchedulerService) scheduleCrawl() {
	jobs, err := s.jobService.CreateCrawlJobs(s.syncConfig.Query, s.syncConfig.Languages)
	if err != nil {
		logger.WithError(err).Error("Failed to schedule crawl")
		return
	}

	logger.WithFields(logrus.Fields{
		"query": s.syncConfig.Query,
		"jobs":  len(jobs),
	}).Info("Scheduled crawl jobs")
}
