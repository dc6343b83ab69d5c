package models

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	JobTypeCrawl JobType = "crawl"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job records one queued or executed crawl run
type Job struct {
	ID           string     `json:"id"`
	JobType      JobType    `json:"job_type"`
	Status       JobStatus  `json:"status"`
	Query        string     `json:"query"`
	Language     *string    `json:"language"`
	IssuesFound  int        `json:"issues_found"`
	ErrorMessage *string    `json:"error_message"`
	WorkerID     *string    `json:"worker_id"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewCrawlJob creates a pending crawl job for query, optionally narrowed to a language
func NewCrawlJob(query string, language *string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New().String(),
		JobType:   JobTypeCrawl,
		Status:    JobStatusPending,
		Query:     query,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the job is pending or running
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusInProgress
}

// MarkStarted marks the job as started
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobStatusInProgress
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *Job) MarkCompleted(issuesFound int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.IssuesFound = issuesFound
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed
func (j *Job) MarkFailed(message string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = &message
	j.CompletedAt = &now
	j.UpdatedAt = now
}
