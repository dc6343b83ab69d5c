package repositories

import (
	"database/sql"
	"sync"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
)

const jobColumns = `
	id, job_type, status, query, language, issues_found, error_message, worker_id,
	started_at, completed_at, created_at, updated_at`

// JobRepository handles database operations for jobs
type JobRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewJobRepository creates a new JobRepository
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job
func (r *JobRepository) Create(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(query,
		job.ID,
		job.JobType,
		job.Status,
		job.Query,
		job.Language,
		job.IssuesFound,
		job.ErrorMessage,
		job.WorkerID,
		job.StartedAt,
		job.CompletedAt,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	return scanJob(r.db.QueryRow(query, id))
}

// ListRecent retrieves the most recently created jobs
func (r *JobRepository) ListRecent(limit int) ([]*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// HasActiveJob reports whether a pending or running job exists for the same query and language
func (r *JobRepository) HasActiveJob(jobType models.JobType, query string, language *string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exists bool
	err := r.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM jobs
			WHERE job_type = ? AND query = ? AND language IS ? AND status IN (?, ?)
		)
	`, jobType, query, language, models.JobStatusPending, models.JobStatusInProgress).Scan(&exists)
	return exists, err
}

// GetNextPendingJob retrieves the next pending job of a specific type (FIFO)
// and claims it for workerID by marking it in-progress
func (r *JobRepository) GetNextPendingJob(jobType models.JobType, workerID string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND job_type = ?
		ORDER BY created_at ASC
		LIMIT 1
	`

	job, err := scanJob(tx.QueryRow(query, models.JobStatusPending, jobType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	job.MarkStarted()
	job.WorkerID = &workerID

	_, err = tx.Exec(`
		UPDATE jobs
		SET status = ?, worker_id = ?, started_at = ?, updated_at = ?
		WHERE id = ?
	`, job.Status, job.WorkerID, job.StartedAt, job.UpdatedAt, job.ID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return job, nil
}

// ResetInProgress returns jobs left in-progress by a previous process to pending
func (r *JobRepository) ResetInProgress() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`
		UPDATE jobs SET status = ?, worker_id = NULL, started_at = NULL, updated_at = ?
		WHERE status = ?
	`, models.JobStatusPending, time.Now().UTC(), models.JobStatusInProgress)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Update updates a job
func (r *JobRepository) Update(job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE jobs
		SET status = ?, issues_found = ?, error_message = ?, worker_id = ?,
		    started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		job.Status,
		job.IssuesFound,
		job.ErrorMessage,
		job.WorkerID,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	return err
}

func scanJob(row rowScanner) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID,
		&job.JobType,
		&job.Status,
		&job.Query,
		&job.Language,
		&job.IssuesFound,
		&job.ErrorMessage,
		&job.WorkerID,
		&job.StartedAt,
		&job.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return job, nil
}
