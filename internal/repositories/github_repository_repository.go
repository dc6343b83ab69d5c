package repositories

import (
	"database/sql"
	"sync"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
)

const repositoryColumns = `
	id, github_id, full_name, name, owner, description, html_url, clone_url, ssh_url,
	private, is_fork, is_archived, is_disabled, primary_language,
	stars_count, forks_count, watchers_count, open_issues_count, size_kb,
	license_name, license_spdx_id,
	total_bounties, total_bounty_amount, active_bounties, completed_bounties,
	github_created_at, github_updated_at, github_pushed_at,
	last_fetched_at, fetch_count, created_at, updated_at`

type GitHubRepositoryRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewGitHubRepositoryRepository(db *sql.DB) *GitHubRepositoryRepository {
	return &GitHubRepositoryRepository{db: db}
}

// Create inserts a new repository. A second writer for the same full name gets ErrDuplicate.
func (r *GitHubRepositoryRepository) Create(repo *models.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO repositories (` + repositoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		repo.ID, repo.GithubID, repo.FullName, repo.Name, repo.Owner, repo.Description,
		repo.HTMLURL, repo.CloneURL, repo.SSHURL,
		repo.Private, repo.IsFork, repo.IsArchived, repo.IsDisabled, repo.PrimaryLanguage,
		repo.StarsCount, repo.ForksCount, repo.WatchersCount, repo.OpenIssuesCount, repo.SizeKB,
		repo.LicenseName, repo.LicenseSPDXID,
		repo.TotalBounties, repo.TotalBountyAmount, repo.ActiveBounties, repo.CompletedBounties,
		repo.GithubCreatedAt, repo.GithubUpdatedAt, repo.GithubPushedAt,
		repo.LastFetchedAt, repo.FetchCount, repo.CreatedAt, repo.UpdatedAt,
	)

	return mapInsertError(err)
}

// GetByID retrieves a repository by local ID
func (r *GitHubRepositoryRepository) GetByID(id string) (*models.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = ?`
	return scanRepository(r.db.QueryRow(query, id))
}

// GetByFullName retrieves a repository by its "owner/name"
func (r *GitHubRepositoryRepository) GetByFullName(fullName string) (*models.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE full_name = ?`
	return scanRepository(r.db.QueryRow(query, fullName))
}

// GetByGithubID retrieves a repository by its upstream ID
func (r *GitHubRepositoryRepository) GetByGithubID(githubID int64) (*models.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + repositoryColumns + ` FROM repositories WHERE github_id = ?`
	return scanRepository(r.db.QueryRow(query, githubID))
}

// Update overwrites the cached upstream fields and freshness marker
func (r *GitHubRepositoryRepository) Update(repo *models.Repository) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	repo.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE repositories SET
			github_id = ?, name = ?, description = ?, html_url = ?, clone_url = ?, ssh_url = ?,
			private = ?, is_fork = ?, is_archived = ?, is_disabled = ?, primary_language = ?,
			stars_count = ?, forks_count = ?, watchers_count = ?, open_issues_count = ?, size_kb = ?,
			license_name = ?, license_spdx_id = ?,
			github_updated_at = ?, github_pushed_at = ?,
			last_fetched_at = ?, fetch_count = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		repo.GithubID, repo.Name, repo.Description, repo.HTMLURL, repo.CloneURL, repo.SSHURL,
		repo.Private, repo.IsFork, repo.IsArchived, repo.IsDisabled, repo.PrimaryLanguage,
		repo.StarsCount, repo.ForksCount, repo.WatchersCount, repo.OpenIssuesCount, repo.SizeKB,
		repo.LicenseName, repo.LicenseSPDXID,
		repo.GithubUpdatedAt, repo.GithubPushedAt,
		repo.LastFetchedAt, repo.FetchCount, repo.UpdatedAt,
		repo.ID,
	)

	return err
}

// RefreshBountyStats recomputes the aggregate bounty columns from the repository's issues
func (r *GitHubRepositoryRepository) RefreshBountyStats(id string) (*models.Repository, error) {
	r.mu.Lock()
	query := `
		UPDATE repositories SET
			total_bounties = (SELECT COUNT(*) FROM issues WHERE repository_id = repositories.id AND has_bounty = 1),
			total_bounty_amount = (SELECT COALESCE(SUM(bounty_amount), 0) FROM issues WHERE repository_id = repositories.id AND has_bounty = 1),
			active_bounties = (SELECT COUNT(*) FROM issues WHERE repository_id = repositories.id AND has_bounty = 1 AND status = ?),
			completed_bounties = (SELECT COUNT(*) FROM issues WHERE repository_id = repositories.id AND has_bounty = 1 AND status = ?)
		WHERE id = ?
	`
	_, err := r.db.Exec(query, models.IssueStatusOpen, models.IssueStatusClosed, id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return r.GetByID(id)
}

// List retrieves repositories ordered by stars, optionally filtered by language
func (r *GitHubRepositoryRepository) List(language string, limit, offset int) ([]*models.Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + repositoryColumns + ` FROM repositories`
	args := []interface{}{}
	if language != "" {
		query += ` WHERE primary_language = ?`
		args = append(args, language)
	}
	query += ` ORDER BY stars_count DESC, full_name ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}

	return repos, rows.Err()
}

func scanRepository(row rowScanner) (*models.Repository, error) {
	repo := &models.Repository{}
	err := row.Scan(
		&repo.ID, &repo.GithubID, &repo.FullName, &repo.Name, &repo.Owner, &repo.Description,
		&repo.HTMLURL, &repo.CloneURL, &repo.SSHURL,
		&repo.Private, &repo.IsFork, &repo.IsArchived, &repo.IsDisabled, &repo.PrimaryLanguage,
		&repo.StarsCount, &repo.ForksCount, &repo.WatchersCount, &repo.OpenIssuesCount, &repo.SizeKB,
		&repo.LicenseName, &repo.LicenseSPDXID,
		&repo.TotalBounties, &repo.TotalBountyAmount, &repo.ActiveBounties, &repo.CompletedBounties,
		&repo.GithubCreatedAt, &repo.GithubUpdatedAt, &repo.GithubPushedAt,
		&repo.LastFetchedAt, &repo.FetchCount, &repo.CreatedAt, &repo.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return repo, nil
}
