package repositories

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
)

const issueColumns = `
	id, github_id, github_number, title, body, html_url, api_url,
	repository_id, repository_full_name, repository_owner, repository_name,
	status, is_pull_request, bounty_amount, has_bounty, bounty_source,
	author_username, author_avatar_url, assignee_username, comments_count, primary_language,
	github_created_at, github_updated_at, github_closed_at,
	last_fetched_at, fetch_count, view_count, created_at, updated_at`

type IssueRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create inserts a new issue. A concurrent insert of the same github_id gets ErrDuplicate.
func (r *IssueRepository) Create(issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		issue.ID, issue.GithubID, issue.GithubNumber, issue.Title, issue.Body, issue.HTMLURL, issue.APIURL,
		issue.RepositoryID, issue.RepositoryFullName, issue.RepositoryOwner, issue.RepositoryName,
		issue.Status, issue.IsPullRequest, issue.BountyAmount, issue.HasBounty, issue.BountySource,
		issue.AuthorUsername, issue.AuthorAvatarURL, issue.AssigneeUsername, issue.CommentsCount, issue.PrimaryLanguage,
		issue.GithubCreatedAt, issue.GithubUpdatedAt, issue.GithubClosedAt,
		issue.LastFetchedAt, issue.FetchCount, issue.ViewCount, issue.CreatedAt, issue.UpdatedAt,
	)

	return mapInsertError(err)
}

// GetByID retrieves an issue by local ID
func (r *IssueRepository) GetByID(id string) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = ?`
	return scanIssue(r.db.QueryRow(query, id))
}

// GetByGithubID retrieves an issue by its upstream ID, the dedup key
func (r *IssueRepository) GetByGithubID(githubID int64) (*models.Issue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `SELECT ` + issueColumns + ` FROM issues WHERE github_id = ?`
	return scanIssue(r.db.QueryRow(query, githubID))
}

// Update overwrites the mutable fields of an issue
func (r *IssueRepository) Update(issue *models.Issue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	issue.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE issues SET
			title = ?, body = ?, status = ?, is_pull_request = ?,
			bounty_amount = ?, has_bounty = ?, bounty_source = ?,
			assignee_username = ?, comments_count = ?, primary_language = ?,
			github_updated_at = ?, github_closed_at = ?,
			last_fetched_at = ?, fetch_count = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		issue.Title, issue.Body, issue.Status, issue.IsPullRequest,
		issue.BountyAmount, issue.HasBounty, issue.BountySource,
		issue.AssigneeUsername, issue.CommentsCount, issue.PrimaryLanguage,
		issue.GithubUpdatedAt, issue.GithubClosedAt,
		issue.LastFetchedAt, issue.FetchCount, issue.UpdatedAt,
		issue.ID,
	)

	return err
}

// IncrementViewCount bumps the view counter and returns the new value
func (r *IssueRepository) IncrementViewCount(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`UPDATE issues SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return 0, sql.ErrNoRows
	}

	var count int
	err = r.db.QueryRow(`SELECT view_count FROM issues WHERE id = ?`, id).Scan(&count)
	return count, err
}

// Search returns one page of issues matching filter
func (r *IssueRepository) Search(filter models.IssueFilter, opts models.IssueListOptions) ([]*models.Issue, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	opts = opts.Normalize()
	where, args := buildIssueWhere(filter)

	var total int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM issues`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderColumn := map[models.IssueSort]string{
		models.IssueSortCreated: "github_created_at",
		models.IssueSortUpdated: "github_updated_at",
		models.IssueSortBounty:  "bounty_amount",
	}[opts.SortBy]
	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}

	query := `SELECT ` + issueColumns + ` FROM issues` + where +
		` ORDER BY ` + orderColumn + ` ` + direction + `, github_id ` + direction + ` LIMIT ? OFFSET ?`
	args = append(args, opts.PerPage, (opts.Page-1)*opts.PerPage)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, err
		}
		issues = append(issues, issue)
	}

	return issues, total, rows.Err()
}

func buildIssueWhere(filter models.IssueFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	for _, term := range strings.Fields(filter.Query) {
		like := "%" + escapeLike(term) + "%"
		conditions = append(conditions, `(title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR repository_full_name LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if filter.Language != nil {
		conditions = append(conditions, "primary_language = ?")
		args = append(args, *filter.Language)
	}
	if filter.MinAmount != nil {
		conditions = append(conditions, "bounty_amount >= ?")
		args = append(args, *filter.MinAmount)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.HasBounty != nil {
		conditions = append(conditions, "has_bounty = ?")
		args = append(args, *filter.HasBounty)
	}
	if filter.Repository != nil {
		conditions = append(conditions, `repository_full_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(*filter.Repository)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// escapeLike makes user input match literally inside a LIKE pattern
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	err := row.Scan(
		&issue.ID, &issue.GithubID, &issue.GithubNumber, &issue.Title, &issue.Body, &issue.HTMLURL, &issue.APIURL,
		&issue.RepositoryID, &issue.RepositoryFullName, &issue.RepositoryOwner, &issue.RepositoryName,
		&issue.Status, &issue.IsPullRequest, &issue.BountyAmount, &issue.HasBounty, &issue.BountySource,
		&issue.AuthorUsername, &issue.AuthorAvatarURL, &issue.AssigneeUsername, &issue.CommentsCount, &issue.PrimaryLanguage,
		&issue.GithubCreatedAt, &issue.GithubUpdatedAt, &issue.GithubClosedAt,
		&issue.LastFetchedAt, &issue.FetchCount, &issue.ViewCount, &issue.CreatedAt, &issue.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return issue, nil
}
