package repositories

import (
	"database/sql"
	"sync"

	"github.com/alimgiray/bountyscope/internal/models"
)

// IssueCommentRepository stores immutable issue comments. There is no update path.
type IssueCommentRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

func NewIssueCommentRepository(db *sql.DB) *IssueCommentRepository {
	return &IssueCommentRepository{db: db}
}

// Create inserts a comment; a comment with the same github_id gets ErrDuplicate
func (r *IssueCommentRepository) Create(comment *models.IssueComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO issue_comments (
			id, github_id, issue_id, body, html_url, author_username, author_avatar_url,
			author_association, github_created_at, github_updated_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		comment.ID, comment.GithubID, comment.IssueID, comment.Body, comment.HTMLURL,
		comment.AuthorUsername, comment.AuthorAvatarURL, comment.AuthorAssociation,
		comment.GithubCreatedAt, comment.GithubUpdatedAt, comment.CreatedAt,
	)

	return mapInsertError(err)
}

// ExistsByGithubID reports whether a comment with the upstream id is stored
func (r *IssueCommentRepository) ExistsByGithubID(githubID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM issue_comments WHERE github_id = ?)`, githubID).Scan(&exists)
	return exists, err
}

// GetByIssueID returns an issue's comments in upstream creation order
func (r *IssueCommentRepository) GetByIssueID(issueID string) ([]*models.IssueComment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT id, github_id, issue_id, body, html_url, author_username, author_avatar_url,
		       author_association, github_created_at, github_updated_at, created_at
		FROM issue_comments
		WHERE issue_id = ?
		ORDER BY github_created_at ASC, github_id ASC
	`

	rows, err := r.db.Query(query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.IssueComment
	for rows.Next() {
		comment := &models.IssueComment{}
		err := rows.Scan(
			&comment.ID, &comment.GithubID, &comment.IssueID, &comment.Body, &comment.HTMLURL,
			&comment.AuthorUsername, &comment.AuthorAvatarURL, &comment.AuthorAssociation,
			&comment.GithubCreatedAt, &comment.GithubUpdatedAt, &comment.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}

	return comments, rows.Err()
}
