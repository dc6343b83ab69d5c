package models

import (
	"time"

	"github.com/google/uuid"
)

// IssueComment is an immutable copy of an upstream issue comment
type IssueComment struct {
	ID                string    `json:"id"`
	GithubID          int64     `json:"github_id"`
	IssueID           string    `json:"issue_id"`
	Body              string    `json:"body"`
	HTMLURL           string    `json:"html_url"`
	AuthorUsername    string    `json:"author_username"`
	AuthorAvatarURL   *string   `json:"author_avatar_url"`
	AuthorAssociation *string   `json:"author_association"`
	GithubCreatedAt   time.Time `json:"github_created_at"`
	GithubUpdatedAt   time.Time `json:"github_updated_at"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewIssueComment creates a new IssueComment with a generated UUID
func NewIssueComment(githubID int64, issueID string) *IssueComment {
	return &IssueComment{
		ID:        uuid.New().String(),
		GithubID:  githubID,
		IssueID:   issueID,
		CreatedAt: time.Now().UTC(),
	}
}
