package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IssueStatus mirrors the upstream open/closed state
type IssueStatus string

const (
	IssueStatusOpen   IssueStatus = "open"
	IssueStatusClosed IssueStatus = "closed"
)

// HighValueThreshold is the bounty amount, in cents, at which an issue counts as high value
const HighValueThreshold int64 = 10000

// IssueStatusFromState maps an upstream state string to an IssueStatus
func IssueStatusFromState(state string) IssueStatus {
	if state == "closed" {
		return IssueStatusClosed
	}
	return IssueStatusOpen
}

// Valid reports whether s is a known status
func (s IssueStatus) Valid() bool {
	return s == IssueStatusOpen || s == IssueStatusClosed
}

// Issue represents a GitHub issue or pull request carrying a bounty
type Issue struct {
	ID                 string      `json:"id"`
	GithubID           int64       `json:"github_id"`
	GithubNumber       int         `json:"github_number"`
	Title              string      `json:"title"`
	Body               *string     `json:"body"`
	HTMLURL            string      `json:"html_url"`
	APIURL             string      `json:"api_url"`
	RepositoryID       string      `json:"repository_id"`
	RepositoryFullName string      `json:"repository_full_name"`
	RepositoryOwner    string      `json:"repository_owner"`
	RepositoryName     string      `json:"repository_name"`
	Status             IssueStatus `json:"status"`
	IsPullRequest      bool        `json:"is_pull_request"`
	BountyAmount       int64       `json:"bounty_amount"`
	HasBounty          bool        `json:"has_bounty"`
	BountySource       *string     `json:"bounty_source"`
	AuthorUsername     string      `json:"author_username"`
	AuthorAvatarURL    *string     `json:"author_avatar_url"`
	AssigneeUsername   *string     `json:"assignee_username"`
	CommentsCount      int         `json:"comments_count"`
	PrimaryLanguage    *string     `json:"primary_language"`
	GithubCreatedAt    time.Time   `json:"github_created_at"`
	GithubUpdatedAt    time.Time   `json:"github_updated_at"`
	GithubClosedAt     *time.Time  `json:"github_closed_at"`
	LastFetchedAt      *time.Time  `json:"last_fetched_at"`
	FetchCount         int         `json:"fetch_count"`
	ViewCount          int         `json:"view_count"`
	Labels             []*Label    `json:"labels,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// NewIssue creates a new Issue with a generated UUID
func NewIssue(githubID int64, number int, repo *Repository) *Issue {
	now := time.Now().UTC()
	return &Issue{
		ID:                 uuid.New().String(),
		GithubID:           githubID,
		GithubNumber:       number,
		RepositoryID:       repo.ID,
		RepositoryFullName: repo.FullName,
		RepositoryOwner:    repo.Owner,
		RepositoryName:     repo.Name,
		PrimaryLanguage:    repo.PrimaryLanguage,
		Status:             IssueStatusOpen,
		FetchCount:         1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// SetBounty is the only writer of BountyAmount and HasBounty, keeping them consistent
func (i *Issue) SetBounty(amount int64, source *string) {
	if amount < 0 {
		amount = 0
	}
	i.BountyAmount = amount
	i.HasBounty = amount > 0
	i.BountySource = source
}

// BountyFormatted formats the bounty amount as currency
func (i *Issue) BountyFormatted() string {
	return FormatCents(i.BountyAmount)
}

// IsHighValue checks if this is a high-value bounty (>= $100)
func (i *Issue) IsHighValue() bool {
	return i.BountyAmount >= HighValueThreshold
}

// ShortURL returns the github.com path of the issue without scheme
func (i *Issue) ShortURL() string {
	return fmt.Sprintf("github.com/%s/issues/%d", i.RepositoryFullName, i.GithubNumber)
}

// AgeDays returns the number of whole days since the issue was opened upstream
func (i *Issue) AgeDays(now time.Time) int {
	if i.GithubCreatedAt.IsZero() {
		return 0
	}
	return int(now.Sub(i.GithubCreatedAt).Hours() / 24)
}

// MarkFetched bumps the freshness marker after a successful upstream read
func (i *Issue) MarkFetched(now time.Time) {
	i.LastFetchedAt = &now
	i.FetchCount++
	i.UpdatedAt = now
}
