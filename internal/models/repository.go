package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository represents an upstream GitHub repository that owns bounty issues
type Repository struct {
	ID                string     `json:"id"`
	GithubID          int64      `json:"github_id"`
	FullName          string     `json:"full_name"`
	Name              string     `json:"name"`
	Owner             string     `json:"owner"`
	Description       *string    `json:"description"`
	HTMLURL           string     `json:"html_url"`
	CloneURL          string     `json:"clone_url"`
	SSHURL            string     `json:"ssh_url"`
	Private           bool       `json:"private"`
	IsFork            bool       `json:"is_fork"`
	IsArchived        bool       `json:"is_archived"`
	IsDisabled        bool       `json:"is_disabled"`
	PrimaryLanguage   *string    `json:"primary_language"`
	StarsCount        int        `json:"stars_count"`
	ForksCount        int        `json:"forks_count"`
	WatchersCount     int        `json:"watchers_count"`
	OpenIssuesCount   int        `json:"open_issues_count"`
	SizeKB            int        `json:"size_kb"`
	LicenseName       *string    `json:"license_name"`
	LicenseSPDXID     *string    `json:"license_spdx_id"`
	TotalBounties     int        `json:"total_bounties"`
	TotalBountyAmount int64      `json:"total_bounty_amount"`
	ActiveBounties    int        `json:"active_bounties"`
	CompletedBounties int        `json:"completed_bounties"`
	GithubCreatedAt   time.Time  `json:"github_created_at"`
	GithubUpdatedAt   time.Time  `json:"github_updated_at"`
	GithubPushedAt    *time.Time `json:"github_pushed_at"`
	LastFetchedAt     *time.Time `json:"last_fetched_at"`
	FetchCount        int        `json:"fetch_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewRepository creates a new Repository with a generated UUID
func NewRepository(githubID int64, owner, name string) *Repository {
	now := time.Now().UTC()
	return &Repository{
		ID:         uuid.New().String(),
		GithubID:   githubID,
		FullName:   owner + "/" + name,
		Name:       name,
		Owner:      owner,
		FetchCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// BountyTotalFormatted renders the summed bounty amount as dollars
func (r *Repository) BountyTotalFormatted() string {
	return FormatCents(r.TotalBountyAmount)
}

// IsPopular reports whether the repository has at least 1000 stars
func (r *Repository) IsPopular() bool {
	return r.StarsCount >= 1000
}

// IsActiveProject reports whether the repository was pushed within the last 30 days
func (r *Repository) IsActiveProject(now time.Time) bool {
	if r.GithubPushedAt == nil {
		return false
	}
	return now.Sub(*r.GithubPushedAt) <= 30*24*time.Hour
}

// IsStale reports whether the cached record is at least ttl old
func (r *Repository) IsStale(now time.Time, ttl time.Duration) bool {
	if r.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*r.LastFetchedAt) >= ttl
}

// MarkFetched bumps the freshness marker after a successful upstream read
func (r *Repository) MarkFetched(now time.Time) {
	r.LastFetchedAt = &now
	r.FetchCount++
	r.UpdatedAt = now
}

// FormatCents formats an amount in cents as "$12.34"
func FormatCents(cents int64) string {
	if cents <= 0 {
		return "$0.00"
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
