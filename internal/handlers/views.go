package handlers

import (
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
)

// IssueView is an issue as returned by the API, with the computed fields added
type IssueView struct {
	*models.Issue
	Formatted      string `json:"bounty_formatted"`
	HighValue      bool   `json:"is_high_value"`
	AgeInDays      int    `json:"age_days"`
	GithubShortURL string `json:"github_short_url"`
}

func newIssueView(issue *models.Issue, now time.Time) IssueView {
	return IssueView{
		Issue:          issue,
		Formatted:      issue.BountyFormatted(),
		HighValue:      issue.IsHighValue(),
		AgeInDays:      issue.AgeDays(now),
		GithubShortURL: issue.ShortURL(),
	}
}

func newIssueViews(issues []*models.Issue, now time.Time) []IssueView {
	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, newIssueView(issue, now))
	}
	return views
}

// RepositoryView is a repository as returned by the API
type RepositoryView struct {
	*models.Repository
	TotalFormatted string `json:"bounty_total_formatted"`
	Popular        bool   `json:"is_popular"`
	Active         bool   `json:"is_active_project"`
}

func newRepositoryView(repo *models.Repository, now time.Time) RepositoryView {
	return RepositoryView{
		Repository:     repo,
		TotalFormatted: repo.BountyTotalFormatted(),
		Popular:        repo.IsPopular(),
		Active:         repo.IsActiveProject(now),
	}
}

func newRepositoryViews(repos []*models.Repository, now time.Time) []RepositoryView {
	views := make([]RepositoryView, 0, len(repos))
	for _, repo := range repos {
		views = append(views, newRepositoryView(repo, now))
	}
	return views
}
