package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

type IssueService struct {
	issueRepo      *repositories.IssueRepository
	labelRepo      *repositories.LabelRepository
	repoService    *GitHubRepositoryService
	commentService *CommentService
	client         *GitHubClient
	now            func() time.Time
}

func NewIssueService(
	issueRepo *repositories.IssueRepository,
	labelRepo *repositories.LabelRepository,
	repoService *GitHubRepositoryService,
	commentService *CommentService,
	client *GitHubClient,
) *IssueService {
	return &IssueService{
		issueRepo:      issueRepo,
		labelRepo:      labelRepo,
		repoService:    repoService,
		commentService: commentService,
		client:         client,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// UpsertFromUpstream creates or updates the local copy of an upstream issue.
//
// minAmount only gates creation: an issue that is already stored is always
// updated with the newly extracted amount, even when it drops below minAmount.
func (s *IssueService) UpsertFromUpstream(ctx context.Context, ghIssue *github.Issue, minAmount int64) (*models.Issue, Outcome) {
	issue, outcome := s.upsert(ctx, ghIssue, minAmount)
	issueUpserts.WithLabelValues(outcome.String()).Inc()
	return issue, outcome
}

func (s *IssueService) upsert(ctx context.Context, ghIssue *github.Issue, minAmount int64) (*models.Issue, Outcome) {
	log := logger.WithField("issue_github_id", ghIssue.GetID())

	if err := validateIssuePayload(ghIssue); err != nil {
		log.WithError(err).Warn("Skipping issue with malformed payload")
		return nil, OutcomeFailed
	}

	owner, name, err := repositoryFromIssueURL(ghIssue.GetRepositoryURL())
	if err != nil {
		log.WithError(err).Warn("Skipping issue with malformed payload")
		return nil, OutcomeFailed
	}
	log = log.WithField("repository", owner+"/"+name)

	amount, source := extractBounty(ghIssue)

	existing, err := s.issueRepo.GetByGithubID(ghIssue.GetID())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).Error("Failed to read issue")
		return nil, OutcomeFailed
	}
	if existing == nil && amount < minAmount {
		return nil, OutcomeBelowThreshold
	}

	repo, repoOutcome := s.repoService.GetOrCreate(ctx, owner, name)
	if repo == nil {
		log.WithField("outcome", repoOutcome.String()).Warn("Skipping issue without a resolvable repository")
		if repoOutcome == OutcomeRateLimited || repoOutcome == OutcomeNotFound {
			return nil, repoOutcome
		}
		return nil, OutcomeFailed
	}

	outcome := OutcomeUpdated
	if existing != nil {
		applyIssueFields(existing, ghIssue, repo, amount, source)
		existing.MarkFetched(s.now())
		if err := s.issueRepo.Update(existing); err != nil {
			log.WithError(err).Error("Failed to update issue")
			return nil, OutcomeFailed
		}
	} else {
		existing, outcome, err = s.create(ghIssue, repo, amount, source)
		if err != nil {
			log.WithError(err).Error("Failed to create issue")
			return nil, OutcomeFailed
		}
	}

	s.reconcileLabels(existing, ghIssue.Labels)

	log.WithFields(logrus.Fields{
		"outcome":       outcome.String(),
		"bounty_amount": existing.BountyAmount,
	}).Debug("Upserted issue")

	return existing, outcome
}

func (s *IssueService) create(ghIssue *github.Issue, repo *models.Repository, amount int64, source *string) (*models.Issue, Outcome, error) {
	now := s.now()
	issue := models.NewIssue(ghIssue.GetID(), ghIssue.GetNumber(), repo)
	applyIssueFields(issue, ghIssue, repo, amount, source)
	issue.LastFetchedAt = &now

	err := s.issueRepo.Create(issue)
	if err == nil {
		return issue, OutcomeCreated, nil
	}
	if !errors.Is(err, repositories.ErrDuplicate) {
		return nil, OutcomeFailed, err
	}

	// created concurrently; update the winner's row instead
	existing, err := s.issueRepo.GetByGithubID(issue.GithubID)
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("%w: %v", ErrPersistenceConflict, err)
	}
	applyIssueFields(existing, ghIssue, repo, amount, source)
	existing.MarkFetched(now)
	if err := s.issueRepo.Update(existing); err != nil {
		return nil, OutcomeFailed, err
	}
	return existing, OutcomeUpdated, nil
}

// reconcileLabels attaches every payload label. Labels are never detached.
func (s *IssueService) reconcileLabels(issue *models.Issue, ghLabels []*github.Label) {
	for _, ghLabel := range ghLabels {
		if strings.TrimSpace(ghLabel.GetName()) == "" {
			continue
		}

		label, err := s.labelRepo.GetOrCreate(models.NewLabel(ghLabel.GetName(), ghLabel.GetColor(), ghLabel.Description))
		if err != nil {
			logger.WithField("label", ghLabel.GetName()).WithError(err).Error("Failed to store label")
			continue
		}
		if err := s.labelRepo.Attach(issue.ID, label.ID); err != nil {
			logger.WithField("label", label.Name).WithError(err).Error("Failed to attach label")
		}
	}

	labels, err := s.labelRepo.GetByIssueID(issue.ID)
	if err != nil {
		logger.WithField("issue_id", issue.ID).WithError(err).Warn("Failed to load labels")
		return
	}
	issue.Labels = labels
}

// SyncResult reports a per-issue sync
type SyncResult struct {
	Issue       *models.Issue
	NewComments int
}

// SyncIssue re-fetches a stored issue, updates it through the regular update
// path and appends any comments not yet stored
func (s *IssueService) SyncIssue(ctx context.Context, issueID string) (*SyncResult, error) {
	issue, err := s.issueRepo.GetByID(issueID)
	if err != nil {
		return nil, err
	}

	var ghIssue github.Issue
	if err := s.client.Get(ctx, issue.APIURL, nil, &ghIssue); err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s: %w", issue.ShortURL(), err)
	}

	// an existing issue is never dropped by the threshold
	updated, outcome := s.UpsertFromUpstream(ctx, &ghIssue, 0)
	if !outcome.OK() {
		return nil, fmt.Errorf("failed to update issue %s: %s", issue.ShortURL(), outcome)
	}

	if _, err := s.repoService.UpdateBountyStats(updated.RepositoryID); err != nil {
		logger.WithField("repository", updated.RepositoryFullName).WithError(err).Warn("Failed to refresh bounty stats")
	}

	comments, err := s.commentService.SyncComments(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to sync comments for %s: %w", issue.ShortURL(), err)
	}

	logger.WithFields(logrus.Fields{
		"issue_id":     updated.ID,
		"new_comments": len(comments),
	}).Info("Synced issue")

	return &SyncResult{Issue: updated, NewComments: len(comments)}, nil
}

// Search returns one page of stored issues matching filter
func (s *IssueService) Search(filter models.IssueFilter, opts models.IssueListOptions) (*models.IssuePage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Normalize()

	issues, total, err := s.issueRepo.Search(filter, opts)
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []*models.Issue{}
	}

	return &models.IssuePage{
		Items:      issues,
		Pagination: models.NewPagination(opts.Page, opts.PerPage, total),
	}, nil
}

// GetIssue retrieves a stored issue with its labels
func (s *IssueService) GetIssue(id string) (*models.Issue, error) {
	issue, err := s.issueRepo.GetByID(id)
	if err != nil {
		return nil, err
	}

	labels, err := s.labelRepo.GetByIssueID(id)
	if err != nil {
		return nil, err
	}
	issue.Labels = labels
	return issue, nil
}

// IncrementViewCount records a view and returns the new count
func (s *IssueService) IncrementViewCount(id string) (int, error) {
	return s.issueRepo.IncrementViewCount(id)
}

func validateIssuePayload(ghIssue *github.Issue) error {
	switch {
	case ghIssue == nil:
		return fmt.Errorf("%w: nil issue", ErrMalformedPayload)
	case ghIssue.ID == nil || ghIssue.Number == nil:
		return fmt.Errorf("%w: issue without id or number", ErrMalformedPayload)
	case ghIssue.GetUser().GetLogin() == "":
		return fmt.Errorf("%w: issue %d without author", ErrMalformedPayload, ghIssue.GetID())
	case ghIssue.CreatedAt == nil:
		return fmt.Errorf("%w: issue %d without created_at", ErrMalformedPayload, ghIssue.GetID())
	}
	return nil
}

// repositoryFromIssueURL extracts owner and name from ".../repos/{owner}/{name}"
func repositoryFromIssueURL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: repository_url %q", ErrMalformedPayload, raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	n := len(parts)
	if n < 3 || parts[n-3] != "repos" || parts[n-2] == "" || parts[n-1] == "" {
		return "", "", fmt.Errorf("%w: repository_url %q", ErrMalformedPayload, raw)
	}
	return parts[n-2], parts[n-1], nil
}

func extractBounty(ghIssue *github.Issue) (int64, *string) {
	text := bountyText(ghIssue.GetTitle(), ghIssue.GetBody())

	amount := ExtractBountyAmount(text)
	var source *string
	if tag, ok := DetermineBountySource(text); ok {
		source = &tag
	}
	return amount, source
}

// applyIssueFields overwrites the mutable fields from the upstream payload
func applyIssueFields(issue *models.Issue, ghIssue *github.Issue, repo *models.Repository, amount int64, source *string) {
	issue.Title = ghIssue.GetTitle()
	issue.Body = ghIssue.Body
	issue.HTMLURL = ghIssue.GetHTMLURL()
	issue.APIURL = ghIssue.GetURL()
	issue.Status = models.IssueStatusFromState(ghIssue.GetState())
	issue.IsPullRequest = ghIssue.IsPullRequest()
	issue.SetBounty(amount, source)
	issue.AuthorUsername = ghIssue.GetUser().GetLogin()
	issue.AuthorAvatarURL = ghIssue.GetUser().AvatarURL
	issue.AssigneeUsername = nil
	if assignee := ghIssue.GetAssignee(); assignee != nil && assignee.Login != nil {
		issue.AssigneeUsername = assignee.Login
	}
	issue.CommentsCount = ghIssue.GetComments()
	issue.PrimaryLanguage = repo.PrimaryLanguage

	issue.GithubCreatedAt = ghIssue.GetCreatedAt().UTC()
	issue.GithubUpdatedAt = issue.GithubCreatedAt
	if ghIssue.UpdatedAt != nil {
		issue.GithubUpdatedAt = ghIssue.GetUpdatedAt().UTC()
	}
	issue.GithubClosedAt = nil
	if ghIssue.ClosedAt != nil {
		closed := ghIssue.GetClosedAt().UTC()
		issue.GithubClosedAt = &closed
	}
}
