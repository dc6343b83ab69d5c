package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

// DefaultRepositoryTTL is how long a cached repository is served without a refresh
const DefaultRepositoryTTL = 24 * time.Hour

type GitHubRepositoryService struct {
	githubRepoRepo *repositories.GitHubRepositoryRepository
	client         *GitHubClient
	ttl            time.Duration
	now            func() time.Time
}

func NewGitHubRepositoryService(
	githubRepoRepo *repositories.GitHubRepositoryRepository,
	client *GitHubClient,
	ttl time.Duration,
) *GitHubRepositoryService {
	if ttl <= 0 {
		ttl = DefaultRepositoryTTL
	}
	return &GitHubRepositoryService{
		githubRepoRepo: githubRepoRepo,
		client:         client,
		ttl:            ttl,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the local record for owner/name. A fresh record is served
// from the store; a stale one is refreshed, falling back to the stale copy when
// the refresh fails; a missing one is fetched and created.
func (s *GitHubRepositoryService) GetOrCreate(ctx context.Context, owner, name string) (*models.Repository, Outcome) {
	repo, outcome := s.getOrCreate(ctx, owner, name)
	repositoryUpserts.WithLabelValues(outcome.String()).Inc()
	return repo, outcome
}

func (s *GitHubRepositoryService) getOrCreate(ctx context.Context, owner, name string) (*models.Repository, Outcome) {
	fullName := owner + "/" + name
	log := logger.WithField("repository", fullName)

	existing, err := s.githubRepoRepo.GetByFullName(fullName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.WithError(err).Error("Failed to read repository")
		return nil, OutcomeFailed
	}

	if existing != nil {
		if !existing.IsStale(s.now(), s.ttl) {
			return existing, OutcomeCached
		}

		ghRepo, err := s.client.GetRepository(ctx, owner, name)
		if err != nil {
			log.WithError(err).Warn("Repository refresh failed, serving stale record")
			return existing, OutcomeStale
		}

		refreshed, err := s.refresh(existing, ghRepo)
		if err != nil {
			log.WithError(err).Error("Failed to store refreshed repository")
			return existing, OutcomeStale
		}
		return refreshed, OutcomeRefreshed
	}

	ghRepo, err := s.client.GetRepository(ctx, owner, name)
	if err != nil {
		log.WithError(err).Warn("Repository fetch failed")
		return nil, OutcomeFromError(err)
	}

	return s.create(ghRepo)
}

// UpdateBountyStats recomputes the repository's aggregate bounty columns
func (s *GitHubRepositoryService) UpdateBountyStats(repositoryID string) (*models.Repository, error) {
	return s.githubRepoRepo.RefreshBountyStats(repositoryID)
}

// FetchTrending stores recently created repositories with more than ten stars.
// timeframe is "day", "week" or "month"; anything else means "week".
func (s *GitHubRepositoryService) FetchTrending(ctx context.Context, timeframe, language string) ([]*models.Repository, error) {
	since := s.now().AddDate(0, 0, -7)
	switch timeframe {
	case "day":
		since = s.now().AddDate(0, 0, -1)
	case "month":
		since = s.now().AddDate(0, 0, -30)
	}

	query := fmt.Sprintf("created:>%s stars:>10", since.Format("2006-01-02"))
	if language != "" {
		query += " language:" + language
	}

	ghRepos, err := s.client.SearchRepositories(ctx, query, "stars", 50)
	if err != nil {
		return nil, err
	}

	var repos []*models.Repository
	for _, ghRepo := range ghRepos {
		repo, outcome := s.upsertFromAPI(ghRepo)
		repositoryUpserts.WithLabelValues(outcome.String()).Inc()
		if repo != nil {
			repos = append(repos, repo)
		}
	}

	return repos, nil
}

// ListRepositories lists stored repositories ordered by stars
func (s *GitHubRepositoryService) ListRepositories(language string, limit, offset int) ([]*models.Repository, error) {
	return s.githubRepoRepo.List(language, limit, offset)
}

// GetByFullName retrieves a stored repository without contacting upstream
func (s *GitHubRepositoryService) GetByFullName(fullName string) (*models.Repository, error) {
	return s.githubRepoRepo.GetByFullName(fullName)
}

// upsertFromAPI stores a repository payload that was already fetched (e.g. from a search)
func (s *GitHubRepositoryService) upsertFromAPI(ghRepo *github.Repository) (*models.Repository, Outcome) {
	existing, err := s.githubRepoRepo.GetByGithubID(ghRepo.GetID())
	switch {
	case err == nil:
		if !existing.IsStale(s.now(), s.ttl) {
			return existing, OutcomeCached
		}
		refreshed, err := s.refresh(existing, ghRepo)
		if err != nil {
			logger.WithField("repository", existing.FullName).WithError(err).Error("Failed to store refreshed repository")
			return existing, OutcomeStale
		}
		return refreshed, OutcomeRefreshed
	case errors.Is(err, sql.ErrNoRows):
		return s.create(ghRepo)
	default:
		logger.WithError(err).Error("Failed to read repository")
		return nil, OutcomeFailed
	}
}

func (s *GitHubRepositoryService) create(ghRepo *github.Repository) (*models.Repository, Outcome) {
	repo, err := repositoryFromAPI(ghRepo, s.now())
	if err != nil {
		logger.WithError(err).Warn("Skipping repository with malformed payload")
		return nil, OutcomeFailed
	}

	err = s.githubRepoRepo.Create(repo)
	if errors.Is(err, repositories.ErrDuplicate) {
		// another crawl created it first; use its row
		existing, readErr := s.githubRepoRepo.GetByFullName(repo.FullName)
		if errors.Is(readErr, sql.ErrNoRows) {
			existing, readErr = s.githubRepoRepo.GetByGithubID(repo.GithubID)
		}
		if readErr != nil {
			logger.WithFields(logrus.Fields{
				"repository": repo.FullName,
				"error":      fmt.Errorf("%w: %v", ErrPersistenceConflict, readErr).Error(),
			}).Error("Failed to re-read conflicting repository")
			return nil, OutcomeFailed
		}
		return existing, OutcomeCached
	}
	if err != nil {
		logger.WithField("repository", repo.FullName).WithError(err).Error("Failed to create repository")
		return nil, OutcomeFailed
	}

	logger.WithFields(logrus.Fields{
		"repository": repo.FullName,
		"github_id":  repo.GithubID,
	}).Info("Created repository")
	return repo, OutcomeCreated
}

func (s *GitHubRepositoryService) refresh(existing *models.Repository, ghRepo *github.Repository) (*models.Repository, error) {
	updateRepositoryFromAPI(existing, ghRepo)
	existing.MarkFetched(s.now())

	if err := s.githubRepoRepo.Update(existing); err != nil {
		return nil, err
	}

	refreshed, err := s.githubRepoRepo.RefreshBountyStats(existing.ID)
	if err != nil {
		logger.WithField("repository", existing.FullName).WithError(err).Warn("Failed to refresh bounty stats")
		return existing, nil
	}
	return refreshed, nil
}

// repositoryFromAPI creates a new Repository from GitHub API data
func repositoryFromAPI(ghRepo *github.Repository, now time.Time) (*models.Repository, error) {
	if ghRepo.ID == nil || ghRepo.GetName() == "" || ghRepo.GetOwner().GetLogin() == "" {
		return nil, fmt.Errorf("%w: repository without id, name or owner", ErrMalformedPayload)
	}
	if ghRepo.CreatedAt == nil {
		return nil, fmt.Errorf("%w: repository %s without created_at", ErrMalformedPayload, ghRepo.GetFullName())
	}

	repo := models.NewRepository(ghRepo.GetID(), ghRepo.GetOwner().GetLogin(), ghRepo.GetName())
	repo.GithubCreatedAt = ghRepo.GetCreatedAt().UTC()
	repo.LastFetchedAt = &now
	updateRepositoryFromAPI(repo, ghRepo)

	return repo, nil
}

// updateRepositoryFromAPI overwrites the mutable cached fields
func updateRepositoryFromAPI(repo *models.Repository, ghRepo *github.Repository) {
	repo.Description = ghRepo.Description
	repo.HTMLURL = ghRepo.GetHTMLURL()
	repo.CloneURL = ghRepo.GetCloneURL()
	repo.SSHURL = ghRepo.GetSSHURL()
	repo.Private = ghRepo.GetPrivate()
	repo.IsFork = ghRepo.GetFork()
	repo.IsArchived = ghRepo.GetArchived()
	repo.IsDisabled = ghRepo.GetDisabled()
	repo.PrimaryLanguage = ghRepo.Language
	repo.StarsCount = ghRepo.GetStargazersCount()
	repo.ForksCount = ghRepo.GetForksCount()
	repo.WatchersCount = ghRepo.GetWatchersCount()
	repo.OpenIssuesCount = ghRepo.GetOpenIssuesCount()
	repo.SizeKB = ghRepo.GetSize()

	if license := ghRepo.GetLicense(); license != nil {
		repo.LicenseName = license.Name
		repo.LicenseSPDXID = license.SPDXID
	} else {
		repo.LicenseName = nil
		repo.LicenseSPDXID = nil
	}

	if ghRepo.UpdatedAt != nil {
		repo.GithubUpdatedAt = ghRepo.GetUpdatedAt().UTC()
	} else if repo.GithubUpdatedAt.IsZero() {
		repo.GithubUpdatedAt = repo.GithubCreatedAt
	}
	if ghRepo.PushedAt != nil {
		pushed := ghRepo.GetPushedAt().UTC()
		repo.GithubPushedAt = &pushed
	}
}
