package services

import (
	"context"
	"errors"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/repositories"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

type CommentService struct {
	commentRepo *repositories.IssueCommentRepository
	client      *GitHubClient
}

func NewCommentService(commentRepo *repositories.IssueCommentRepository, client *GitHubClient) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		client:      client,
	}
}

// SyncComments stores upstream comments not seen before and returns only those.
// Stored comments are never updated, so edits upstream are not picked up.
func (s *CommentService) SyncComments(ctx context.Context, issue *models.Issue) ([]*models.IssueComment, error) {
	ghComments, err := s.client.ListIssueComments(ctx, issue.RepositoryOwner, issue.RepositoryName, issue.GithubNumber)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"issue_id":   issue.ID,
		"repository": issue.RepositoryFullName,
	})

	inserted := []*models.IssueComment{}
	for _, ghComment := range ghComments {
		if ghComment.ID == nil || ghComment.CreatedAt == nil {
			log.Warn("Skipping comment with malformed payload")
			continue
		}

		exists, err := s.commentRepo.ExistsByGithubID(ghComment.GetID())
		if err != nil {
			log.WithError(err).Error("Failed to check comment")
			continue
		}
		if exists {
			continue
		}

		comment := commentFromAPI(ghComment, issue.ID)
		if err := s.commentRepo.Create(comment); err != nil {
			if !errors.Is(err, repositories.ErrDuplicate) {
				log.WithError(err).Error("Failed to store comment")
			}
			continue
		}
		inserted = append(inserted, comment)
	}

	commentsInserted.Add(float64(len(inserted)))
	return inserted, nil
}

// GetComments returns the stored comments of an issue
func (s *CommentService) GetComments(issueID string) ([]*models.IssueComment, error) {
	comments, err := s.commentRepo.GetByIssueID(issueID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*models.IssueComment{}
	}
	return comments, nil
}

func commentFromAPI(ghComment *github.IssueComment, issueID string) *models.IssueComment {
	comment := models.NewIssueComment(ghComment.GetID(), issueID)
	comment.Body = ghComment.GetBody()
	comment.HTMLURL = ghComment.GetHTMLURL()
	if user := ghComment.GetUser(); user != nil {
		comment.AuthorUsername = user.GetLogin()
		comment.AuthorAvatarURL = user.AvatarURL
	}
	comment.AuthorAssociation = ghComment.AuthorAssociation
	comment.GithubCreatedAt = ghComment.GetCreatedAt().UTC()
	comment.GithubUpdatedAt = comment.GithubCreatedAt
	if ghComment.UpdatedAt != nil {
		comment.GithubUpdatedAt = ghComment.GetUpdatedAt().UTC()
	}
	return comment
}
