package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/gin-gonic/gin"
)

type IssueHandler struct {
	issueService   *services.IssueService
	commentService *services.CommentService
}

func NewIssueHandler(issueService *services.IssueService, commentService *services.CommentService) *IssueHandler {
	return &IssueHandler{
		issueService:   issueService,
		commentService: commentService,
	}
}

// ListIssues searches stored issues using the query string filters
func (h *IssueHandler) ListIssues(c *gin.Context) {
	filter, opts, err := models.ParseIssueFilter(c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	page, err := h.issueService.Search(filter, opts)
	if err != nil {
		if errors.Is(err, models.ErrInvalidFilter) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": err.Error(),
			})
			return
		}
		logger.WithError(err).Error("Failed to search issues")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to search issues",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       newIssueViews(page.Items, time.Now().UTC()),
		"pagination": page.Pagination,
	})
}

// GetIssue returns one stored issue with its labels
func (h *IssueHandler) GetIssue(c *gin.Context) {
	issue, err := h.issueService.GetIssue(c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newIssueView(issue, time.Now().UTC()),
	})
}

// GetComments returns the stored comments of an issue
func (h *IssueHandler) GetComments(c *gin.Context) {
	issueID := c.Param("id")
	if _, err := h.issueService.GetIssue(issueID); err != nil {
		h.lookupFailed(c, err)
		return
	}

	comments, err := h.commentService.GetComments(issueID)
	if err != nil {
		logger.WithField("issue_id", issueID).WithError(err).Error("Failed to load comments")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load comments",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    comments,
	})
}

// RecordView bumps the view counter of an issue
func (h *IssueHandler) RecordView(c *gin.Context) {
	count, err := h.issueService.IncrementViewCount(c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"view_count": count},
	})
}

// SyncIssue re-fetches one issue and its comments from upstream
func (h *IssueHandler) SyncIssue(c *gin.Context) {
	result, err := h.issueService.SyncIssue(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Issue not found"})
		case errors.Is(err, services.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": err.Error()})
		default:
			logger.WithField("issue_id", c.Param("id")).WithError(err).Warn("Issue sync failed")
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Issue synced with %d new comments", result.NewComments),
		"data":    newIssueView(result.Issue, time.Now().UTC()),
	})
}

func (h *IssueHandler) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Issue not found",
		})
		return
	}

	logger.WithField("issue_id", c.Param("id")).WithError(err).Error("Failed to load issue")
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Failed to load issue",
	})
}
