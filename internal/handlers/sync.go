package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	jobService *services.JobService
	syncConfig config.SyncConfig
}

func NewSyncHandler(jobService *services.JobService, syncConfig config.SyncConfig) *SyncHandler {
	return &SyncHandler{
		jobService: jobService,
		syncConfig: syncConfig,
	}
}

type syncRequest struct {
	Query     string   `json:"query"`
	Languages []string `json:"languages"`
}

// TriggerSync queues crawl jobs. The body is optional; missing fields use the configured crawl.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request body",
		})
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		query = h.syncConfig.Query
	}
	languages := req.Languages
	if len(languages) == 0 {
		languages = h.syncConfig.Languages
	}

	jobs, err := h.jobService.CreateCrawlJobs(query, languages)
	if err != nil {
		logger.WithError(err).Error("Failed to queue crawl jobs")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to queue crawl jobs",
		})
		return
	}
	if len(jobs) == 0 {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"message": services.ErrJobActive.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": fmt.Sprintf("Queued %d crawl jobs", len(jobs)),
		"data":    jobs,
	})
}

// ListJobs returns the most recent crawl jobs
func (h *SyncHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobService.ListRecentJobs(queryInt(c, "limit", 20))
	if err != nil {
		logger.WithError(err).Error("Failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list jobs",
		})
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    jobs,
	})
}

// GetJob returns one crawl job
func (h *SyncHandler) GetJob(c *gin.Context) {
	job, err := h.jobService.GetJobByID(c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Job not found",
			})
			return
		}
		logger.WithField("job_id", c.Param("id")).WithError(err).Error("Failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load job",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    job,
	})
}
