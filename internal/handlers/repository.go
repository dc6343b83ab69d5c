package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alimgiray/bountyscope/internal/models"
	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/gin-gonic/gin"
)

type RepositoryHandler struct {
	repoService *services.GitHubRepositoryService
}

func NewRepositoryHandler(repoService *services.GitHubRepositoryService) *RepositoryHandler {
	return &RepositoryHandler{repoService: repoService}
}

// ListRepositories lists stored repositories, most starred first
func (h *RepositoryHandler) ListRepositories(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if limit < 1 || limit > models.MaxPerPage {
		limit = 50
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	repos, err := h.repoService.ListRepositories(c.Query("language"), limit, offset)
	if err != nil {
		logger.WithError(err).Error("Failed to list repositories")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list repositories",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newRepositoryViews(repos, time.Now().UTC()),
	})
}

// GetRepository returns a stored repository by owner and name
func (h *RepositoryHandler) GetRepository(c *gin.Context) {
	fullName := c.Param("owner") + "/" + c.Param("name")
	repo, err := h.repoService.GetByFullName(fullName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Repository not found",
			})
			return
		}
		logger.WithField("repository", fullName).WithError(err).Error("Failed to load repository")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load repository",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newRepositoryView(repo, time.Now().UTC()),
	})
}

// FetchTrending pulls recently created popular repositories from upstream
func (h *RepositoryHandler) FetchTrending(c *gin.Context) {
	repos, err := h.repoService.FetchTrending(c.Request.Context(), c.DefaultQuery("timeframe", "week"), c.Query("language"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, services.ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"success": false,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Stored %d trending repositories", len(repos)),
		"data":    newRepositoryViews(repos, time.Now().UTC()),
	})
}

// queryInt reads an integer query parameter, falling back on absence or garbage
func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
