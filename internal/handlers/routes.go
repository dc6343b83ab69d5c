package handlers

import (
	"github.com/alimgiray/bountyscope/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health     *HealthHandler
	Issue      *IssueHandler
	Repository *RepositoryHandler
	Sync       *SyncHandler
	Export     *ExportHandler
	NotFound   *NotFoundHandler
}

// SetupRoutes mounts the read API, the admin endpoints and the metrics endpoint
func SetupRoutes(router *gin.Engine, h *Handlers, adminToken string) {
	router.GET("/health", h.Health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/issues", h.Issue.ListIssues)
		api.GET("/issues/:id", h.Issue.GetIssue)
		api.GET("/issues/:id/comments", h.Issue.GetComments)
		api.POST("/issues/:id/view", h.Issue.RecordView)

		api.GET("/repositories", h.Repository.ListRepositories)
		api.GET("/repositories/:owner/:name", h.Repository.GetRepository)

		api.GET("/export/issues.xlsx", h.Export.ExportIssues)

		api.GET("/sync/jobs", h.Sync.ListJobs)
		api.GET("/sync/jobs/:id", h.Sync.GetJob)
	}

	// Endpoints that spend upstream budget
	admin := router.Group("/api")
	admin.Use(middleware.AdminRequired(adminToken))
	{
		admin.POST("/sync", h.Sync.TriggerSync)
		admin.POST("/issues/:id/sync", h.Issue.SyncIssue)
		admin.POST("/repositories/trending", h.Repository.FetchTrending)
	}

	router.NoRoute(h.NotFound.NotFound)
}
