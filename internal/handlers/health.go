package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alimgiray/bountyscope/internal/services"
	"github.com/alimgiray/bountyscope/internal/workers"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// WorkerStatusReporter is satisfied by the worker manager
type WorkerStatusReporter interface {
	GetWorkerStatus() []workers.WorkerStatus
}

type HealthHandler struct {
	db      *sql.DB
	limiter *services.RateLimiter
	workers WorkerStatusReporter
}

func NewHealthHandler(db *sql.DB, limiter *services.RateLimiter, workers WorkerStatusReporter) *HealthHandler {
	return &HealthHandler{
		db:      db,
		limiter: limiter,
		workers: workers,
	}
}

// HealthCheck reports database reachability, the upstream budget and worker state
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	database := "ok"
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		database = err.Error()
	}

	rate := h.limiter.Status()
	rateLimit := gin.H{
		"remaining":     rate.Remaining,
		"authenticated": rate.Authenticated,
		"reset_at":      rate.ResetAt,
	}
	if rate.ResetAt != nil {
		rateLimit["reset_in"] = humanize.Time(*rate.ResetAt)
	}

	workerStatus := []workers.WorkerStatus{}
	if h.workers != nil {
		workerStatus = h.workers.GetWorkerStatus()
	}

	c.JSON(status, gin.H{
		"success":    status == http.StatusOK,
		"database":   database,
		"rate_limit": rateLimit,
		"workers":    workerStatus,
		"timestamp":  time.Now().UTC(),
	})
}
