package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alimgiray/bountyscope/internal/app"
	"github.com/alimgiray/bountyscope/internal/handlers"
	"github.com/alimgiray/bountyscope/internal/middleware"
	"github.com/alimgiray/bountyscope/pkg/config"
	"github.com/alimgiray/bountyscope/pkg/database"
	"github.com/alimgiray/bountyscope/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	logger.Init(cfg.LogLevel)
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	if err := database.Init(cfg.Database.Path); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	application, err := app.New(cfg, database.DB)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Jobs left in progress by a previous run go back to the queue
	if n, err := application.JobService.RecoverInterruptedJobs(); err != nil {
		logger.WithError(err).Error("Failed to recover interrupted jobs")
	} else if n > 0 {
		logger.Infof("Re-queued %d interrupted crawl jobs", n)
	}

	scheduler := application.NewScheduler()
	if err := scheduler.StartScheduler(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	workerManager := application.NewWorkerManager()
	if err := workerManager.StartAll(); err != nil {
		logger.Fatalf("Failed to start workers: %v", err)
	}

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())
	handlers.SetupRoutes(router, application.Handlers(workerManager), cfg.Server.AdminToken)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Infof("Server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	scheduler.Stop()
	workerManager.StopAll()

	logger.Info("Server stopped")
}
