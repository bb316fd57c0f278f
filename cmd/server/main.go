package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/handlers"
	"go-lakehouse-gateway/internal/hub"
	"go-lakehouse-gateway/internal/middleware"
	"go-lakehouse-gateway/internal/service"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		println("No .env file found")
	}

	// Initialize logger
	logger, _ := zap.NewProduction()
	if os.Getenv("ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Load configuration
	cfg := config.Load()
	logger.Info("Configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Environment),
	)

	// Wire backends and start background token refresh
	svc := service.New(cfg, logger)
	svc.Start(context.Background())

	var probeSources []string
	if cfg.Workspace.Host != "" {
		probeSources = append(probeSources, service.SourceWarehouse)
	}
	if cfg.Postgres.Host != "" || cfg.Workspace.InstanceName != "" {
		probeSources = append(probeSources, service.SourcePostgres)
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())

	// Health check endpoints (no auth)
	router.GET("/health", handlers.Health)
	router.GET("/ready", handlers.Ready(svc, probeSources))

	// Chat demo
	chatHub := hub.NewHub(logger)
	router.GET("/ws", chatHub.ServeWS())

	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(cfg.APIKeys))
	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	v1.Use(limiter.Handler())

	queryHandler := handlers.NewQueryHandler(svc, svc.QueryCache(), cfg.CacheTTL, logger)
	v1.POST("/query", queryHandler.Execute)
	v1.GET("/cache/stats", handlers.CacheStats(svc.Caches()))
	v1.POST("/cache/clear", handlers.CacheClear(svc.Caches()))

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	limiter.Stop()
	if err := svc.Shutdown(ctx); err != nil {
		logger.Warn("Resource cleanup incomplete", zap.Error(err))
	}

	logger.Info("Server exited")
}
