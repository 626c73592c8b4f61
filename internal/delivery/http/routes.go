package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(RateLimitMiddleware(cfg.RateLimit.PerIP, cfg.RateLimit.Burst))

	// Health check endpoints
	router.GET("/", handler.HealthCheck)
	router.GET("/health", handler.HealthCheck)

	// Path used by the browser extension
	router.POST("/search", handler.Search)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", handler.Search)
	}

	return router
}
