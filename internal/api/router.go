package api

import (
	"shipsync/internal/metrics"
	"shipsync/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(syncHandler *SyncHandler, rdb *redis.Client, requestsPerSecond int, env string) *gin.Engine {
	r := gin.New()

	r.Use(
		cors.Default(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", syncHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Protected Routes (admin surface)
	// Enable Dev-Pass=true for debugging
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(env != "prod"))

	// Rate Limiter for routes that fan out into platform calls
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	{
		protected.POST("/orders/:id/sync", writeLimiter, syncHandler.SyncOrder)
		protected.POST("/sync/drain", writeLimiter, syncHandler.TriggerDrain)
		protected.GET("/sync/status", syncHandler.QueueStatus)
		protected.GET("/orders/:id/outcomes", syncHandler.ListOutcomes)
	}
	return r
}
