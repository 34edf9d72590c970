package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collab-service/internal/config"
	"collab-service/internal/handler"
	"collab-service/internal/hub"
	"collab-service/internal/middleware"
	"collab-service/internal/presence"
	"collab-service/internal/ratelimit"
	"collab-service/internal/sink"
)

// Setup wires the gin engine. Every component that needs to broadcast
// receives the hub by injection; there is no ambient server handle.
func Setup(
	cfg *config.Config,
	collabHub *hub.Hub,
	tracker *presence.Tracker,
	snapshots sink.Sink,
	apiLimiter *ratelimit.Limiter,
	authLimiter *ratelimit.Limiter,
	redisClient *redis.Client,
	logger *zap.Logger,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Metrics())

	healthHandler := handler.NewHealthHandler(collabHub, redisClient)
	presenceHandler := handler.NewPresenceHandler(tracker, logger)
	documentHandler := handler.NewDocumentHandler(snapshots, logger)

	// Health and observability (no auth, no rate limit)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	// WebSocket handshake: throttled separately so failed auth attempts
	// burn their own budget.
	r.GET("/ws/:documentId", middleware.RateLimit(authLimiter), collabHub.HandleWebSocket)

	// Read-only API surface
	api := r.Group("/api/collab")
	api.Use(middleware.RateLimit(apiLimiter))
	{
		api.GET("/stats", healthHandler.Stats)
		api.GET("/presence/:documentId", presenceHandler.GetDocumentPresence)
		api.GET("/presence/:documentId/:userId", presenceHandler.GetUserStatus)
		api.GET("/documents/:documentId/snapshot", documentHandler.GetDocumentSnapshot)
	}

	return r
}
