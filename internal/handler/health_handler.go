package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"collab-service/internal/hub"
)

type HealthHandler struct {
	hub   *hub.Hub
	redis *redis.Client
}

func NewHealthHandler(h *hub.Hub, redis *redis.Client) *HealthHandler {
	return &HealthHandler{
		hub:   h,
		redis: redis,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "collab-service",
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := h.redis.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "redis not reachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Stats reports hub occupancy for the external monitoring endpoint.
func (h *HealthHandler) Stats(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	c.JSON(http.StatusOK, gin.H{
		"connectedClients": h.hub.Registry().TotalConnections(),
		"rooms":            h.hub.Registry().RoomCount(),
		"uptimeSeconds":    int64(h.hub.Uptime().Seconds()),
		"memoryAllocBytes": mem.Alloc,
		"goroutines":       runtime.NumGoroutine(),
	})
}
