package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collab-service/internal/ratelimit"
)

// RateLimit applies a fixed-window limiter keyed by client IP and
// route. Over-limit requests get 429 with a Retry-After hint; WebSocket
// frames have their own silent limiter inside the hub.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP() + ":" + c.FullPath()

		if !limiter.TryAcquire(key) {
			RecordHTTPThrottled()
			if resetAt, ok := limiter.ResetAt(key); ok {
				retry := int(time.Until(resetAt).Seconds()) + 1
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   gin.H{"code": "RATE_LIMITED", "message": "Too many requests"},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
