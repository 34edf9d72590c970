package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/ratelimit"
)

func setupRouter(limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/test", RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	r := setupRouter(ratelimit.New(3, time.Minute))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}
}

func TestRateLimitRejectsOverBudget(t *testing.T) {
	r := setupRouter(ratelimit.New(2, time.Minute))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		r.ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")
}

func TestRateLimitKeysByClientAndRoute(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/a", RateLimit(limiter), handler)
	r.GET("/api/b", RateLimit(limiter), handler)

	wA := httptest.NewRecorder()
	r.ServeHTTP(wA, httptest.NewRequest(http.MethodGet, "/api/a", nil))
	require.Equal(t, http.StatusOK, wA.Code)

	// Exhausting /api/a leaves /api/b untouched.
	wA2 := httptest.NewRecorder()
	r.ServeHTTP(wA2, httptest.NewRequest(http.MethodGet, "/api/a", nil))
	assert.Equal(t, http.StatusTooManyRequests, wA2.Code)

	wB := httptest.NewRecorder()
	r.ServeHTTP(wB, httptest.NewRequest(http.MethodGet, "/api/b", nil))
	assert.Equal(t, http.StatusOK, wB.Code)
}
