package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-intake-gateway/internal/adapter/http/middleware"
	redisStore "order-intake-gateway/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(store middleware.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	limit := middleware.RateLimiter(store, "webhooks", rule, zerolog.Nop())

	r.POST("/webhooks/:platform/:discriminator", limit, func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/test", limit, func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func newStore(t *testing.T) *redisStore.RateLimitStore {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisStore.NewRateLimitStore(client)
}

func post(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		w := post(router, "/webhooks/shopify/wh_a")
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(router, "/webhooks/shopify/wh_a").Code)
	}

	w := post(router, "/webhooks/shopify/wh_a")
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_KeyedByDiscriminator(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, post(router, "/webhooks/shopify/wh_a").Code)
	}

	// Another connection's counter is independent.
	assert.Equal(t, 200, post(router, "/webhooks/shopify/wh_b").Code)
	assert.Equal(t, 200, post(router, "/webhooks/youcan/wh_a").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int64, time.Duration) (*redisStore.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func TestRateLimiter_DegradedModeAllows(t *testing.T) {
	router := setupRateLimitRouter(failingLimiter{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, 200, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	assert.Equal(t, int64(600), rules["webhooks"].Limit)
	assert.Equal(t, int64(30), rules["oauth_callback"].Limit)
	assert.Equal(t, int64(120), rules["tenant_api"].Limit)
	assert.Equal(t, int64(30), rules["tenant_write"].Limit)
}
