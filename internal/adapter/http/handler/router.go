package handler

import (
	"net/http"

	"order-intake-gateway/internal/adapter/http/middleware"
	"order-intake-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	IngestSvc      ports.IngestService
	ConnectionSvc  ports.ConnectionService
	RuleSvc        ports.RuleService
	Ledger         ports.AttemptLedger
	TokenSvc       ports.TokenService
	RateLimitStore middleware.Limiter // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule // nil = middleware.DefaultRateLimitRules()
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	MetricsHandler http.Handler       // nil = no /metrics endpoint
	MaxWebhookBody int64
	OpenAPISpec    []byte // nil = /swagger/spec returns 404
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Deep health check over every registered dependency
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	// Swagger documentation
	docs := NewDocsHandler(deps.OpenAPISpec)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.UI)
		swagger.GET("/spec", docs.Spec)
	}

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string, opts ...middleware.RateLimitOption) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger, opts...)
	}

	// --- Platform-facing routes (authenticated by signature or signed state) ---
	maxBody := deps.MaxWebhookBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	webhookHandler := NewWebhookHandler(deps.IngestSvc)
	r.POST("/webhooks/:platform/:discriminator",
		middleware.MaxBodySize(maxBody),
		rl("webhooks", middleware.WithLimitedHandler(webhookHandler.Throttled)),
		webhookHandler.Receive)

	integrationHandler := NewIntegrationHandler(deps.ConnectionSvc)
	r.GET("/integrations/:platform/callback", rl("oauth_callback"), integrationHandler.Callback)

	// --- Tenant API (JWT-authenticated) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1", middleware.MaxBodySize(1<<20), jwtAuth)

	integrations := v1.Group("/integrations")
	{
		integrations.GET("", rl("tenant_api"), integrationHandler.List)
		integrations.POST("/:platform/authorize", rl("tenant_write"), integrationHandler.Authorize)
		integrations.POST("/:platform/link", rl("tenant_write"), integrationHandler.Link)
	}
	v1.POST("/connections/:id/disconnect", rl("tenant_write"), integrationHandler.Disconnect)

	ruleHandler := NewRuleHandler(deps.RuleSvc)
	dedup := v1.Group("/dedup-rules")
	{
		dedup.GET("", rl("tenant_api"), ruleHandler.Get)
		dedup.PUT("", rl("tenant_write"), ruleHandler.Replace)
	}

	attemptHandler := NewAttemptHandler(deps.Ledger)
	attempts := v1.Group("/attempts")
	{
		attempts.GET("", rl("tenant_api"), attemptHandler.List)
		attempts.GET("/:id", rl("tenant_api"), attemptHandler.Get)
	}

	return r
}
