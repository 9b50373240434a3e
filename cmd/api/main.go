package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"order-intake-gateway/config"
	"order-intake-gateway/internal/adapter/broker"
	httpHandler "order-intake-gateway/internal/adapter/http/handler"
	"order-intake-gateway/internal/adapter/metrics"
	"order-intake-gateway/internal/adapter/platformapi"
	pgStorage "order-intake-gateway/internal/adapter/storage/postgres"
	redisStorage "order-intake-gateway/internal/adapter/storage/redis"
	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/internal/platform"
	"order-intake-gateway/internal/service"
	"order-intake-gateway/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const maxWebhookBody = 2 << 20

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Order Intake Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	connRepo := pgStorage.NewConnectionRepo(pool)
	ruleRepo := pgStorage.NewRuleSetRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)

	// Initialize Redis stores
	ledger := redisStorage.NewAttemptLedger(rdb, cfg.Pipeline.LedgerRetention)
	orderCache := redisStorage.NewOrderCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	stateSigner := service.NewJWTStateSigner(cfg.JWT.Secret, cfg.JWT.Issuer)

	appSecrets := make(map[domain.PlatformType]string, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		appSecrets[domain.PlatformType(strings.ToLower(name))] = p.ClientSecret
	}
	secretResolver, err := service.NewWebhookSecretResolver(appSecrets, cfg.Secrets.WebhookMasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize webhook secret resolver")
	}

	tolerance, err := decimal.NewFromString(cfg.Pipeline.TotalTolerance)
	if err != nil {
		log.Fatal().Err(err).Str("total_tolerance", cfg.Pipeline.TotalTolerance).Msg("Invalid pipeline total tolerance")
	}

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pipelineMetrics := metrics.NewPipelineMetrics(promRegistry)

	healthCheckers := []ports.HealthChecker{
		pgStorage.NewHealthCheck(pool),
		redisStorage.NewHealthCheck(rdb),
	}

	// Downstream event publishing is optional
	var publisher ports.EventPublisher
	if cfg.Kafka.Enabled {
		writer := broker.NewWriter(cfg.Kafka)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Kafka writer")
			}
		}()
		publisher = broker.NewPublisher(writer, log)
		healthCheckers = append(healthCheckers, broker.NewHealthCheck(cfg.Kafka.Brokers))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka publishing enabled")
	}

	// Initialize business services
	platformRegistry := platform.Default()
	platformClient := platformapi.NewClient(cfg.Platforms, &http.Client{Timeout: 10 * time.Second}, log)

	connSvc := service.NewConnectionService(
		connRepo,
		platformClient,
		stateSigner,
		nonceStore,
		encSvc,
		secretResolver,
		service.ConnectionOptions{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			StateTTL:      cfg.JWT.StateTTL,
		},
		log,
	)
	ruleSvc := service.NewRuleService(ruleRepo, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	catalog := service.NewCatalogResolver(platformClient, connRepo, encSvc, log)
	verifier := service.NewSignatureVerifier(platformRegistry, secretResolver)
	dedup := service.NewDedupEvaluator(ruleRepo, orderRepo, cfg.Pipeline.DedupScanLimit, tolerance, log)
	admission := service.NewAdmissionService(orderRepo, connRepo, orderCache, publisher, cfg.Pipeline.IdempotencyTTL, log)

	ingestSvc := service.NewIngestService(
		platformRegistry,
		connRepo,
		verifier,
		catalog,
		dedup,
		admission,
		ledger,
		pipelineMetrics,
		service.IngestOptions{
			StageTimeout:       cfg.Pipeline.StageTimeout,
			LedgerRetention:    cfg.Pipeline.LedgerRetention,
			LedgerPayloadLimit: cfg.Pipeline.LedgerPayloadLimit,
		},
		log,
	)

	// Load OpenAPI spec for Swagger UI
	openAPISpec, err := os.ReadFile("docs/api/openapi.yaml")
	if err == nil {
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		IngestSvc:      ingestSvc,
		ConnectionSvc:  connSvc,
		RuleSvc:        ruleSvc,
		Ledger:         ledger,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		AuditSvc:       auditSvc,
		MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		MaxWebhookBody: maxWebhookBody,
		OpenAPISpec:    openAPISpec,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
