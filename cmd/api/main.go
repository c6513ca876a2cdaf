package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/config"
	"github.com/ecocycle/collection-service/internal/infrastructure"
	"github.com/ecocycle/collection-service/internal/infrastructure/cache"
	"github.com/ecocycle/collection-service/pkg/actor"
	"github.com/ecocycle/collection-service/pkg/contracts/openapi"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/outbox"
	"github.com/ecocycle/collection-service/pkg/resilience"
	"github.com/ecocycle/collection-service/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.DefaultConfig("collection-service")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	serviceName := cfg.Service.Name

	// Setup logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(cfg.Service.LogLevel)
	logConfig.Environment = cfg.Service.Environment
	logConfig.Version = cfg.Service.Version
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting collection API", "store", cfg.Store.Driver)
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := cfg.TracingConfig()
	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))

	// Open the configured store
	backend, err := infrastructure.Open(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to open store")
		os.Exit(1)
	}
	defer backend.Close(context.Background())
	if err := backend.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to ensure indexes")
	}
	logger.Info("Store opened", "driver", backend.Driver)

	// Available list cache
	var availableCache application.AvailableCollectionsCache
	if cfg.Redis.Enabled {
		redisConfig := cfg.RedisConfig()
		redisClient := cache.NewClient(redisConfig)
		defer redisClient.Close()
		availableCache = cache.NewAvailableCache(redisClient, redisConfig, logger, m)
		logger.Info("Redis cache enabled", "addr", redisConfig.Addr)
	}

	// Outbox relay to Kafka
	if cfg.Kafka.Enabled {
		kafkaConfig := cfg.KafkaConfig()
		kafkaProducer := kafka.NewProducer(kafkaConfig)
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("kafka-producer"), logger, m)
		instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, breaker, m, logger)
		defer kafkaProducer.Close()

		outboxPublisher := outbox.NewPublisher(backend.Outbox, instrumentedProducer, logger, m, &outbox.PublisherConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		})
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started", "brokers", kafkaConfig.Brokers)
	}

	// Application services
	services := &Services{
		Collections: application.NewCollectionApplicationService(backend.Collections, availableCache, logger, m),
		Interests:   application.NewInterestApplicationService(backend.Interests, backend.Collections, logger, m),
		Impact:      application.NewImpactApplicationService(backend.Collections, backend.Impacts, cfg.ImpactFactors(), logger, m),
	}

	routerConfig := &RouterConfig{
		ServiceName:    serviceName,
		Logger:         logger,
		Metrics:        m,
		EnableTracing:  cfg.Tracing.Enabled,
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          backend.Ping,
		Actor: &actor.Config{
			TrustHeaders: cfg.Auth.TrustHeaders,
		},
	}
	if cfg.Auth.JWTSecret != "" {
		routerConfig.Actor.Tokens = actor.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	} else if !cfg.Auth.TrustHeaders {
		logger.Warn("No JWT secret and header identities disabled: every request will be anonymous")
	}
	if cfg.Idempotency.Enabled {
		idem := idempotency.DefaultConfig(serviceName, backend.IdempotencyKeys, logger)
		idem.RequireKey = cfg.Idempotency.RequireKey
		idem.RetentionPeriod = cfg.Idempotency.Retention
		routerConfig.Idempotency = idem
	}
	if cfg.Server.OpenAPIValidate {
		validator, err := openapi.NewDefaultValidator()
		if err != nil {
			logger.WithError(err).Error("Failed to load OpenAPI document")
			os.Exit(1)
		}
		routerConfig.OpenAPI = validator
	}

	router := newRouter(services, routerConfig)

	// Start server
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.Server.Addr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
