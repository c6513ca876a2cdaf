package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.temporal.io/sdk/worker"

	"github.com/ecocycle/collection-service/internal/activities"
	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/config"
	"github.com/ecocycle/collection-service/internal/infrastructure"
	"github.com/ecocycle/collection-service/internal/notification"
	"github.com/ecocycle/collection-service/internal/workflows"
	"github.com/ecocycle/collection-service/pkg/contracts/asyncapi"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/middleware"
	"github.com/ecocycle/collection-service/pkg/outbox"
	"github.com/ecocycle/collection-service/pkg/resilience"
	"github.com/ecocycle/collection-service/pkg/temporal"
	"github.com/ecocycle/collection-service/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "address of the health and metrics listener")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New(logging.DefaultConfig("collection-worker")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	serviceName := cfg.Service.Name + "-worker"

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(cfg.Service.LogLevel)
	logConfig.Environment = cfg.Service.Environment
	logConfig.Version = cfg.Service.Version
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting collection worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := tracing.Initialize(ctx, cfg.TracingConfig())
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	backend, err := infrastructure.Open(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to open store")
		os.Exit(1)
	}
	defer backend.Close(context.Background())

	dispatcher := notification.NewDispatcher(notification.NewLogNotifier(logger), logger, m)
	impactService := application.NewImpactApplicationService(
		backend.Collections, backend.Impacts, cfg.ImpactFactors(), logger, m,
	)

	validator, err := asyncapi.NewDefaultEventValidator()
	if err != nil {
		logger.WithError(err).Error("Failed to load event contracts")
		os.Exit(1)
	}

	// Kafka producer for impact announcements
	var impactPublisher outbox.EventPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.KafkaConfig())
		defer producer.Close()
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("kafka-producer"), logger, m)
		impactPublisher = kafka.NewInstrumentedProducer(producer, breaker, m, logger)
	}

	// Temporal worker for the impact workflow
	var starter temporal.Starter
	var temporalWorker worker.Worker
	checks := []middleware.Check{{Name: "store", Probe: backend.Ping}}
	if cfg.Temporal.Enabled {
		temporalClient, err := temporal.NewClient(ctx, cfg.TemporalConfig(), logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Temporal")
			os.Exit(1)
		}
		defer temporalClient.Close()
		starter = temporalClient
		checks = append(checks, middleware.Check{Name: "temporal", Probe: temporalClient.HealthCheck})
		logger.Info("Connected to Temporal", "namespace", cfg.Temporal.Namespace)

		impactActivities := activities.NewImpactActivities(impactService, impactPublisher, dispatcher)
		temporalWorker = temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Impact))
		temporalWorker.RegisterWorkflow(workflows.ImpactCalculationWorkflow)
		temporalWorker.RegisterActivity(impactActivities)
		if err := temporalWorker.Start(); err != nil {
			logger.WithError(err).Error("Failed to start Temporal worker")
			os.Exit(1)
		}
		logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Impact)
	}

	// Kafka consumer for lifecycle events
	processor := NewEventProcessor(validator, dispatcher, starter, logger, m)
	var consumer *kafka.Consumer
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.KafkaConfig(), logger, m)
		subscribe(consumer, processor, backend.ProcessedMessages, serviceName, cfg.Kafka.ConsumerGroup, logger)
		go func() {
			defer close(consumerDone)
			_ = consumer.Start(ctx)
		}()
		logger.Info("Kafka consumer started", "topics", consumedTopics)
	} else {
		close(consumerDone)
		logger.Warn("Kafka disabled: lifecycle events will not be consumed")
	}

	// Health and metrics listener
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, checks...))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	srv := &http.Server{Addr: *metricsAddr, Handler: router, ReadTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Metrics server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	cancel()
	<-consumerDone
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close consumer")
		}
	}
	if temporalWorker != nil {
		temporalWorker.Stop()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("Worker stopped")
}
