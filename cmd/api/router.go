package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/pkg/actor"
	"github.com/ecocycle/collection-service/pkg/contracts/openapi"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

// Services bundles the application services behind the HTTP surface
type Services struct {
	Collections *application.CollectionApplicationService
	Interests   *application.InterestApplicationService
	Impact      *application.ImpactApplicationService
}

// RouterConfig controls the optional layers of the router. Nil Idempotency
// or OpenAPI disables that layer.
type RouterConfig struct {
	ServiceName    string
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	Actor          *actor.Config
	Idempotency    *idempotency.Config
	OpenAPI        *openapi.Validator
	EnableTracing  bool
	RequestTimeout time.Duration
	AllowedOrigins []string
	Ready          func(ctx context.Context) error
}

func newRouter(services *Services, cfg *RouterConfig) *gin.Engine {
	logger := cfg.Logger
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(cfg.ServiceName, logger)
	middlewareConfig.Metrics = cfg.Metrics
	middlewareConfig.Rules = bindingRules()
	middlewareConfig.EnableTracing = cfg.EnableTracing
	middlewareConfig.RequestTimeout = cfg.RequestTimeout
	if cfg.AllowedOrigins != nil {
		middlewareConfig.AllowedOrigins = cfg.AllowedOrigins
	}
	middleware.Setup(router, middlewareConfig)

	// Health check endpoints
	ready := cfg.Ready
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, middleware.Check{Name: "store", Probe: ready}))
	if cfg.Metrics != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.Use(actor.Middleware(cfg.Actor))
	if cfg.OpenAPI != nil {
		v1.Use(openapi.RequestValidation(cfg.OpenAPI))
	}
	if cfg.Idempotency != nil {
		idem := *cfg.Idempotency
		idem.UserIDExtractor = func(c *gin.Context) string {
			if id, ok := actor.FromContext(c.Request.Context()); ok {
				return id.ID
			}
			return ""
		}
		v1.Use(idempotency.Middleware(&idem))
	}

	{
		collections := v1.Group("/collections")
		collections.POST("", scheduleCollectionHandler(services.Collections, logger))
		collections.GET("/available", listAvailableHandler(services.Collections, logger))
		collections.GET("/:id", getCollectionHandler(services.Collections, logger))
		collections.PATCH("/:id", transitionCollectionHandler(services.Collections, logger))
		collections.PATCH("/:id/details", updateDetailsHandler(services.Collections, logger))
		collections.POST("/:id/claim", claimCollectionHandler(services.Collections, logger))
		collections.GET("/:id/impact", getImpactHandler(services.Impact, logger))
		collections.GET("/:id/interests", listCollectionInterestsHandler(services.Interests, logger))
		collections.POST("/:id/interests", expressInterestHandler(services.Interests, logger))

		v1.GET("/requesters/:id/collections", listRequesterCollectionsHandler(services.Collections, logger))
		v1.GET("/collectors/:id/collections", listCollectorCollectionsHandler(services.Collections, logger))
		v1.GET("/recyclers/:id/interests", listRecyclerInterestsHandler(services.Interests, logger))

		interests := v1.Group("/interests")
		interests.POST("/:id/decision", decideInterestHandler(services.Interests, logger))
		interests.POST("/:id/complete", completeInterestHandler(services.Interests, logger))
	}

	return router
}
