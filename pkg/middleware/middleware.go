// Package middleware holds the gin middleware shared by the HTTP listeners:
// request identifiers, access logs, metrics, tracing, binding validation and
// the uniform error body.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

type Config struct {
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	ServiceName    string
	EnableTracing  bool
	AllowedOrigins []string
	TrustedProxies []string
	Rules          map[string]Rule
	RequestTimeout time.Duration
}

func DefaultConfig(serviceName string, logger *logging.Logger) *Config {
	return &Config{
		Logger:         logger,
		ServiceName:    serviceName,
		EnableTracing:  true,
		AllowedOrigins: []string{"*"},
		RequestTimeout: 30 * time.Second,
	}
}

// Setup installs the standard chain on router. Order matters: identifiers
// first so every later layer can log them, errors last so they render after
// the handler.
func Setup(router *gin.Engine, config *Config) {
	InitValidator(config.Rules)
	if len(config.TrustedProxies) > 0 {
		_ = router.SetTrustedProxies(config.TrustedProxies)
	}

	router.Use(Recovery(config.Logger), RequestContext())
	if config.EnableTracing {
		router.Use(Tracing(config.ServiceName))
	}
	if config.Metrics != nil {
		router.Use(HTTPMetrics(config.Metrics))
	}
	router.Use(AccessLog(config.Logger))
	if len(config.AllowedOrigins) > 0 {
		router.Use(CORS(config.AllowedOrigins))
	}
	if config.RequestTimeout > 0 {
		router.Use(Timeout(config.RequestTimeout))
	}
	router.Use(ContentType(), ErrorHandler(config.Logger))

	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		AbortWithAppError(c, errors.New(errors.CodeRouteNotFound, "The requested resource was not found"))
	})
	router.NoMethod(func(c *gin.Context) {
		AbortWithAppError(c, errors.New(errors.CodeMethodNotAllowed, "The request method is not supported for this resource"))
	})
}

// CORS allows the listed origins; "*" allows any. Credentials are only
// allowed for an explicit origin list.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key",
			"X-Request-ID", "X-Correlation-ID", "X-Actor-ID", "X-Actor-Role", "traceparent",
		},
		ExposeHeaders: []string{"Location", "X-Request-ID", "X-Correlation-ID", "Idempotency-Replayed"},
		MaxAge:        24 * time.Hour,
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			config.AllowAllOrigins = true
			config.AllowOrigins = nil
			break
		}
		config.AllowOrigins = append(config.AllowOrigins, strings.TrimSuffix(origin, "/"))
	}
	config.AllowCredentials = !config.AllowAllOrigins
	return cors.New(config)
}

// Timeout bounds the request context handed to the use cases
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
