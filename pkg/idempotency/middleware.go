package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

const (
	// HeaderIdempotencyKey is the request header carrying the key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed marks a response served from the key store
	HeaderReplayed = "Idempotency-Replayed"
)

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName     string
	Repository      KeyRepository
	Logger          *logging.Logger
	RequireKey      bool
	UserIDExtractor func(*gin.Context) string
	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int
}

// DefaultConfig returns a default configuration for the given service
func DefaultConfig(serviceName string, repository KeyRepository, logger *logging.Logger) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		Logger:          logger,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
	}
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response for a repeated Idempotency-Key on
// mutating requests. Server errors release the key so the client may retry.
func Middleware(config *Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return func(c *gin.Context) {
		if !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.New(errors.CodeIdempotencyKeyRequired, ErrKeyRequired.Error()))
				return
			}
			c.Next()
			return
		}
		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.New(errors.CodeIdempotencyKeyInvalid, err.Error()))
			return
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		fingerprint := ComputeFingerprint(append([]byte(c.Request.Method+" "+c.Request.URL.Path+"\n"), body...))

		ctx := c.Request.Context()
		log := logger.WithContext(ctx).WithFields(map[string]any{"idempotencyKey": key, "path": c.Request.URL.Path})
		now := time.Now().UTC()

		existing, isNew, err := config.Repository.AcquireLock(ctx, &IdempotencyKey{
			ID:                 uuid.New().String(),
			Key:                key,
			UserID:             userID,
			ServiceID:          config.ServiceName,
			RequestPath:        c.Request.URL.Path,
			RequestMethod:      c.Request.Method,
			RequestFingerprint: fingerprint,
			CreatedAt:          now,
			ExpiresAt:          now.Add(config.RetentionPeriod),
		})
		if err != nil {
			log.WithError(err).Error("Failed to acquire idempotency lock")
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency storage"))
			return
		}

		if !isNew && existing.RequestFingerprint != fingerprint {
			middleware.AbortWithAppError(c, errors.New(errors.CodeIdempotencyMismatch,
				"request parameters differ from original request with this idempotency key"))
			return
		}

		if existing.IsCompleted() {
			log.Info("Idempotency replay", "statusCode", existing.ResponseCode)
			for k, v := range existing.ResponseHeaders {
				c.Header(k, v)
			}
			c.Header(HeaderReplayed, "true")
			c.Data(existing.ResponseCode, "application/json; charset=utf-8", existing.ResponseBody)
			c.Abort()
			return
		}

		if !isNew && existing.IsLocked() && time.Since(*existing.LockedAt) < config.LockTimeout {
			middleware.AbortWithAppError(c, errors.New(errors.CodeIdempotencyConcurrentRequest,
				"a request with this idempotency key is currently being processed"))
			return
		}

		writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError {
			if err := config.Repository.ReleaseLock(ctx, existing.ID); err != nil {
				log.WithError(err).Warn("Failed to release idempotency lock")
			}
			return
		}

		responseBody := writer.body.Bytes()
		if len(responseBody) > config.MaxResponseSize {
			log.Warn("Response too large to cache", "size", len(responseBody))
			_ = config.Repository.ReleaseLock(ctx, existing.ID)
			return
		}

		headers := map[string]string{}
		for _, h := range []string{"Content-Type", "Location"} {
			if v := writer.Header().Get(h); v != "" {
				headers[h] = v
			}
		}
		if err := config.Repository.StoreResponse(ctx, existing.ID, status, responseBody, headers); err != nil {
			log.WithError(err).Error("Failed to store idempotency response")
		}
	}
}

func isMutatingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
