// Package actor resolves the authenticated caller of a request. Tokens are
// verified here; role semantics belong to the service.
package actor

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

// Header names accepted from a trusted gateway
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const contextKeyIdentity = "actorIdentity"

// Identity is an authenticated user id and role
type Identity struct {
	ID   string
	Role string
}

type identityKey struct{}

// WithIdentity stores the identity on ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = logging.ContextWithActor(ctx, id.ID, id.Role)
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored on ctx, if any
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.ID != ""
}

// Config controls how identities are resolved
type Config struct {
	Tokens *TokenService
	// TrustHeaders accepts X-Actor-ID / X-Actor-Role when no bearer token is
	// present. Only enable behind a gateway that strips these from clients.
	TrustHeaders bool
}

// Middleware resolves the caller identity. Requests without one continue
// anonymously; handlers that need an actor call Require.
func Middleware(config *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, config)
		if err != nil {
			middleware.AbortWithAppError(c, errors.ErrUnauthorized(err.Error()))
			return
		}
		if id.ID != "" {
			c.Set(contextKeyIdentity, id)
			c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		}
		c.Next()
	}
}

func resolve(c *gin.Context, config *Config) (Identity, error) {
	if auth := c.GetHeader("Authorization"); auth != "" && config.Tokens != nil {
		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found {
			return Identity{}, ErrInvalidToken
		}
		return config.Tokens.Verify(strings.TrimSpace(token))
	}
	if config.TrustHeaders {
		return Identity{
			ID:   strings.TrimSpace(c.GetHeader(HeaderActorID)),
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		}, nil
	}
	return Identity{}, nil
}

// Require returns the caller identity or aborts the request with 401
func Require(c *gin.Context) (Identity, bool) {
	if v, ok := c.Get(contextKeyIdentity); ok {
		if id, ok := v.(Identity); ok && id.ID != "" && id.Role != "" {
			return id, true
		}
	}
	middleware.AbortWithAppError(c, errors.ErrUnauthorized("actor identity required"))
	return Identity{}, false
}
