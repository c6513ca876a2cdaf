// Package cache provides the Redis read-through cache for the available
// collections list.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/resilience"
)

// Config configures the Redis connection and entry lifetime
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
	Timeout   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Addr:      "localhost:6379",
		TTL:       30 * time.Second,
		KeyPrefix: "collections:available",
		Timeout:   200 * time.Millisecond,
	}
}

// AvailableCache stores pages of the available list under a generation
// number. Invalidate bumps the generation so every cached page is orphaned
// at once and expires by TTL. Backend errors are logged and treated as misses.
type AvailableCache struct {
	client  redis.UniversalClient
	config  *Config
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
}

// NewClient builds a go-redis client from config without pinging it
func NewClient(config *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})
}

func NewAvailableCache(client redis.UniversalClient, config *Config, logger *logging.Logger, m *metrics.Metrics) *AvailableCache {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AvailableCache{
		client:  client,
		config:  config,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("redis-available-cache"), logger, m),
		logger:  logger.WithComponent("available-cache"),
	}
}

func (c *AvailableCache) generationKey() string {
	return c.config.KeyPrefix + ":gen"
}

func (c *AvailableCache) pageKey(gen int64, page domain.Page) string {
	return fmt.Sprintf("%s:%d:%d:%d", c.config.KeyPrefix, gen, page.Limit, page.Offset)
}

func (c *AvailableCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetAvailable returns the cached page, or false on a miss or backend error.
// On a miss the generation it looked under is returned for SetAvailable; a
// backend error yields -1.
func (c *AvailableCache) GetAvailable(ctx context.Context, page domain.Page) ([]*domain.Collection, int64, bool) {
	var (
		collections []*domain.Collection
		hit         bool
		gen         int64
	)
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		var err error
		gen, err = c.generation(ctx)
		if err != nil {
			return err
		}
		raw, err := c.client.Get(ctx, c.pageKey(gen, page)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &collections); err != nil {
			return fmt.Errorf("corrupt cache entry: %w", err)
		}
		hit = true
		return nil
	})
	if err != nil {
		c.logger.Warn("Available cache read failed", "error", err)
		return nil, -1, false
	}
	return collections, gen, hit
}

// SetAvailable stores a page under the generation GetAvailable reported. If
// an Invalidate happened in between, the entry lands under an orphaned
// generation and is never read.
func (c *AvailableCache) SetAvailable(ctx context.Context, gen int64, page domain.Page, collections []*domain.Collection) {
	if gen < 0 {
		return
	}
	raw, err := json.Marshal(collections)
	if err != nil {
		c.logger.Warn("Available cache encode failed", "error", err)
		return
	}
	err = c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.client.Set(ctx, c.pageKey(gen, page), raw, c.config.TTL).Err()
	})
	if err != nil {
		c.logger.Warn("Available cache write failed", "error", err)
	}
}

// Invalidate orphans every cached page
func (c *AvailableCache) Invalidate(ctx context.Context) error {
	err := c.breaker.Run(ctx, func(ctx context.Context) error {
		return c.client.Incr(ctx, c.generationKey()).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate available cache: %w", err)
	}
	return nil
}

// HealthCheck pings Redis
func (c *AvailableCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
