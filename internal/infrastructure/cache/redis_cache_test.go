package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/resilience"
)

func unreachableCache() *AvailableCache {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.Timeout = 50 * time.Millisecond
	return NewAvailableCache(NewClient(cfg), cfg, nil, nil)
}

func TestAvailableCache_FailsOpen(t *testing.T) {
	ctx := context.Background()
	c := unreachableCache()
	page := domain.Page{Limit: 20}

	for i := 0; i < 8; i++ {
		got, gen, hit := c.GetAvailable(ctx, page)
		assert.False(t, hit)
		assert.Nil(t, got)
		assert.Equal(t, int64(-1), gen, "a failed read must not be cached")
	}

	assert.NotPanics(t, func() {
		c.SetAvailable(ctx, 0, page, []*domain.Collection{{ID: "col-1"}})
	})

	err := c.Invalidate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen, "repeated failures trip the breaker")
}

func TestAvailableCache_PageKeys(t *testing.T) {
	c := unreachableCache()
	assert.Equal(t, "collections:available:3:20:40", c.pageKey(3, domain.Page{Limit: 20, Offset: 40}))
	assert.Equal(t, "collections:available:gen", c.generationKey())
}

// Runs against a live Redis when REDIS_ADDR is set.
func TestAvailableCache_RoundTripAndInvalidate(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run redis cache tests")
	}
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "test:" + uuid.NewString()
	client := NewClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	c := NewAvailableCache(client, cfg, nil, nil)
	require.NoError(t, c.HealthCheck(ctx))

	page := domain.Page{Limit: 10}
	_, gen, hit := c.GetAvailable(ctx, page)
	assert.False(t, hit)

	c.SetAvailable(ctx, gen, page, []*domain.Collection{{ID: "col-1", Status: domain.StatusScheduled}})
	got, _, hit := c.GetAvailable(ctx, page)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "col-1", got[0].ID)

	require.NoError(t, c.Invalidate(ctx))
	_, _, hit = c.GetAvailable(ctx, page)
	assert.False(t, hit)
}

// Runs against a live Redis when REDIS_ADDR is set.
func TestAvailableCache_InvalidateBetweenReadAndStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run redis cache tests")
	}
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "test:" + uuid.NewString()
	client := NewClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	c := NewAvailableCache(client, cfg, nil, nil)

	page := domain.Page{Limit: 10}
	_, gen, hit := c.GetAvailable(ctx, page)
	require.False(t, hit)

	// a claim commits and invalidates while the list is being read
	require.NoError(t, c.Invalidate(ctx))
	c.SetAvailable(ctx, gen, page, []*domain.Collection{{ID: "col-claimed", Status: domain.StatusScheduled}})

	got, _, hit := c.GetAvailable(ctx, page)
	assert.False(t, hit, "a list read before the invalidation must not be served")
	assert.Nil(t, got)
}
