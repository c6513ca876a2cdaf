package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/internal/config"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/logging"
)

func scheduleAndClaim(t *testing.T, b *Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	c, err := domain.NewCollection("col-1", domain.Actor{ID: "h-1", Role: domain.RoleHousehold},
		domain.WasteTypePaper, nil, "1 Main St", now.Add(24*time.Hour), "", now)
	require.NoError(t, err)
	require.NoError(t, b.Collections.Create(ctx, c))

	_, err = domain.NewClaimResolver(b.Collections, func() time.Time { return now }).
		Claim(ctx, c.ID, domain.Actor{ID: "c-1", Role: domain.RoleCollector})
	require.NoError(t, err)

	stats, err := b.Outbox.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.Pending, int64(2))
	assert.Zero(t, stats.DeadLettered)
}

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.DriverMemory}}

	b, err := Open(context.Background(), cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, b.EnsureIndexes(context.Background()))
	assert.NotNil(t, b.IdempotencyKeys)
	assert.NotNil(t, b.ProcessedMessages)

	scheduleAndClaim(t, b)
	assert.NoError(t, b.Close(context.Background()))
}

func TestOpen_RelationalOnSQLite(t *testing.T) {
	cfg := &config.Config{
		Store: config.StoreConfig{Driver: config.DriverPostgres},
		Postgres: config.PostgresConfig{
			Dialect:      "sqlite",
			DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
	}

	b, err := Open(context.Background(), cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	defer b.Close(context.Background())

	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, b.EnsureIndexes(context.Background()), "migrations are repeatable")
	scheduleAndClaim(t, b)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Driver: "cassandra"}}, logging.NewNop(), nil)
	assert.Error(t, err)
}
