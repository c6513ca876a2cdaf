// Package infrastructure selects and opens the configured store driver.
package infrastructure

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ecocycle/collection-service/internal/config"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/events"
	"github.com/ecocycle/collection-service/internal/infrastructure/memory"
	mongoRepo "github.com/ecocycle/collection-service/internal/infrastructure/mongodb"
	"github.com/ecocycle/collection-service/internal/infrastructure/postgres"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	idemMongo "github.com/ecocycle/collection-service/pkg/idempotency/mongodb"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/mongodb"
	"github.com/ecocycle/collection-service/pkg/outbox"
)

// Backend is one opened store: the repositories, the outbox they write to
// and the idempotency stores of the HTTP and consumer paths.
type Backend struct {
	Driver      string
	Collections domain.CollectionRepository
	Interests   domain.MaterialInterestRepository
	Impacts     domain.ImpactRepository
	Outbox      outbox.Repository

	IdempotencyKeys   idempotency.KeyRepository
	ProcessedMessages idempotency.MessageRepository

	ping    func(ctx context.Context) error
	indexes func(ctx context.Context) error
	close   func(ctx context.Context) error
}

// Open connects to the driver named by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*Backend, error) {
	mapper := events.NewOutboxMapper(nil)

	switch cfg.Store.Driver {
	case config.DriverMongoDB:
		client, err := mongodb.NewClient(ctx, cfg.MongoDBConfig())
		if err != nil {
			return nil, err
		}
		db := client.Database()
		repos := mongoRepo.NewRepositories(db, mapper, m, logger)
		keys := idemMongo.NewKeyRepository(db)
		messages := idemMongo.NewMessageRepository(db)
		return &Backend{
			Driver:            cfg.Store.Driver,
			Collections:       repos.Collections,
			Interests:         repos.Interests,
			Impacts:           repos.Impacts,
			Outbox:            repos.Outbox,
			IdempotencyKeys:   keys,
			ProcessedMessages: messages,
			ping:              client.HealthCheck,
			indexes: func(ctx context.Context) error {
				if err := repos.EnsureIndexes(ctx); err != nil {
					return err
				}
				if err := keys.EnsureIndexes(ctx); err != nil {
					return err
				}
				return messages.EnsureIndexes(ctx)
			},
			close: client.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(cfg.PostgresConfig())
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.AutoMigrate {
			if err := postgres.AutoMigrate(db); err != nil {
				return nil, err
			}
		}
		store := postgres.NewStore(db, mapper)
		return &Backend{
			Driver:      cfg.Store.Driver,
			Collections: store.Collections,
			Interests:   store.Interests,
			Impacts:     store.Impacts,
			Outbox:      store.Outbox,
			// idempotency records stay per process on the relational driver
			IdempotencyKeys:   idempotency.NewMemoryKeyRepository(),
			ProcessedMessages: idempotency.NewMemoryMessageRepository(),
			ping:              func(context.Context) error { return postgres.Ping(db) },
			indexes:           func(context.Context) error { return postgres.AutoMigrate(db) },
			close:             func(context.Context) error { return closeGorm(db) },
		}, nil

	case config.DriverMemory:
		store := memory.NewStore(mapper)
		return &Backend{
			Driver:            cfg.Store.Driver,
			Collections:       store.Collections(),
			Interests:         store.Interests(),
			Impacts:           store.Impacts(),
			Outbox:            store.Outbox(),
			IdempotencyKeys:   idempotency.NewMemoryKeyRepository(),
			ProcessedMessages: idempotency.NewMemoryMessageRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
}

// Ping checks the store is reachable
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// EnsureIndexes creates indexes, or runs migrations on the relational driver
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	if b.indexes == nil {
		return nil
	}
	return b.indexes(ctx)
}

// Close releases the connection pool
func (b *Backend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
