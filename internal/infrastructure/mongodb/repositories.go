// Package mongodb holds the MongoDB adapters for the collection, material
// interest and impact repositories.
package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ecocycle/collection-service/internal/infrastructure/events"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	outboxMongo "github.com/ecocycle/collection-service/pkg/outbox/mongodb"
)

// Repositories groups the adapters sharing one database
type Repositories struct {
	Collections *CollectionRepository
	Interests   *InterestRepository
	Impacts     *ImpactRepository
	Outbox      *outboxMongo.OutboxRepository
}

// NewRepositories wires every adapter against db
func NewRepositories(db *mongo.Database, mapper *events.OutboxMapper, m *metrics.Metrics, logger *logging.Logger) *Repositories {
	return &Repositories{
		Collections: NewCollectionRepository(db, mapper, m, logger),
		Interests:   NewInterestRepository(db, mapper, m, logger),
		Impacts:     NewImpactRepository(db, m, logger),
		Outbox:      outboxMongo.NewOutboxRepository(db),
	}
}

// EnsureIndexes creates indexes for every collection, outbox included
func (r *Repositories) EnsureIndexes(ctx context.Context) error {
	if err := r.Collections.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := r.Interests.EnsureIndexes(ctx); err != nil {
		return err
	}
	return r.Impacts.EnsureIndexes(ctx)
}
