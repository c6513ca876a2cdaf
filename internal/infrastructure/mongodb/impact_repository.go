package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	mongoutil "github.com/ecocycle/collection-service/pkg/mongodb"
)

const impactsCollection = "impact_records"

// ImpactRepository implements domain.ImpactRepository on MongoDB. Records are
// keyed by collection ID so recalculation overwrites.
type ImpactRepository struct {
	collection *mongo.Collection
	instr      *mongoutil.Instrumentation
}

func NewImpactRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *ImpactRepository {
	return &ImpactRepository{
		collection: db.Collection(impactsCollection),
		instr:      mongoutil.NewInstrumentation(db.Name(), m, logger),
	}
}

func (r *ImpactRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requesterId", Value: 1}},
			Options: options.Index().SetName("idx_requester"),
		},
		{
			Keys:    bson.D{{Key: "collectorId", Value: 1}},
			Options: options.Index().SetName("idx_collector"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create impact indexes: %w", err)
	}
	return nil
}

func (r *ImpactRepository) Save(ctx context.Context, rec *domain.ImpactRecord) error {
	return r.instr.Observe(ctx, impactsCollection, "upsert", func(ctx context.Context) (int64, error) {
		res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": rec.CollectionID}, rec, options.Replace().SetUpsert(true))
		if err != nil {
			return 0, fmt.Errorf("failed to save impact record: %w", err)
		}
		return res.ModifiedCount + res.UpsertedCount, nil
	})
}

func (r *ImpactRepository) FindByCollectionID(ctx context.Context, collectionID string) (*domain.ImpactRecord, error) {
	var rec domain.ImpactRecord
	err := r.instr.Observe(ctx, impactsCollection, "findOne", func(ctx context.Context) (int64, error) {
		if err := r.collection.FindOne(ctx, bson.M{"_id": collectionID}).Decode(&rec); err != nil {
			return 0, err
		}
		return 1, nil
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ domain.ImpactRepository = (*ImpactRepository)(nil)
