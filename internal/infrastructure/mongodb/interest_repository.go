package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/events"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	mongoutil "github.com/ecocycle/collection-service/pkg/mongodb"
	outboxMongo "github.com/ecocycle/collection-service/pkg/outbox/mongodb"
)

const interestsCollection = "material_interests"

// InterestRepository implements domain.MaterialInterestRepository on MongoDB
type InterestRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	outboxRepo *outboxMongo.OutboxRepository
	mapper     *events.OutboxMapper
	instr      *mongoutil.Instrumentation
}

// NewInterestRepository creates a new InterestRepository
func NewInterestRepository(db *mongo.Database, mapper *events.OutboxMapper, m *metrics.Metrics, logger *logging.Logger) *InterestRepository {
	if mapper == nil {
		mapper = events.NewOutboxMapper(nil)
	}
	return &InterestRepository{
		collection: db.Collection(interestsCollection),
		db:         db,
		outboxRepo: outboxMongo.NewOutboxRepository(db),
		mapper:     mapper,
		instr:      mongoutil.NewInstrumentation(db.Name(), m, logger),
	}
}

func openStatuses() bson.A {
	return bson.A{string(domain.InterestPending), string(domain.InterestAccepted)}
}

// EnsureIndexes creates the lookup indexes and the partial unique index that
// allows one open interest per recycler and collection.
func (r *InterestRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "collectionId", Value: 1}, {Key: "recyclerId", Value: 1}},
			Options: options.Index().
				SetName("uniq_open_interest").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": openStatuses()}}),
		},
		{
			Keys:    bson.D{{Key: "collectionId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_collection"),
		},
		{
			Keys:    bson.D{{Key: "recyclerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_recycler"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create interest indexes: %w", err)
	}
	return nil
}

func (r *InterestRepository) writeWithOutbox(ctx context.Context, m *domain.MaterialInterest, write func(sessCtx mongo.SessionContext) error) error {
	err := mongoutil.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		if err := write(sessCtx); err != nil {
			return err
		}
		records, err := r.mapper.ToOutbox(sessCtx, m.ID, m.GetDomainEvents())
		if err != nil {
			return err
		}
		return r.outboxRepo.SaveAll(sessCtx, records)
	})
	if err != nil {
		return err
	}
	m.ClearDomainEvents()
	return nil
}

// Create inserts the interest. A duplicate open interest maps to ErrInterestExists.
func (r *InterestRepository) Create(ctx context.Context, m *domain.MaterialInterest) error {
	return r.writeWithOutbox(ctx, m, func(sessCtx mongo.SessionContext) error {
		return r.instr.Observe(sessCtx, interestsCollection, "insert", func(ctx context.Context) (int64, error) {
			if _, err := r.collection.InsertOne(ctx, m); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return 0, domain.ErrInterestExists
				}
				return 0, fmt.Errorf("failed to insert material interest: %w", err)
			}
			return 1, nil
		})
	})
}

func (r *InterestRepository) FindByID(ctx context.Context, id string) (*domain.MaterialInterest, error) {
	return r.findOne(ctx, "findOne", bson.M{"_id": id})
}

// FindOpen returns the pending or accepted interest of recyclerID, if any
func (r *InterestRepository) FindOpen(ctx context.Context, collectionID, recyclerID string) (*domain.MaterialInterest, error) {
	return r.findOne(ctx, "findOpen", bson.M{
		"collectionId": collectionID,
		"recyclerId":   recyclerID,
		"status":       bson.M{"$in": openStatuses()},
	})
}

func (r *InterestRepository) findOne(ctx context.Context, operation string, filter bson.M) (*domain.MaterialInterest, error) {
	var m domain.MaterialInterest
	err := r.instr.Observe(ctx, interestsCollection, operation, func(ctx context.Context) (int64, error) {
		if err := r.collection.FindOne(ctx, filter).Decode(&m); err != nil {
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
	return &m, nil
}

// Update replaces the document if its stored version equals expectedVersion
func (r *InterestRepository) Update(ctx context.Context, m *domain.MaterialInterest, expectedVersion int64) error {
	next := *m
	next.Version = expectedVersion + 1
	next.DomainEvents = nil

	err := r.writeWithOutbox(ctx, m, func(sessCtx mongo.SessionContext) error {
		return r.instr.Observe(sessCtx, interestsCollection, "update", func(ctx context.Context) (int64, error) {
			res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": m.ID, "version": expectedVersion}, &next)
			if err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return 0, domain.ErrInterestExists
				}
				return 0, fmt.Errorf("failed to update material interest: %w", err)
			}
			if res.MatchedCount == 0 {
				return 0, domain.ErrStaleInterest
			}
			return res.ModifiedCount, nil
		})
	})
	if err != nil {
		return err
	}
	m.Version = next.Version
	return nil
}

func (r *InterestRepository) FindByCollectionID(ctx context.Context, collectionID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.find(ctx, "findByCollection", bson.M{"collectionId": collectionID}, page)
}

func (r *InterestRepository) FindByRecyclerID(ctx context.Context, recyclerID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.find(ctx, "findByRecycler", bson.M{"recyclerId": recyclerID}, page)
}

func (r *InterestRepository) find(ctx context.Context, operation string, filter bson.M, page domain.Page) ([]*domain.MaterialInterest, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	interests := make([]*domain.MaterialInterest, 0)
	err := r.instr.Observe(ctx, interestsCollection, operation, func(ctx context.Context) (int64, error) {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return 0, err
		}
		defer cursor.Close(ctx)
		if err := cursor.All(ctx, &interests); err != nil {
			return 0, err
		}
		return int64(len(interests)), nil
	})
	if err != nil {
		return nil, err
	}
	return interests, nil
}

var _ domain.MaterialInterestRepository = (*InterestRepository)(nil)
