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

const collectionsCollection = "collections"

// optionalCollectionFields are written with omitempty and must be unset when
// the aggregate clears them.
var optionalCollectionFields = []string{
	"wasteAmount", "completedDate", "notes", "cancellationReason",
	"claimedAt", "startedAt", "cancelledAt",
}

// CollectionRepository implements domain.CollectionRepository on MongoDB.
// Every write and its outbox records commit in one transaction.
type CollectionRepository struct {
	collection *mongo.Collection
	db         *mongo.Database
	outboxRepo *outboxMongo.OutboxRepository
	mapper     *events.OutboxMapper
	instr      *mongoutil.Instrumentation
}

// NewCollectionRepository creates a new CollectionRepository
func NewCollectionRepository(db *mongo.Database, mapper *events.OutboxMapper, m *metrics.Metrics, logger *logging.Logger) *CollectionRepository {
	if mapper == nil {
		mapper = events.NewOutboxMapper(nil)
	}
	return &CollectionRepository{
		collection: db.Collection(collectionsCollection),
		db:         db,
		outboxRepo: outboxMongo.NewOutboxRepository(db),
		mapper:     mapper,
		instr:      mongoutil.NewInstrumentation(db.Name(), m, logger),
	}
}

// EnsureIndexes creates the indexes the queries rely on
func (r *CollectionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduledDate", Value: 1}},
			Options: options.Index().SetName("idx_status_scheduled"),
		},
		{
			Keys:    bson.D{{Key: "requesterId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_requester"),
		},
		{
			Keys:    bson.D{{Key: "collectorId", Value: 1}, {Key: "scheduledDate", Value: 1}},
			Options: options.Index().SetName("idx_collector").SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection indexes: %w", err)
	}
	return r.outboxRepo.EnsureIndexes(ctx)
}

// unassigned matches a document whose collectorId is missing or empty
func unassigned() bson.M {
	return bson.M{"$in": bson.A{nil, ""}}
}

func intakeStatuses() bson.A {
	out := bson.A{}
	for _, s := range domain.UnassignedIntakeStatuses() {
		out = append(out, string(s))
	}
	return out
}

// writeWithOutbox runs write and stores the aggregate's pending events in the
// same transaction, clearing them once committed.
func (r *CollectionRepository) writeWithOutbox(ctx context.Context, c *domain.Collection, write func(sessCtx mongo.SessionContext) error) error {
	err := mongoutil.WithTransaction(ctx, r.db.Client(), func(sessCtx mongo.SessionContext) error {
		if err := write(sessCtx); err != nil {
			return err
		}
		records, err := r.mapper.ToOutbox(sessCtx, c.ID, c.GetDomainEvents())
		if err != nil {
			return err
		}
		return r.outboxRepo.SaveAll(sessCtx, records)
	})
	if err != nil {
		return err
	}
	c.ClearDomainEvents()
	return nil
}

// Create inserts a new collection
func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	return r.writeWithOutbox(ctx, c, func(sessCtx mongo.SessionContext) error {
		return r.instr.Observe(sessCtx, collectionsCollection, "insert", func(ctx context.Context) (int64, error) {
			if _, err := r.collection.InsertOne(ctx, c); err != nil {
				return 0, fmt.Errorf("failed to insert collection: %w", err)
			}
			return 1, nil
		})
	})
}

// FindByID returns nil, nil when the collection does not exist
func (r *CollectionRepository) FindByID(ctx context.Context, id string) (*domain.Collection, error) {
	var c domain.Collection
	err := r.instr.Observe(ctx, collectionsCollection, "findOne", func(ctx context.Context) (int64, error) {
		if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
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
	return &c, nil
}

// Update replaces the mutable fields of c if the stored record still matches pre
func (r *CollectionRepository) Update(ctx context.Context, c *domain.Collection, pre domain.Precondition) error {
	filter := bson.M{"_id": c.ID, "status": string(pre.Status)}
	if pre.CollectorID == "" {
		filter["collectorId"] = unassigned()
	} else {
		filter["collectorId"] = pre.CollectorID
	}
	if pre.Version != 0 {
		filter["version"] = pre.Version
	}

	set, unset, err := mutableFields(c)
	if err != nil {
		return err
	}
	update := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	var version int64
	err = r.writeWithOutbox(ctx, c, func(sessCtx mongo.SessionContext) error {
		v, err := r.conditionalUpdate(sessCtx, "update", filter, update)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrStaleCollection
		}
		version = v
		return err
	})
	if err != nil {
		return err
	}
	c.Version = version
	return nil
}

// Claim assigns the collector only if the stored record is still unassigned intake
func (r *CollectionRepository) Claim(ctx context.Context, c *domain.Collection) error {
	filter := bson.M{
		"_id":         c.ID,
		"collectorId": unassigned(),
		"status":      bson.M{"$in": intakeStatuses()},
	}
	update := bson.M{
		"$set": bson.M{
			"collectorId": c.CollectorID,
			"status":      string(c.Status),
			"claimedAt":   c.ClaimedAt,
			"updatedAt":   c.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	var version int64
	err := r.writeWithOutbox(ctx, c, func(sessCtx mongo.SessionContext) error {
		v, err := r.conditionalUpdate(sessCtx, "claim", filter, update)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrClaimConflict
		}
		version = v
		return err
	})
	if err != nil {
		return err
	}
	c.Version = version
	return nil
}

// conditionalUpdate applies update to the document matching filter and returns
// the new version. mongo.ErrNoDocuments means the condition did not hold.
func (r *CollectionRepository) conditionalUpdate(ctx context.Context, operation string, filter, update bson.M) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"version": 1})

	var result struct {
		Version int64 `bson:"version"`
	}
	err := r.instr.Observe(ctx, collectionsCollection, operation, func(ctx context.Context) (int64, error) {
		if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result); err != nil {
			return 0, err
		}
		return 1, nil
	})
	return result.Version, err
}

// ListUnassignedIntake lists collections open for claiming, oldest scheduled date first
func (r *CollectionRepository) ListUnassignedIntake(ctx context.Context, page domain.Page) ([]*domain.Collection, error) {
	filter := bson.M{
		"collectorId": unassigned(),
		"status":      bson.M{"$in": intakeStatuses()},
	}
	sort := bson.D{{Key: "scheduledDate", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, "listAvailable", filter, sort, page)
}

func (r *CollectionRepository) FindByRequesterID(ctx context.Context, requesterID string, page domain.Page) ([]*domain.Collection, error) {
	sort := bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	return r.find(ctx, "findByRequester", bson.M{"requesterId": requesterID}, sort, page)
}

func (r *CollectionRepository) FindByCollectorID(ctx context.Context, collectorID string, page domain.Page) ([]*domain.Collection, error) {
	sort := bson.D{{Key: "scheduledDate", Value: 1}, {Key: "_id", Value: 1}}
	return r.find(ctx, "findByCollector", bson.M{"collectorId": collectorID}, sort, page)
}

func (r *CollectionRepository) find(ctx context.Context, operation string, filter bson.M, sort bson.D, page domain.Page) ([]*domain.Collection, error) {
	opts := options.Find().SetSort(sort).SetSkip(int64(page.Offset))
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	collections := make([]*domain.Collection, 0)
	err := r.instr.Observe(ctx, collectionsCollection, operation, func(ctx context.Context) (int64, error) {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return 0, err
		}
		defer cursor.Close(ctx)
		if err := cursor.All(ctx, &collections); err != nil {
			return 0, err
		}
		return int64(len(collections)), nil
	})
	if err != nil {
		return nil, err
	}
	return collections, nil
}

// mutableFields splits the aggregate into $set and $unset documents. Identity,
// requester and version are never rewritten.
func mutableFields(c *domain.Collection) (bson.M, bson.M, error) {
	raw, err := bson.Marshal(c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	var set bson.M
	if err := bson.Unmarshal(raw, &set); err != nil {
		return nil, nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	delete(set, "_id")
	delete(set, "requesterId")
	delete(set, "version")
	delete(set, "createdAt")

	unset := bson.M{}
	for _, f := range optionalCollectionFields {
		if _, ok := set[f]; !ok {
			unset[f] = ""
		}
	}
	return set, unset, nil
}

var _ domain.CollectionRepository = (*CollectionRepository)(nil)
