// Package mongodb stores outbox events in a MongoDB collection next to the
// aggregates that emit them.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecocycle/collection-service/pkg/outbox"
)

const CollectionName = "outbox_events"

// Published events are expired by a TTL index after this long, so purging
// by hand is only needed to reclaim space sooner.
const publishedRetention = 7 * 24 * time.Hour

var (
	notPublished = bson.M{"publishedAt": bson.M{"$exists": false}}
	retryable    = bson.M{"$expr": bson.M{"$lt": bson.A{"$retryCount", "$maxRetries"}}}
	exhausted    = bson.M{"$expr": bson.M{"$gte": bson.A{"$retryCount", "$maxRetries"}}}
)

func and(filters ...bson.M) bson.M {
	all := make(bson.A, len(filters))
	for i, f := range filters {
		all[i] = f
	}
	return bson.M{"$and": all}
}

// OutboxRepository implements outbox.Repository. Writes made with a
// mongo.SessionContext join that session's transaction.
type OutboxRepository struct {
	events *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{events: db.Collection(CollectionName)}
}

func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]any, 0, len(events))
	for _, e := range events {
		docs = append(docs, e)
	}
	// ordered keeps one aggregate's events in emission order on insert
	if _, err := r.events.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("outbox: insert %d events: %w", len(events), err)
	}
	return nil
}

// relayOrder sorts on the UUIDv7 id. createdAt is stored at millisecond
// precision, so events written by one transaction tie on it.
var relayOrder = bson.D{{Key: "_id", Value: 1}}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	opts := options.Find().
		SetSort(relayOrder).
		SetLimit(int64(limit))

	cursor, err := r.events.Find(ctx, and(notPublished, retryable), opts)
	if err != nil {
		return nil, fmt.Errorf("outbox: find unpublished: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.OutboxEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("outbox: decode events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.updateOne(ctx, eventID, bson.M{"$set": bson.M{"publishedAt": time.Now().UTC()}})
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.updateOne(ctx, eventID, bson.M{
		"$inc": bson.M{"retryCount": 1},
		"$set": bson.M{"lastError": errorMsg},
	})
}

func (r *OutboxRepository) updateOne(ctx context.Context, eventID string, update bson.M) error {
	result, err := r.events.UpdateOne(ctx, bson.M{"_id": eventID}, update)
	if err != nil {
		return fmt.Errorf("outbox: update %s: %w", eventID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("outbox: event %s not found", eventID)
	}
	return nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (outbox.Stats, error) {
	var s outbox.Stats
	var err error
	if s.Pending, err = r.events.CountDocuments(ctx, and(notPublished, retryable)); err != nil {
		return s, fmt.Errorf("outbox: count pending: %w", err)
	}
	if s.DeadLettered, err = r.events.CountDocuments(ctx, and(notPublished, exhausted)); err != nil {
		return s, fmt.Errorf("outbox: count dead-lettered: %w", err)
	}
	return s, nil
}

func (r *OutboxRepository) RequeueDeadLettered(ctx context.Context) (int64, error) {
	result, err := r.events.UpdateMany(ctx, and(notPublished, exhausted), bson.M{"$set": bson.M{"retryCount": 0}})
	if err != nil {
		return 0, fmt.Errorf("outbox: requeue: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, t time.Time) (int64, error) {
	result, err := r.events.DeleteMany(ctx, bson.M{"publishedAt": bson.M{"$lt": t}})
	if err != nil {
		return 0, fmt.Errorf("outbox: purge published: %w", err)
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates the relay index, the per-aggregate index and the
// TTL index that expires published events.
func (r *OutboxRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "publishedAt", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_relay_id"),
		},
		{
			Keys:    bson.D{{Key: "aggregateId", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_aggregate_id"),
		},
		{
			Keys: bson.D{{Key: "publishedAt", Value: 1}},
			Options: options.Index().
				SetName("idx_published_ttl").
				SetExpireAfterSeconds(int32(publishedRetention.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("outbox: create indexes: %w", err)
	}
	return nil
}
