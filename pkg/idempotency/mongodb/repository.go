// Package mongodb keeps Idempotency-Key records and consumer dedup markers in
// MongoDB. Both collections expire their documents through TTL indexes.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ecocycle/collection-service/pkg/idempotency"
)

const (
	KeysCollection     = "idempotency_keys"
	MessagesCollection = "processed_messages"
)

func expiredBefore(t time.Time) bson.M {
	return bson.M{"expiresAt": bson.M{"$lt": t}}
}

func ttlIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_expires_ttl"),
	}
}

func deleteExpired(ctx context.Context, coll *mongo.Collection, before time.Time) (int64, error) {
	res, err := coll.DeleteMany(ctx, expiredBefore(before))
	if err != nil {
		return 0, fmt.Errorf("idempotency: clean %s: %w", coll.Name(), err)
	}
	return res.DeletedCount, nil
}

// KeyRepository implements idempotency.KeyRepository. A key is unique per
// service, user and client-supplied value.
type KeyRepository struct {
	keys *mongo.Collection
}

func NewKeyRepository(db *mongo.Database) *KeyRepository {
	return &KeyRepository{keys: db.Collection(KeysCollection)}
}

// AcquireLock relies on an upsert so two racing requests with the same key
// end up reading the same document; only the inserter sees its own id.
func (r *KeyRepository) AcquireLock(ctx context.Context, key *idempotency.IdempotencyKey) (*idempotency.IdempotencyKey, bool, error) {
	scope := bson.D{
		{Key: "serviceId", Value: key.ServiceID},
		{Key: "userId", Value: key.UserID},
		{Key: "key", Value: key.Key},
	}
	insert := bson.M{"$setOnInsert": bson.M{
		"_id":                key.ID,
		"requestMethod":      key.RequestMethod,
		"requestPath":        key.RequestPath,
		"requestFingerprint": key.RequestFingerprint,
		"lockedAt":           time.Now().UTC(),
		"createdAt":          key.CreatedAt,
		"expiresAt":          key.ExpiresAt,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	stored := &idempotency.IdempotencyKey{}
	if err := r.keys.FindOneAndUpdate(ctx, scope, insert, opts).Decode(stored); err != nil {
		return nil, false, fmt.Errorf("idempotency: lock key %q: %w", key.Key, err)
	}
	return stored, stored.ID == key.ID, nil
}

// ReleaseLock drops a key whose request failed before completing.
func (r *KeyRepository) ReleaseLock(ctx context.Context, keyID string) error {
	filter := bson.M{"_id": keyID, "completedAt": bson.M{"$exists": false}}
	if _, err := r.keys.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("idempotency: release %s: %w", keyID, err)
	}
	return nil
}

func (r *KeyRepository) StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	update := bson.M{
		"$set": bson.M{
			"completedAt":     time.Now().UTC(),
			"responseCode":    responseCode,
			"responseBody":    responseBody,
			"responseHeaders": headers,
		},
		"$unset": bson.M{"lockedAt": ""},
	}
	if _, err := r.keys.UpdateByID(ctx, keyID, update); err != nil {
		return fmt.Errorf("idempotency: store response for %s: %w", keyID, err)
	}
	return nil
}

func (r *KeyRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	return deleteExpired(ctx, r.keys, before)
}

func (r *KeyRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.keys.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serviceId", Value: 1}, {Key: "userId", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_key_scope"),
		},
		ttlIndex(),
	})
	return err
}

// MessageRepository implements idempotency.MessageRepository.
type MessageRepository struct {
	messages *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{messages: db.Collection(MessagesCollection)}
}

func (r *MessageRepository) MarkProcessed(ctx context.Context, msg *idempotency.ProcessedMessage) error {
	_, err := r.messages.InsertOne(ctx, msg)
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return idempotency.ErrMessageAlreadyProcessed
	default:
		return fmt.Errorf("idempotency: mark %s processed: %w", msg.MessageID, err)
	}
}

func (r *MessageRepository) IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error) {
	filter := bson.D{
		{Key: "messageId", Value: messageID},
		{Key: "topic", Value: topic},
		{Key: "consumerGroup", Value: consumerGroup},
	}
	err := r.messages.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	switch {
	case err == nil:
		return true, nil
	case err == mongo.ErrNoDocuments:
		return false, nil
	default:
		return false, fmt.Errorf("idempotency: lookup %s: %w", messageID, err)
	}
}

func (r *MessageRepository) Clean(ctx context.Context, before time.Time) (int64, error) {
	return deleteExpired(ctx, r.messages, before)
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "consumerGroup", Value: 1}, {Key: "topic", Value: 1}, {Key: "messageId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_message_scope"),
		},
		ttlIndex(),
	})
	return err
}

var (
	_ idempotency.KeyRepository     = (*KeyRepository)(nil)
	_ idempotency.MessageRepository = (*MessageRepository)(nil)
)
