package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryKeyRepository is an in-process KeyRepository
type MemoryKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*IdempotencyKey
}

// NewMemoryKeyRepository creates an empty in-process key store
func NewMemoryKeyRepository() *MemoryKeyRepository {
	return &MemoryKeyRepository{keys: make(map[string]*IdempotencyKey)}
}

func scopeOf(k *IdempotencyKey) string {
	return k.ServiceID + "|" + k.UserID + "|" + k.Key
}

func (r *MemoryKeyRepository) AcquireLock(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.keys[scopeOf(key)]; ok {
		out := *existing
		return &out, false, nil
	}

	now := time.Now().UTC()
	stored := *key
	stored.LockedAt = &now
	r.keys[scopeOf(key)] = &stored
	out := stored
	return &out, true, nil
}

func (r *MemoryKeyRepository) find(keyID string) *IdempotencyKey {
	for _, k := range r.keys {
		if k.ID == keyID {
			return k
		}
	}
	return nil
}

func (r *MemoryKeyRepository) ReleaseLock(_ context.Context, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k := r.find(keyID); k != nil && !k.IsCompleted() {
		delete(r.keys, scopeOf(k))
	}
	return nil
}

func (r *MemoryKeyRepository) StoreResponse(_ context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.find(keyID)
	if k == nil {
		return nil
	}
	now := time.Now().UTC()
	k.ResponseCode = responseCode
	k.ResponseBody = append([]byte(nil), responseBody...)
	k.ResponseHeaders = headers
	k.CompletedAt = &now
	k.LockedAt = nil
	return nil
}

func (r *MemoryKeyRepository) Clean(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for scope, k := range r.keys {
		if k.ExpiresAt.Before(before) {
			delete(r.keys, scope)
			n++
		}
	}
	return n, nil
}

// MemoryMessageRepository is an in-process MessageRepository
type MemoryMessageRepository struct {
	mu   sync.Mutex
	seen map[string]*ProcessedMessage
}

// NewMemoryMessageRepository creates an empty in-process message store
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{seen: make(map[string]*ProcessedMessage)}
}

func messageScope(messageID, topic, group string) string {
	return group + "|" + topic + "|" + messageID
}

func (r *MemoryMessageRepository) MarkProcessed(_ context.Context, msg *ProcessedMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	scope := messageScope(msg.MessageID, msg.Topic, msg.ConsumerGroup)
	if _, ok := r.seen[scope]; ok {
		return ErrMessageAlreadyProcessed
	}
	r.seen[scope] = msg
	return nil
}

func (r *MemoryMessageRepository) IsProcessed(_ context.Context, messageID, topic, consumerGroup string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[messageScope(messageID, topic, consumerGroup)]
	return ok, nil
}

func (r *MemoryMessageRepository) Clean(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for scope, m := range r.seen {
		if m.ExpiresAt.Before(before) {
			delete(r.seen, scope)
			n++
		}
	}
	return n, nil
}

var (
	_ KeyRepository     = (*MemoryKeyRepository)(nil)
	_ MessageRepository = (*MemoryMessageRepository)(nil)
)
