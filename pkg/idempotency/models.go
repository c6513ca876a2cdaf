package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultMaxKeyLength is the maximum length for an idempotency key
	DefaultMaxKeyLength = 255

	// DefaultLockTimeout is the age after which a lock is considered stale
	DefaultLockTimeout = 5 * time.Minute

	// DefaultRetentionPeriod is how long keys and processed messages are kept
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the largest response body that is cached
	DefaultMaxResponseSize = 1 << 20
)

var (
	ErrKeyRequired             = errors.New("idempotency key is required for this operation")
	ErrKeyInvalid              = errors.New("invalid idempotency key format")
	ErrKeyTooLong              = errors.New("idempotency key exceeds maximum length")
	ErrMessageAlreadyProcessed = errors.New("message has already been processed")
)

// IdempotencyKey is a stored Idempotency-Key with the response it produced
type IdempotencyKey struct {
	ID                 string `bson:"_id"`
	Key                string `bson:"key"`
	UserID             string `bson:"userId,omitempty"`
	ServiceID          string `bson:"serviceId"`
	RequestPath        string `bson:"requestPath"`
	RequestMethod      string `bson:"requestMethod"`
	RequestFingerprint string `bson:"requestFingerprint"`

	LockedAt *time.Time `bson:"lockedAt,omitempty"`

	ResponseCode    int               `bson:"responseCode,omitempty"`
	ResponseBody    []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string `bson:"responseHeaders,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"`
}

// IsCompleted returns true if the request has been completed
func (ik *IdempotencyKey) IsCompleted() bool {
	return ik.CompletedAt != nil
}

// IsLocked returns true if the request is currently being processed
func (ik *IdempotencyKey) IsLocked() bool {
	return ik.LockedAt != nil && ik.CompletedAt == nil
}

// ProcessedMessage records a consumed CloudEvent id
type ProcessedMessage struct {
	MessageID     string    `bson:"messageId"`
	Topic         string    `bson:"topic"`
	EventType     string    `bson:"eventType"`
	ConsumerGroup string    `bson:"consumerGroup"`
	ServiceID     string    `bson:"serviceId"`
	CorrelationID string    `bson:"correlationId,omitempty"`
	ProcessedAt   time.Time `bson:"processedAt"`
	ExpiresAt     time.Time `bson:"expiresAt"`
}

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateKey checks format and length of a key
func ValidateKey(key string, maxLength int) error {
	if key == "" {
		return ErrKeyRequired
	}
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// ComputeFingerprint hashes a request body so a reused key with different
// parameters can be detected.
func ComputeFingerprint(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// NormalizeKey trims whitespace from a key
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}

// KeyRepository stores Idempotency-Key records. Implementations must make
// AcquireLock atomic: it inserts key locked when absent and otherwise
// returns the stored record untouched, reporting whether it inserted.
type KeyRepository interface {
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)
	ReleaseLock(ctx context.Context, keyID string) error
	StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte, headers map[string]string) error
	Clean(ctx context.Context, before time.Time) (int64, error)
}

// MessageRepository remembers which events a consumer group has handled.
// MarkProcessed returns ErrMessageAlreadyProcessed for a repeat.
type MessageRepository interface {
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error
	IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error)
	Clean(ctx context.Context, before time.Time) (int64, error)
}
