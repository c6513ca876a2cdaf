package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds relay attempts per event.
const DefaultMaxRetries = 10

// OutboxEvent is an event persisted next to its aggregate for reliable delivery
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEventFromCloudEvent creates an outbox event from a CloudEvent
func NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic string, ce *cloudevents.CloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            NewEventID(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     ce.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// NewEventID returns a time-ordered UUIDv7. Ids minted by one process
// increase strictly, so relaying in id order keeps emission order even when
// two events share a timestamp.
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry reports whether the relay still picks the event up
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// IsDeadLettered reports an unpublished event whose attempts are exhausted.
// It stays in the outbox until an operator requeues it.
func (e *OutboxEvent) IsDeadLettered() bool {
	return !e.IsPublished() && e.RetryCount >= e.MaxRetries
}

// Stats is the relay backlog
type Stats struct {
	Pending      int64 `json:"pending"`
	DeadLettered int64 `json:"deadLettered"`
}

// ToCloudEvent converts the outbox payload back to a CloudEvent
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	return cloudevents.Parse(e.Payload)
}

// Repository defines outbox persistence. SaveAll is expected to join the
// caller's transaction when ctx carries one. FindUnpublished returns events
// in ascending ID order.
type Repository interface {
	SaveAll(ctx context.Context, events []*OutboxEvent) error
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string) error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error
	Stats(ctx context.Context) (Stats, error)
	// RequeueDeadLettered resets the attempts of dead-lettered events so the
	// relay tries them again, and returns how many were reset.
	RequeueDeadLettered(ctx context.Context) (int64, error)
	// DeletePublishedBefore removes relayed events older than t and returns the count.
	DeletePublishedBefore(ctx context.Context, t time.Time) (int64, error)
}

// EventPublisher is the transport the relay hands events to.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}
