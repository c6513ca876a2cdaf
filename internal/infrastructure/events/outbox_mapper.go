// Package events turns domain events into outbox records.
package events

import (
	"context"
	"fmt"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/outbox"
)

// Aggregate types stored on outbox records
const (
	AggregateCollection       = "Collection"
	AggregateMaterialInterest = "MaterialInterest"
)

// OutboxMapper wraps domain events in CloudEvents and routes them to topics
type OutboxMapper struct {
	factory *cloudevents.EventFactory
}

// NewOutboxMapper creates a mapper emitting events from factory's source
func NewOutboxMapper(factory *cloudevents.EventFactory) *OutboxMapper {
	if factory == nil {
		factory = cloudevents.NewEventFactory(cloudevents.SourceCollectionService)
	}
	return &OutboxMapper{factory: factory}
}

// ToOutbox converts the pending events of one aggregate
func (m *OutboxMapper) ToOutbox(ctx context.Context, aggregateID string, pending []domain.DomainEvent) ([]*outbox.OutboxEvent, error) {
	out := make([]*outbox.OutboxEvent, 0, len(pending))
	for _, event := range pending {
		var (
			aggregateType string
			topic         string
			subject       string
		)
		switch e := event.(type) {
		case *domain.CollectionScheduledEvent, *domain.CollectionClaimedEvent,
			*domain.CollectionStatusChangedEvent, *domain.CollectionDetailsUpdatedEvent:
			aggregateType = AggregateCollection
			topic = kafka.Topics.CollectionEvents
			subject = "collection/" + e.AggregateID()
		case *domain.MaterialInterestExpressedEvent, *domain.MaterialInterestDecidedEvent,
			*domain.MaterialInterestCompletedEvent:
			aggregateType = AggregateMaterialInterest
			topic = kafka.Topics.MaterialInterestEvents
			subject = "interest/" + e.AggregateID()
		default:
			continue
		}

		ce := m.factory.CreateEvent(ctx, event.EventType(), subject, event)
		ce.Time = event.OccurredAt().UTC()

		record, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox event: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}
