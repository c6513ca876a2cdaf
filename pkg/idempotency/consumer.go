package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/logging"
)

// EventHandler mirrors kafka.EventHandler
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// ConsumerConfig holds configuration for consumer-side deduplication
type ConsumerConfig struct {
	ServiceName     string
	Topic           string
	ConsumerGroup   string
	Repository      MessageRepository
	Logger          *logging.Logger
	RetentionPeriod time.Duration
}

// DefaultConsumerConfig returns a default consumer configuration
func DefaultConsumerConfig(serviceName, topic, consumerGroup string, repository MessageRepository, logger *logging.Logger) *ConsumerConfig {
	return &ConsumerConfig{
		ServiceName:     serviceName,
		Topic:           topic,
		ConsumerGroup:   consumerGroup,
		Repository:      repository,
		Logger:          logger,
		RetentionPeriod: DefaultRetentionPeriod,
	}
}

// DeduplicatingHandler skips events whose id was already handled by this
// consumer group. A message is only recorded after handler succeeds.
func DeduplicatingHandler(config *ConsumerConfig, handler EventHandler) EventHandler {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		log := logger.WithContext(ctx).WithFields(map[string]any{
			"messageId": event.ID,
			"eventType": event.Type,
			"topic":     config.Topic,
		})

		processed, err := config.Repository.IsProcessed(ctx, event.ID, config.Topic, config.ConsumerGroup)
		if err != nil {
			log.WithError(err).Error("Failed to check processed message")
			return err
		}
		if processed {
			log.Info("Duplicate message skipped")
			return nil
		}

		if err := handler(ctx, event); err != nil {
			return err
		}

		now := time.Now().UTC()
		err = config.Repository.MarkProcessed(ctx, &ProcessedMessage{
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			CorrelationID: event.CorrelationID,
			ProcessedAt:   now,
			ExpiresAt:     now.Add(config.RetentionPeriod),
		})
		if errors.Is(err, ErrMessageAlreadyProcessed) {
			log.Warn("Message was processed concurrently")
			return nil
		}
		return err
	}
}
