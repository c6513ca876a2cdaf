package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

// EventHandler handles a CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads CloudEvents from Kafka and routes them by event type
type Consumer struct {
	config    *Config
	logger    *logging.Logger
	metrics   *metrics.Metrics
	handlers  map[string]map[string]EventHandler // topic -> eventType -> handler
	newReader func(topic string) MessageReader

	mu      sync.Mutex
	readers map[string]MessageReader
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *logging.Logger, m *metrics.Metrics) *Consumer {
	c := &Consumer{
		config:   config,
		logger:   logger.WithComponent("kafka-consumer"),
		metrics:  m,
		handlers: make(map[string]map[string]EventHandler),
		readers:  make(map[string]MessageReader),
	}
	c.newReader = c.kafkaReader
	return c
}

// Subscribe registers a handler for one event type on a topic
func (c *Consumer) Subscribe(topic, eventType string, handler EventHandler) {
	if _, ok := c.handlers[topic]; !ok {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// SubscribeAll registers a fallback handler for every event type on a topic
func (c *Consumer) SubscribeAll(topic string, handler EventHandler) {
	c.Subscribe(topic, "*", handler)
}

func (c *Consumer) kafkaReader(topic string) MessageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitInterval,
	})
}

func (c *Consumer) reader(topic string) MessageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[topic]; ok {
		return r
	}
	r := c.newReader(topic)
	c.readers[topic] = r
	return r
}

// Start consumes every subscribed topic until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for topic := range c.handlers {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.reader(topic)
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		if err := c.HandleMessage(ctx, topic, msg); err != nil {
			// left uncommitted so the group redelivers it
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Error("Error committing message", "topic", topic)
		}
	}
}

// HandleMessage decodes one message and dispatches it. Malformed messages are
// dropped (nil error) so they do not block the partition.
func (c *Consumer) HandleMessage(ctx context.Context, topic string, msg kafka.Message) error {
	event, err := ParseMessage(msg)
	if err != nil {
		c.logger.WithError(err).Error("Dropping unparseable message", "topic", topic, "offset", msg.Offset)
		c.metrics.RecordKafkaConsume(topic, "unknown", false)
		return nil
	}

	ctx = cloudevents.ContextFromEvent(ctx, event)
	c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

	handlers := c.handlers[topic]
	handler, ok := handlers[event.Type]
	if !ok {
		handler, ok = handlers["*"]
	}
	if !ok {
		c.logger.Debug("No handler for event type", "topic", topic, "eventType", event.Type)
		return nil
	}

	if err := handler(ctx, event); err != nil {
		c.logger.WithError(err).Error("Error handling event",
			"topic", topic,
			"eventType", event.Type,
			"eventId", event.ID,
		)
		c.metrics.RecordKafkaConsume(topic, event.Type, false)
		return err
	}
	c.metrics.RecordKafkaConsume(topic, event.Type, true)
	return nil
}

// ParseMessage decodes a Kafka message into a CloudEvent, letting binary-mode
// headers fill any extension missing from the structured body.
func ParseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	event, err := cloudevents.Parse(msg.Value)
	if err != nil {
		return nil, err
	}
	if event.Type == "" || event.ID == "" {
		return nil, fmt.Errorf("message is missing cloud event type or id")
	}

	for _, h := range msg.Headers {
		v := string(h.Value)
		switch h.Key {
		case headerCorrelationID:
			if event.CorrelationID == "" {
				event.CorrelationID = v
			}
		case headerActorID:
			if event.ActorID == "" {
				event.ActorID = v
			}
		case headerTraceParent:
			if event.TraceParent == "" {
				event.TraceParent = v
			}
		case headerTraceState:
			if event.TraceState == "" {
				event.TraceState = v
			}
		}
	}
	return event, nil
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lastErr error
	for topic, r := range c.readers {
		if err := r.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
