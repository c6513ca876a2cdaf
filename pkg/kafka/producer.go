package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
)

// CloudEvents binary-mode header names
const (
	headerSpecVersion   = "ce-specversion"
	headerType          = "ce-type"
	headerSource        = "ce-source"
	headerID            = "ce-id"
	headerTime          = "ce-time"
	headerSubject       = "ce-subject"
	headerCorrelationID = "ce-correlationid"
	headerActorID       = "ce-actorid"
	headerTraceParent   = "ce-traceparent"
	headerTraceState    = "ce-tracestate"
	headerContentType   = "content-type"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes CloudEvents to Kafka topics
type Producer struct {
	config    *Config
	mu        sync.Mutex
	writers   map[string]MessageWriter
	newWriter func(topic string) MessageWriter
}

// NewProducer creates a new Kafka producer
func NewProducer(config *Config) *Producer {
	p := &Producer{
		config:  config,
		writers: make(map[string]MessageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *Producer) kafkaWriter(topic string) MessageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(p.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              p.config.BatchSize,
		BatchTimeout:           p.config.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(p.config.RequiredAcks),
		AllowAutoTopicCreation: true,
	}
}

func (p *Producer) writer(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// NewMessage encodes a CloudEvent as a Kafka message. The subject is used as
// the key so all events of one collection land on the same partition.
func NewMessage(event *cloudevents.CloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: headerSpecVersion, Value: []byte(event.SpecVersion)},
		{Key: headerType, Value: []byte(event.Type)},
		{Key: headerSource, Value: []byte(event.Source)},
		{Key: headerID, Value: []byte(event.ID)},
		{Key: headerTime, Value: []byte(event.Time.Format(time.RFC3339Nano))},
		{Key: headerContentType, Value: []byte(event.DataContentType)},
	}
	optional := []struct{ key, value string }{
		{headerSubject, event.Subject},
		{headerCorrelationID, event.CorrelationID},
		{headerActorID, event.ActorID},
		{headerTraceParent, event.TraceParent},
		{headerTraceState, event.TraceState},
	}
	for _, h := range optional {
		if h.value != "" {
			headers = append(headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}

	return kafka.Message{
		Key:     []byte(event.Subject),
		Value:   data,
		Headers: headers,
		Time:    event.Time,
	}, nil
}

// PublishEvent publishes a CloudEvent to the specified topic
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	msg, err := NewMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}
	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var lastErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
