package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/resilience"
)

const tracerName = "github.com/ecocycle/collection-service/pkg/kafka"

// Publisher puts a CloudEvent on a topic.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}

// InstrumentedProducer decorates a Publisher with a producer span, publish
// metrics and, when a breaker is given, fail-fast while the broker is down.
type InstrumentedProducer struct {
	next    Publisher
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

func NewInstrumentedProducer(next Publisher, breaker *resilience.CircuitBreaker, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &InstrumentedProducer{
		next:    next,
		breaker: breaker,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

func publishAttributes(topic string, event *cloudevents.CloudEvent) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.operation", "publish"),
		attribute.String("messaging.destination.name", topic),
		attribute.String("messaging.message.id", event.ID),
		attribute.String("messaging.kafka.message.key", event.Subject),
		attribute.String("cloudevents.event_type", event.Type),
	}
}

func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	ctx, span := p.tracer.Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(publishAttributes(topic, event)...),
	)
	defer span.End()

	started := time.Now()
	err := p.send(ctx, topic, event)
	elapsed := time.Since(started)

	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, elapsed)
	p.logger.KafkaPublish(ctx, topic, event.Type, err == nil, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (p *InstrumentedProducer) send(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	if p.breaker == nil {
		return p.next.PublishEvent(ctx, topic, event)
	}
	return p.breaker.Run(ctx, func(ctx context.Context) error {
		return p.next.PublishEvent(ctx, topic, event)
	})
}
