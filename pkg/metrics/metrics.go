package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collection-service metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Storage metrics
	StoreOperations        *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	CacheLookups           *prometheus.CounterVec

	// Outbox metrics
	OutboxPending      prometheus.Gauge
	OutboxDeadLettered prometheus.Gauge
	OutboxPublish      *prometheus.CounterVec
	OutboxRetries      prometheus.Counter

	// Collection workflow metrics
	CollectionsScheduled     *prometheus.CounterVec
	CollectionTransitions    *prometheus.CounterVec
	CollectionClaims         *prometheus.CounterVec
	InterestDecisions        *prometheus.CounterVec
	NotificationsDispatched  *prometheus.CounterVec
	ImpactCalculated         *prometheus.CounterVec
	WorkflowsStarted         *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "ecocycle",
	}
}

// New creates a new Metrics instance
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})

	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaEventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_consumed_total", Help: "Total number of Kafka events consumed",
	}, []string{"service", "topic", "event_type", "status"})

	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.StoreOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "store_operations_total", Help: "Total number of storage operations",
	}, []string{"service", "store", "collection", "operation", "status"})

	m.StoreOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "store_operation_duration_seconds", Help: "Storage operation duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "store", "collection", "operation"})

	m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "cache_lookups_total", Help: "Cache lookups by result",
	}, []string{"service", "cache", "result"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_pending_events", Help: "Outbox events waiting to be published",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.OutboxDeadLettered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_dead_lettered_events", Help: "Outbox events that exhausted their relay attempts",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.OutboxPublish = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_publish_total", Help: "Outbox relay attempts by result",
	}, []string{"service", "event_type", "status"})

	m.OutboxRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_retries_total", Help: "Outbox events scheduled for retry",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CollectionsScheduled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "collections_scheduled_total", Help: "Collections scheduled by waste type",
	}, []string{"service", "waste_type"})

	m.CollectionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "collection_transitions_total", Help: "Collection status transitions by outcome",
	}, []string{"service", "from", "to", "result"})

	m.CollectionClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "collection_claims_total", Help: "Claim attempts by outcome",
	}, []string{"service", "result"})

	m.InterestDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "material_interest_decisions_total", Help: "Material interest status changes",
	}, []string{"service", "status"})

	m.NotificationsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "notifications_dispatched_total", Help: "Notifications handed to the notifier",
	}, []string{"service", "template", "status"})

	m.ImpactCalculated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "impact_calculations_total", Help: "Impact records calculated",
	}, []string{"service", "waste_type"})

	m.WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "temporal_workflows_started_total", Help: "Temporal workflows started",
	}, []string{"service", "workflow_type", "status"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})

	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	registry.MustRegister(
		m.HTTPRequestsTotal, m.HTTPRequestDuration, m.HTTPRequestsInFlight,
		m.KafkaEventsPublished, m.KafkaEventsConsumed, m.KafkaPublishDuration,
		m.StoreOperations, m.StoreOperationDuration, m.CacheLookups,
		m.OutboxPending, m.OutboxDeadLettered, m.OutboxPublish, m.OutboxRetries,
		m.CollectionsScheduled, m.CollectionTransitions, m.CollectionClaims,
		m.InterestDecisions, m.NotificationsDispatched, m.ImpactCalculated, m.WorkflowsStarted,
		m.CircuitBreakerState, m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
}

// RecordStoreOperation records a storage round trip for the named backend.
func (m *Metrics) RecordStoreOperation(store, collection, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(m.serviceName, store, collection, operation, statusLabel(success)).Inc()
	m.StoreOperationDuration.WithLabelValues(m.serviceName, store, collection, operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache hit, miss or error.
func (m *Metrics) RecordCacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(m.serviceName, cache, result).Inc()
}

// SetOutboxBacklog publishes the relay backlog: events still to be tried
// and events parked after their last attempt.
func (m *Metrics) SetOutboxBacklog(pending, deadLettered int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(pending))
	m.OutboxDeadLettered.Set(float64(deadLettered))
}

// RecordOutboxPublish records an outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m == nil {
		return
	}
	m.OutboxPublish.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
}

// RecordOutboxRetry records an outbox retry
func (m *Metrics) RecordOutboxRetry() {
	if m == nil {
		return
	}
	m.OutboxRetries.Inc()
}

// RecordCollectionScheduled records a newly scheduled collection
func (m *Metrics) RecordCollectionScheduled(wasteType string) {
	if m == nil {
		return
	}
	m.CollectionsScheduled.WithLabelValues(m.serviceName, wasteType).Inc()
}

// RecordTransition records a lifecycle transition attempt
func (m *Metrics) RecordTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.CollectionTransitions.WithLabelValues(m.serviceName, from, to, result).Inc()
}

// RecordClaim records a claim attempt
func (m *Metrics) RecordClaim(result string) {
	if m == nil {
		return
	}
	m.CollectionClaims.WithLabelValues(m.serviceName, result).Inc()
}

// RecordInterestDecision records a material interest status change
func (m *Metrics) RecordInterestDecision(status string) {
	if m == nil {
		return
	}
	m.InterestDecisions.WithLabelValues(m.serviceName, status).Inc()
}

// RecordNotification records a notification dispatch
func (m *Metrics) RecordNotification(template string, success bool) {
	if m == nil {
		return
	}
	m.NotificationsDispatched.WithLabelValues(m.serviceName, template, statusLabel(success)).Inc()
}

// RecordImpactCalculated records an impact calculation
func (m *Metrics) RecordImpactCalculated(wasteType string) {
	if m == nil {
		return
	}
	m.ImpactCalculated.WithLabelValues(m.serviceName, wasteType).Inc()
}

// RecordWorkflowStarted records a workflow start attempt
func (m *Metrics) RecordWorkflowStarted(workflowType string, success bool) {
	if m == nil {
		return
	}
	m.WorkflowsStarted.WithLabelValues(m.serviceName, workflowType, statusLabel(success)).Inc()
}

// SetCircuitBreakerState sets circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
