package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

var (
	ErrPublisherRunning = errors.New("outbox publisher already running")
	ErrPublisherStopped = errors.New("outbox publisher not running")
)

type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{PollInterval: time.Second, BatchSize: 100}
}

// PublisherStats counts relay outcomes since the publisher was created
type PublisherStats struct {
	Published int64
	Failed    int64
	Deferred  int64
}

// Publisher polls the outbox and relays events to the bus. Events of one
// aggregate are relayed in creation order: once an event fails, the later
// events of the same aggregate in the batch wait for the next poll so a
// consumer never sees a status change before the claim that caused it.
type Publisher struct {
	repo      Repository
	producer  EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}

	published atomic.Int64
	failed    atomic.Int64
	deferred  atomic.Int64
}

func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start launches the poll loop; it ends on Stop or when ctx is done
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return ErrPublisherRunning
	}
	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})

	p.logger.Info("Starting outbox publisher", "interval", p.interval.String(), "batchSize", p.batchSize)
	go p.loop(ctx, p.stop, p.stopped)
	return nil
}

// Stop ends the loop and waits for the batch in flight
func (p *Publisher) Stop() error {
	p.mu.Lock()
	stop, stopped := p.stop, p.stopped
	p.stop, p.stopped = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return ErrPublisherStopped
	}

	close(stop)
	<-stopped

	s := p.Stats()
	p.logger.Info("Outbox publisher stopped", "published", s.Published, "failed", s.Failed, "deferred", s.Deferred)
	return nil
}

func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Deferred:  p.deferred.Load(),
	}
}

func (p *Publisher) loop(ctx context.Context, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.ProcessBatch(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ProcessBatch relays one batch and returns how many events were published
func (p *Publisher) ProcessBatch(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to load unpublished events")
		return 0
	}

	blocked := make(map[string]bool)
	published := 0
	for _, event := range events {
		log := p.logger.WithFields(map[string]any{
			"eventId":     event.ID,
			"eventType":   event.EventType,
			"aggregateId": event.AggregateID,
		})

		if blocked[event.AggregateID] {
			p.deferred.Add(1)
			log.Debug("Deferring event behind a failed predecessor")
			continue
		}

		if err := p.relay(ctx, event); err != nil {
			blocked[event.AggregateID] = true
			p.failed.Add(1)
			p.metrics.RecordOutboxPublish(event.EventType, false)
			p.metrics.RecordOutboxRetry()
			log.WithError(err).Warn("Failed to relay event", "attempt", event.RetryCount+1)
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				log.WithError(err).Error("Failed to record relay attempt")
			}
			if event.RetryCount+1 >= event.MaxRetries {
				log.Error("Event dead-lettered after exhausting relay attempts", "maxRetries", event.MaxRetries)
			}
			continue
		}

		p.metrics.RecordOutboxPublish(event.EventType, true)
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			// The event will be relayed again; consumers deduplicate by id.
			log.WithError(err).Error("Failed to mark event published")
		}
		p.published.Add(1)
		published++
	}

	p.reportBacklog(ctx)
	return published
}

func (p *Publisher) relay(ctx context.Context, event *OutboxEvent) error {
	ce, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.producer.PublishEvent(ctx, event.Topic, ce); err != nil {
		return fmt.Errorf("publish to %s: %w", event.Topic, err)
	}
	return nil
}

func (p *Publisher) reportBacklog(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	stats, err := p.repo.Stats(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to read outbox backlog")
		return
	}
	p.metrics.SetOutboxBacklog(stats.Pending, stats.DeadLettered)
}
