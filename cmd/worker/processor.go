package main

import (
	"context"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/notification"
	"github.com/ecocycle/collection-service/internal/workflows"
	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/contracts/asyncapi"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/temporal"
)

// consumedTopics are the topics the worker reacts to. Impact events are
// notified by the workflow itself.
var consumedTopics = []string{
	kafka.Topics.CollectionEvents,
	kafka.Topics.MaterialInterestEvents,
}

// EventProcessor reacts to relayed lifecycle events: completed collections
// start the impact workflow and every event is turned into notifications.
type EventProcessor struct {
	validator  *asyncapi.EventValidator
	dispatcher *notification.Dispatcher
	starter    temporal.Starter
	taskQueue  string
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewEventProcessor creates a processor. A nil starter disables the impact
// workflow and a nil validator accepts every payload.
func NewEventProcessor(validator *asyncapi.EventValidator, dispatcher *notification.Dispatcher, starter temporal.Starter, logger *logging.Logger, m *metrics.Metrics) *EventProcessor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EventProcessor{
		validator:  validator,
		dispatcher: dispatcher,
		starter:    starter,
		taskQueue:  temporal.TaskQueues.Impact,
		logger:     logger.WithComponent("event-processor"),
		metrics:    m,
	}
}

// Handle processes one event. Only a failed workflow start is returned, so
// the message stays uncommitted and is redelivered.
func (p *EventProcessor) Handle(ctx context.Context, event *cloudevents.CloudEvent) error {
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"eventId":   event.ID,
		"eventType": event.Type,
	})

	if p.validator != nil && p.validator.HasSchema(event.Type) {
		if err := p.validator.ValidateEvent(event); err != nil {
			log.WithError(err).Warn("Dropping event that does not match its schema")
			return nil
		}
	}

	// The workflow start runs first so a redelivery after a failed start
	// does not repeat notifications already sent.
	if event.Type == cloudevents.CollectionStatusChanged {
		if err := p.startImpact(ctx, event, log); err != nil {
			return err
		}
	}

	if err := p.dispatcher.Handle(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to build notifications")
	}
	return nil
}

func (p *EventProcessor) startImpact(ctx context.Context, event *cloudevents.CloudEvent, log *logging.Logger) error {
	var changed domain.CollectionStatusChangedEvent
	if err := event.DecodeData(&changed); err != nil {
		log.WithError(err).Warn("Undecodable status change")
		return nil
	}
	if changed.To != domain.StatusCompleted || p.starter == nil {
		return nil
	}

	workflowID := workflows.ImpactWorkflowID(changed.CollectionID)
	started, err := temporal.StartOnce(ctx, p.starter, workflowID, p.taskQueue,
		workflows.ImpactCalculationWorkflow, workflows.ImpactCalculationInput{CollectionID: changed.CollectionID})
	p.metrics.RecordWorkflowStarted(temporal.WorkflowNames.ImpactCalculation, err == nil)
	if err != nil {
		log.WithError(err).Error("Failed to start impact workflow", "workflowId", workflowID)
		return err
	}
	if started {
		p.logger.WorkflowStart(ctx, temporal.WorkflowNames.ImpactCalculation, workflowID)
	} else {
		log.Info("Impact workflow already started", "workflowId", workflowID)
	}
	return nil
}

// subscribe registers the processor on every consumed topic behind
// consumer-side deduplication by event id.
func subscribe(consumer *kafka.Consumer, processor *EventProcessor, processed idempotency.MessageRepository, serviceName, group string, logger *logging.Logger) {
	for _, topic := range consumedTopics {
		dedup := idempotency.DefaultConsumerConfig(serviceName, topic, group, processed, logger)
		handler := idempotency.DeduplicatingHandler(dedup, processor.Handle)
		consumer.SubscribeAll(topic, kafka.EventHandler(handler))
	}
}
