// Package activities implements the Temporal activities of the impact workflow.
package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/notification"
	"github.com/ecocycle/collection-service/internal/workflows"
	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/kafka"
	"github.com/ecocycle/collection-service/pkg/outbox"
)

// ImpactCalculator computes and stores the impact record of a collection
type ImpactCalculator interface {
	CalculateImpact(ctx context.Context, cmd application.CalculateImpactCommand) (*application.ImpactDTO, error)
}

// ImpactActivities contains the activities of ImpactCalculationWorkflow
type ImpactActivities struct {
	calculator ImpactCalculator
	publisher  outbox.EventPublisher
	factory    *cloudevents.EventFactory
	dispatcher *notification.Dispatcher
}

// NewImpactActivities creates a new ImpactActivities instance. A nil
// publisher turns PublishImpact into a no-op.
func NewImpactActivities(calculator ImpactCalculator, publisher outbox.EventPublisher, dispatcher *notification.Dispatcher) *ImpactActivities {
	return &ImpactActivities{
		calculator: calculator,
		publisher:  publisher,
		factory:    cloudevents.NewEventFactory(cloudevents.SourceImpactWorker),
		dispatcher: dispatcher,
	}
}

// CalculateImpact computes the impact record of a completed collection.
// A missing or unfinished collection fails without retry.
func (a *ImpactActivities) CalculateImpact(ctx context.Context, input workflows.ImpactCalculationInput) (*workflows.ImpactSummary, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Calculating impact", "collectionId", input.CollectionID)

	dto, err := a.calculator.CalculateImpact(ctx, application.CalculateImpactCommand{CollectionID: input.CollectionID})
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok {
			switch appErr.Code {
			case errors.CodeNotFound:
				return nil, temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeNotFound, err)
			case errors.CodeInvalidState, errors.CodeMissingRequiredField:
				return nil, temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeInvalidState, err)
			case errors.CodeValidationError:
				return nil, temporal.NewNonRetryableApplicationError(appErr.Message, workflows.ErrTypeValidation, err)
			}
		}
		logger.Error("Failed to calculate impact", "collectionId", input.CollectionID, "error", err)
		return nil, fmt.Errorf("failed to calculate impact: %w", err)
	}

	logger.Info("Impact calculated", "collectionId", input.CollectionID, "points", dto.Points)
	return toSummary(dto), nil
}

// PublishImpact announces the impact record on the impact topic
func (a *ImpactActivities) PublishImpact(ctx context.Context, summary workflows.ImpactSummary) error {
	logger := activity.GetLogger(ctx)
	if a.publisher == nil {
		logger.Debug("No publisher configured, skipping impact event", "collectionId", summary.CollectionID)
		return nil
	}

	event := impactEvent(summary)
	ce := a.factory.CreateEvent(ctx, event.EventType(), "collection/"+summary.CollectionID, event)
	if err := a.publisher.PublishEvent(ctx, kafka.Topics.ImpactEvents, ce); err != nil {
		logger.Error("Failed to publish impact event", "collectionId", summary.CollectionID, "error", err)
		return fmt.Errorf("failed to publish impact event: %w", err)
	}

	logger.Info("Impact event published", "collectionId", summary.CollectionID, "eventId", ce.ID)
	return nil
}

// NotifyImpact tells the requester about the collection's impact
func (a *ImpactActivities) NotifyImpact(ctx context.Context, summary workflows.ImpactSummary) error {
	logger := activity.GetLogger(ctx)
	if a.dispatcher == nil {
		return nil
	}

	a.dispatcher.Send(ctx, notification.Notification{
		RecipientID: summary.RequesterID,
		Template:    notification.TemplateImpactReady,
		Data:        notification.ImpactData(impactEvent(summary)),
		EventID:     workflows.ImpactWorkflowID(summary.CollectionID),
	})

	logger.Info("Requester notified of impact", "collectionId", summary.CollectionID, "requesterId", summary.RequesterID)
	return nil
}

func toSummary(dto *application.ImpactDTO) *workflows.ImpactSummary {
	return &workflows.ImpactSummary{
		CollectionID:       dto.CollectionID,
		RequesterID:        dto.RequesterID,
		CollectorID:        dto.CollectorID,
		WasteType:          dto.WasteType,
		WasteAmountKg:      dto.WasteAmountKg,
		CO2AvoidedKg:       dto.CO2AvoidedKg,
		LandfillDivertedKg: dto.LandfillDivertedKg,
		Points:             dto.Points,
		CalculatedAt:       dto.CalculatedAt,
	}
}

func impactEvent(s workflows.ImpactSummary) *domain.ImpactCalculatedEvent {
	calculatedAt := s.CalculatedAt
	if calculatedAt.IsZero() {
		calculatedAt = time.Now().UTC()
	}
	return &domain.ImpactCalculatedEvent{
		CollectionID:       s.CollectionID,
		RequesterID:        s.RequesterID,
		CollectorID:        s.CollectorID,
		WasteType:          domain.WasteType(s.WasteType),
		WasteAmountKg:      s.WasteAmountKg,
		CO2AvoidedKg:       s.CO2AvoidedKg,
		LandfillDivertedKg: s.LandfillDivertedKg,
		Points:             s.Points,
		CalculatedAt:       calculatedAt,
	}
}
