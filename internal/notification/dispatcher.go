package notification

import (
	"context"
	"fmt"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/cloudevents"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

// Dispatcher maps events to notifications and hands them to a Notifier
type Dispatcher struct {
	notifier Notifier
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(notifier Notifier, logger *logging.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{notifier: notifier, logger: logger.WithComponent("notification-dispatcher"), metrics: m}
}

// Handle notifies every recipient of event. Only a payload that cannot be
// decoded is returned as an error; delivery failures are logged and counted.
func (d *Dispatcher) Handle(ctx context.Context, event *cloudevents.CloudEvent) error {
	notifications, err := Build(event)
	if err != nil {
		return err
	}
	d.Send(ctx, notifications...)
	return nil
}

// Send delivers each notification once
func (d *Dispatcher) Send(ctx context.Context, notifications ...Notification) {
	for _, n := range notifications {
		err := d.notifier.Notify(ctx, n)
		d.metrics.RecordNotification(n.Template, err == nil)
		if err != nil {
			d.logger.WithContext(ctx).WithError(err).Warn("Notification delivery failed",
				"recipientId", n.RecipientID,
				"template", n.Template,
			)
		}
	}
}

// Build derives the notifications for event. Unknown event types yield none.
func Build(event *cloudevents.CloudEvent) ([]Notification, error) {
	var out []Notification
	add := func(recipient, template string, data map[string]any) {
		if recipient == "" {
			return
		}
		out = append(out, Notification{RecipientID: recipient, Template: template, Data: data, EventID: event.ID})
	}

	switch event.Type {
	case cloudevents.CollectionScheduled:
		var e domain.CollectionScheduledEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.RequesterID, TemplateCollectionScheduled, map[string]any{
			"collectionId":  e.CollectionID,
			"scheduledDate": e.ScheduledDate,
		})

	case cloudevents.CollectionClaimed:
		var e domain.CollectionClaimedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.RequesterID, TemplateCollectionClaimed, map[string]any{
			"collectionId": e.CollectionID,
			"collectorId":  e.CollectorID,
		})

	case cloudevents.CollectionStatusChanged:
		var e domain.CollectionStatusChangedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		data := map[string]any{"collectionId": e.CollectionID, "from": string(e.From), "to": string(e.To)}
		switch e.To {
		case domain.StatusInProgress:
			add(e.RequesterID, TemplateCollectionStarted, data)
		case domain.StatusCompleted:
			if e.WasteAmount != nil {
				data["wasteAmount"] = *e.WasteAmount
			}
			add(e.RequesterID, TemplateCollectionCompleted, data)
		case domain.StatusCancelled:
			data["reason"] = e.Reason
			// the party that did not cancel is told
			if e.ActorID != e.RequesterID {
				add(e.RequesterID, TemplateCollectionCancelled, data)
			}
			if e.ActorID != e.CollectorID {
				add(e.CollectorID, TemplateCollectionCancelled, data)
			}
		}

	case cloudevents.MaterialInterestExpressed:
		var e domain.MaterialInterestExpressedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.CollectorID, TemplateInterestExpressed, map[string]any{
			"interestId":   e.InterestID,
			"collectionId": e.CollectionID,
			"recyclerId":   e.RecyclerID,
			"materials":    e.Materials,
		})

	case cloudevents.MaterialInterestDecided:
		var e domain.MaterialInterestDecidedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.RecyclerID, TemplateInterestDecided, map[string]any{
			"interestId":   e.InterestID,
			"collectionId": e.CollectionID,
			"status":       string(e.Status),
		})

	case cloudevents.MaterialInterestCompleted:
		var e domain.MaterialInterestCompletedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.RecyclerID, TemplateInterestCompleted, map[string]any{
			"interestId":   e.InterestID,
			"collectionId": e.CollectionID,
		})

	case cloudevents.ImpactCalculated:
		var e domain.ImpactCalculatedEvent
		if err := decode(event, &e); err != nil {
			return nil, err
		}
		add(e.RequesterID, TemplateImpactReady, ImpactData(&e))
	}
	return out, nil
}

// ImpactData is the template data of an impact_ready notification
func ImpactData(e *domain.ImpactCalculatedEvent) map[string]any {
	return map[string]any{
		"collectionId": e.CollectionID,
		"co2AvoidedKg": e.CO2AvoidedKg,
		"points":       e.Points,
	}
}

func decode(event *cloudevents.CloudEvent, v interface{}) error {
	if err := event.DecodeData(v); err != nil {
		return fmt.Errorf("decode %s event %s: %w", event.Type, event.ID, err)
	}
	return nil
}
