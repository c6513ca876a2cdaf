// Package notification turns lifecycle, claim and interest events into
// user-facing notifications. Delivery is fire-and-forget.
package notification

import (
	"context"
	"sync"

	"github.com/ecocycle/collection-service/pkg/logging"
)

// Templates
const (
	TemplateCollectionScheduled = "collection_scheduled"
	TemplateCollectionClaimed   = "collection_claimed"
	TemplateCollectionStarted   = "collection_started"
	TemplateCollectionCompleted = "collection_completed"
	TemplateCollectionCancelled = "collection_cancelled"
	TemplateInterestExpressed   = "interest_expressed"
	TemplateInterestDecided     = "interest_decided"
	TemplateInterestCompleted   = "interest_completed"
	TemplateImpactReady         = "impact_ready"
)

// Notification is a message for one recipient
type Notification struct {
	RecipientID string         `json:"recipientId"`
	Template    string         `json:"template"`
	Data        map[string]any `json:"data"`
	EventID     string         `json:"eventId,omitempty"`
}

// Notifier delivers notifications to a channel (push, email, ...)
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It is the default
// channel until a push provider is configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogNotifier{logger: logger.WithComponent("notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.WithContext(ctx).Info("Notification sent",
		"recipientId", msg.RecipientID,
		"template", msg.Template,
		"eventId", msg.EventID,
	)
	return nil
}

// RecordingNotifier keeps every notification in memory
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *RecordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the delivered notifications
func (r *RecordingNotifier) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
