package asyncapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
)

func TestNewDefaultEventValidator_RegistersEveryEventType(t *testing.T) {
	v, err := NewDefaultEventValidator()
	require.NoError(t, err)

	for _, eventType := range []string{
		cloudevents.CollectionScheduled,
		cloudevents.CollectionClaimed,
		cloudevents.CollectionStatusChanged,
		cloudevents.CollectionDetailsUpdated,
		cloudevents.MaterialInterestExpressed,
		cloudevents.MaterialInterestDecided,
		cloudevents.MaterialInterestCompleted,
		cloudevents.ImpactCalculated,
	} {
		assert.True(t, v.HasSchema(eventType), eventType)
	}
	assert.Len(t, v.GetSupportedEventTypes(), 8)

	raw, ok := v.GetSchema(cloudevents.CollectionClaimed)
	require.True(t, ok)
	assert.Contains(t, raw, "required")
}

func TestValidateEvent(t *testing.T) {
	v, err := NewDefaultEventValidator()
	require.NoError(t, err)
	factory := cloudevents.NewEventFactory(cloudevents.SourceCollectionService)
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		eventType string
		data      interface{}
		wantErr   bool
	}{
		{
			name:      "valid claim",
			eventType: cloudevents.CollectionClaimed,
			data: map[string]interface{}{
				"collectionId": "col-1", "requesterId": "h-1", "collectorId": "c-1",
				"fromStatus": "scheduled", "claimedAt": now,
			},
		},
		{
			name:      "claim without collector",
			eventType: cloudevents.CollectionClaimed,
			data: map[string]interface{}{
				"collectionId": "col-1", "requesterId": "h-1",
				"fromStatus": "scheduled", "claimedAt": now,
			},
			wantErr: true,
		},
		{
			name:      "claim from a non-intake status",
			eventType: cloudevents.CollectionClaimed,
			data: map[string]interface{}{
				"collectionId": "col-1", "requesterId": "h-1", "collectorId": "c-1",
				"fromStatus": "completed", "claimedAt": now,
			},
			wantErr: true,
		},
		{
			name:      "completion with negative amount",
			eventType: cloudevents.CollectionStatusChanged,
			data: map[string]interface{}{
				"collectionId": "col-1", "requesterId": "h-1", "collectorId": "c-1",
				"from": "in_progress", "to": "completed", "actorId": "c-1", "actorRole": "collector",
				"wasteType": "plastic", "wasteAmount": -1, "changedAt": now,
			},
			wantErr: true,
		},
		{
			name:      "decision with unknown status",
			eventType: cloudevents.MaterialInterestDecided,
			data: map[string]interface{}{
				"interestId": "i-1", "collectionId": "col-1", "recyclerId": "r-1", "collectorId": "c-1",
				"status": "maybe", "decidedAt": now,
			},
			wantErr: true,
		},
		{
			name:      "unknown event type",
			eventType: "ecocycle.collection.teleported",
			data:      map[string]interface{}{"collectionId": "col-1"},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := factory.CreateEvent(context.Background(), tt.eventType, "collection/col-1", tt.data)
			err := v.ValidateEvent(ce)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEventJSON(t *testing.T) {
	v, err := NewDefaultEventValidator()
	require.NoError(t, err)

	raw := []byte(`{
		"specversion": "1.0",
		"type": "ecocycle.material-interest.completed",
		"source": "/ecocycle/collection-service",
		"id": "evt-1",
		"time": "2026-05-04T08:00:00Z",
		"datacontenttype": "application/json",
		"data": {
			"interestId": "i-1",
			"collectionId": "col-1",
			"recyclerId": "r-1",
			"collectorId": "c-1",
			"completedAt": "2026-05-04T08:00:00Z"
		}
	}`)
	assert.NoError(t, v.ValidateEventJSON(raw))

	assert.Error(t, v.ValidateEventJSON([]byte(`{"type": "ecocycle.material-interest.completed"}`)))
	assert.Error(t, v.ValidateEventJSON([]byte(`not json`)))
}

func TestNewEventValidatorFromBytes_RejectsDanglingReference(t *testing.T) {
	spec := []byte(`
asyncapi: 3.0.0
info: {title: broken, version: 0.0.1}
components:
  messages:
    Orphan:
      name: ecocycle.orphan
      payload:
        $ref: '#/components/schemas/Missing'
`)
	_, err := NewEventValidatorFromBytes(spec)
	assert.Error(t, err)
}
