package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the collection service
const (
	CollectionScheduled      = "ecocycle.collection.scheduled"
	CollectionClaimed        = "ecocycle.collection.claimed"
	CollectionStatusChanged  = "ecocycle.collection.status-changed"
	CollectionDetailsUpdated = "ecocycle.collection.details-updated"

	MaterialInterestExpressed = "ecocycle.material-interest.expressed"
	MaterialInterestDecided   = "ecocycle.material-interest.decided"
	MaterialInterestCompleted = "ecocycle.material-interest.completed"

	ImpactCalculated = "ecocycle.impact.calculated"
)

// Event sources
const (
	SourceCollectionService = "/ecocycle/collection-service"
	SourceImpactWorker      = "/ecocycle/impact-worker"
)

// CloudEvent is a CloudEvents v1.0 envelope. Data holds the typed payload when
// producing and a json.RawMessage after decoding from the wire.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// Extensions
	CorrelationID string `json:"correlationid,omitempty"`
	ActorID       string `json:"actorid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty"`
}

// Parse decodes a CloudEvent from its structured JSON form, keeping the data
// payload raw so it can be decoded into the handler's own type.
func Parse(raw []byte) (*CloudEvent, error) {
	var envelope struct {
		CloudEvent
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse cloud event: %w", err)
	}
	ce := envelope.CloudEvent
	ce.Data = envelope.Data
	return &ce, nil
}

// DecodeData unmarshals the event payload into v.
func (e *CloudEvent) DecodeData(v interface{}) error {
	var raw []byte
	switch d := e.Data.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		var err error
		raw, err = json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}
