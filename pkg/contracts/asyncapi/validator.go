// Package asyncapi validates event payloads against the service's AsyncAPI
// document.
package asyncapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
)

//go:embed asyncapi.yaml
var specDocument []byte

const schemaRefPrefix = "#/components/schemas/"

// EventValidator validates CloudEvents against AsyncAPI schemas.
type EventValidator struct {
	schemas    map[string]*jsonschema.Schema
	rawSchemas map[string]interface{}
	compiler   *jsonschema.Compiler
}

// AsyncAPISpec represents the relevant parts of an AsyncAPI specification.
type AsyncAPISpec struct {
	AsyncAPI   string                     `yaml:"asyncapi"`
	Info       AsyncAPIInfo               `yaml:"info"`
	Channels   map[string]AsyncAPIChannel `yaml:"channels"`
	Components AsyncAPIComponents         `yaml:"components"`
}

// AsyncAPIInfo contains AsyncAPI info section.
type AsyncAPIInfo struct {
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// AsyncAPIChannel represents a channel in AsyncAPI.
type AsyncAPIChannel struct {
	Address  string                 `yaml:"address"`
	Messages map[string]interface{} `yaml:"messages"`
}

// AsyncAPIMessage is a message component. Name carries the CloudEvent type.
type AsyncAPIMessage struct {
	Name    string `yaml:"name"`
	Payload struct {
		Ref string `yaml:"$ref"`
	} `yaml:"payload"`
}

// AsyncAPIComponents contains reusable components.
type AsyncAPIComponents struct {
	Schemas  map[string]interface{}     `yaml:"schemas"`
	Messages map[string]AsyncAPIMessage `yaml:"messages"`
}

// Document returns the embedded AsyncAPI document
func Document() []byte {
	return specDocument
}

// NewDefaultEventValidator builds a validator from the embedded document
func NewDefaultEventValidator() (*EventValidator, error) {
	return NewEventValidatorFromBytes(specDocument)
}

// NewEventValidatorFromBytes creates a new event validator from a raw AsyncAPI document.
func NewEventValidatorFromBytes(specBytes []byte) (*EventValidator, error) {
	var spec AsyncAPISpec
	if err := yaml.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse AsyncAPI document: %w", err)
	}

	v := &EventValidator{
		schemas:    make(map[string]*jsonschema.Schema),
		rawSchemas: make(map[string]interface{}),
		compiler:   jsonschema.NewCompiler(),
	}

	for messageName, message := range spec.Components.Messages {
		if message.Name == "" || !strings.HasPrefix(message.Payload.Ref, schemaRefPrefix) {
			return nil, fmt.Errorf("message %s has no event type or payload schema", messageName)
		}
		schemaName := strings.TrimPrefix(message.Payload.Ref, schemaRefPrefix)
		schema, ok := spec.Components.Schemas[schemaName]
		if !ok {
			return nil, fmt.Errorf("message %s references unknown schema %s", messageName, schemaName)
		}

		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema %s: %w", schemaName, err)
		}
		if err := v.register(message.Name, "asyncapi://schemas/"+schemaName, schemaJSON); err != nil {
			return nil, err
		}
	}

	return v, nil
}

func (v *EventValidator) register(eventType, uri string, schemaJSON []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return fmt.Errorf("failed to parse schema for %s: %w", eventType, err)
	}
	if err := v.compiler.AddResource(uri, doc); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	compiled, err := v.compiler.Compile(uri)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", eventType, err)
	}

	v.schemas[eventType] = compiled
	v.rawSchemas[eventType] = doc
	return nil
}

// ValidateEvent validates a CloudEvent's data against the schema of its type.
func (v *EventValidator) ValidateEvent(event *cloudevents.CloudEvent) error {
	if event == nil || event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Data == nil {
		return fmt.Errorf("event data is required")
	}

	// Round-trip through JSON so typed payloads and raw wire payloads are
	// validated the same way.
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return v.ValidateData(event.Type, dataJSON)
}

// ValidateData validates a JSON payload against the schema of eventType.
func (v *EventValidator) ValidateData(eventType string, data []byte) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("no schema found for event type: %s", eventType)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to unmarshal event data: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("event data validation failed for type %s: %w", eventType, err)
	}
	return nil
}

// ValidateEventJSON validates a CloudEvent from JSON bytes.
func (v *EventValidator) ValidateEventJSON(eventJSON []byte) error {
	event, err := cloudevents.Parse(eventJSON)
	if err != nil {
		return fmt.Errorf("failed to parse CloudEvent: %w", err)
	}
	return v.ValidateEvent(event)
}

// GetSupportedEventTypes returns all event types that have registered schemas.
func (v *EventValidator) GetSupportedEventTypes() []string {
	types := make([]string, 0, len(v.schemas))
	for eventType := range v.schemas {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// HasSchema checks if a schema exists for the given event type.
func (v *EventValidator) HasSchema(eventType string) bool {
	_, ok := v.schemas[eventType]
	return ok
}

// GetSchema returns the raw schema for a given event type.
func (v *EventValidator) GetSchema(eventType string) (interface{}, bool) {
	schema, ok := v.rawSchemas[eventType]
	return schema, ok
}
