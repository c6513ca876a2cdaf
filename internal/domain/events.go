package domain

import (
	"time"

	"github.com/ecocycle/collection-service/pkg/cloudevents"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// CollectionScheduledEvent is raised when a requester schedules a pickup
type CollectionScheduledEvent struct {
	CollectionID  string    `json:"collectionId"`
	RequesterID   string    `json:"requesterId"`
	WasteType     WasteType `json:"wasteType"`
	Address       string    `json:"address"`
	ScheduledDate time.Time `json:"scheduledDate"`
	ScheduledAt   time.Time `json:"scheduledAt"`
}

func (e *CollectionScheduledEvent) EventType() string     { return cloudevents.CollectionScheduled }
func (e *CollectionScheduledEvent) OccurredAt() time.Time { return e.ScheduledAt }
func (e *CollectionScheduledEvent) AggregateID() string   { return e.CollectionID }

// CollectionClaimedEvent is raised when a collector wins a claim
type CollectionClaimedEvent struct {
	CollectionID string           `json:"collectionId"`
	RequesterID  string           `json:"requesterId"`
	CollectorID  string           `json:"collectorId"`
	FromStatus   CollectionStatus `json:"fromStatus"`
	ClaimedAt    time.Time        `json:"claimedAt"`
}

func (e *CollectionClaimedEvent) EventType() string     { return cloudevents.CollectionClaimed }
func (e *CollectionClaimedEvent) OccurredAt() time.Time { return e.ClaimedAt }
func (e *CollectionClaimedEvent) AggregateID() string   { return e.CollectionID }

// CollectionStatusChangedEvent is raised for every accepted status change,
// including the one performed by a claim.
type CollectionStatusChangedEvent struct {
	CollectionID string           `json:"collectionId"`
	RequesterID  string           `json:"requesterId"`
	CollectorID  string           `json:"collectorId,omitempty"`
	From         CollectionStatus `json:"from"`
	To           CollectionStatus `json:"to"`
	ActorID      string           `json:"actorId"`
	ActorRole    Role             `json:"actorRole"`
	WasteType    WasteType        `json:"wasteType"`
	WasteAmount  *float64         `json:"wasteAmount,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	ChangedAt    time.Time        `json:"changedAt"`
}

func (e *CollectionStatusChangedEvent) EventType() string     { return cloudevents.CollectionStatusChanged }
func (e *CollectionStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
func (e *CollectionStatusChangedEvent) AggregateID() string   { return e.CollectionID }

// CollectionDetailsUpdatedEvent is raised when descriptive fields change
type CollectionDetailsUpdatedEvent struct {
	CollectionID  string    `json:"collectionId"`
	ActorID       string    `json:"actorId"`
	ChangedFields []string  `json:"changedFields"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (e *CollectionDetailsUpdatedEvent) EventType() string     { return cloudevents.CollectionDetailsUpdated }
func (e *CollectionDetailsUpdatedEvent) OccurredAt() time.Time { return e.UpdatedAt }
func (e *CollectionDetailsUpdatedEvent) AggregateID() string   { return e.CollectionID }

// MaterialInterestExpressedEvent is raised when a recycler asks for materials
type MaterialInterestExpressedEvent struct {
	InterestID   string    `json:"interestId"`
	CollectionID string    `json:"collectionId"`
	RecyclerID   string    `json:"recyclerId"`
	CollectorID  string    `json:"collectorId"`
	Materials    []string  `json:"materials"`
	ExpressedAt  time.Time `json:"expressedAt"`
}

func (e *MaterialInterestExpressedEvent) EventType() string {
	return cloudevents.MaterialInterestExpressed
}
func (e *MaterialInterestExpressedEvent) OccurredAt() time.Time { return e.ExpressedAt }
func (e *MaterialInterestExpressedEvent) AggregateID() string   { return e.InterestID }

// MaterialInterestDecidedEvent is raised when the collector accepts or rejects
type MaterialInterestDecidedEvent struct {
	InterestID   string         `json:"interestId"`
	CollectionID string         `json:"collectionId"`
	RecyclerID   string         `json:"recyclerId"`
	CollectorID  string         `json:"collectorId"`
	Status       InterestStatus `json:"status"`
	DecidedAt    time.Time      `json:"decidedAt"`
}

func (e *MaterialInterestDecidedEvent) EventType() string     { return cloudevents.MaterialInterestDecided }
func (e *MaterialInterestDecidedEvent) OccurredAt() time.Time { return e.DecidedAt }
func (e *MaterialInterestDecidedEvent) AggregateID() string   { return e.InterestID }

// MaterialInterestCompletedEvent is raised when materials were handed over
type MaterialInterestCompletedEvent struct {
	InterestID   string    `json:"interestId"`
	CollectionID string    `json:"collectionId"`
	RecyclerID   string    `json:"recyclerId"`
	CollectorID  string    `json:"collectorId"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e *MaterialInterestCompletedEvent) EventType() string {
	return cloudevents.MaterialInterestCompleted
}
func (e *MaterialInterestCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
func (e *MaterialInterestCompletedEvent) AggregateID() string   { return e.InterestID }

// ImpactCalculatedEvent is published by the impact worker once a record is stored
type ImpactCalculatedEvent struct {
	CollectionID       string    `json:"collectionId"`
	RequesterID        string    `json:"requesterId"`
	CollectorID        string    `json:"collectorId"`
	WasteType          WasteType `json:"wasteType"`
	WasteAmountKg      float64   `json:"wasteAmountKg"`
	CO2AvoidedKg       float64   `json:"co2AvoidedKg"`
	LandfillDivertedKg float64   `json:"landfillDivertedKg"`
	Points             int64     `json:"points"`
	CalculatedAt       time.Time `json:"calculatedAt"`
}

// NewImpactCalculatedEvent builds the event for a stored record
func NewImpactCalculatedEvent(r *ImpactRecord) *ImpactCalculatedEvent {
	return &ImpactCalculatedEvent{
		CollectionID:       r.CollectionID,
		RequesterID:        r.RequesterID,
		CollectorID:        r.CollectorID,
		WasteType:          r.WasteType,
		WasteAmountKg:      r.WasteAmountKg,
		CO2AvoidedKg:       r.CO2AvoidedKg,
		LandfillDivertedKg: r.LandfillDivertedKg,
		Points:             r.Points,
		CalculatedAt:       r.CalculatedAt,
	}
}

func (e *ImpactCalculatedEvent) EventType() string     { return cloudevents.ImpactCalculated }
func (e *ImpactCalculatedEvent) OccurredAt() time.Time { return e.CalculatedAt }
func (e *ImpactCalculatedEvent) AggregateID() string   { return e.CollectionID }
