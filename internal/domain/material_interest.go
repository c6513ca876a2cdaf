package domain

import (
	"fmt"
	"strings"
	"time"
)

// InterestStatus is the lifecycle state of a material interest
type InterestStatus string

const (
	InterestPending   InterestStatus = "pending"
	InterestAccepted  InterestStatus = "accepted"
	InterestRejected  InterestStatus = "rejected"
	InterestCompleted InterestStatus = "completed"
)

// ParseInterestStatus validates a wire value.
func ParseInterestStatus(s string) (InterestStatus, error) {
	switch st := InterestStatus(s); st {
	case InterestPending, InterestAccepted, InterestRejected, InterestCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown interest status %q", ErrInvalidInterestTransition, s)
}

// IsOpen reports whether the interest still blocks a new one from the same recycler
func (s InterestStatus) IsOpen() bool {
	switch s {
	case InterestPending, InterestAccepted:
		return true
	case InterestRejected, InterestCompleted:
		return false
	}
	return false
}

func canMoveInterest(from, to InterestStatus) bool {
	switch from {
	case InterestPending:
		return to == InterestAccepted || to == InterestRejected
	case InterestAccepted:
		return to == InterestCompleted
	case InterestRejected, InterestCompleted:
		return false
	}
	return false
}

// MaterialInterest records a recycler's request for the materials of a collection
type MaterialInterest struct {
	ID           string         `bson:"_id" json:"id"`
	CollectionID string         `bson:"collectionId" json:"collectionId"`
	RecyclerID   string         `bson:"recyclerId" json:"recyclerId"`
	CollectorID  string         `bson:"collectorId" json:"collectorId"`
	Materials    []string       `bson:"materials" json:"materials"`
	OfferedPrice *float64       `bson:"offeredPrice,omitempty" json:"offeredPrice,omitempty"`
	Message      string         `bson:"message,omitempty" json:"message,omitempty"`
	Status       InterestStatus `bson:"status" json:"status"`
	Version      int64          `bson:"version" json:"version"`
	CreatedAt    time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt" json:"updatedAt"`
	DecidedAt    *time.Time     `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
	CompletedAt  *time.Time     `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewMaterialInterest creates a pending interest on a collection that is in
// progress or completed.
func NewMaterialInterest(id string, collection *Collection, recycler Actor, materials []string, offeredPrice *float64, message string, now time.Time) (*MaterialInterest, error) {
	if recycler.Role != RoleRecycler {
		return nil, fmt.Errorf("%w: role %s cannot express material interest", ErrUnauthorizedActor, recycler.Role)
	}
	if collection == nil {
		return nil, ErrCollectionNotFound
	}
	if collection.Status != StatusInProgress && collection.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: collection %s is %s", ErrCollectionNotAvailable, collection.ID, collection.Status)
	}

	cleaned := make([]string, 0, len(materials))
	for _, m := range materials {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: materials", ErrMissingRequiredField)
	}
	if offeredPrice != nil && *offeredPrice < 0 {
		return nil, fmt.Errorf("%w: offered price cannot be negative", ErrInvalidCollection)
	}

	m := &MaterialInterest{
		ID:           id,
		CollectionID: collection.ID,
		RecyclerID:   recycler.ID,
		CollectorID:  collection.CollectorID,
		Materials:    cleaned,
		OfferedPrice: copyFloat(offeredPrice),
		Message:      message,
		Status:       InterestPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	m.AddDomainEvent(&MaterialInterestExpressedEvent{
		InterestID:   m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  m.CollectorID,
		Materials:    m.Materials,
		ExpressedAt:  now,
	})
	return m, nil
}

// Decide accepts or rejects a pending interest. Only the collector currently
// assigned to the collection may decide.
func (m *MaterialInterest) Decide(actor Actor, collection *Collection, decision InterestStatus, now time.Time) error {
	if decision != InterestAccepted && decision != InterestRejected {
		return fmt.Errorf("%w: decision must be accepted or rejected", ErrInvalidInterestTransition)
	}
	if err := m.authorize(actor, collection); err != nil {
		return err
	}
	if !canMoveInterest(m.Status, decision) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInterestTransition, m.Status, decision)
	}

	m.Status = decision
	m.DecidedAt = timePtr(now)
	m.UpdatedAt = now

	m.AddDomainEvent(&MaterialInterestDecidedEvent{
		InterestID:   m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  actor.ID,
		Status:       decision,
		DecidedAt:    now,
	})
	return nil
}

// Complete marks an accepted interest as fulfilled
func (m *MaterialInterest) Complete(actor Actor, collection *Collection, now time.Time) error {
	if err := m.authorize(actor, collection); err != nil {
		return err
	}
	if !canMoveInterest(m.Status, InterestCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInterestTransition, m.Status, InterestCompleted)
	}

	m.Status = InterestCompleted
	m.CompletedAt = timePtr(now)
	m.UpdatedAt = now

	m.AddDomainEvent(&MaterialInterestCompletedEvent{
		InterestID:   m.ID,
		CollectionID: m.CollectionID,
		RecyclerID:   m.RecyclerID,
		CollectorID:  actor.ID,
		CompletedAt:  now,
	})
	return nil
}

func (m *MaterialInterest) authorize(actor Actor, collection *Collection) error {
	if collection == nil || collection.ID != m.CollectionID {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, m.CollectionID)
	}
	if actor.Role != RoleCollector || !collection.IsAssignedCollector(actor) {
		return fmt.Errorf("%w: only the assigned collector may act on interest %s", ErrUnauthorizedActor, m.ID)
	}
	return nil
}

// AddDomainEvent adds a domain event
func (m *MaterialInterest) AddDomainEvent(event DomainEvent) {
	m.DomainEvents = append(m.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (m *MaterialInterest) ClearDomainEvents() {
	m.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (m *MaterialInterest) GetDomainEvents() []DomainEvent {
	return m.DomainEvents
}
