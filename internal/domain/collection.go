package domain

import (
	"fmt"
	"strings"
	"time"
)

// Collection is the aggregate root for a single waste pickup request
type Collection struct {
	ID                 string           `bson:"_id" json:"id"`
	RequesterID        string           `bson:"requesterId" json:"requesterId"`
	CollectorID        string           `bson:"collectorId,omitempty" json:"collectorId,omitempty"`
	Status             CollectionStatus `bson:"status" json:"status"`
	WasteType          WasteType        `bson:"wasteType" json:"wasteType"`
	WasteAmount        *float64         `bson:"wasteAmount,omitempty" json:"wasteAmount,omitempty"`
	Address            string           `bson:"address" json:"address"`
	ScheduledDate      time.Time        `bson:"scheduledDate" json:"scheduledDate"`
	CompletedDate      *time.Time       `bson:"completedDate,omitempty" json:"completedDate,omitempty"`
	Notes              string           `bson:"notes,omitempty" json:"notes,omitempty"`
	CancellationReason string           `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	Version            int64            `bson:"version" json:"version"`
	CreatedAt          time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time        `bson:"updatedAt" json:"updatedAt"`
	ClaimedAt          *time.Time       `bson:"claimedAt,omitempty" json:"claimedAt,omitempty"`
	StartedAt          *time.Time       `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CancelledAt        *time.Time       `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	DomainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewCollection creates a scheduled, unassigned collection
func NewCollection(id string, requester Actor, wasteType WasteType, wasteAmount *float64, address string, scheduledDate time.Time, notes string, now time.Time) (*Collection, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidCollection)
	}
	if requester.ID == "" {
		return nil, fmt.Errorf("%w: requester is required", ErrInvalidCollection)
	}
	if !requester.Role.CanRequestCollections() {
		return nil, fmt.Errorf("%w: role %s cannot schedule collections", ErrUnauthorizedActor, requester.Role)
	}
	if _, err := ParseWasteType(string(wasteType)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidCollection)
	}
	if scheduledDate.IsZero() {
		return nil, fmt.Errorf("%w: scheduled date is required", ErrInvalidCollection)
	}
	if err := validateWasteAmount(wasteAmount); err != nil {
		return nil, err
	}

	c := &Collection{
		ID:            id,
		RequesterID:   requester.ID,
		Status:        StatusScheduled,
		WasteType:     wasteType,
		WasteAmount:   copyFloat(wasteAmount),
		Address:       address,
		ScheduledDate: scheduledDate.UTC(),
		Notes:         notes,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
		DomainEvents:  make([]DomainEvent, 0),
	}

	c.AddDomainEvent(&CollectionScheduledEvent{
		CollectionID:  c.ID,
		RequesterID:   c.RequesterID,
		WasteType:     c.WasteType,
		Address:       c.Address,
		ScheduledDate: c.ScheduledDate,
		ScheduledAt:   now,
	})

	return c, nil
}

// TransitionInput carries the optional fields that may accompany a status change
type TransitionInput struct {
	WasteAmount *float64
	Notes       *string
	Reason      string
}

// IsOwner reports whether the actor requested this collection
func (c *Collection) IsOwner(actor Actor) bool {
	return actor.ID != "" && actor.ID == c.RequesterID
}

// IsAssignedCollector reports whether the actor is the collector on record
func (c *Collection) IsAssignedCollector(actor Actor) bool {
	return c.CollectorID != "" && actor.ID == c.CollectorID
}

// ApplyTransition moves the collection to the requested status. Every check
// runs before the first field is written, so a rejected transition leaves the
// aggregate untouched.
func (c *Collection) ApplyTransition(to CollectionStatus, actor Actor, input TransitionInput, now time.Time) error {
	from := c.Status

	if !to.IsValid() || !IsValidSuccessor(from, to) {
		return c.transitionError(to, actor, ErrInvalidTransition, "")
	}

	if !CanTransition(from, to, actor.Role, c.IsOwner(actor), c.IsAssignedCollector(actor)) {
		return c.transitionError(to, actor, ErrUnauthorizedActor, "")
	}

	if err := validateWasteAmount(input.WasteAmount); err != nil {
		return err
	}

	wasteAmount := c.WasteAmount
	if input.WasteAmount != nil {
		wasteAmount = copyFloat(input.WasteAmount)
	}
	if to == StatusCompleted && wasteAmount == nil {
		return c.transitionError(to, actor, ErrMissingRequiredField, "wasteAmount")
	}

	c.Status = to
	c.WasteAmount = wasteAmount
	if input.Notes != nil {
		c.Notes = *input.Notes
	}

	switch to {
	case StatusInProgress:
		c.StartedAt = timePtr(now)
	case StatusCompleted:
		c.CompletedDate = timePtr(now)
	case StatusCancelled:
		c.CancelledAt = timePtr(now)
		c.CancellationReason = input.Reason
	case StatusScheduled, StatusPending, StatusConfirmed:
	}
	c.UpdatedAt = now

	c.AddDomainEvent(c.statusChangedEvent(from, actor, input.Reason, now))
	return nil
}

// Claim assigns the collector and confirms the collection. It is the only
// place CollectorID goes from empty to set.
func (c *Collection) Claim(collector Actor, now time.Time) error {
	if c.CollectorID != "" {
		return c.transitionError(StatusConfirmed, collector, ErrAlreadyClaimed, "")
	}
	if !c.Status.IsUnassignedIntake() {
		return c.transitionError(StatusConfirmed, collector, ErrInvalidState, "")
	}
	if !CanTransition(c.Status, StatusConfirmed, collector.Role, c.IsOwner(collector), true) {
		return c.transitionError(StatusConfirmed, collector, ErrUnauthorizedActor, "")
	}

	from := c.Status
	c.CollectorID = collector.ID
	c.Status = StatusConfirmed
	c.ClaimedAt = timePtr(now)
	c.UpdatedAt = now

	c.AddDomainEvent(&CollectionClaimedEvent{
		CollectionID: c.ID,
		RequesterID:  c.RequesterID,
		CollectorID:  c.CollectorID,
		FromStatus:   from,
		ClaimedAt:    now,
	})
	c.AddDomainEvent(c.statusChangedEvent(from, collector, "", now))
	return nil
}

// DetailsPatch holds descriptive fields to overwrite. Nil means unchanged.
type DetailsPatch struct {
	Address       *string
	ScheduledDate *time.Time
	WasteType     *WasteType
	WasteAmount   *float64
	Notes         *string
}

func (p DetailsPatch) requesterOnly() bool {
	return p.Address != nil || p.ScheduledDate != nil || p.WasteType != nil
}

// UpdateDetails applies a descriptive patch. The requester may edit while the
// collection is still unassigned intake; the assigned collector may edit notes
// and waste amount while the pickup is confirmed or in progress.
func (c *Collection) UpdateDetails(actor Actor, patch DetailsPatch, now time.Time) ([]string, error) {
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: collection %s is %s", ErrInvalidState, c.ID, c.Status)
	}

	switch {
	case c.IsOwner(actor) && c.CollectorID == "" && c.Status.IsUnassignedIntake():
	case c.IsAssignedCollector(actor) && actor.Role == RoleCollector &&
		(c.Status == StatusConfirmed || c.Status == StatusInProgress):
		if patch.requesterOnly() {
			return nil, fmt.Errorf("%w: collector may only edit notes and waste amount", ErrUnauthorizedActor)
		}
	default:
		return nil, fmt.Errorf("%w: actor %s cannot edit collection %s", ErrUnauthorizedActor, actor.ID, c.ID)
	}

	if patch.WasteType != nil {
		if _, err := ParseWasteType(string(*patch.WasteType)); err != nil {
			return nil, err
		}
	}
	if patch.Address != nil && strings.TrimSpace(*patch.Address) == "" {
		return nil, fmt.Errorf("%w: address cannot be empty", ErrInvalidCollection)
	}
	if patch.ScheduledDate != nil && patch.ScheduledDate.IsZero() {
		return nil, fmt.Errorf("%w: scheduled date cannot be empty", ErrInvalidCollection)
	}
	if err := validateWasteAmount(patch.WasteAmount); err != nil {
		return nil, err
	}

	var changed []string
	if patch.Address != nil {
		c.Address = *patch.Address
		changed = append(changed, "address")
	}
	if patch.ScheduledDate != nil {
		c.ScheduledDate = patch.ScheduledDate.UTC()
		changed = append(changed, "scheduledDate")
	}
	if patch.WasteType != nil {
		c.WasteType = *patch.WasteType
		changed = append(changed, "wasteType")
	}
	if patch.WasteAmount != nil {
		c.WasteAmount = copyFloat(patch.WasteAmount)
		changed = append(changed, "wasteAmount")
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
		changed = append(changed, "notes")
	}
	if len(changed) == 0 {
		return nil, nil
	}

	c.UpdatedAt = now
	c.AddDomainEvent(&CollectionDetailsUpdatedEvent{
		CollectionID:  c.ID,
		ActorID:       actor.ID,
		ChangedFields: changed,
		UpdatedAt:     now,
	})
	return changed, nil
}

// CheckInvariants verifies the structural invariants of the record
func (c *Collection) CheckInvariants() error {
	if c.Status == StatusScheduled && c.CollectorID != "" {
		return fmt.Errorf("%w: scheduled collection %s has a collector", ErrInvalidCollection, c.ID)
	}
	if (c.Status == StatusCompleted) != (c.CompletedDate != nil) {
		return fmt.Errorf("%w: completed date mismatch on %s", ErrInvalidCollection, c.ID)
	}
	if c.Status == StatusCompleted && c.WasteAmount == nil {
		return fmt.Errorf("%w: completed collection %s has no waste amount", ErrInvalidCollection, c.ID)
	}
	return nil
}

func (c *Collection) statusChangedEvent(from CollectionStatus, actor Actor, reason string, now time.Time) *CollectionStatusChangedEvent {
	return &CollectionStatusChangedEvent{
		CollectionID: c.ID,
		RequesterID:  c.RequesterID,
		CollectorID:  c.CollectorID,
		From:         from,
		To:           c.Status,
		ActorID:      actor.ID,
		ActorRole:    actor.Role,
		WasteType:    c.WasteType,
		WasteAmount:  copyFloat(c.WasteAmount),
		Reason:       reason,
		ChangedAt:    now,
	}
}

func (c *Collection) transitionError(to CollectionStatus, actor Actor, err error, field string) *TransitionError {
	return &TransitionError{
		CollectionID: c.ID,
		From:         c.Status,
		To:           to,
		ActorID:      actor.ID,
		Field:        field,
		Err:          err,
	}
}

// AddDomainEvent adds a domain event
func (c *Collection) AddDomainEvent(event DomainEvent) {
	c.DomainEvents = append(c.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (c *Collection) ClearDomainEvents() {
	c.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (c *Collection) GetDomainEvents() []DomainEvent {
	return c.DomainEvents
}

func validateWasteAmount(v *float64) error {
	if v != nil && *v < 0 {
		return fmt.Errorf("%w: waste amount cannot be negative", ErrInvalidCollection)
	}
	return nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
