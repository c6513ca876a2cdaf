package application

import (
	"time"

	"github.com/ecocycle/collection-service/internal/domain"
)

// ScheduleCollectionCommand represents the command to schedule a new pickup
type ScheduleCollectionCommand struct {
	Requester     domain.Actor
	WasteType     string
	WasteAmount   *float64
	Address       string
	ScheduledDate time.Time
	Notes         string
}

// ClaimCollectionCommand represents a collector claiming an unassigned pickup
type ClaimCollectionCommand struct {
	CollectionID string
	Actor        domain.Actor
}

// TransitionCollectionCommand represents a requested status change
type TransitionCollectionCommand struct {
	CollectionID string
	Status       string
	Actor        domain.Actor
	WasteAmount  *float64
	Notes        *string
	Reason       string
}

// UpdateCollectionDetailsCommand represents a descriptive patch
type UpdateCollectionDetailsCommand struct {
	CollectionID  string
	Actor         domain.Actor
	Address       *string
	ScheduledDate *time.Time
	WasteType     *string
	WasteAmount   *float64
	Notes         *string
}

// GetCollectionQuery represents the query to get a collection by ID
type GetCollectionQuery struct {
	CollectionID string
}

// ListCollectionsQuery represents a paged list query. OwnerID is the
// requester or collector the list is scoped to, empty for the available list.
type ListCollectionsQuery struct {
	OwnerID string
	Limit   int
	Offset  int
}

// ExpressInterestCommand represents a recycler asking for a collection's materials
type ExpressInterestCommand struct {
	CollectionID string
	Actor        domain.Actor
	Materials    []string
	OfferedPrice *float64
	Message      string
}

// DecideInterestCommand represents the collector accepting or rejecting an interest
type DecideInterestCommand struct {
	InterestID string
	Actor      domain.Actor
	Decision   string
}

// CompleteInterestCommand represents the hand-over of accepted materials
type CompleteInterestCommand struct {
	InterestID string
	Actor      domain.Actor
}

// CalculateImpactCommand is issued by the impact workflow
type CalculateImpactCommand struct {
	CollectionID string
}
