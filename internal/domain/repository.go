package domain

import (
	"context"
	"time"
)

// Clock returns the current time
type Clock func() time.Time

// UTCClock is the production clock
func UTCClock() time.Time {
	return time.Now().UTC()
}

// Precondition describes the persisted state an update expects to overwrite.
// A zero Version matches any version.
type Precondition struct {
	Status      CollectionStatus
	CollectorID string
	Version     int64
}

// PreconditionFor captures the current persisted state of c
func PreconditionFor(c *Collection) Precondition {
	return Precondition{
		Status:      c.Status,
		CollectorID: c.CollectorID,
		Version:     c.Version,
	}
}

// Page bounds a list query
type Page struct {
	Limit  int
	Offset int
}

// CollectionRepository is the persistence port for collections. Implementations
// store pending domain events in the same atomic write as the aggregate.
type CollectionRepository interface {
	Create(ctx context.Context, c *Collection) error
	// FindByID returns nil, nil when the collection does not exist.
	FindByID(ctx context.Context, id string) (*Collection, error)
	// Update writes c only if the stored record still matches pre, returning
	// ErrStaleCollection otherwise. On success c.Version is incremented.
	Update(ctx context.Context, c *Collection, pre Precondition) error
	// Claim sets collectorId and status on the stored record only if it has
	// no collector and is unassigned intake, returning ErrClaimConflict
	// otherwise.
	Claim(ctx context.Context, c *Collection) error
	ListUnassignedIntake(ctx context.Context, page Page) ([]*Collection, error)
	FindByRequesterID(ctx context.Context, requesterID string, page Page) ([]*Collection, error)
	FindByCollectorID(ctx context.Context, collectorID string, page Page) ([]*Collection, error)
}

// MaterialInterestRepository is the persistence port for material interests
type MaterialInterestRepository interface {
	Create(ctx context.Context, m *MaterialInterest) error
	// FindByID returns nil, nil when the interest does not exist.
	FindByID(ctx context.Context, id string) (*MaterialInterest, error)
	// Update writes m only if the stored version equals expectedVersion,
	// returning ErrStaleInterest otherwise.
	Update(ctx context.Context, m *MaterialInterest, expectedVersion int64) error
	FindOpen(ctx context.Context, collectionID, recyclerID string) (*MaterialInterest, error)
	FindByCollectionID(ctx context.Context, collectionID string, page Page) ([]*MaterialInterest, error)
	FindByRecyclerID(ctx context.Context, recyclerID string, page Page) ([]*MaterialInterest, error)
}

// ImpactRepository is the persistence port for impact records
type ImpactRepository interface {
	// Save inserts or replaces the record for its collection.
	Save(ctx context.Context, r *ImpactRecord) error
	// FindByCollectionID returns nil, nil when no record exists yet.
	FindByCollectionID(ctx context.Context, collectionID string) (*ImpactRecord, error)
}
