package domain

import (
	"context"
	"errors"
	"fmt"
)

// ClaimResolver lets exactly one collector take an unassigned collection.
// Mutual exclusion comes from the repository's conditional claim write.
type ClaimResolver struct {
	repo  CollectionRepository
	clock Clock
}

// NewClaimResolver creates a claim resolver
func NewClaimResolver(repo CollectionRepository, clock Clock) *ClaimResolver {
	if clock == nil {
		clock = UTCClock
	}
	return &ClaimResolver{repo: repo, clock: clock}
}

// Claim assigns collector to the collection and confirms it
func (r *ClaimResolver) Claim(ctx context.Context, collectionID string, collector Actor) (*Collection, error) {
	if collector.Role != RoleCollector {
		return nil, fmt.Errorf("%w: role %s cannot claim collections", ErrUnauthorizedActor, collector.Role)
	}

	// Always start from the persisted record, never a caller's copy.
	c, err := r.repo.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collectionID, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}

	if err := c.Claim(collector, r.clock()); err != nil {
		return nil, err
	}

	if err := r.repo.Claim(ctx, c); err != nil {
		if errors.Is(err, ErrClaimConflict) {
			return nil, r.classifyLostClaim(ctx, collectionID, collector)
		}
		return nil, fmt.Errorf("failed to claim collection %s: %w", collectionID, err)
	}

	return c, nil
}

// classifyLostClaim re-reads a collection whose conditional claim did not
// match and reports why.
func (r *ClaimResolver) classifyLostClaim(ctx context.Context, collectionID string, collector Actor) error {
	current, err := r.repo.FindByID(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("failed to reload collection %s: %w", collectionID, err)
	}
	if current == nil {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	if current.CollectorID != "" {
		return current.transitionError(StatusConfirmed, collector, ErrAlreadyClaimed, "")
	}
	if !current.Status.IsUnassignedIntake() {
		return current.transitionError(StatusConfirmed, collector, ErrInvalidState, "")
	}
	return fmt.Errorf("%w: collection %s", ErrStaleCollection, collectionID)
}
