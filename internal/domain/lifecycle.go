package domain

import (
	"context"
	"errors"
	"fmt"
)

// LifecycleController validates and persists status changes. It never retries;
// a lost conditional write is reported to the caller.
type LifecycleController struct {
	repo  CollectionRepository
	clock Clock
}

// NewLifecycleController creates a lifecycle controller
func NewLifecycleController(repo CollectionRepository, clock Clock) *LifecycleController {
	if clock == nil {
		clock = UTCClock
	}
	return &LifecycleController{repo: repo, clock: clock}
}

// Apply loads the collection, applies the transition and writes it back
// conditioned on the state it was read in.
func (l *LifecycleController) Apply(ctx context.Context, collectionID string, to CollectionStatus, actor Actor, input TransitionInput) (*Collection, CollectionStatus, error) {
	c, err := l.load(ctx, collectionID)
	if err != nil {
		return nil, "", err
	}

	from := c.Status
	pre := PreconditionFor(c)
	if err := c.ApplyTransition(to, actor, input, l.clock()); err != nil {
		return nil, from, err
	}

	if err := l.repo.Update(ctx, c, pre); err != nil {
		if errors.Is(err, ErrStaleCollection) {
			return nil, from, l.classifyLostWrite(ctx, collectionID, to, actor, input, err)
		}
		return nil, from, fmt.Errorf("failed to update collection %s: %w", collectionID, err)
	}

	return c, from, nil
}

// UpdateDetails applies a descriptive patch. Only status and collector are
// guarded, so concurrent edits to the same descriptive field resolve to the
// last writer.
func (l *LifecycleController) UpdateDetails(ctx context.Context, collectionID string, actor Actor, patch DetailsPatch) (*Collection, []string, error) {
	c, err := l.load(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}

	pre := Precondition{Status: c.Status, CollectorID: c.CollectorID}
	changed, err := c.UpdateDetails(actor, patch, l.clock())
	if err != nil {
		return nil, nil, err
	}
	if len(changed) == 0 {
		return c, nil, nil
	}

	if err := l.repo.Update(ctx, c, pre); err != nil {
		if errors.Is(err, ErrStaleCollection) {
			return nil, nil, fmt.Errorf("collection %s changed status while editing: %w", collectionID, err)
		}
		return nil, nil, fmt.Errorf("failed to update collection %s: %w", collectionID, err)
	}
	return c, changed, nil
}

func (l *LifecycleController) load(ctx context.Context, collectionID string) (*Collection, error) {
	c, err := l.repo.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collectionID, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collectionID)
	}
	return c, nil
}

// classifyLostWrite re-validates the request against the record that won the
// race. If the transition is no longer legal that error is returned, otherwise
// the stale error stands. Nothing is written.
func (l *LifecycleController) classifyLostWrite(ctx context.Context, collectionID string, to CollectionStatus, actor Actor, input TransitionInput, stale error) error {
	current, err := l.load(ctx, collectionID)
	if err != nil {
		return err
	}
	if err := current.ApplyTransition(to, actor, input, l.clock()); err != nil {
		return err
	}
	return stale
}
