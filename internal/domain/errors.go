package domain

import (
	"errors"
	"fmt"
)

// Collection workflow errors
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnauthorizedActor    = errors.New("actor is not allowed to perform this operation")
	ErrMissingRequiredField = errors.New("required field missing")
	ErrAlreadyClaimed       = errors.New("collection already claimed")
	ErrCollectionNotFound   = errors.New("collection not found")
	ErrInvalidState         = errors.New("collection is not in a claimable state")
	ErrStaleCollection      = errors.New("collection was modified concurrently")
	ErrClaimConflict        = errors.New("conditional claim did not match")
	ErrUnknownStatus        = errors.New("unknown collection status")
	ErrInvalidActor         = errors.New("invalid actor")
	ErrInvalidCollection    = errors.New("invalid collection")
)

// Material interest errors
var (
	ErrInterestNotFound          = errors.New("material interest not found")
	ErrInvalidInterestTransition = errors.New("invalid material interest transition")
	ErrInterestExists            = errors.New("recycler already has an open interest in this collection")
	ErrCollectionNotAvailable    = errors.New("collection materials are not available for interest")
	ErrStaleInterest             = errors.New("material interest was modified concurrently")
)

// ErrImpactNotFound is returned when no impact record exists yet.
var ErrImpactNotFound = errors.New("impact record not found")

// TransitionError describes a rejected status change. It unwraps to one of
// the sentinel errors above.
type TransitionError struct {
	CollectionID string
	From         CollectionStatus
	To           CollectionStatus
	ActorID      string
	Field        string
	Err          error
}

func (e *TransitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("collection %s: %s -> %s: %v: %s", e.CollectionID, e.From, e.To, e.Err, e.Field)
	}
	return fmt.Sprintf("collection %s: %s -> %s: %v", e.CollectionID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
