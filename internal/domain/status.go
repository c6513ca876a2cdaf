package domain

import "fmt"

// CollectionStatus is the closed set of lifecycle states of a collection.
type CollectionStatus string

const (
	StatusScheduled  CollectionStatus = "scheduled"
	StatusPending    CollectionStatus = "pending"
	StatusConfirmed  CollectionStatus = "confirmed"
	StatusInProgress CollectionStatus = "in_progress"
	StatusCompleted  CollectionStatus = "completed"
	StatusCancelled  CollectionStatus = "cancelled"
)

// AllStatuses lists every CollectionStatus in lifecycle order.
var AllStatuses = []CollectionStatus{
	StatusScheduled,
	StatusPending,
	StatusConfirmed,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
}

// ParseCollectionStatus validates a wire value.
func ParseCollectionStatus(s string) (CollectionStatus, error) {
	status := CollectionStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

func (s CollectionStatus) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s CollectionStatus) IsValid() bool {
	switch s {
	case StatusScheduled, StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s CollectionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	case StatusScheduled, StatusPending, StatusConfirmed, StatusInProgress:
		return false
	}
	return false
}

// IsUnassignedIntake reports whether s is a state a collector may claim from.
// scheduled and pending are treated as equivalent here.
func (s CollectionStatus) IsUnassignedIntake() bool {
	switch s {
	case StatusScheduled, StatusPending:
		return true
	case StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// Successors returns the statuses reachable from s in one step.
func (s CollectionStatus) Successors() []CollectionStatus {
	switch s {
	case StatusScheduled, StatusPending:
		return []CollectionStatus{StatusConfirmed, StatusCancelled}
	case StatusConfirmed:
		return []CollectionStatus{StatusInProgress, StatusCancelled}
	case StatusInProgress:
		return []CollectionStatus{StatusCompleted, StatusCancelled}
	case StatusCompleted, StatusCancelled:
		return nil
	}
	return nil
}

// IsValidSuccessor reports whether the transition table contains from -> to.
func IsValidSuccessor(from, to CollectionStatus) bool {
	for _, next := range from.Successors() {
		if next == to {
			return true
		}
	}
	return false
}

// UnassignedIntakeStatuses returns the statuses a claim may start from.
func UnassignedIntakeStatuses() []CollectionStatus {
	var out []CollectionStatus
	for _, s := range AllStatuses {
		if s.IsUnassignedIntake() {
			out = append(out, s)
		}
	}
	return out
}
