package domain

// CanTransition is the single authorization rule for collection status
// changes, shared by the lifecycle controller and the claim resolver.
//
// isAssignedCollector is true when the actor is the collection's collector,
// or, for a claim, the collector about to become it.
func CanTransition(from, to CollectionStatus, role Role, isOwner, isAssignedCollector bool) bool {
	if !IsValidSuccessor(from, to) {
		return false
	}

	switch to {
	case StatusCancelled:
		return isOwner || role == RoleAdmin
	case StatusConfirmed, StatusInProgress, StatusCompleted:
		return role == RoleCollector && isAssignedCollector
	case StatusScheduled, StatusPending:
		// intake states are never a transition target
		return false
	}
	return false
}
