package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	want := map[CollectionStatus][]CollectionStatus{
		StatusScheduled:  {StatusConfirmed, StatusCancelled},
		StatusPending:    {StatusConfirmed, StatusCancelled},
		StatusConfirmed:  {StatusInProgress, StatusCancelled},
		StatusInProgress: {StatusCompleted, StatusCancelled},
		StatusCompleted:  nil,
		StatusCancelled:  nil,
	}

	for _, from := range AllStatuses {
		assert.ElementsMatch(t, want[from], from.Successors(), "successors of %s", from)
		for _, to := range AllStatuses {
			expected := false
			for _, s := range want[from] {
				if s == to {
					expected = true
				}
			}
			assert.Equal(t, expected, IsValidSuccessor(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name       string
		from, to   CollectionStatus
		role       Role
		isOwner    bool
		isAssigned bool
		want       bool
	}{
		{"owner cancels scheduled", StatusScheduled, StatusCancelled, RoleHousehold, true, false, true},
		{"owner cancels in progress", StatusInProgress, StatusCancelled, RoleOrganization, true, false, true},
		{"admin cancels", StatusConfirmed, StatusCancelled, RoleAdmin, false, false, true},
		{"stranger cannot cancel", StatusConfirmed, StatusCancelled, RoleHousehold, false, false, false},
		{"assigned collector cannot cancel", StatusConfirmed, StatusCancelled, RoleCollector, false, true, false},
		{"claiming collector confirms", StatusScheduled, StatusConfirmed, RoleCollector, false, true, true},
		{"claiming collector confirms pending", StatusPending, StatusConfirmed, RoleCollector, false, true, true},
		{"unassigned collector cannot confirm", StatusScheduled, StatusConfirmed, RoleCollector, false, false, false},
		{"assigned collector starts", StatusConfirmed, StatusInProgress, RoleCollector, false, true, true},
		{"assigned collector completes", StatusInProgress, StatusCompleted, RoleCollector, false, true, true},
		{"admin cannot complete", StatusInProgress, StatusCompleted, RoleAdmin, false, false, false},
		{"recycler cannot start", StatusConfirmed, StatusInProgress, RoleRecycler, false, true, false},
		{"owner cannot start", StatusConfirmed, StatusInProgress, RoleHousehold, true, false, false},
		{"not in table", StatusScheduled, StatusCompleted, RoleCollector, false, true, false},
		{"no exit from completed", StatusCompleted, StatusCancelled, RoleAdmin, true, true, false},
		{"no exit from cancelled", StatusCancelled, StatusScheduled, RoleAdmin, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to, tt.role, tt.isOwner, tt.isAssigned))
		})
	}
}

func TestParseCollectionStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseCollectionStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseCollectionStatus("IN_PROGRESS")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestUnassignedIntakeStatuses(t *testing.T) {
	assert.Equal(t, []CollectionStatus{StatusScheduled, StatusPending}, UnassignedIntakeStatuses())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
}

func TestActorValidate(t *testing.T) {
	assert.NoError(t, Actor{ID: "u1", Role: RoleRecycler}.Validate())
	assert.ErrorIs(t, Actor{Role: RoleRecycler}.Validate(), ErrInvalidActor)
	assert.ErrorIs(t, Actor{ID: "u1", Role: "driver"}.Validate(), ErrInvalidActor)
}
