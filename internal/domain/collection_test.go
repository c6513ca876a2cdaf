package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow       = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testRequester = Actor{ID: "household-1", Role: RoleHousehold}
	testCollector = Actor{ID: "collector-a", Role: RoleCollector}
	otherCollect  = Actor{ID: "collector-b", Role: RoleCollector}
	testAdmin     = Actor{ID: "admin-1", Role: RoleAdmin}
	testRecycler  = Actor{ID: "recycler-1", Role: RoleRecycler}
)

func floatPtr(v float64) *float64 { return &v }

func newScheduled(t *testing.T) *Collection {
	t.Helper()
	c, err := NewCollection("col-1", testRequester, WasteTypePlastic, nil, "12 Green Street", testNow.Add(48*time.Hour), "", testNow)
	require.NoError(t, err)
	return c
}

func newClaimed(t *testing.T) *Collection {
	t.Helper()
	c := newScheduled(t)
	require.NoError(t, c.Claim(testCollector, testNow))
	return c
}

func newInProgress(t *testing.T) *Collection {
	t.Helper()
	c := newClaimed(t)
	require.NoError(t, c.ApplyTransition(StatusInProgress, testCollector, TransitionInput{}, testNow))
	return c
}

func TestNewCollection(t *testing.T) {
	tests := []struct {
		name      string
		requester Actor
		wasteType WasteType
		address   string
		amount    *float64
		wantErr   error
	}{
		{name: "household schedules", requester: testRequester, wasteType: WasteTypePaper, address: "1 Main"},
		{name: "organization schedules", requester: Actor{ID: "org-1", Role: RoleOrganization}, wasteType: WasteTypeGlass, address: "1 Main", amount: floatPtr(3)},
		{name: "collector cannot schedule", requester: testCollector, wasteType: WasteTypePaper, address: "1 Main", wantErr: ErrUnauthorizedActor},
		{name: "unknown waste type", requester: testRequester, wasteType: "uranium", address: "1 Main", wantErr: ErrInvalidCollection},
		{name: "blank address", requester: testRequester, wasteType: WasteTypePaper, address: "  ", wantErr: ErrInvalidCollection},
		{name: "negative amount", requester: testRequester, wasteType: WasteTypePaper, address: "1 Main", amount: floatPtr(-1), wantErr: ErrInvalidCollection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCollection("col-x", tt.requester, tt.wasteType, tt.amount, tt.address, testNow, "", testNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, c)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, StatusScheduled, c.Status)
			assert.Empty(t, c.CollectorID)
			assert.Nil(t, c.CompletedDate)
			assert.Equal(t, int64(1), c.Version)
			require.Len(t, c.GetDomainEvents(), 1)
			assert.IsType(t, &CollectionScheduledEvent{}, c.GetDomainEvents()[0])
			assert.NoError(t, c.CheckInvariants())
		})
	}
}

func TestApplyTransition(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) *Collection
		to      CollectionStatus
		actor   Actor
		input   TransitionInput
		wantErr error
	}{
		{name: "collector starts confirmed pickup", setup: newClaimed, to: StatusInProgress, actor: testCollector},
		{name: "collector completes with amount", setup: newInProgress, to: StatusCompleted, actor: testCollector, input: TransitionInput{WasteAmount: floatPtr(12.5)}},
		{name: "requester cancels scheduled", setup: newScheduled, to: StatusCancelled, actor: testRequester},
		{name: "requester cancels confirmed", setup: newClaimed, to: StatusCancelled, actor: testRequester},
		{name: "requester cancels in progress", setup: newInProgress, to: StatusCancelled, actor: testRequester},
		{name: "admin cancels", setup: newInProgress, to: StatusCancelled, actor: testAdmin},
		{name: "skip from scheduled to in_progress", setup: newScheduled, to: StatusInProgress, actor: testCollector, wantErr: ErrInvalidTransition},
		{name: "backward from in_progress to confirmed", setup: newInProgress, to: StatusConfirmed, actor: testCollector, wantErr: ErrInvalidTransition},
		{name: "unknown status", setup: newClaimed, to: "archived", actor: testCollector, wantErr: ErrInvalidTransition},
		{name: "other collector cannot start", setup: newClaimed, to: StatusInProgress, actor: otherCollect, wantErr: ErrUnauthorizedActor},
		{name: "requester cannot start", setup: newClaimed, to: StatusInProgress, actor: testRequester, wantErr: ErrUnauthorizedActor},
		{name: "assigned collector cannot cancel", setup: newClaimed, to: StatusCancelled, actor: testCollector, wantErr: ErrUnauthorizedActor},
		{name: "confirm without claim", setup: newScheduled, to: StatusConfirmed, actor: testCollector, wantErr: ErrUnauthorizedActor},
		{name: "complete without amount", setup: newInProgress, to: StatusCompleted, actor: testCollector, wantErr: ErrMissingRequiredField},
		{name: "table checked before policy", setup: newScheduled, to: StatusCompleted, actor: testRecycler, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.setup(t)
			c.ClearDomainEvents()
			before := *c

			err := c.ApplyTransition(tt.to, tt.actor, tt.input, testNow.Add(time.Hour))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				var te *TransitionError
				assert.True(t, errors.As(err, &te))
				assert.Equal(t, before.Status, c.Status, "rejected transition must not mutate")
				assert.Equal(t, before.CompletedDate, c.CompletedDate)
				assert.Empty(t, c.GetDomainEvents())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, c.Status)
			require.Len(t, c.GetDomainEvents(), 1)
			ev, ok := c.GetDomainEvents()[0].(*CollectionStatusChangedEvent)
			require.True(t, ok)
			assert.Equal(t, before.Status, ev.From)
			assert.Equal(t, tt.to, ev.To)
			assert.Equal(t, tt.actor.ID, ev.ActorID)
			assert.NoError(t, c.CheckInvariants())
		})
	}
}

func TestApplyTransition_CompletedSetsDateAndAmount(t *testing.T) {
	c := newClaimed(t)
	startedAt := testNow.Add(time.Hour)
	require.NoError(t, c.ApplyTransition(StatusInProgress, testCollector, TransitionInput{}, startedAt))

	completedAt := startedAt.Add(30 * time.Minute)
	require.NoError(t, c.ApplyTransition(StatusCompleted, testCollector, TransitionInput{WasteAmount: floatPtr(12.5)}, completedAt))

	assert.Equal(t, StatusCompleted, c.Status)
	require.NotNil(t, c.WasteAmount)
	assert.Equal(t, 12.5, *c.WasteAmount)
	require.NotNil(t, c.CompletedDate)
	assert.False(t, c.CompletedDate.Before(*c.StartedAt))
	assert.Equal(t, testCollector.ID, c.CollectorID)
}

func TestApplyTransition_CompleteUsesStoredAmount(t *testing.T) {
	c := newInProgress(t)
	c.WasteAmount = floatPtr(4)

	require.NoError(t, c.ApplyTransition(StatusCompleted, testCollector, TransitionInput{}, testNow))
	assert.Equal(t, 4.0, *c.WasteAmount)
	assert.NotNil(t, c.CompletedDate)
}

func TestApplyTransition_SecondIdenticalCallFails(t *testing.T) {
	c := newClaimed(t)
	require.NoError(t, c.ApplyTransition(StatusInProgress, testCollector, TransitionInput{}, testNow))

	err := c.ApplyTransition(StatusInProgress, testCollector, TransitionInput{}, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplyTransition_CancelledThenCollectorFails(t *testing.T) {
	c := newClaimed(t)
	require.NoError(t, c.ApplyTransition(StatusCancelled, testRequester, TransitionInput{Reason: "moved"}, testNow))
	assert.Equal(t, "moved", c.CancellationReason)

	err := c.ApplyTransition(StatusInProgress, testCollector, TransitionInput{}, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	terminal := map[string]func(t *testing.T) *Collection{
		"completed": func(t *testing.T) *Collection {
			c := newInProgress(t)
			require.NoError(t, c.ApplyTransition(StatusCompleted, testCollector, TransitionInput{WasteAmount: floatPtr(1)}, testNow))
			return c
		},
		"cancelled": func(t *testing.T) *Collection {
			c := newScheduled(t)
			require.NoError(t, c.ApplyTransition(StatusCancelled, testRequester, TransitionInput{}, testNow))
			return c
		},
	}

	for name, setup := range terminal {
		for _, to := range AllStatuses {
			for _, actor := range []Actor{testRequester, testCollector, testAdmin} {
				t.Run(name+"->"+string(to)+"/"+string(actor.Role), func(t *testing.T) {
					c := setup(t)
					err := c.ApplyTransition(to, actor, TransitionInput{WasteAmount: floatPtr(1)}, testNow)
					assert.ErrorIs(t, err, ErrInvalidTransition)
				})
			}
		}
	}
}

func TestClaim(t *testing.T) {
	t.Run("claim confirms and assigns", func(t *testing.T) {
		c := newScheduled(t)
		c.ClearDomainEvents()

		require.NoError(t, c.Claim(testCollector, testNow))
		assert.Equal(t, StatusConfirmed, c.Status)
		assert.Equal(t, testCollector.ID, c.CollectorID)
		assert.NotNil(t, c.ClaimedAt)
		require.Len(t, c.GetDomainEvents(), 2)
		assert.IsType(t, &CollectionClaimedEvent{}, c.GetDomainEvents()[0])
		assert.IsType(t, &CollectionStatusChangedEvent{}, c.GetDomainEvents()[1])
	})

	t.Run("pending behaves like scheduled", func(t *testing.T) {
		c := newScheduled(t)
		c.Status = StatusPending

		require.NoError(t, c.Claim(testCollector, testNow))
		assert.Equal(t, StatusConfirmed, c.Status)
	})

	t.Run("second collector gets already claimed", func(t *testing.T) {
		c := newClaimed(t)
		err := c.Claim(otherCollect, testNow)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
		assert.Equal(t, testCollector.ID, c.CollectorID)
	})

	t.Run("cancelled collection is invalid state", func(t *testing.T) {
		c := newScheduled(t)
		require.NoError(t, c.ApplyTransition(StatusCancelled, testRequester, TransitionInput{}, testNow))
		assert.ErrorIs(t, c.Claim(testCollector, testNow), ErrInvalidState)
	})

	t.Run("recycler cannot claim", func(t *testing.T) {
		c := newScheduled(t)
		assert.ErrorIs(t, c.Claim(testRecycler, testNow), ErrUnauthorizedActor)
		assert.Empty(t, c.CollectorID)
	})
}

func TestUpdateDetails(t *testing.T) {
	newAddress := "99 Elm Road"
	notes := "gate code 1234"
	glass := WasteTypeGlass

	t.Run("requester edits unassigned collection", func(t *testing.T) {
		c := newScheduled(t)
		changed, err := c.UpdateDetails(testRequester, DetailsPatch{Address: &newAddress, WasteType: &glass}, testNow)
		require.NoError(t, err)
		assert.Equal(t, []string{"address", "wasteType"}, changed)
		assert.Equal(t, newAddress, c.Address)
		assert.Equal(t, WasteTypeGlass, c.WasteType)
	})

	t.Run("requester cannot edit after claim", func(t *testing.T) {
		c := newClaimed(t)
		_, err := c.UpdateDetails(testRequester, DetailsPatch{Notes: &notes}, testNow)
		assert.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("collector edits notes and amount", func(t *testing.T) {
		c := newInProgress(t)
		changed, err := c.UpdateDetails(testCollector, DetailsPatch{Notes: &notes, WasteAmount: floatPtr(7)}, testNow)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"notes", "wasteAmount"}, changed)
		assert.Equal(t, 7.0, *c.WasteAmount)
	})

	t.Run("collector cannot move address", func(t *testing.T) {
		c := newClaimed(t)
		_, err := c.UpdateDetails(testCollector, DetailsPatch{Address: &newAddress}, testNow)
		assert.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("terminal collection rejects edits", func(t *testing.T) {
		c := newScheduled(t)
		require.NoError(t, c.ApplyTransition(StatusCancelled, testRequester, TransitionInput{}, testNow))
		_, err := c.UpdateDetails(testRequester, DetailsPatch{Notes: &notes}, testNow)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		c := newScheduled(t)
		c.ClearDomainEvents()
		changed, err := c.UpdateDetails(testRequester, DetailsPatch{}, testNow)
		require.NoError(t, err)
		assert.Empty(t, changed)
		assert.Empty(t, c.GetDomainEvents())
	})
}
