package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is a minimal CollectionRepository with compare-and-swap writes.
type fakeRepo struct {
	mu    sync.Mutex
	items map[string]Collection
	// beforeWrite runs inside Claim and Update before the condition is checked.
	beforeWrite func()
}

func newFakeRepo(cs ...*Collection) *fakeRepo {
	r := &fakeRepo{items: make(map[string]Collection)}
	for _, c := range cs {
		r.items[c.ID] = *c
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, c *Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = *c
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	c.DomainEvents = nil
	return &c, nil
}

func (r *fakeRepo) Update(_ context.Context, c *Collection, pre Precondition) error {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[c.ID]
	if !ok || stored.Status != pre.Status || stored.CollectorID != pre.CollectorID ||
		(pre.Version != 0 && stored.Version != pre.Version) {
		return ErrStaleCollection
	}
	c.Version = stored.Version + 1
	r.items[c.ID] = *c
	return nil
}

func (r *fakeRepo) Claim(_ context.Context, c *Collection) error {
	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[c.ID]
	if !ok || stored.CollectorID != "" || !stored.Status.IsUnassignedIntake() {
		return ErrClaimConflict
	}
	stored.CollectorID = c.CollectorID
	stored.Status = c.Status
	stored.ClaimedAt = c.ClaimedAt
	stored.Version++
	c.Version = stored.Version
	r.items[c.ID] = stored
	return nil
}

func (r *fakeRepo) ListUnassignedIntake(context.Context, Page) ([]*Collection, error) {
	return nil, nil
}

func (r *fakeRepo) FindByRequesterID(context.Context, string, Page) ([]*Collection, error) {
	return nil, nil
}

func (r *fakeRepo) FindByCollectorID(context.Context, string, Page) ([]*Collection, error) {
	return nil, nil
}

func fixedClock() time.Time { return testNow }

func TestClaimResolver_Scenario(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(newScheduled(t))
	resolver := NewClaimResolver(repo, fixedClock)

	claimed, err := resolver.Claim(ctx, "col-1", testCollector)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, claimed.Status)
	assert.Equal(t, testCollector.ID, claimed.CollectorID)

	_, err = resolver.Claim(ctx, "col-1", otherCollect)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	stored, _ := repo.FindByID(ctx, "col-1")
	assert.Equal(t, testCollector.ID, stored.CollectorID)
}

func TestClaimResolver_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		_, err := NewClaimResolver(newFakeRepo(), fixedClock).Claim(ctx, "missing", testCollector)
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	t.Run("invalid state", func(t *testing.T) {
		c := newScheduled(t)
		require.NoError(t, c.ApplyTransition(StatusCancelled, testRequester, TransitionInput{}, testNow))
		_, err := NewClaimResolver(newFakeRepo(c), fixedClock).Claim(ctx, c.ID, testCollector)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("non collector", func(t *testing.T) {
		_, err := NewClaimResolver(newFakeRepo(newScheduled(t)), fixedClock).Claim(ctx, "col-1", testRequester)
		assert.ErrorIs(t, err, ErrUnauthorizedActor)
	})

	t.Run("race lost between read and write", func(t *testing.T) {
		repo := newFakeRepo(newScheduled(t))
		repo.beforeWrite = func() {
			repo.beforeWrite = nil
			rival, _ := repo.FindByID(ctx, "col-1")
			require.NoError(t, rival.Claim(otherCollect, testNow))
			require.NoError(t, repo.Claim(ctx, rival))
		}

		_, err := NewClaimResolver(repo, fixedClock).Claim(ctx, "col-1", testCollector)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)

		stored, _ := repo.FindByID(ctx, "col-1")
		assert.Equal(t, otherCollect.ID, stored.CollectorID)
	})

	t.Run("cancelled between read and write", func(t *testing.T) {
		repo := newFakeRepo(newScheduled(t))
		repo.beforeWrite = func() {
			repo.beforeWrite = nil
			repo.mu.Lock()
			c := repo.items["col-1"]
			c.Status = StatusCancelled
			repo.items["col-1"] = c
			repo.mu.Unlock()
		}

		_, err := NewClaimResolver(repo, fixedClock).Claim(ctx, "col-1", testCollector)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestClaimResolver_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo(newScheduled(t))
	resolver := NewClaimResolver(repo, fixedClock)

	const racers = 16
	var wg sync.WaitGroup
	results := make([]error, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = resolver.Claim(ctx, "col-1", Actor{ID: "collector-" + string(rune('a'+i)), Role: RoleCollector})
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	winner := ""
	for i, err := range results {
		if err == nil {
			winners++
			winner = "collector-" + string(rune('a'+i))
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	}
	assert.Equal(t, 1, winners)

	stored, _ := repo.FindByID(ctx, "col-1")
	assert.Equal(t, winner, stored.CollectorID)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestLifecycleController(t *testing.T) {
	ctx := context.Background()

	t.Run("full scenario", func(t *testing.T) {
		repo := newFakeRepo(newScheduled(t))
		_, err := NewClaimResolver(repo, fixedClock).Claim(ctx, "col-1", testCollector)
		require.NoError(t, err)

		lc := NewLifecycleController(repo, fixedClock)
		c, from, err := lc.Apply(ctx, "col-1", StatusInProgress, testCollector, TransitionInput{})
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, from)
		assert.Equal(t, StatusInProgress, c.Status)

		_, _, err = lc.Apply(ctx, "col-1", StatusInProgress, testCollector, TransitionInput{})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		_, _, err = lc.Apply(ctx, "col-1", StatusCompleted, testCollector, TransitionInput{})
		assert.ErrorIs(t, err, ErrMissingRequiredField)

		c, _, err = lc.Apply(ctx, "col-1", StatusCompleted, testCollector, TransitionInput{WasteAmount: floatPtr(12.5)})
		require.NoError(t, err)
		assert.Equal(t, 12.5, *c.WasteAmount)
		assert.NotNil(t, c.CompletedDate)

		stored, _ := repo.FindByID(ctx, "col-1")
		assert.Equal(t, StatusCompleted, stored.Status)
		assert.NoError(t, stored.CheckInvariants())
	})

	t.Run("not found", func(t *testing.T) {
		_, _, err := NewLifecycleController(newFakeRepo(), fixedClock).Apply(ctx, "nope", StatusCancelled, testRequester, TransitionInput{})
		assert.ErrorIs(t, err, ErrCollectionNotFound)
	})

	t.Run("lost write reclassified against winner", func(t *testing.T) {
		repo := newFakeRepo(newClaimed(t))
		repo.beforeWrite = func() {
			repo.beforeWrite = nil
			repo.mu.Lock()
			c := repo.items["col-1"]
			c.Status = StatusCancelled
			c.Version++
			repo.items["col-1"] = c
			repo.mu.Unlock()
		}

		_, _, err := NewLifecycleController(repo, fixedClock).Apply(ctx, "col-1", StatusInProgress, testCollector, TransitionInput{})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("lost write still legal stays stale", func(t *testing.T) {
		repo := newFakeRepo(newClaimed(t))
		repo.beforeWrite = func() {
			repo.beforeWrite = nil
			repo.mu.Lock()
			c := repo.items["col-1"]
			c.Version++
			repo.items["col-1"] = c
			repo.mu.Unlock()
		}

		_, _, err := NewLifecycleController(repo, fixedClock).Apply(ctx, "col-1", StatusInProgress, testCollector, TransitionInput{})
		assert.ErrorIs(t, err, ErrStaleCollection)

		stored, _ := repo.FindByID(ctx, "col-1")
		assert.Equal(t, StatusConfirmed, stored.Status)
	})

	t.Run("details last writer wins", func(t *testing.T) {
		repo := newFakeRepo(newScheduled(t))
		lc := NewLifecycleController(repo, fixedClock)
		first, second := "first", "second"

		repo.beforeWrite = func() {
			repo.beforeWrite = nil
			_, _, err := lc.UpdateDetails(ctx, "col-1", testRequester, DetailsPatch{Notes: &first})
			require.NoError(t, err)
		}
		_, changed, err := lc.UpdateDetails(ctx, "col-1", testRequester, DetailsPatch{Notes: &second})
		require.NoError(t, err)
		assert.Equal(t, []string{"notes"}, changed)

		stored, _ := repo.FindByID(ctx, "col-1")
		assert.Equal(t, "second", stored.Notes)
	})
}
