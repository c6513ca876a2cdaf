package application

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/memory"
	"github.com/ecocycle/collection-service/pkg/errors"
)

var (
	testNow      = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	householdA   = domain.Actor{ID: "household-a", Role: domain.RoleHousehold}
	collectorA   = domain.Actor{ID: "collector-a", Role: domain.RoleCollector}
	collectorB   = domain.Actor{ID: "collector-b", Role: domain.RoleCollector}
	recyclerA    = domain.Actor{ID: "recycler-a", Role: domain.RoleRecycler}
	sequentialID = func() func() string {
		var mu sync.Mutex
		n := 0
		return func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("id-%d", n)
		}
	}
)

// steppingClock advances one minute per reading so ordering of timestamps can
// be asserted.
func steppingClock() domain.Clock {
	var mu sync.Mutex
	t := testNow
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

type cacheKey struct {
	generation int64
	page       domain.Page
}

// recordingCache keys pages by generation the same way the Redis cache does
type recordingCache struct {
	mu          sync.Mutex
	generation  int64
	pages       map[cacheKey][]*domain.Collection
	invalidated int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{pages: make(map[cacheKey][]*domain.Collection)}
}

func (c *recordingCache) GetAvailable(_ context.Context, page domain.Page) ([]*domain.Collection, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.pages[cacheKey{c.generation, page}]
	return cs, c.generation, ok
}

func (c *recordingCache) SetAvailable(_ context.Context, gen int64, page domain.Page, cs []*domain.Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[cacheKey{gen, page}] = cs
}

func (c *recordingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.invalidated++
	return nil
}

// interleavingRepository runs afterList once, right after the first
// unassigned list read returns.
type interleavingRepository struct {
	domain.CollectionRepository
	once      sync.Once
	afterList func()
}

func (r *interleavingRepository) ListUnassignedIntake(ctx context.Context, page domain.Page) ([]*domain.Collection, error) {
	collections, err := r.CollectionRepository.ListUnassignedIntake(ctx, page)
	r.once.Do(r.afterList)
	return collections, err
}

type fixture struct {
	store     *memory.Store
	cache     *recordingCache
	service   *CollectionApplicationService
	interests *InterestApplicationService
	impact    *ImpactApplicationService
}

func newFixture() *fixture {
	store := memory.NewStore(nil)
	cache := newRecordingCache()
	clock := steppingClock()
	ids := sequentialID()
	return &fixture{
		store:     store,
		cache:     cache,
		service:   NewCollectionApplicationService(store.Collections(), cache, nil, nil, WithClock(clock), WithIDGenerator(ids)),
		interests: NewInterestApplicationService(store.Interests(), store.Collections(), nil, nil, WithClock(clock), WithIDGenerator(ids)),
		impact:    NewImpactApplicationService(store.Collections(), store.Impacts(), nil, nil, nil, WithClock(clock)),
	}
}

func (f *fixture) schedule(t *testing.T) *CollectionDTO {
	t.Helper()
	dto, err := f.service.ScheduleCollection(context.Background(), ScheduleCollectionCommand{
		Requester:     householdA,
		WasteType:     "plastic",
		Address:       "12 Harbour Rd",
		ScheduledDate: testNow.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return dto
}

func (f *fixture) transition(id, status string, actor domain.Actor, amount *float64) (*TransitionResultDTO, error) {
	return f.service.TransitionCollection(context.Background(), TransitionCollectionCommand{
		CollectionID: id,
		Status:       status,
		Actor:        actor,
		WasteAmount:  amount,
	})
}

func assertCode(t *testing.T, err error, code string, status int) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.HTTPStatus)
}

func amount(v float64) *float64 { return &v }

func TestScheduleCollection(t *testing.T) {
	f := newFixture()
	dto := f.schedule(t)

	assert.Equal(t, "scheduled", dto.Status)
	assert.Empty(t, dto.CollectorID)
	assert.Equal(t, householdA.ID, dto.RequesterID)
	assert.Equal(t, 1, f.cache.invalidated)

	_, err := f.service.ScheduleCollection(context.Background(), ScheduleCollectionCommand{
		Requester: collectorA, WasteType: "plastic", Address: "x", ScheduledDate: testNow,
	})
	assertCode(t, err, errors.CodeForbidden, http.StatusForbidden)

	_, err = f.service.ScheduleCollection(context.Background(), ScheduleCollectionCommand{
		Requester: householdA, WasteType: "uranium", Address: "x", ScheduledDate: testNow,
	})
	assertCode(t, err, errors.CodeValidationError, http.StatusBadRequest)
}

func TestClaimThenSecondCollectorLoses(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)

	claimed, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", claimed.Status)
	assert.Equal(t, collectorA.ID, claimed.CollectorID)

	_, err = f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorB})
	assertCode(t, err, errors.CodeAlreadyClaimed, http.StatusConflict)
	appErr, _ := errors.AsAppError(err)
	assert.True(t, appErr.Recoverable)

	got, err := f.service.GetCollection(context.Background(), GetCollectionQuery{CollectionID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, collectorA.ID, got.CollectorID)
}

func TestClaimErrors(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)

	_, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: "missing", Actor: collectorA})
	assertCode(t, err, errors.CodeNotFound, http.StatusNotFound)

	_, err = f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: recyclerA})
	assertCode(t, err, errors.CodeForbidden, http.StatusForbidden)

	_, err = f.transition(c.ID, "cancelled", householdA, nil)
	require.NoError(t, err)
	_, err = f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	assertCode(t, err, errors.CodeInvalidState, http.StatusConflict)

	_, err = f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: domain.Actor{Role: domain.RoleCollector}})
	assertCode(t, err, errors.CodeValidationError, http.StatusBadRequest)
}

func TestConcurrentClaimsThroughService(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, actor := range []domain.Actor{collectorA, collectorB} {
		wg.Add(1)
		go func(i int, actor domain.Actor) {
			defer wg.Done()
			_, results[i] = f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: actor})
		}(i, actor)
	}
	wg.Wait()

	var winner string
	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			winner = []string{collectorA.ID, collectorB.ID}[i]
			continue
		}
		assert.True(t, errors.HasCode(err, errors.CodeAlreadyClaimed))
	}
	require.Equal(t, 1, wins)

	got, err := f.service.GetCollection(context.Background(), GetCollectionQuery{CollectionID: c.ID})
	require.NoError(t, err)
	assert.Equal(t, winner, got.CollectorID)
}

func TestCollectorCompletesWithWasteAmount(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)
	_, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)

	started, err := f.transition(c.ID, "in_progress", collectorA, nil)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", started.FromStatus)

	done, err := f.transition(c.ID, "completed", collectorA, amount(12.5))
	require.NoError(t, err)

	final := done.Collection
	assert.Equal(t, "completed", final.Status)
	require.NotNil(t, final.WasteAmount)
	assert.Equal(t, 12.5, *final.WasteAmount)
	require.NotNil(t, final.CompletedDate)
	require.NotNil(t, final.StartedAt)
	assert.False(t, final.CompletedDate.Before(*final.StartedAt))

	_, err = f.transition(c.ID, "completed", collectorA, amount(12.5))
	assertCode(t, err, errors.CodeInvalidTransition, http.StatusConflict)
}

func TestCompleteWithoutWasteAmount(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)
	_, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)
	_, err = f.transition(c.ID, "in_progress", collectorA, nil)
	require.NoError(t, err)

	_, err = f.transition(c.ID, "completed", collectorA, nil)
	assertCode(t, err, errors.CodeMissingRequiredField, http.StatusUnprocessableEntity)
	appErr, _ := errors.AsAppError(err)
	assert.Equal(t, "wasteAmount", appErr.Details["field"])

	got, _ := f.service.GetCollection(context.Background(), GetCollectionQuery{CollectionID: c.ID})
	assert.Equal(t, "in_progress", got.Status)
	assert.Nil(t, got.CompletedDate)
}

func TestRequesterCancelsConfirmed(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)
	_, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)

	cancelled, err := f.service.TransitionCollection(context.Background(), TransitionCollectionCommand{
		CollectionID: c.ID, Status: "cancelled", Actor: householdA, Reason: "no longer needed",
	})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Collection.Status)
	assert.Equal(t, "no longer needed", cancelled.Collection.CancellationReason)

	_, err = f.transition(c.ID, "in_progress", collectorA, nil)
	assertCode(t, err, errors.CodeInvalidTransition, http.StatusConflict)
}

func TestTransitionRejections(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)

	_, err := f.transition(c.ID, "in_progress", householdA, nil)
	assertCode(t, err, errors.CodeInvalidTransition, http.StatusConflict)

	_, err = f.transition(c.ID, "confirmed", householdA, nil)
	assertCode(t, err, errors.CodeForbidden, http.StatusForbidden)

	_, err = f.transition(c.ID, "archived", householdA, nil)
	assertCode(t, err, errors.CodeValidationError, http.StatusBadRequest)

	_, err = f.transition("missing", "cancelled", householdA, nil)
	assertCode(t, err, errors.CodeNotFound, http.StatusNotFound)

	_, err = f.transition(c.ID, "cancelled", domain.Actor{ID: "stranger", Role: domain.RoleHousehold}, nil)
	assertCode(t, err, errors.CodeForbidden, http.StatusForbidden)
}

func TestListAvailableUsesAndInvalidatesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.schedule(t)
	f.schedule(t)

	query := ListCollectionsQuery{Limit: 20}
	first, err := f.service.ListAvailable(ctx, query)
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, _, cached := f.cache.GetAvailable(ctx, domain.Page{Limit: 20})
	assert.True(t, cached)

	_, err = f.service.ClaimCollection(ctx, ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)

	_, _, cached = f.cache.GetAvailable(ctx, domain.Page{Limit: 20})
	assert.False(t, cached, "claim must invalidate the available list")

	after, err := f.service.ListAvailable(ctx, query)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, c.ID, after[0].ID)
}

func TestListAvailableDoesNotCacheListReadBeforeClaim(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	claimed := f.schedule(t)
	f.schedule(t)

	repo := &interleavingRepository{
		CollectionRepository: f.store.Collections(),
		afterList: func() {
			_, err := f.service.ClaimCollection(ctx, ClaimCollectionCommand{CollectionID: claimed.ID, Actor: collectorA})
			require.NoError(t, err)
		},
	}
	reader := NewCollectionApplicationService(repo, f.cache, nil, nil)
	before := f.cache.invalidated

	query := ListCollectionsQuery{Limit: 20}
	racing, err := reader.ListAvailable(ctx, query)
	require.NoError(t, err)
	assert.Len(t, racing, 2, "the racing read saw the pre-claim list")
	assert.Equal(t, before+1, f.cache.invalidated)

	after, err := reader.ListAvailable(ctx, query)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, claimed.ID, after[0].ID)
}

func TestUpdateCollectionDetails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.schedule(t)

	addr := "7 New St"
	res, err := f.service.UpdateCollectionDetails(ctx, UpdateCollectionDetailsCommand{
		CollectionID: c.ID, Actor: householdA, Address: &addr,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"address"}, res.ChangedFields)
	assert.Equal(t, addr, res.Collection.Address)

	bad := "lava"
	_, err = f.service.UpdateCollectionDetails(ctx, UpdateCollectionDetailsCommand{
		CollectionID: c.ID, Actor: householdA, WasteType: &bad,
	})
	assertCode(t, err, errors.CodeValidationError, http.StatusBadRequest)

	_, err = f.service.ClaimCollection(ctx, ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)

	_, err = f.service.UpdateCollectionDetails(ctx, UpdateCollectionDetailsCommand{
		CollectionID: c.ID, Actor: householdA, Address: &addr,
	})
	assertCode(t, err, errors.CodeForbidden, http.StatusForbidden)

	notes := "gate code 1234"
	res, err = f.service.UpdateCollectionDetails(ctx, UpdateCollectionDetailsCommand{
		CollectionID: c.ID, Actor: collectorA, Notes: &notes, WasteAmount: amount(3),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notes", "wasteAmount"}, res.ChangedFields)
	assert.Equal(t, "confirmed", res.Collection.Status)
}

func TestListByOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.schedule(t)
	f.schedule(t)
	_, err := f.service.ClaimCollection(ctx, ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)

	mine, err := f.service.ListByRequester(ctx, ListCollectionsQuery{OwnerID: householdA.ID, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assigned, err := f.service.ListByCollector(ctx, ListCollectionsQuery{OwnerID: collectorA.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, c.ID, assigned[0].ID)
}

func TestOutboxReceivesLifecycleEvents(t *testing.T) {
	f := newFixture()
	c := f.schedule(t)
	_, err := f.service.ClaimCollection(context.Background(), ClaimCollectionCommand{CollectionID: c.ID, Actor: collectorA})
	require.NoError(t, err)
	_, err = f.transition(c.ID, "in_progress", collectorA, nil)
	require.NoError(t, err)

	types := make([]string, 0)
	for _, e := range f.store.Outbox().All() {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{
		"ecocycle.collection.scheduled",
		"ecocycle.collection.claimed",
		"ecocycle.collection.status-changed",
		"ecocycle.collection.status-changed",
	}, types)
}
