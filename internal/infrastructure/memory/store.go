// Package memory provides in-process repositories for local development and
// tests. Conditional writes are serialised by a mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/events"
	"github.com/ecocycle/collection-service/pkg/outbox"
)

// Store holds every aggregate kind behind one lock so an aggregate write and
// its outbox records become visible together.
type Store struct {
	mu          sync.Mutex
	collections map[string]domain.Collection
	interests   map[string]domain.MaterialInterest
	impacts     map[string]domain.ImpactRecord

	outbox *outbox.MemoryRepository
	mapper *events.OutboxMapper
}

// NewStore creates an empty store. A nil mapper uses the default event source.
func NewStore(mapper *events.OutboxMapper) *Store {
	if mapper == nil {
		mapper = events.NewOutboxMapper(nil)
	}
	return &Store{
		collections: make(map[string]domain.Collection),
		interests:   make(map[string]domain.MaterialInterest),
		impacts:     make(map[string]domain.ImpactRecord),
		outbox:      outbox.NewMemoryRepository(),
		mapper:      mapper,
	}
}

// Outbox exposes the store's outbox for the relay
func (s *Store) Outbox() *outbox.MemoryRepository {
	return s.outbox
}

// Collections returns the collection repository view
func (s *Store) Collections() *CollectionRepository {
	return &CollectionRepository{store: s}
}

// Interests returns the material interest repository view
func (s *Store) Interests() *InterestRepository {
	return &InterestRepository{store: s}
}

// Impacts returns the impact repository view
func (s *Store) Impacts() *ImpactRepository {
	return &ImpactRepository{store: s}
}

// flush moves the aggregate's pending events into the outbox. Caller holds mu.
func (s *Store) flush(ctx context.Context, aggregateID string, pending []domain.DomainEvent) error {
	if len(pending) == 0 {
		return nil
	}
	records, err := s.mapper.ToOutbox(ctx, aggregateID, pending)
	if err != nil {
		return err
	}
	return s.outbox.SaveAll(ctx, records)
}

func paginate[T any](items []T, page domain.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

// CollectionRepository implements domain.CollectionRepository
type CollectionRepository struct {
	store *Store
}

func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[c.ID]; exists {
		return fmt.Errorf("collection %s already exists", c.ID)
	}
	if err := s.flush(ctx, c.ID, c.GetDomainEvents()); err != nil {
		return err
	}
	stored := *c
	stored.DomainEvents = nil
	s.collections[c.ID] = stored
	c.ClearDomainEvents()
	return nil
}

func (r *CollectionRepository) FindByID(_ context.Context, id string) (*domain.Collection, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *CollectionRepository) Update(ctx context.Context, c *domain.Collection, pre domain.Precondition) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.collections[c.ID]
	if !ok || stored.Status != pre.Status || stored.CollectorID != pre.CollectorID ||
		(pre.Version != 0 && stored.Version != pre.Version) {
		return domain.ErrStaleCollection
	}
	if err := s.flush(ctx, c.ID, c.GetDomainEvents()); err != nil {
		return err
	}

	c.Version = stored.Version + 1
	next := *c
	next.DomainEvents = nil
	s.collections[c.ID] = next
	c.ClearDomainEvents()
	return nil
}

func (r *CollectionRepository) Claim(ctx context.Context, c *domain.Collection) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.collections[c.ID]
	if !ok || stored.CollectorID != "" || !stored.Status.IsUnassignedIntake() {
		return domain.ErrClaimConflict
	}
	if err := s.flush(ctx, c.ID, c.GetDomainEvents()); err != nil {
		return err
	}

	// Only the claim fields are taken from c.
	stored.CollectorID = c.CollectorID
	stored.Status = c.Status
	stored.ClaimedAt = c.ClaimedAt
	stored.UpdatedAt = c.UpdatedAt
	stored.Version++
	s.collections[c.ID] = stored

	c.Version = stored.Version
	c.ClearDomainEvents()
	return nil
}

func (r *CollectionRepository) ListUnassignedIntake(_ context.Context, page domain.Page) ([]*domain.Collection, error) {
	return r.list(page, func(c *domain.Collection) bool {
		return c.CollectorID == "" && c.Status.IsUnassignedIntake()
	}, func(a, b *domain.Collection) bool {
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.Before(b.ScheduledDate)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}), nil
}

func (r *CollectionRepository) FindByRequesterID(_ context.Context, requesterID string, page domain.Page) ([]*domain.Collection, error) {
	return r.list(page, func(c *domain.Collection) bool {
		return c.RequesterID == requesterID
	}, newestFirst), nil
}

func (r *CollectionRepository) FindByCollectorID(_ context.Context, collectorID string, page domain.Page) ([]*domain.Collection, error) {
	return r.list(page, func(c *domain.Collection) bool {
		return c.CollectorID == collectorID
	}, func(a, b *domain.Collection) bool {
		return a.ScheduledDate.Before(b.ScheduledDate)
	}), nil
}

func newestFirst(a, b *domain.Collection) bool {
	return a.CreatedAt.After(b.CreatedAt)
}

func (r *CollectionRepository) list(page domain.Page, match func(*domain.Collection) bool, less func(a, b *domain.Collection) bool) []*domain.Collection {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Collection, 0)
	for _, c := range s.collections {
		c := c
		if match(&c) {
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page)
}

// InterestRepository implements domain.MaterialInterestRepository
type InterestRepository struct {
	store *Store
}

func (r *InterestRepository) Create(ctx context.Context, m *domain.MaterialInterest) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.interests {
		if existing.CollectionID == m.CollectionID && existing.RecyclerID == m.RecyclerID && existing.Status.IsOpen() {
			return domain.ErrInterestExists
		}
	}
	if err := s.flush(ctx, m.ID, m.GetDomainEvents()); err != nil {
		return err
	}
	stored := *m
	stored.DomainEvents = nil
	s.interests[m.ID] = stored
	m.ClearDomainEvents()
	return nil
}

func (r *InterestRepository) FindByID(_ context.Context, id string) (*domain.MaterialInterest, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.interests[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *InterestRepository) Update(ctx context.Context, m *domain.MaterialInterest, expectedVersion int64) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.interests[m.ID]
	if !ok || stored.Version != expectedVersion {
		return domain.ErrStaleInterest
	}
	if err := s.flush(ctx, m.ID, m.GetDomainEvents()); err != nil {
		return err
	}
	m.Version = expectedVersion + 1
	next := *m
	next.DomainEvents = nil
	s.interests[m.ID] = next
	m.ClearDomainEvents()
	return nil
}

func (r *InterestRepository) FindOpen(_ context.Context, collectionID, recyclerID string) (*domain.MaterialInterest, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.interests {
		if m.CollectionID == collectionID && m.RecyclerID == recyclerID && m.Status.IsOpen() {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (r *InterestRepository) FindByCollectionID(_ context.Context, collectionID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.list(page, func(m *domain.MaterialInterest) bool { return m.CollectionID == collectionID }), nil
}

func (r *InterestRepository) FindByRecyclerID(_ context.Context, recyclerID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.list(page, func(m *domain.MaterialInterest) bool { return m.RecyclerID == recyclerID }), nil
}

func (r *InterestRepository) list(page domain.Page, match func(*domain.MaterialInterest) bool) []*domain.MaterialInterest {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.MaterialInterest, 0)
	for _, m := range s.interests {
		m := m
		if match(&m) {
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, page)
}

// ImpactRepository implements domain.ImpactRepository
type ImpactRepository struct {
	store *Store
}

func (r *ImpactRepository) Save(_ context.Context, rec *domain.ImpactRecord) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.impacts[rec.CollectionID] = *rec
	return nil
}

func (r *ImpactRepository) FindByCollectionID(_ context.Context, collectionID string) (*domain.ImpactRecord, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.impacts[collectionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

var (
	_ domain.CollectionRepository       = (*CollectionRepository)(nil)
	_ domain.MaterialInterestRepository = (*InterestRepository)(nil)
	_ domain.ImpactRepository           = (*ImpactRepository)(nil)
)
