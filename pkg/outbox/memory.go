package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps outbox events in process. It backs the memory store
// and tests.
type MemoryRepository struct {
	mu     sync.Mutex
	events map[string]*OutboxEvent
}

// NewMemoryRepository creates an empty in-process outbox
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string]*OutboxEvent)}
}

func (r *MemoryRepository) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		cp := *e
		r.events[e.ID] = &cp
	}
	return nil
}

func (r *MemoryRepository) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*OutboxEvent
	for _, e := range r.events {
		if e.ShouldRetry() {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkPublished(ctx context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("event not found: %s", eventID)
	}
	now := time.Now().UTC()
	e.PublishedAt = &now
	return nil
}

func (r *MemoryRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok {
		return fmt.Errorf("event not found: %s", eventID)
	}
	e.RetryCount++
	e.LastError = errorMsg
	return nil
}

func (r *MemoryRepository) Stats(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Stats
	for _, e := range r.events {
		switch {
		case e.ShouldRetry():
			s.Pending++
		case e.IsDeadLettered():
			s.DeadLettered++
		}
	}
	return s, nil
}

func (r *MemoryRepository) RequeueDeadLettered(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.IsDeadLettered() {
			e.RetryCount = 0
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeletePublishedBefore(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.events {
		if e.PublishedAt != nil && e.PublishedAt.Before(t) {
			delete(r.events, id)
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of every stored event in emission order.
func (r *MemoryRepository) All() []*OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*OutboxEvent, 0, len(r.events))
	for _, e := range r.events {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
