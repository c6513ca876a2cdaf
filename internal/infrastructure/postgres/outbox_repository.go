package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ecocycle/collection-service/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on gorm
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	return saveOutbox(r.db.WithContext(ctx), events)
}

// saveOutbox inserts events through tx so they commit with the aggregate
func saveOutbox(tx *gorm.DB, events []*outbox.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*outboxModel, len(events))
	for i, e := range events {
		rows[i] = toOutboxModel(e)
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func (r *OutboxRepository) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where(pendingClause).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unpublished events: %w", err)
	}
	events := make([]*outbox.OutboxEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].toOutbox()
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID string) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("id = ?", eventID).
		Update("published_at", time.Now().UTC()).Error
}

func (r *OutboxRepository) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  errorMsg,
		}).Error
}

const (
	pendingClause      = "published_at IS NULL AND retry_count < max_retries"
	deadLetteredClause = "published_at IS NULL AND retry_count >= max_retries"
)

func (r *OutboxRepository) Stats(ctx context.Context) (outbox.Stats, error) {
	var s outbox.Stats
	db := r.db.WithContext(ctx).Model(&outboxModel{})
	if err := db.Where(pendingClause).Count(&s.Pending).Error; err != nil {
		return s, fmt.Errorf("failed to count pending events: %w", err)
	}
	db = r.db.WithContext(ctx).Model(&outboxModel{})
	if err := db.Where(deadLetteredClause).Count(&s.DeadLettered).Error; err != nil {
		return s, fmt.Errorf("failed to count dead-lettered events: %w", err)
	}
	return s, nil
}

func (r *OutboxRepository) RequeueDeadLettered(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&outboxModel{}).
		Where(deadLetteredClause).
		Update("retry_count", 0)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to requeue dead-lettered events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OutboxRepository) DeletePublishedBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", t).
		Delete(&outboxModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete published events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ outbox.Repository = (*OutboxRepository)(nil)
