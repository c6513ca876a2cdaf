package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/events"
)

// errConditionFailed aborts a transaction whose conditional write matched no row
var errConditionFailed = errors.New("condition failed")

// CollectionRepository implements domain.CollectionRepository on gorm
type CollectionRepository struct {
	db     *gorm.DB
	mapper *events.OutboxMapper
}

func NewCollectionRepository(db *gorm.DB, mapper *events.OutboxMapper) *CollectionRepository {
	if mapper == nil {
		mapper = events.NewOutboxMapper(nil)
	}
	return &CollectionRepository{db: db, mapper: mapper}
}

func intakeStatuses() []string {
	var out []string
	for _, s := range domain.UnassignedIntakeStatuses() {
		out = append(out, string(s))
	}
	return out
}

// writeWithOutbox runs write and inserts the pending events in one transaction
func (r *CollectionRepository) writeWithOutbox(ctx context.Context, c *domain.Collection, write func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := write(tx); err != nil {
			return err
		}
		records, err := r.mapper.ToOutbox(ctx, c.ID, c.GetDomainEvents())
		if err != nil {
			return err
		}
		return saveOutbox(tx, records)
	})
	if err != nil {
		return err
	}
	c.ClearDomainEvents()
	return nil
}

func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) error {
	return r.writeWithOutbox(ctx, c, func(tx *gorm.DB) error {
		if err := tx.Create(toCollectionModel(c)).Error; err != nil {
			return fmt.Errorf("failed to insert collection: %w", err)
		}
		return nil
	})
}

func (r *CollectionRepository) FindByID(ctx context.Context, id string) (*domain.Collection, error) {
	var m collectionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

// Update rewrites the mutable columns if the row still matches pre
func (r *CollectionRepository) Update(ctx context.Context, c *domain.Collection, pre domain.Precondition) error {
	columns := toCollectionModel(c).mutableColumns()
	columns["version"] = gorm.Expr("version + 1")

	var version int64
	err := r.writeWithOutbox(ctx, c, func(tx *gorm.DB) error {
		q := tx.Model(&collectionModel{}).
			Where("id = ? AND status = ? AND collector_id = ?", c.ID, string(pre.Status), pre.CollectorID)
		if pre.Version != 0 {
			q = q.Where("version = ?", pre.Version)
		}
		v, err := conditionalUpdate(tx, q, c.ID, columns)
		version = v
		return err
	})
	if errors.Is(err, errConditionFailed) {
		return domain.ErrStaleCollection
	}
	if err != nil {
		return err
	}
	c.Version = version
	return nil
}

// Claim assigns the collector only if the row is still unassigned intake
func (r *CollectionRepository) Claim(ctx context.Context, c *domain.Collection) error {
	columns := map[string]interface{}{
		"collector_id": c.CollectorID,
		"status":       string(c.Status),
		"claimed_at":   c.ClaimedAt,
		"updated_at":   c.UpdatedAt,
		"version":      gorm.Expr("version + 1"),
	}

	var version int64
	err := r.writeWithOutbox(ctx, c, func(tx *gorm.DB) error {
		q := tx.Model(&collectionModel{}).
			Where("id = ? AND collector_id = '' AND status IN ?", c.ID, intakeStatuses())
		v, err := conditionalUpdate(tx, q, c.ID, columns)
		version = v
		return err
	})
	if errors.Is(err, errConditionFailed) {
		return domain.ErrClaimConflict
	}
	if err != nil {
		return err
	}
	c.Version = version
	return nil
}

// conditionalUpdate applies columns through q and reads back the new version
func conditionalUpdate(tx *gorm.DB, q *gorm.DB, id string, columns map[string]interface{}) (int64, error) {
	res := q.Updates(columns)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update collection: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, errConditionFailed
	}
	var row collectionModel
	if err := tx.Select("version").Where("id = ?", id).Take(&row).Error; err != nil {
		return 0, err
	}
	return row.Version, nil
}

func (r *CollectionRepository) ListUnassignedIntake(ctx context.Context, page domain.Page) ([]*domain.Collection, error) {
	q := r.db.WithContext(ctx).
		Where("collector_id = '' AND status IN ?", intakeStatuses()).
		Order("scheduled_date ASC, created_at ASC, id ASC")
	return findCollections(q, page)
}

func (r *CollectionRepository) FindByRequesterID(ctx context.Context, requesterID string, page domain.Page) ([]*domain.Collection, error) {
	q := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC, id ASC")
	return findCollections(q, page)
}

func (r *CollectionRepository) FindByCollectorID(ctx context.Context, collectorID string, page domain.Page) ([]*domain.Collection, error) {
	q := r.db.WithContext(ctx).
		Where("collector_id = ?", collectorID).
		Order("scheduled_date ASC, id ASC")
	return findCollections(q, page)
}

func findCollections(q *gorm.DB, page domain.Page) ([]*domain.Collection, error) {
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	var rows []collectionModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Collection, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

var _ domain.CollectionRepository = (*CollectionRepository)(nil)
