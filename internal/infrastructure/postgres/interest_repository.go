package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/events"
)

var openInterestStatuses = []string{string(domain.InterestPending), string(domain.InterestAccepted)}

// InterestRepository implements domain.MaterialInterestRepository on gorm
type InterestRepository struct {
	db     *gorm.DB
	mapper *events.OutboxMapper
}

func NewInterestRepository(db *gorm.DB, mapper *events.OutboxMapper) *InterestRepository {
	if mapper == nil {
		mapper = events.NewOutboxMapper(nil)
	}
	return &InterestRepository{db: db, mapper: mapper}
}

func (r *InterestRepository) writeWithOutbox(ctx context.Context, m *domain.MaterialInterest, write func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := write(tx); err != nil {
			return err
		}
		records, err := r.mapper.ToOutbox(ctx, m.ID, m.GetDomainEvents())
		if err != nil {
			return err
		}
		return saveOutbox(tx, records)
	})
	if err != nil {
		return err
	}
	m.ClearDomainEvents()
	return nil
}

func (r *InterestRepository) Create(ctx context.Context, m *domain.MaterialInterest) error {
	return r.writeWithOutbox(ctx, m, func(tx *gorm.DB) error {
		err := tx.Create(toInterestModel(m)).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrInterestExists
		}
		if err != nil {
			return fmt.Errorf("failed to insert material interest: %w", err)
		}
		return nil
	})
}

func (r *InterestRepository) FindByID(ctx context.Context, id string) (*domain.MaterialInterest, error) {
	return r.takeOne(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *InterestRepository) FindOpen(ctx context.Context, collectionID, recyclerID string) (*domain.MaterialInterest, error) {
	return r.takeOne(r.db.WithContext(ctx).
		Where("collection_id = ? AND recycler_id = ? AND status IN ?", collectionID, recyclerID, openInterestStatuses))
}

func (r *InterestRepository) takeOne(q *gorm.DB) (*domain.MaterialInterest, error) {
	var row interestModel
	err := q.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// Update writes every column of m if the stored version equals expectedVersion
func (r *InterestRepository) Update(ctx context.Context, m *domain.MaterialInterest, expectedVersion int64) error {
	row := toInterestModel(m)
	row.Version = expectedVersion + 1

	err := r.writeWithOutbox(ctx, m, func(tx *gorm.DB) error {
		res := tx.Model(&interestModel{}).
			Where("id = ? AND version = ?", m.ID, expectedVersion).
			Select("*").
			Omit("id", "created_at").
			Updates(row)
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrInterestExists
		}
		if res.Error != nil {
			return fmt.Errorf("failed to update material interest: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrStaleInterest
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.Version = row.Version
	return nil
}

func (r *InterestRepository) FindByCollectionID(ctx context.Context, collectionID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.find(r.db.WithContext(ctx).Where("collection_id = ?", collectionID), page)
}

func (r *InterestRepository) FindByRecyclerID(ctx context.Context, recyclerID string, page domain.Page) ([]*domain.MaterialInterest, error) {
	return r.find(r.db.WithContext(ctx).Where("recycler_id = ?", recyclerID), page)
}

func (r *InterestRepository) find(q *gorm.DB, page domain.Page) ([]*domain.MaterialInterest, error) {
	q = q.Order("created_at DESC, id ASC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}
	var rows []interestModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.MaterialInterest, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

var _ domain.MaterialInterestRepository = (*InterestRepository)(nil)
