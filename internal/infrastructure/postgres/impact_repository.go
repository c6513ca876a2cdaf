package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ecocycle/collection-service/internal/domain"
)

// ImpactRepository implements domain.ImpactRepository on gorm
type ImpactRepository struct {
	db *gorm.DB
}

func NewImpactRepository(db *gorm.DB) *ImpactRepository {
	return &ImpactRepository{db: db}
}

// Save upserts on collection_id
func (r *ImpactRepository) Save(ctx context.Context, rec *domain.ImpactRecord) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_id"}},
			UpdateAll: true,
		}).
		Create(toImpactModel(rec)).Error
	if err != nil {
		return fmt.Errorf("failed to save impact record: %w", err)
	}
	return nil
}

func (r *ImpactRepository) FindByCollectionID(ctx context.Context, collectionID string) (*domain.ImpactRecord, error) {
	var row impactModel
	err := r.db.WithContext(ctx).Where("collection_id = ?", collectionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

var _ domain.ImpactRepository = (*ImpactRepository)(nil)
