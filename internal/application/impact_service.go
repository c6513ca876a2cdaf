package application

import (
	"context"
	"fmt"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

// ImpactApplicationService computes and serves impact records
type ImpactApplicationService struct {
	collections domain.CollectionRepository
	impacts     domain.ImpactRepository
	factors     domain.ImpactFactorTable
	logger      *logging.Logger
	metrics     *metrics.Metrics
	clock       domain.Clock
}

// NewImpactApplicationService creates a new ImpactApplicationService. A nil
// factor table uses the built-in defaults.
func NewImpactApplicationService(
	collections domain.CollectionRepository,
	impacts domain.ImpactRepository,
	factors domain.ImpactFactorTable,
	logger *logging.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *ImpactApplicationService {
	o := buildOptions(opts)
	if factors == nil {
		factors = domain.DefaultImpactFactors()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ImpactApplicationService{
		collections: collections,
		impacts:     impacts,
		factors:     factors,
		logger:      logger,
		metrics:     m,
		clock:       o.clock,
	}
}

// CalculateImpact computes the record for a completed collection and stores it.
// Repeating the calculation overwrites the previous record.
func (s *ImpactApplicationService) CalculateImpact(ctx context.Context, cmd CalculateImpactCommand) (*ImpactDTO, error) {
	collection, err := s.collections.FindByID(ctx, cmd.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil {
		return nil, errors.ErrNotFoundWithID("collection", cmd.CollectionID)
	}

	record, err := domain.CalculateImpact(collection, s.factors, s.clock())
	if err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	if err := s.impacts.Save(ctx, record); err != nil {
		s.logger.WithError(err).Error("Failed to save impact record", "collectionId", cmd.CollectionID)
		return nil, fmt.Errorf("failed to save impact record: %w", err)
	}

	s.metrics.RecordImpactCalculated(string(record.WasteType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "impact.calculated",
		EntityType: "impactRecord",
		EntityID:   record.CollectionID,
		Action:     "calculated",
		RelatedIDs: map[string]string{
			"requesterId": record.RequesterID,
			"collectorId": record.CollectorID,
		},
		Data: map[string]interface{}{
			"co2AvoidedKg": record.CO2AvoidedKg,
			"points":       record.Points,
		},
	})

	return ToImpactDTO(record), nil
}

// GetImpact returns the impact record of a collection
func (s *ImpactApplicationService) GetImpact(ctx context.Context, query GetCollectionQuery) (*ImpactDTO, error) {
	record, err := s.impacts.FindByCollectionID(ctx, query.CollectionID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get impact record", "collectionId", query.CollectionID)
		return nil, fmt.Errorf("failed to get impact record: %w", err)
	}
	if record == nil {
		return nil, mapDomainError(domain.ErrImpactNotFound, query.CollectionID)
	}
	return ToImpactDTO(record), nil
}
