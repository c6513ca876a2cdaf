package application

import (
	"context"
	"fmt"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
)

// InterestApplicationService handles material interest use cases
type InterestApplicationService struct {
	interests   domain.MaterialInterestRepository
	collections domain.CollectionRepository
	logger      *logging.Logger
	metrics     *metrics.Metrics
	clock       domain.Clock
	newID       func() string
}

// NewInterestApplicationService creates a new InterestApplicationService
func NewInterestApplicationService(
	interests domain.MaterialInterestRepository,
	collections domain.CollectionRepository,
	logger *logging.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *InterestApplicationService {
	o := buildOptions(opts)
	if logger == nil {
		logger = logging.NewNop()
	}
	return &InterestApplicationService{
		interests:   interests,
		collections: collections,
		logger:      logger,
		metrics:     m,
		clock:       o.clock,
		newID:       o.newID,
	}
}

// ExpressInterest records a recycler's interest in a collection's materials
func (s *InterestApplicationService) ExpressInterest(ctx context.Context, cmd ExpressInterestCommand) (*MaterialInterestDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	collection, err := s.loadCollection(ctx, cmd.CollectionID)
	if err != nil {
		return nil, err
	}

	open, err := s.interests.FindOpen(ctx, cmd.CollectionID, cmd.Actor.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up open interest", "collectionId", cmd.CollectionID)
		return nil, fmt.Errorf("failed to look up open interest: %w", err)
	}
	if open != nil {
		return nil, errors.ErrConflict(domain.ErrInterestExists.Error()).
			WithDetail("interestId", open.ID).
			Wrap(domain.ErrInterestExists)
	}

	interest, err := domain.NewMaterialInterest(
		s.newID(), collection, cmd.Actor, cmd.Materials, cmd.OfferedPrice, cmd.Message, s.clock(),
	)
	if err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	if err := s.interests.Create(ctx, interest); err != nil {
		if isDomainRejection(err) {
			return nil, mapDomainError(err, cmd.CollectionID)
		}
		s.logger.WithError(err).Error("Failed to create material interest", "collectionId", cmd.CollectionID)
		return nil, fmt.Errorf("failed to create material interest: %w", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "material_interest.expressed",
		EntityType: "materialInterest",
		EntityID:   interest.ID,
		Action:     "expressed",
		ActorID:    cmd.Actor.ID,
		RelatedIDs: map[string]string{
			"collectionId": interest.CollectionID,
			"collectorId":  interest.CollectorID,
		},
	})

	return ToMaterialInterestDTO(interest), nil
}

// DecideInterest accepts or rejects a pending interest
func (s *InterestApplicationService) DecideInterest(ctx context.Context, cmd DecideInterestCommand) (*MaterialInterestDTO, error) {
	decision, err := domain.ParseInterestStatus(cmd.Decision)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	interest, collection, err := s.loadForCollector(ctx, cmd.InterestID, cmd.Actor)
	if err != nil {
		return nil, err
	}

	expected := interest.Version
	if err := interest.Decide(cmd.Actor, collection, decision, s.clock()); err != nil {
		return nil, mapDomainError(err, interest.CollectionID)
	}
	if err := s.save(ctx, interest, expected); err != nil {
		return nil, err
	}

	s.metrics.RecordInterestDecision(string(decision))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "material_interest.decided",
		EntityType: "materialInterest",
		EntityID:   interest.ID,
		Action:     string(decision),
		ActorID:    cmd.Actor.ID,
		RelatedIDs: map[string]string{
			"collectionId": interest.CollectionID,
			"recyclerId":   interest.RecyclerID,
		},
	})

	return ToMaterialInterestDTO(interest), nil
}

// CompleteInterest marks an accepted interest as handed over
func (s *InterestApplicationService) CompleteInterest(ctx context.Context, cmd CompleteInterestCommand) (*MaterialInterestDTO, error) {
	interest, collection, err := s.loadForCollector(ctx, cmd.InterestID, cmd.Actor)
	if err != nil {
		return nil, err
	}

	expected := interest.Version
	if err := interest.Complete(cmd.Actor, collection, s.clock()); err != nil {
		return nil, mapDomainError(err, interest.CollectionID)
	}
	if err := s.save(ctx, interest, expected); err != nil {
		return nil, err
	}

	s.metrics.RecordInterestDecision(string(domain.InterestCompleted))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "material_interest.completed",
		EntityType: "materialInterest",
		EntityID:   interest.ID,
		Action:     "completed",
		ActorID:    cmd.Actor.ID,
		RelatedIDs: map[string]string{
			"collectionId": interest.CollectionID,
			"recyclerId":   interest.RecyclerID,
		},
	})

	return ToMaterialInterestDTO(interest), nil
}

// ListForCollection lists interests expressed in one collection
func (s *InterestApplicationService) ListForCollection(ctx context.Context, query ListCollectionsQuery) ([]MaterialInterestDTO, error) {
	interests, err := s.interests.FindByCollectionID(ctx, query.OwnerID, domain.Page{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list interests", "collectionId", query.OwnerID)
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}
	return ToMaterialInterestDTOs(interests), nil
}

// ListByRecycler lists interests a recycler has expressed
func (s *InterestApplicationService) ListByRecycler(ctx context.Context, query ListCollectionsQuery) ([]MaterialInterestDTO, error) {
	interests, err := s.interests.FindByRecyclerID(ctx, query.OwnerID, domain.Page{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list interests", "recyclerId", query.OwnerID)
		return nil, fmt.Errorf("failed to list interests: %w", err)
	}
	return ToMaterialInterestDTOs(interests), nil
}

func (s *InterestApplicationService) loadCollection(ctx context.Context, collectionID string) (*domain.Collection, error) {
	collection, err := s.collections.FindByID(ctx, collectionID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get collection", "collectionId", collectionID)
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil {
		return nil, errors.ErrNotFoundWithID("collection", collectionID)
	}
	return collection, nil
}

// loadForCollector loads an interest together with the current state of its
// collection, which decides who may act on it.
func (s *InterestApplicationService) loadForCollector(ctx context.Context, interestID string, actor domain.Actor) (*domain.MaterialInterest, *domain.Collection, error) {
	if err := actor.Validate(); err != nil {
		return nil, nil, mapDomainError(err, "")
	}

	interest, err := s.interests.FindByID(ctx, interestID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get material interest", "interestId", interestID)
		return nil, nil, fmt.Errorf("failed to get material interest: %w", err)
	}
	if interest == nil {
		return nil, nil, errors.ErrNotFoundWithID("material interest", interestID)
	}

	collection, err := s.loadCollection(ctx, interest.CollectionID)
	if err != nil {
		return nil, nil, err
	}
	return interest, collection, nil
}

func (s *InterestApplicationService) save(ctx context.Context, interest *domain.MaterialInterest, expectedVersion int64) error {
	if err := s.interests.Update(ctx, interest, expectedVersion); err != nil {
		if isDomainRejection(err) {
			return mapDomainError(err, interest.CollectionID)
		}
		s.logger.WithError(err).Error("Failed to save material interest", "interestId", interest.ID)
		return fmt.Errorf("failed to save material interest: %w", err)
	}
	return nil
}
