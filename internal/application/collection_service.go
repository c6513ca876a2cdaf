package application

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/tracing"
)

const tracerName = "github.com/ecocycle/collection-service/internal/application"

// AvailableCollectionsCache caches pages of the unassigned intake list.
// Implementations must tolerate their backend being unavailable.
//
// GetAvailable reports the cache generation observed on a miss. SetAvailable
// stores under that generation, so a list read before an Invalidate is never
// served after it. A negative generation means the page must not be stored.
type AvailableCollectionsCache interface {
	GetAvailable(ctx context.Context, page domain.Page) ([]*domain.Collection, int64, bool)
	SetAvailable(ctx context.Context, generation int64, page domain.Page, collections []*domain.Collection)
	Invalidate(ctx context.Context) error
}

// NoopCache disables caching of the available list
type NoopCache struct{}

func (NoopCache) GetAvailable(context.Context, domain.Page) ([]*domain.Collection, int64, bool) {
	return nil, -1, false
}
func (NoopCache) SetAvailable(context.Context, int64, domain.Page, []*domain.Collection) {}
func (NoopCache) Invalidate(context.Context) error                                       { return nil }

// Option customises an application service
type Option func(*options)

type options struct {
	clock domain.Clock
	newID func() string
}

// WithClock overrides the service clock
func WithClock(clock domain.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithIDGenerator overrides how new aggregate ids are generated
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		clock: domain.UTCClock,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// CollectionApplicationService handles collection use cases
type CollectionApplicationService struct {
	repo      domain.CollectionRepository
	lifecycle *domain.LifecycleController
	claims    *domain.ClaimResolver
	cache     AvailableCollectionsCache
	logger    *logging.Logger
	metrics   *metrics.Metrics
	clock     domain.Clock
	newID     func() string
}

// NewCollectionApplicationService creates a new CollectionApplicationService
func NewCollectionApplicationService(
	repo domain.CollectionRepository,
	cache AvailableCollectionsCache,
	logger *logging.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *CollectionApplicationService {
	o := buildOptions(opts)
	if cache == nil {
		cache = NoopCache{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CollectionApplicationService{
		repo:      repo,
		lifecycle: domain.NewLifecycleController(repo, o.clock),
		claims:    domain.NewClaimResolver(repo, o.clock),
		cache:     cache,
		logger:    logger,
		metrics:   m,
		clock:     o.clock,
		newID:     o.newID,
	}
}

// ScheduleCollection creates a new scheduled, unassigned collection
func (s *CollectionApplicationService) ScheduleCollection(ctx context.Context, cmd ScheduleCollectionCommand) (*CollectionDTO, error) {
	if err := cmd.Requester.Validate(); err != nil {
		return nil, mapDomainError(err, "")
	}
	wasteType, err := domain.ParseWasteType(cmd.WasteType)
	if err != nil {
		return nil, errors.ErrValidation(err.Error())
	}

	collection, err := domain.NewCollection(
		s.newID(), cmd.Requester, wasteType, cmd.WasteAmount,
		cmd.Address, cmd.ScheduledDate, cmd.Notes, s.clock(),
	)
	if err != nil {
		return nil, mapDomainError(err, "")
	}

	if err := s.repo.Create(ctx, collection); err != nil {
		s.logger.WithError(err).Error("Failed to create collection", "collectionId", collection.ID)
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	// Events are saved to outbox by repository in transaction

	s.invalidateAvailable(ctx)
	s.metrics.RecordCollectionScheduled(string(wasteType))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "collection.scheduled",
		EntityType: "collection",
		EntityID:   collection.ID,
		Action:     "scheduled",
		ActorID:    cmd.Requester.ID,
		Data: map[string]interface{}{
			"wasteType":     string(wasteType),
			"scheduledDate": collection.ScheduledDate,
		},
	})

	return ToCollectionDTO(collection), nil
}

// GetCollection retrieves a collection by ID
func (s *CollectionApplicationService) GetCollection(ctx context.Context, query GetCollectionQuery) (*CollectionDTO, error) {
	collection, err := s.repo.FindByID(ctx, query.CollectionID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get collection", "collectionId", query.CollectionID)
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	if collection == nil {
		return nil, errors.ErrNotFoundWithID("collection", query.CollectionID)
	}

	return ToCollectionDTO(collection), nil
}

// ListAvailable lists unassigned intake collections, oldest scheduled date first
func (s *CollectionApplicationService) ListAvailable(ctx context.Context, query ListCollectionsQuery) ([]CollectionDTO, error) {
	page := domain.Page{Limit: query.Limit, Offset: query.Offset}

	cached, generation, ok := s.cache.GetAvailable(ctx, page)
	if ok {
		s.metrics.RecordCacheLookup("available", "hit")
		return ToCollectionDTOs(cached), nil
	}
	s.metrics.RecordCacheLookup("available", "miss")

	collections, err := s.repo.ListUnassignedIntake(ctx, page)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list available collections")
		return nil, fmt.Errorf("failed to list available collections: %w", err)
	}

	s.cache.SetAvailable(ctx, generation, page, collections)
	return ToCollectionDTOs(collections), nil
}

// ListByRequester lists the collections a requester scheduled
func (s *CollectionApplicationService) ListByRequester(ctx context.Context, query ListCollectionsQuery) ([]CollectionDTO, error) {
	collections, err := s.repo.FindByRequesterID(ctx, query.OwnerID, domain.Page{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list collections by requester", "requesterId", query.OwnerID)
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return ToCollectionDTOs(collections), nil
}

// ListByCollector lists the collections a collector has claimed
func (s *CollectionApplicationService) ListByCollector(ctx context.Context, query ListCollectionsQuery) ([]CollectionDTO, error) {
	collections, err := s.repo.FindByCollectorID(ctx, query.OwnerID, domain.Page{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		s.logger.WithError(err).Error("Failed to list collections by collector", "collectorId", query.OwnerID)
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return ToCollectionDTOs(collections), nil
}

// ClaimCollection lets a collector take an unassigned collection
func (s *CollectionApplicationService) ClaimCollection(ctx context.Context, cmd ClaimCollectionCommand) (*CollectionDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "collection.claim",
		tracing.AttrCollectionID.String(cmd.CollectionID),
		tracing.AttrActorID.String(cmd.Actor.ID),
	)
	collection, err := s.claims.Claim(ctx, cmd.CollectionID, cmd.Actor)
	outcome := claimResult(err)
	s.metrics.RecordClaim(outcome)
	endSpan(span, outcome, err)
	if err != nil {
		if !isDomainRejection(err) {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to claim collection", "collectionId", cmd.CollectionID)
		} else {
			s.logger.WithContext(ctx).Info("Claim rejected",
				"collectionId", cmd.CollectionID,
				"collectorId", cmd.Actor.ID,
				"reason", err.Error(),
			)
		}
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	s.invalidateAvailable(ctx)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "collection.claimed",
		EntityType: "collection",
		EntityID:   collection.ID,
		Action:     "claimed",
		ActorID:    cmd.Actor.ID,
		RelatedIDs: map[string]string{
			"collectorId": collection.CollectorID,
			"requesterId": collection.RequesterID,
		},
	})

	return ToCollectionDTO(collection), nil
}

// TransitionCollection applies a status change through the lifecycle controller
func (s *CollectionApplicationService) TransitionCollection(ctx context.Context, cmd TransitionCollectionCommand) (*TransitionResultDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}
	to, err := domain.ParseCollectionStatus(cmd.Status)
	if err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	input := domain.TransitionInput{
		WasteAmount: cmd.WasteAmount,
		Notes:       cmd.Notes,
		Reason:      cmd.Reason,
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "collection.transition",
		tracing.AttrCollectionID.String(cmd.CollectionID),
		tracing.AttrActorID.String(cmd.Actor.ID),
		tracing.AttrActorRole.String(string(cmd.Actor.Role)),
	)
	collection, from, err := s.lifecycle.Apply(ctx, cmd.CollectionID, to, cmd.Actor, input)
	outcome := transitionResult(err)
	s.metrics.RecordTransition(string(from), string(to), outcome)
	endSpan(span, outcome, err)
	if err != nil {
		if !isDomainRejection(err) {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to transition collection", "collectionId", cmd.CollectionID)
		}
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	if from.IsUnassignedIntake() {
		s.invalidateAvailable(ctx)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "collection.status_changed",
		EntityType: "collection",
		EntityID:   collection.ID,
		Action:     string(to),
		ActorID:    cmd.Actor.ID,
		RelatedIDs: map[string]string{
			"requesterId": collection.RequesterID,
			"collectorId": collection.CollectorID,
		},
		Data: map[string]interface{}{
			"from": string(from),
			"to":   string(to),
		},
	})

	return &TransitionResultDTO{
		Collection: ToCollectionDTO(collection),
		FromStatus: string(from),
		ToStatus:   string(to),
	}, nil
}

// UpdateCollectionDetails applies a descriptive patch
func (s *CollectionApplicationService) UpdateCollectionDetails(ctx context.Context, cmd UpdateCollectionDetailsCommand) (*DetailsUpdateResultDTO, error) {
	if err := cmd.Actor.Validate(); err != nil {
		return nil, mapDomainError(err, cmd.CollectionID)
	}

	patch := domain.DetailsPatch{
		Address:       cmd.Address,
		ScheduledDate: cmd.ScheduledDate,
		WasteAmount:   cmd.WasteAmount,
		Notes:         cmd.Notes,
	}
	if cmd.WasteType != nil {
		wasteType, err := domain.ParseWasteType(*cmd.WasteType)
		if err != nil {
			return nil, errors.ErrValidation(err.Error())
		}
		patch.WasteType = &wasteType
	}

	collection, changed, err := s.lifecycle.UpdateDetails(ctx, cmd.CollectionID, cmd.Actor, patch)
	if err != nil {
		if !isDomainRejection(err) {
			s.logger.WithError(err).Error("Failed to update collection details", "collectionId", cmd.CollectionID)
		}
		return nil, mapDomainError(err, cmd.CollectionID)
	}
	if changed == nil {
		changed = []string{}
	}

	if len(changed) > 0 {
		if collection.Status.IsUnassignedIntake() {
			s.invalidateAvailable(ctx)
		}
		s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
			EventType:  "collection.details_updated",
			EntityType: "collection",
			EntityID:   collection.ID,
			Action:     "updated",
			ActorID:    cmd.Actor.ID,
			Data:       map[string]interface{}{"changedFields": changed},
		})
	}

	return &DetailsUpdateResultDTO{
		Collection:    ToCollectionDTO(collection),
		ChangedFields: changed,
	}, nil
}

func (s *CollectionApplicationService) invalidateAvailable(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate available collections cache")
	}
}

// isDomainRejection reports whether err is an expected business outcome
// rather than an infrastructure failure.
func isDomainRejection(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidTransition,
		domain.ErrUnauthorizedActor,
		domain.ErrMissingRequiredField,
		domain.ErrAlreadyClaimed,
		domain.ErrCollectionNotFound,
		domain.ErrInvalidState,
		domain.ErrStaleCollection,
		domain.ErrInvalidCollection,
		domain.ErrInvalidActor,
		domain.ErrUnknownStatus,
		domain.ErrInterestNotFound,
		domain.ErrInvalidInterestTransition,
		domain.ErrInterestExists,
		domain.ErrCollectionNotAvailable,
		domain.ErrStaleInterest,
	} {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

func claimResult(err error) string {
	switch {
	case err == nil:
		return "won"
	case stderrors.Is(err, domain.ErrAlreadyClaimed):
		return "already_claimed"
	case stderrors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case stderrors.Is(err, domain.ErrCollectionNotFound):
		return "not_found"
	case stderrors.Is(err, domain.ErrUnauthorizedActor):
		return "unauthorized"
	case stderrors.Is(err, domain.ErrStaleCollection):
		return "stale"
	}
	return "error"
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case stderrors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case stderrors.Is(err, domain.ErrUnauthorizedActor):
		return "unauthorized"
	case stderrors.Is(err, domain.ErrMissingRequiredField):
		return "missing_field"
	case stderrors.Is(err, domain.ErrCollectionNotFound):
		return "not_found"
	case stderrors.Is(err, domain.ErrStaleCollection):
		return "stale"
	}
	return "error"
}

// endSpan keeps business rejections out of the trace error status.
func endSpan(span trace.Span, outcome string, err error) {
	if isDomainRejection(err) {
		err = nil
	}
	tracing.EndSpan(span, outcome, err)
}
