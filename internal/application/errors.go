package application

import (
	stderrors "errors"
	"strings"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/errors"
)

// mapDomainError translates domain failures into the API error taxonomy.
// Errors that are not domain failures are returned unchanged.
func mapDomainError(err error, collectionID string) error {
	if err == nil {
		return nil
	}
	if errors.IsAppError(err) {
		return err
	}

	var te *domain.TransitionError
	hasTransition := stderrors.As(err, &te)

	var appErr *errors.AppError
	switch {
	case stderrors.Is(err, domain.ErrInvalidTransition):
		if hasTransition {
			appErr = errors.ErrInvalidTransition(string(te.From), string(te.To))
		} else {
			appErr = errors.New(errors.CodeInvalidTransition, err.Error())
		}
	case stderrors.Is(err, domain.ErrUnauthorizedActor):
		appErr = errors.ErrForbidden("actor is not allowed to perform this operation")
	case stderrors.Is(err, domain.ErrAlreadyClaimed):
		appErr = errors.ErrAlreadyClaimed(collectionID)
	case stderrors.Is(err, domain.ErrCollectionNotFound):
		appErr = errors.ErrNotFoundWithID("collection", collectionID)
	case stderrors.Is(err, domain.ErrInterestNotFound):
		appErr = errors.ErrNotFound("material interest")
	case stderrors.Is(err, domain.ErrImpactNotFound):
		appErr = errors.ErrNotFoundWithID("impact record", collectionID)
	case stderrors.Is(err, domain.ErrInvalidState):
		appErr = errors.ErrInvalidState(err.Error())
	case stderrors.Is(err, domain.ErrCollectionNotAvailable):
		appErr = errors.ErrInvalidState(err.Error())
	case stderrors.Is(err, domain.ErrMissingRequiredField):
		field := "wasteAmount"
		if hasTransition && te.Field != "" {
			field = te.Field
		} else if !hasTransition {
			field = missingFieldName(err)
		}
		appErr = errors.ErrMissingRequiredField(field)
	case stderrors.Is(err, domain.ErrStaleCollection),
		stderrors.Is(err, domain.ErrStaleInterest):
		appErr = errors.ErrConflict("the record was modified concurrently, reload and retry")
	case stderrors.Is(err, domain.ErrInterestExists):
		appErr = errors.ErrConflict(err.Error())
	case stderrors.Is(err, domain.ErrInvalidInterestTransition):
		appErr = errors.New(errors.CodeInvalidTransition, err.Error())
	case stderrors.Is(err, domain.ErrInvalidCollection),
		stderrors.Is(err, domain.ErrInvalidActor),
		stderrors.Is(err, domain.ErrUnknownStatus):
		appErr = errors.ErrValidation(err.Error())
	default:
		return err
	}

	if hasTransition {
		if te.CollectionID != "" {
			appErr.WithDetail("collectionId", te.CollectionID)
		}
		if te.From != "" {
			appErr.WithDetail("from", string(te.From))
		}
		if te.To != "" {
			appErr.WithDetail("to", string(te.To))
		}
	}
	return appErr.Wrap(err)
}

// missingFieldName recovers the field name from "<sentinel>: <field>" errors
// raised outside a transition.
func missingFieldName(err error) string {
	msg := err.Error()
	prefix := domain.ErrMissingRequiredField.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return "unknown"
}
