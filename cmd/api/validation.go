package main

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

// bindingRules are the domain-aware tags used by the request payloads
func bindingRules() map[string]middleware.Rule {
	statuses := make([]string, len(domain.AllStatuses))
	for i, s := range domain.AllStatuses {
		statuses[i] = string(s)
	}
	wasteTypes := make([]string, len(domain.AllWasteTypes))
	for i, w := range domain.AllWasteTypes {
		wasteTypes[i] = string(w)
	}

	return map[string]middleware.Rule{
		"collection_status": {
			Check: func(fl validator.FieldLevel) bool {
				_, err := domain.ParseCollectionStatus(fl.Field().String())
				return err == nil
			},
			Message: "must be one of: " + strings.Join(statuses, ", "),
		},
		"waste_type": {
			Check: func(fl validator.FieldLevel) bool {
				_, err := domain.ParseWasteType(fl.Field().String())
				return err == nil
			},
			Message: "must be one of: " + strings.Join(wasteTypes, ", "),
		},
		"interest_decision": {
			Check: func(fl validator.FieldLevel) bool {
				s := domain.InterestStatus(fl.Field().String())
				return s == domain.InterestAccepted || s == domain.InterestRejected
			},
			Message: "must be one of: accepted, rejected",
		},
	}
}
