package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/pkg/actor"
	"github.com/ecocycle/collection-service/pkg/api"
	"github.com/ecocycle/collection-service/pkg/errors"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

// ScheduleCollectionRequest is the request body for scheduling a pickup
type ScheduleCollectionRequest struct {
	WasteType     string    `json:"wasteType" binding:"required,waste_type"`
	WasteAmount   *float64  `json:"wasteAmount" binding:"omitempty,gte=0"`
	Address       string    `json:"address" binding:"required,max=500,safe_string"`
	ScheduledDate time.Time `json:"scheduledDate" binding:"required"`
	Notes         string    `json:"notes" binding:"max=2000,safe_string"`
}

// TransitionRequest is the request body for a status change
type TransitionRequest struct {
	Status      string   `json:"status" binding:"required,collection_status"`
	WasteAmount *float64 `json:"wasteAmount"`
	Notes       *string  `json:"notes" binding:"omitempty,max=2000"`
	Reason      string   `json:"reason" binding:"max=500"`
}

// UpdateDetailsRequest is the request body for a descriptive patch
type UpdateDetailsRequest struct {
	Address       *string    `json:"address" binding:"omitempty,min=1,max=500,safe_string"`
	ScheduledDate *time.Time `json:"scheduledDate"`
	WasteType     *string    `json:"wasteType" binding:"omitempty,waste_type"`
	WasteAmount   *float64   `json:"wasteAmount" binding:"omitempty,gte=0"`
	Notes         *string    `json:"notes" binding:"omitempty,max=2000"`
}

// ExpressInterestRequest is the request body for a recycler's interest
type ExpressInterestRequest struct {
	Materials    []string `json:"materials" binding:"required,min=1,dive,required"`
	OfferedPrice *float64 `json:"offeredPrice" binding:"omitempty,gte=0"`
	Message      string   `json:"message" binding:"max=1000"`
}

// DecisionRequest is the request body for accepting or rejecting an interest
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required,interest_decision"`
}

// requireActor resolves the caller and checks the role is one the service knows
func requireActor(c *gin.Context) (domain.Actor, bool) {
	id, ok := actor.Require(c)
	if !ok {
		return domain.Actor{}, false
	}
	role, err := domain.ParseRole(id.Role)
	if err != nil {
		middleware.AbortWithAppError(c, errors.ErrUnauthorized(err.Error()))
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id.ID, Role: role}, true
}

// requireSelfOrAdmin allows per-user listings only for that user or an admin
func requireSelfOrAdmin(c *gin.Context, a domain.Actor, ownerID string) bool {
	if a.ID == ownerID || a.Role == domain.RoleAdmin {
		return true
	}
	middleware.AbortWithAppError(c, errors.ErrForbidden("cannot list another user's records"))
	return false
}

func respond(responder *middleware.ErrorResponder, err error) {
	if appErr, ok := errors.AsAppError(err); ok {
		responder.RespondWithAppError(appErr)
		return
	}
	responder.RespondInternalError(err)
}

func listQuery(ownerID string, page api.PageRequest) application.ListCollectionsQuery {
	return application.ListCollectionsQuery{OwnerID: ownerID, Limit: page.Limit(), Offset: page.Offset()}
}

func scheduleCollectionHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)

		requester, ok := requireActor(c)
		if !ok {
			return
		}

		var req ScheduleCollectionRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		collection, err := service.ScheduleCollection(c.Request.Context(), application.ScheduleCollectionCommand{
			Requester:     requester,
			WasteType:     req.WasteType,
			WasteAmount:   req.WasteAmount,
			Address:       req.Address,
			ScheduledDate: req.ScheduledDate,
			Notes:         req.Notes,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.Header("Location", "/api/v1/collections/"+collection.ID)
		c.JSON(http.StatusCreated, collection)
	}
}

func getCollectionHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		if _, ok := requireActor(c); !ok {
			return
		}

		collection, err := service.GetCollection(c.Request.Context(), application.GetCollectionQuery{
			CollectionID: c.Param("id"),
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, collection)
	}
}

func listAvailableHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		if _, ok := requireActor(c); !ok {
			return
		}

		page := api.ParsePagination(c)
		collections, err := service.ListAvailable(c.Request.Context(), listQuery("", page))
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(collections, page))
	}
}

func listRequesterCollectionsHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		caller, ok := requireActor(c)
		if !ok || !requireSelfOrAdmin(c, caller, c.Param("id")) {
			return
		}

		page := api.ParsePagination(c)
		collections, err := service.ListByRequester(c.Request.Context(), listQuery(c.Param("id"), page))
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(collections, page))
	}
}

func listCollectorCollectionsHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		caller, ok := requireActor(c)
		if !ok || !requireSelfOrAdmin(c, caller, c.Param("id")) {
			return
		}

		page := api.ParsePagination(c)
		collections, err := service.ListByCollector(c.Request.Context(), listQuery(c.Param("id"), page))
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(collections, page))
	}
}

func claimCollectionHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		collector, ok := requireActor(c)
		if !ok {
			return
		}

		collection, err := service.ClaimCollection(c.Request.Context(), application.ClaimCollectionCommand{
			CollectionID: c.Param("id"),
			Actor:        collector,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, collection)
	}
}

func transitionCollectionHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		caller, ok := requireActor(c)
		if !ok {
			return
		}

		var req TransitionRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.TransitionCollection(c.Request.Context(), application.TransitionCollectionCommand{
			CollectionID: c.Param("id"),
			Status:       req.Status,
			Actor:        caller,
			WasteAmount:  req.WasteAmount,
			Notes:        req.Notes,
			Reason:       req.Reason,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func updateDetailsHandler(service *application.CollectionApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		caller, ok := requireActor(c)
		if !ok {
			return
		}

		var req UpdateDetailsRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.UpdateCollectionDetails(c.Request.Context(), application.UpdateCollectionDetailsCommand{
			CollectionID:  c.Param("id"),
			Actor:         caller,
			Address:       req.Address,
			ScheduledDate: req.ScheduledDate,
			WasteType:     req.WasteType,
			WasteAmount:   req.WasteAmount,
			Notes:         req.Notes,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func getImpactHandler(service *application.ImpactApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		if _, ok := requireActor(c); !ok {
			return
		}

		impact, err := service.GetImpact(c.Request.Context(), application.GetCollectionQuery{
			CollectionID: c.Param("id"),
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, impact)
	}
}

func expressInterestHandler(service *application.InterestApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		recycler, ok := requireActor(c)
		if !ok {
			return
		}

		var req ExpressInterestRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		interest, err := service.ExpressInterest(c.Request.Context(), application.ExpressInterestCommand{
			CollectionID: c.Param("id"),
			Actor:        recycler,
			Materials:    req.Materials,
			OfferedPrice: req.OfferedPrice,
			Message:      req.Message,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusCreated, interest)
	}
}

func listCollectionInterestsHandler(service *application.InterestApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		if _, ok := requireActor(c); !ok {
			return
		}

		page := api.ParsePagination(c)
		interests, err := service.ListForCollection(c.Request.Context(), listQuery(c.Param("id"), page))
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(interests, page))
	}
}

func listRecyclerInterestsHandler(service *application.InterestApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		caller, ok := requireActor(c)
		if !ok || !requireSelfOrAdmin(c, caller, c.Param("id")) {
			return
		}

		page := api.ParsePagination(c)
		interests, err := service.ListByRecycler(c.Request.Context(), listQuery(c.Param("id"), page))
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, api.NewPageResponse(interests, page))
	}
}

func decideInterestHandler(service *application.InterestApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		collector, ok := requireActor(c)
		if !ok {
			return
		}

		var req DecisionRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		interest, err := service.DecideInterest(c.Request.Context(), application.DecideInterestCommand{
			InterestID: c.Param("id"),
			Actor:      collector,
			Decision:   req.Decision,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, interest)
	}
}

func completeInterestHandler(service *application.InterestApplicationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger)
		collector, ok := requireActor(c)
		if !ok {
			return
		}

		interest, err := service.CompleteInterest(c.Request.Context(), application.CompleteInterestCommand{
			InterestID: c.Param("id"),
			Actor:      collector,
		})
		if err != nil {
			respond(responder, err)
			return
		}

		c.JSON(http.StatusOK, interest)
	}
}
