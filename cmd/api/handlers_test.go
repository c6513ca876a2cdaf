package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/collection-service/internal/application"
	"github.com/ecocycle/collection-service/internal/domain"
	"github.com/ecocycle/collection-service/internal/infrastructure/memory"
	"github.com/ecocycle/collection-service/pkg/actor"
	"github.com/ecocycle/collection-service/pkg/contracts/openapi"
	"github.com/ecocycle/collection-service/pkg/idempotency"
	"github.com/ecocycle/collection-service/pkg/logging"
	"github.com/ecocycle/collection-service/pkg/metrics"
	"github.com/ecocycle/collection-service/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	services *Services
	tokens   *actor.TokenService
}

func newTestServer(t *testing.T, withOpenAPI bool) *testServer {
	t.Helper()
	logger := logging.NewNop()
	m := metrics.New(metrics.DefaultConfig("collection-service-test"))
	store := memory.NewStore(nil)

	services := &Services{
		Collections: application.NewCollectionApplicationService(store.Collections(), nil, logger, m),
		Interests:   application.NewInterestApplicationService(store.Interests(), store.Collections(), logger, m),
		Impact:      application.NewImpactApplicationService(store.Collections(), store.Impacts(), domain.DefaultImpactFactors(), logger, m),
	}
	tokens := actor.NewTokenService("test-secret", "ecocycle")

	cfg := &RouterConfig{
		ServiceName: "collection-service",
		Logger:      logger,
		Metrics:     m,
		Actor:       &actor.Config{Tokens: tokens, TrustHeaders: true},
		Idempotency: idempotency.DefaultConfig("collection-service", idempotency.NewMemoryKeyRepository(), logger),
	}
	if withOpenAPI {
		v, err := openapi.NewDefaultValidator()
		require.NoError(t, err)
		cfg.OpenAPI = v
	}
	return &testServer{router: newRouter(services, cfg), services: services, tokens: tokens}
}

type call struct {
	method  string
	path    string
	body    any
	actorID string
	role    string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.actorID != "" {
		req.Header.Set(actor.HeaderActorID, c.actorID)
		req.Header.Set(actor.HeaderActorRole, c.role)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := decode[middleware.APIErrorResponse](t, w)
	assert.Equal(t, code, resp.Code)
}

func scheduleBody() map[string]any {
	return map[string]any{
		"wasteType":     "plastic",
		"address":       "12 Harbour Road",
		"scheduledDate": "2026-07-01T09:00:00Z",
		"notes":         "bags by the gate",
	}
}

func (s *testServer) schedule(t *testing.T) application.CollectionDTO {
	t.Helper()
	w := s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody(), actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[application.CollectionDTO](t, w)
}

func TestCollectionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	created := s.schedule(t)
	assert.Equal(t, "scheduled", created.Status)
	assert.Empty(t, created.CollectorID)

	w := s.do(t, call{method: http.MethodGet, path: "/api/v1/collections/available", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code)
	available := decode[struct {
		Data []application.CollectionDTO `json:"data"`
	}](t, w)
	require.Len(t, available.Data, 1)
	assert.Equal(t, created.ID, available.Data[0].ID)

	path := "/api/v1/collections/" + created.ID

	w = s.do(t, call{method: http.MethodPost, path: path + "/claim", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	claimed := decode[application.CollectionDTO](t, w)
	assert.Equal(t, "confirmed", claimed.Status)
	assert.Equal(t, "collector-a", claimed.CollectorID)

	w = s.do(t, call{method: http.MethodPost, path: path + "/claim", actorID: "collector-b", role: "collector"})
	assertError(t, w, http.StatusConflict, "ALREADY_CLAIMED")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "in_progress"}, actorID: "household-a", role: "household"})
	assertError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "in_progress"}, actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[application.TransitionResultDTO](t, w)
	assert.Equal(t, "confirmed", result.FromStatus)
	assert.Equal(t, "in_progress", result.ToStatus)

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "completed"}, actorID: "collector-a", role: "collector"})
	assertError(t, w, http.StatusUnprocessableEntity, "MISSING_REQUIRED_FIELD")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "completed", "wasteAmount": 8.5}, actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "cancelled"}, actorID: "household-a", role: "household"})
	assertError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	w = s.do(t, call{method: http.MethodGet, path: path, actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusOK, w.Code)
	final := decode[application.CollectionDTO](t, w)
	assert.Equal(t, "completed", final.Status)
	require.NotNil(t, final.WasteAmount)
	assert.Equal(t, 8.5, *final.WasteAmount)
	assert.NotNil(t, final.CompletedDate)

	w = s.do(t, call{method: http.MethodGet, path: "/api/v1/collectors/collector-a/collections", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Data []application.CollectionDTO `json:"data"`
	}](t, w).Data, 1)
}

func TestCancelByOwner(t *testing.T) {
	s := newTestServer(t, false)
	created := s.schedule(t)
	path := "/api/v1/collections/" + created.ID

	w := s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "cancelled", "reason": "moved"}, actorID: "household-b", role: "household"})
	assertError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "cancelled", "reason": "moved"}, actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", decode[application.TransitionResultDTO](t, w).Collection.Status)

	w = s.do(t, call{method: http.MethodPost, path: path + "/claim", actorID: "collector-a", role: "collector"})
	assertError(t, w, http.StatusConflict, "INVALID_STATE")
}

func TestRequestRejections(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{
			name:   "anonymous",
			call:   call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody()},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "unknown role",
			call:   call{method: http.MethodGet, path: "/api/v1/collections/available", actorID: "x", role: "driver"},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name: "unknown waste type",
			call: call{method: http.MethodPost, path: "/api/v1/collections", actorID: "household-a", role: "household",
				body: map[string]any{"wasteType": "uranium", "address": "x", "scheduledDate": "2026-07-01T09:00:00Z"}},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "collector cannot schedule",
			call:   call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody(), actorID: "collector-a", role: "collector"},
			status: http.StatusForbidden,
			code:   "FORBIDDEN",
		},
		{
			name:   "unknown status",
			call:   call{method: http.MethodPatch, path: "/api/v1/collections/any", body: map[string]any{"status": "lost"}, actorID: "collector-a", role: "collector"},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "missing collection",
			call:   call{method: http.MethodGet, path: "/api/v1/collections/missing", actorID: "collector-a", role: "collector"},
			status: http.StatusNotFound,
			code:   "RESOURCE_NOT_FOUND",
		},
		{
			name:   "claim missing collection",
			call:   call{method: http.MethodPost, path: "/api/v1/collections/missing/claim", actorID: "collector-a", role: "collector"},
			status: http.StatusNotFound,
			code:   "RESOURCE_NOT_FOUND",
		},
		{
			name:   "another requester's list",
			call:   call{method: http.MethodGet, path: "/api/v1/requesters/household-a/collections", actorID: "household-b", role: "household"},
			status: http.StatusForbidden,
			code:   "FORBIDDEN",
		},
		{
			name:   "unknown route",
			call:   call{method: http.MethodGet, path: "/api/v1/nothing", actorID: "collector-a", role: "collector"},
			status: http.StatusNotFound,
			code:   "ROUTE_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, s.do(t, tt.call), tt.status, tt.code)
		})
	}
}

func TestBearerTokenIdentity(t *testing.T) {
	s := newTestServer(t, false)
	token, err := s.tokens.Issue(actor.Identity{ID: "household-a", Role: "household"}, time.Hour)
	require.NoError(t, err)

	w := s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody(),
		headers: map[string]string{"Authorization": "Bearer " + token}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "household-a", decode[application.CollectionDTO](t, w).RequesterID)

	w = s.do(t, call{method: http.MethodGet, path: "/api/v1/collections/available",
		headers: map[string]string{"Authorization": "Bearer not-a-token"}})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestIdempotentSchedule(t *testing.T) {
	s := newTestServer(t, false)
	headers := map[string]string{idempotency.HeaderIdempotencyKey: "schedule-1"}

	first := s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody(), actorID: "household-a", role: "household", headers: headers})
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", body: scheduleBody(), actorID: "household-a", role: "household", headers: headers})
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t,
		decode[application.CollectionDTO](t, first).ID,
		decode[application.CollectionDTO](t, second).ID)

	changed := scheduleBody()
	changed["address"] = "somewhere else"
	w := s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", body: changed, actorID: "household-a", role: "household", headers: headers})
	assertError(t, w, http.StatusUnprocessableEntity, "IDEMPOTENCY_PARAMETER_MISMATCH")

	w = s.do(t, call{method: http.MethodGet, path: "/api/v1/requesters/household-a/collections", actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Data []application.CollectionDTO `json:"data"`
	}](t, w).Data, 1)
}

func TestMaterialInterestsOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	created := s.schedule(t)
	path := "/api/v1/collections/" + created.ID

	w := s.do(t, call{method: http.MethodPost, path: path + "/claim", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code)

	interestBody := map[string]any{"materials": []string{"PET"}, "offeredPrice": 12.0}
	w = s.do(t, call{method: http.MethodPost, path: path + "/interests", body: interestBody, actorID: "recycler-a", role: "recycler"})
	assertError(t, w, http.StatusConflict, "INVALID_STATE")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"status": "in_progress"}, actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, call{method: http.MethodPost, path: path + "/interests", body: map[string]any{"materials": []string{}}, actorID: "recycler-a", role: "recycler"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, call{method: http.MethodPost, path: path + "/interests", body: interestBody, actorID: "recycler-a", role: "recycler"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	interest := decode[application.MaterialInterestDTO](t, w)
	assert.Equal(t, "pending", interest.Status)

	w = s.do(t, call{method: http.MethodPost, path: path + "/interests", body: interestBody, actorID: "recycler-a", role: "recycler"})
	assertError(t, w, http.StatusConflict, "CONFLICT")

	interestPath := "/api/v1/interests/" + interest.ID
	w = s.do(t, call{method: http.MethodPost, path: interestPath + "/decision", body: map[string]any{"decision": "accepted"}, actorID: "collector-b", role: "collector"})
	assertError(t, w, http.StatusForbidden, "FORBIDDEN")

	w = s.do(t, call{method: http.MethodPost, path: interestPath + "/decision", body: map[string]any{"decision": "maybe"}, actorID: "collector-a", role: "collector"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, call{method: http.MethodPost, path: interestPath + "/decision", body: map[string]any{"decision": "accepted"}, actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", decode[application.MaterialInterestDTO](t, w).Status)

	w = s.do(t, call{method: http.MethodPost, path: interestPath + "/complete", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode[application.MaterialInterestDTO](t, w).Status)

	w = s.do(t, call{method: http.MethodGet, path: path + "/interests", actorID: "collector-a", role: "collector"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Data []application.MaterialInterestDTO `json:"data"`
	}](t, w).Data, 1)

	w = s.do(t, call{method: http.MethodGet, path: "/api/v1/recyclers/recycler-a/interests", actorID: "recycler-a", role: "recycler"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Data []application.MaterialInterestDTO `json:"data"`
	}](t, w).Data, 1)

	w = s.do(t, call{method: http.MethodGet, path: "/api/v1/recyclers/recycler-a/interests", actorID: "admin-1", role: "admin"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestImpactEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	created := s.schedule(t)
	path := "/api/v1/collections/" + created.ID

	for _, step := range []map[string]any{
		nil,
		{"status": "in_progress"},
		{"status": "completed", "wasteAmount": 10.0},
	} {
		var w *httptest.ResponseRecorder
		if step == nil {
			w = s.do(t, call{method: http.MethodPost, path: path + "/claim", actorID: "collector-a", role: "collector"})
		} else {
			w = s.do(t, call{method: http.MethodPatch, path: path, body: step, actorID: "collector-a", role: "collector"})
		}
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := s.do(t, call{method: http.MethodGet, path: path + "/impact", actorID: "household-a", role: "household"})
	assertError(t, w, http.StatusNotFound, "RESOURCE_NOT_FOUND")

	_, err := s.services.Impact.CalculateImpact(context.Background(), application.CalculateImpactCommand{CollectionID: created.ID})
	require.NoError(t, err)

	w = s.do(t, call{method: http.MethodGet, path: path + "/impact", actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	impact := decode[application.ImpactDTO](t, w)
	assert.Equal(t, 10.0, impact.WasteAmountKg)
	assert.Equal(t, "collector-a", impact.CollectorID)
	assert.Positive(t, impact.Points)
}

func TestUpdateDetailsOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	created := s.schedule(t)
	path := "/api/v1/collections/" + created.ID + "/details"

	w := s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"address": "3 Mill Lane"}, actorID: "household-a", role: "household"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[application.DetailsUpdateResultDTO](t, w)
	assert.Equal(t, "3 Mill Lane", result.Collection.Address)
	assert.Contains(t, result.ChangedFields, "address")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"wasteType": "uranium"}, actorID: "household-a", role: "household"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, call{method: http.MethodPatch, path: path, body: map[string]any{"notes": "hi"}, actorID: "household-b", role: "household"})
	assertError(t, w, http.StatusForbidden, "FORBIDDEN")
}

func TestOpenAPIValidationLayer(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, call{method: http.MethodGet, path: "/api/v1/collections/available?pageSize=500", actorID: "collector-a", role: "collector"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, call{method: http.MethodPost, path: "/api/v1/collections", actorID: "household-a", role: "household",
		body: map[string]any{"wasteType": "plastic", "scheduledDate": "2026-07-01T09:00:00Z"}})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	created := s.schedule(t)
	assert.NotEmpty(t, created.ID)
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := s.do(t, call{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
