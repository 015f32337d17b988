package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lightcap/clip-in/internal/auth"
	"github.com/lightcap/clip-in/internal/domain"
	"github.com/lightcap/clip-in/internal/reconcile"
)

func TestReconcileEndpointSuccess(t *testing.T) {
	store := &mockStore{
		link: &domain.ProviderLink{UserID: "user-1", ProviderUserID: "pl-user-1", TimeZone: "America/New_York"},
	}
	engine := &mockEngine{summary: reconcile.Summary{Success: true, Matched: 3}}
	handler := NewHandler(store, engine)

	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(`{}`))
	req = withClaims(req, auth.ScopeReconcileRun)

	rr := httptest.NewRecorder()
	handler.reconcile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ReconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Matched != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if engine.lastUserID != "user-1" || engine.lastProviderUser != "pl-user-1" {
		t.Fatalf("engine called with %s/%s", engine.lastUserID, engine.lastProviderUser)
	}
	if engine.lastOpts.TimeZone != "America/New_York" {
		t.Fatalf("expected link timezone, got %q", engine.lastOpts.TimeZone)
	}
	if len(store.runs) != 1 || store.runs[0].Trigger != "api" {
		t.Fatalf("expected one api-triggered run record, got %+v", store.runs)
	}
}

func TestReconcileEndpointBodyOverridesTimeZone(t *testing.T) {
	store := &mockStore{
		link: &domain.ProviderLink{UserID: "user-1", ProviderUserID: "pl-user-1", TimeZone: "America/New_York"},
	}
	engine := &mockEngine{summary: reconcile.Summary{Success: true}}
	handler := NewHandler(store, engine)

	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(`{"timezone":"Europe/Berlin"}`))
	req = withClaims(req, auth.ScopeReconcileRun)

	rr := httptest.NewRecorder()
	handler.reconcile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if engine.lastOpts.TimeZone != "Europe/Berlin" {
		t.Fatalf("expected request timezone, got %q", engine.lastOpts.TimeZone)
	}
}

func TestReconcileEndpointFailedRun(t *testing.T) {
	store := &mockStore{
		link: &domain.ProviderLink{UserID: "user-1", ProviderUserID: "pl-user-1"},
	}
	engine := &mockEngine{summary: reconcile.Summary{Matched: 1, Failed: 1, Err: "1 match write(s) failed"}}
	handler := NewHandler(store, engine)

	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(`{}`))
	req = withClaims(req, auth.ScopeReconcileRun)

	rr := httptest.NewRecorder()
	handler.reconcile(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", rr.Code)
	}

	var resp ReconcileResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success || resp.Matched != 1 || resp.Error == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestReconcileEndpointRequiresLink(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(`{}`))
	req = withClaims(req, auth.ScopeReconcileRun)

	rr := httptest.NewRecorder()
	handler.reconcile(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rr.Code)
	}
}

func TestReconcileEndpointRequiresScope(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reconcile", strings.NewReader(`{}`))
	req = withClaims(req, auth.ScopePlanRead)

	rr := httptest.NewRecorder()
	handler.reconcile(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestCreateEntryValidatesPayload(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", strings.NewReader(`{"ride_id":"","scheduled_date":"2024-01-20"}`))
	req = withClaims(req, auth.ScopePlanWrite)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestCreateEntryPersistsUnmatched(t *testing.T) {
	store := &mockStore{}
	handler := NewHandler(store, &mockEngine{})

	req := httptest.NewRequest(http.MethodPost, "/v1/plan", strings.NewReader(`{"ride_id":"r1","scheduled_date":"2024-01-20","order_index":2}`))
	req = withClaims(req, auth.ScopePlanWrite)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one created entry, got %d", len(store.created))
	}
	entry := store.created[0]
	if entry.UserID != "user-1" || entry.RideID != "r1" || entry.Status != domain.MatchStatusUnmatched {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.ID == "" {
		t.Fatalf("expected generated entry id")
	}
}

func TestReorderRejectsDuplicateIDs(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodPut, "/v1/plan/order", strings.NewReader(`{"date":"2024-01-20","entry_ids":["e1","e1"]}`))
	req = withClaims(req, auth.ScopePlanWrite)

	rr := httptest.NewRecorder()
	handler.reorderPlan(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestReorderPersistsPositions(t *testing.T) {
	store := &mockStore{}
	handler := NewHandler(store, &mockEngine{})

	req := httptest.NewRequest(http.MethodPut, "/v1/plan/order", strings.NewReader(`{"date":"2024-01-20","entry_ids":["e2","e1"]}`))
	req = withClaims(req, auth.ScopePlanWrite)

	rr := httptest.NewRecorder()
	handler.reorderPlan(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d: %s", rr.Code, rr.Body.String())
	}
	if store.reorderDate != "2024-01-20" {
		t.Fatalf("unexpected reorder date %q", store.reorderDate)
	}
	if len(store.reorderIDs) != 2 || store.reorderIDs[0] != "e2" {
		t.Fatalf("unexpected reorder ids %v", store.reorderIDs)
	}
}

func TestReorderUnknownEntry(t *testing.T) {
	store := &mockStore{reorderErr: domain.ErrEntryNotFound}
	handler := NewHandler(store, &mockEngine{})

	req := httptest.NewRequest(http.MethodPut, "/v1/plan/order", strings.NewReader(`{"date":"2024-01-20","entry_ids":["e9"]}`))
	req = withClaims(req, auth.ScopePlanWrite)

	rr := httptest.NewRecorder()
	handler.reorderPlan(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestListPlanReturnsViews(t *testing.T) {
	completed := time.Date(2024, time.January, 20, 13, 0, 0, 0, time.UTC)
	store := &mockStore{entries: []domain.PlanEntry{
		{
			ID:               "e1",
			UserID:           "user-1",
			RideID:           "r1",
			ScheduledDate:    "2024-01-20",
			OrderIndex:       0,
			Status:           domain.MatchStatusMatched,
			MatchedWorkoutID: "w1",
			CompletedAt:      &completed,
		},
		{
			ID:            "e2",
			UserID:        "user-1",
			RideID:        "r2",
			ScheduledDate: "2024-01-21",
			OrderIndex:    1,
			Status:        domain.MatchStatusUnmatched,
		},
	}}
	handler := NewHandler(store, &mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?from=2024-01-19&to=2024-01-22", nil)
	req = withClaims(req, auth.ScopePlanRead)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListPlanResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(resp.Items))
	}
	if resp.Items[0].MatchedWorkoutID != "w1" || resp.Items[0].Status != "matched" {
		t.Fatalf("unexpected first item %+v", resp.Items[0])
	}
	if store.listFrom != "2024-01-19" || store.listTo != "2024-01-22" {
		t.Fatalf("unexpected range %s..%s", store.listFrom, store.listTo)
	}
}

func TestListPlanCapsPageSize(t *testing.T) {
	store := &mockStore{}
	handler := NewHandler(store, &mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?limit=100000", nil)
	req = withClaims(req, auth.ScopePlanRead)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if store.listLimit != 200 {
		t.Fatalf("expected capped limit 200, got %d", store.listLimit)
	}
}

func TestListPlanRejectsBadDates(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/plan?from=Jan20", nil)
	req = withClaims(req, auth.ScopePlanRead)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestHandlersRequireClaims(t *testing.T) {
	handler := NewHandler(&mockStore{}, &mockEngine{})

	req := httptest.NewRequest(http.MethodGet, "/v1/plan", nil)

	rr := httptest.NewRecorder()
	handler.plan(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func withClaims(req *http.Request, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "user-1",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

type mockEngine struct {
	summary          reconcile.Summary
	lastUserID       string
	lastProviderUser string
	lastOpts         reconcile.Options
}

func (m *mockEngine) Reconcile(_ context.Context, userID, providerUserID string, opts reconcile.Options) reconcile.Summary {
	m.lastUserID = userID
	m.lastProviderUser = providerUserID
	m.lastOpts = opts
	return m.summary
}

type mockStore struct {
	created     []domain.PlanEntry
	entries     []domain.PlanEntry
	listFrom    string
	listTo      string
	listLimit   int
	reorderDate string
	reorderIDs  []string
	reorderErr  error
	link        *domain.ProviderLink
	runs        []domain.ReconcileRun
}

func (m *mockStore) CreateEntry(_ context.Context, entry domain.PlanEntry) error {
	m.created = append(m.created, entry)
	return nil
}

func (m *mockStore) ListEntries(_ context.Context, _, from, to string, _ *domain.Cursor, limit int) ([]domain.PlanEntry, *domain.Cursor, error) {
	m.listFrom = from
	m.listTo = to
	m.listLimit = limit
	return m.entries, nil, nil
}

func (m *mockStore) ReorderEntries(_ context.Context, _, date string, entryIDs []string) error {
	if m.reorderErr != nil {
		return m.reorderErr
	}
	m.reorderDate = date
	m.reorderIDs = entryIDs
	return nil
}

func (m *mockStore) GetLink(_ context.Context, _ string) (*domain.ProviderLink, error) {
	if m.link == nil {
		return nil, domain.ErrLinkNotFound
	}
	return m.link, nil
}

func (m *mockStore) PutLink(_ context.Context, link domain.ProviderLink) error {
	m.link = &link
	return nil
}

func (m *mockStore) RecordRun(_ context.Context, run domain.ReconcileRun) error {
	m.runs = append(m.runs, run)
	return nil
}
