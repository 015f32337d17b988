// Package api exposes the HTTP handlers for the plan service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lightcap/clip-in/internal/auth"
	"github.com/lightcap/clip-in/internal/domain"
	"github.com/lightcap/clip-in/internal/observability"
	"github.com/lightcap/clip-in/internal/persistence"
	"github.com/lightcap/clip-in/internal/reconcile"
)

// maxPageSize bounds a single plan listing page regardless of the requested
// limit.
const maxPageSize = 200

// Reconciler runs a matching pass for one user.
type Reconciler interface {
	Reconcile(ctx context.Context, userID, providerUserID string, opts reconcile.Options) reconcile.Summary
}

// PlanStore captures the repository operations the handlers depend on.
type PlanStore interface {
	CreateEntry(ctx context.Context, entry domain.PlanEntry) error
	ListEntries(ctx context.Context, userID, from, to string, cursor *domain.Cursor, limit int) ([]domain.PlanEntry, *domain.Cursor, error)
	ReorderEntries(ctx context.Context, userID, date string, entryIDs []string) error
	GetLink(ctx context.Context, userID string) (*domain.ProviderLink, error)
	PutLink(ctx context.Context, link domain.ProviderLink) error
	RecordRun(ctx context.Context, run domain.ReconcileRun) error
}

// Handler coordinates HTTP requests with the plan store and matching engine.
type Handler struct {
	store  PlanStore
	engine Reconciler
	logger *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(store PlanStore, engine Reconciler) *Handler {
	return &Handler{
		store:  store,
		engine: engine,
		logger: log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/plan", h.plan)
	mux.HandleFunc("/v1/plan/order", h.reorderPlan)
	mux.HandleFunc("/v1/reconcile", h.reconcile)
	mux.HandleFunc("/v1/link", h.link)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createEntry(w, r)
	case http.MethodGet:
		h.listPlan(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopePlanWrite)
	if !ok {
		return
	}

	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	now := time.Now().UTC()
	entry := domain.PlanEntry{
		ID:            uuid.NewString(),
		UserID:        claims.Subject,
		RideID:        req.RideID,
		ScheduledDate: req.ScheduledDate,
		OrderIndex:    req.OrderIndex,
		Status:        domain.MatchStatusUnmatched,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.CreateEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toEntryView(entry))
}

func (h *Handler) listPlan(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopePlanRead, auth.ScopePlanWrite)
	if !ok {
		return
	}

	today := time.Now().UTC()
	from := today.AddDate(0, 0, -7).Format("2006-01-02")
	to := today.AddDate(0, 0, 7).Format("2006-01-02")
	if raw := r.URL.Query().Get("from"); raw != "" {
		if !validDate(raw) {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid from date")
			return
		}
		from = raw
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if !validDate(raw) {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid to date")
			return
		}
		to = raw
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.store.ListEntries(r.Context(), claims.Subject, from, to, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]PlanEntryView, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toEntryView(entry))
	}

	writeJSON(w, http.StatusOK, ListPlanResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) reorderPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopePlanWrite)
	if !ok {
		return
	}

	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.store.ReorderEntries(r.Context(), claims.Subject, req.Date, req.EntryIDs); err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeReconcileRun)
	if !ok {
		return
	}

	var req ReconcileRequest
	if r.Body != nil {
		// An empty body means "use the stored defaults".
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	link, err := h.store.GetLink(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			writeError(w, http.StatusConflict, "link_missing", "no workout provider linked for this user")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	timeZone := req.TimeZone
	if timeZone == "" {
		timeZone = link.TimeZone
	}

	summary := h.engine.Reconcile(r.Context(), claims.Subject, link.ProviderUserID, reconcile.Options{TimeZone: timeZone})
	observability.RecordRunCompleted(time.Now().UTC())

	run := domain.ReconcileRun{
		UserID:  claims.Subject,
		Trigger: "api",
		Success: summary.Success,
		Matched: summary.Matched,
		Failed:  summary.Failed,
		Err:     summary.Err,
		RanAt:   time.Now().UTC(),
	}
	if err := h.store.RecordRun(r.Context(), run); err != nil {
		h.logger.Printf("record run failed (user=%s): %v", claims.Subject, err)
	}

	status := http.StatusOK
	if !summary.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, ReconcileResponse{
		Success: summary.Success,
		Matched: summary.Matched,
		Error:   summary.Err,
	})
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.putLink(w, r)
	case http.MethodGet:
		h.getLink(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) putLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopePlanWrite)
	if !ok {
		return
	}

	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.ProviderUserID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "provider_user_id is required")
		return
	}

	link := domain.ProviderLink{
		UserID:         claims.Subject,
		ProviderUserID: req.ProviderUserID,
		TimeZone:       req.TimeZone,
	}
	if err := h.store.PutLink(r.Context(), link); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toLinkView(link))
}

func (h *Handler) getLink(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopePlanRead, auth.ScopePlanWrite)
	if !ok {
		return
	}

	link, err := h.store.GetLink(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no workout provider linked")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toLinkView(*link))
}

// requireScope resolves claims and checks that at least one scope is present.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func validDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
