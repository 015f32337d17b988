package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/lightcap/clip-in/internal/domain"
	"github.com/lightcap/clip-in/internal/observability"
	"github.com/lightcap/clip-in/internal/reconcile"
)

// EventTypeReconcileRequested is the trigger event emitted by the scheduler.
const EventTypeReconcileRequested = "reconcile.requested"

// Reconciler runs a matching pass for one user.
type Reconciler interface {
	Reconcile(ctx context.Context, userID, providerUserID string, opts reconcile.Options) reconcile.Summary
}

// TriggerStore is the repository surface the trigger handler needs: the
// provider link to resolve the external user, and the run audit log.
type TriggerStore interface {
	GetLink(ctx context.Context, userID string) (*domain.ProviderLink, error)
	RecordRun(ctx context.Context, run domain.ReconcileRun) error
}

type reconcileRequest struct {
	UserID   string `json:"user_id"`
	TimeZone string `json:"timezone,omitempty"`
}

// TriggerHandler reacts to reconcile.requested events by running the matching
// engine for the named user and recording the run outcome.
type TriggerHandler struct {
	engine Reconciler
	store  TriggerStore
	logger *log.Logger
}

// NewTriggerHandler constructs a TriggerHandler.
func NewTriggerHandler(engine Reconciler, store TriggerStore, logger *log.Logger) *TriggerHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[trigger] ", log.LstdFlags|log.Lshortfile)
	}
	return &TriggerHandler{engine: engine, store: store, logger: logger}
}

// Handle runs one reconciliation for the requested user. A failed run is not
// a handler error: the summary already aggregates its failures and a Kafka
// replay would not change the outcome, so the offset is committed either way.
func (h *TriggerHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventTypeReconcileRequested {
		h.logger.Printf("ignoring event_type=%s", msg.EventType)
		return nil
	}

	var req reconcileRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		// Malformed triggers cannot succeed on retry.
		h.logger.Printf("malformed trigger payload (offset=%d): %v", msg.Offset, err)
		return nil
	}
	if req.UserID == "" {
		h.logger.Printf("trigger without user_id (offset=%d)", msg.Offset)
		return nil
	}

	link, err := h.store.GetLink(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			h.logger.Printf("no provider link for user=%s, skipping", req.UserID)
			return nil
		}
		return err
	}

	timeZone := req.TimeZone
	if timeZone == "" {
		timeZone = link.TimeZone
	}

	summary := h.engine.Reconcile(ctx, req.UserID, link.ProviderUserID, reconcile.Options{TimeZone: timeZone})
	observability.RecordRunCompleted(time.Now().UTC())

	run := domain.ReconcileRun{
		UserID:  req.UserID,
		Trigger: "kafka",
		Success: summary.Success,
		Matched: summary.Matched,
		Failed:  summary.Failed,
		Err:     summary.Err,
		RanAt:   time.Now().UTC(),
	}
	if err := h.store.RecordRun(ctx, run); err != nil {
		h.logger.Printf("record run failed (user=%s): %v", req.UserID, err)
	}

	if !summary.Success {
		h.logger.Printf("reconcile finished with errors (user=%s, matched=%d): %s", req.UserID, summary.Matched, summary.Err)
	}
	return nil
}
