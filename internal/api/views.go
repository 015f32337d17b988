package api

import (
	"errors"
	"time"

	"github.com/lightcap/clip-in/internal/domain"
)

// CreateEntryRequest is the payload for POST /v1/plan.
type CreateEntryRequest struct {
	RideID        string `json:"ride_id"`
	ScheduledDate string `json:"scheduled_date"`
	OrderIndex    int    `json:"order_index"`
}

// Validate enforces field level constraints.
func (r CreateEntryRequest) Validate() error {
	if r.RideID == "" {
		return errors.New("ride_id is required")
	}
	if !validDate(r.ScheduledDate) {
		return errors.New("scheduled_date must be YYYY-MM-DD")
	}
	if r.OrderIndex < 0 {
		return errors.New("order_index must not be negative")
	}
	return nil
}

// ReorderRequest is the payload for PUT /v1/plan/order. EntryIDs carries the
// new display order for the given date; positions become order indexes.
type ReorderRequest struct {
	Date     string   `json:"date"`
	EntryIDs []string `json:"entry_ids"`
}

// Validate enforces field level constraints.
func (r ReorderRequest) Validate() error {
	if !validDate(r.Date) {
		return errors.New("date must be YYYY-MM-DD")
	}
	if len(r.EntryIDs) == 0 {
		return errors.New("entry_ids must not be empty")
	}
	seen := make(map[string]struct{}, len(r.EntryIDs))
	for _, id := range r.EntryIDs {
		if id == "" {
			return errors.New("entry_ids must not contain empty values")
		}
		if _, dup := seen[id]; dup {
			return errors.New("entry_ids must not contain duplicates")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// ReconcileRequest is the optional payload for POST /v1/reconcile.
type ReconcileRequest struct {
	TimeZone string `json:"timezone"`
}

// ReconcileResponse mirrors the engine summary.
type ReconcileResponse struct {
	Success bool   `json:"success"`
	Matched int    `json:"matched"`
	Error   string `json:"error,omitempty"`
}

// LinkRequest is the payload for PUT /v1/link.
type LinkRequest struct {
	ProviderUserID string `json:"provider_user_id"`
	TimeZone       string `json:"timezone"`
}

// LinkView is the representation of a provider link.
type LinkView struct {
	ProviderUserID string `json:"provider_user_id"`
	TimeZone       string `json:"timezone,omitempty"`
}

// PlanEntryView is the public representation of a plan entry.
type PlanEntryView struct {
	EntryID          string     `json:"entry_id"`
	RideID           string     `json:"ride_id"`
	ScheduledDate    string     `json:"scheduled_date"`
	OrderIndex       int        `json:"order_index"`
	Status           string     `json:"status"`
	MatchedWorkoutID string     `json:"matched_workout_id,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ListPlanResponse packages list results.
type ListPlanResponse struct {
	Items      []PlanEntryView `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func toEntryView(entry domain.PlanEntry) PlanEntryView {
	return PlanEntryView{
		EntryID:          entry.ID,
		RideID:           entry.RideID,
		ScheduledDate:    entry.ScheduledDate,
		OrderIndex:       entry.OrderIndex,
		Status:           string(entry.Status),
		MatchedWorkoutID: entry.MatchedWorkoutID,
		CompletedAt:      entry.CompletedAt,
		CreatedAt:        entry.CreatedAt,
		UpdatedAt:        entry.UpdatedAt,
	}
}

func toLinkView(link domain.ProviderLink) LinkView {
	return LinkView{
		ProviderUserID: link.ProviderUserID,
		TimeZone:       link.TimeZone,
	}
}
