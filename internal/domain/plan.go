// Package domain defines the plan and workout types shared across the service.
package domain

import (
	"errors"
	"time"
)

var (
	// ErrEntryConflict indicates a guarded match write affected no rows,
	// meaning the entry was already matched by a concurrent run.
	ErrEntryConflict = errors.New("plan entry already matched")
	// ErrEntryNotFound is returned when a plan entry cannot be located.
	ErrEntryNotFound = errors.New("plan entry not found")
	// ErrLinkNotFound is returned when no provider link exists for a user.
	ErrLinkNotFound = errors.New("provider link not found")
)

// MatchStatus is the lifecycle state of a plan entry.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
)

// PlanEntry is a scheduled ride awaiting completion. ScheduledDate is a bare
// calendar date (YYYY-MM-DD); OrderIndex breaks ties among entries sharing the
// same date and ride.
type PlanEntry struct {
	ID               string
	UserID           string
	RideID           string
	ScheduledDate    string
	OrderIndex       int
	Status           MatchStatus
	MatchedWorkoutID string
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Match carries the fields written when an entry transitions to matched.
type Match struct {
	WorkoutID   string
	CompletedAt time.Time
}

// Cursor models the pagination token for plan listings. Entries page by
// (scheduled date, order index, entry ID) ascending, matching the list
// ordering exactly.
type Cursor struct {
	Date  string
	Order int
	ID    string
}

// ProviderLink connects a local user to their workout-provider account.
type ProviderLink struct {
	UserID         string
	ProviderUserID string
	TimeZone       string
	UpdatedAt      time.Time
}

// ReconcileRun is the persisted record of one reconciliation run, kept for
// auditing and for caller-level retry decisions.
type ReconcileRun struct {
	UserID  string
	Trigger string
	Success bool
	Matched int
	Failed  int
	Err     string
	RanAt   time.Time
}
