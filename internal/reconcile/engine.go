// Package reconcile matches completed provider workouts against scheduled
// plan entries, marking an entry matched once the user has actually ridden it.
package reconcile

import (
	"context"
	"fmt"
	"log"

	"github.com/lightcap/clip-in/internal/domain"
)

// completedFetchLimit bounds the provider page fetched per run. Workouts older
// than this window are never reconciled.
const completedFetchLimit = 25

// WorkoutSource fetches recent workouts from the external provider.
type WorkoutSource interface {
	FetchCompletedWorkouts(ctx context.Context, providerUserID string, limit int, includeRide bool) ([]domain.Workout, error)
}

// EntryStore exposes the plan-entry persistence operations the engine needs.
type EntryStore interface {
	FetchEligibleEntries(ctx context.Context, userID string) ([]domain.PlanEntry, error)
	MarkMatched(ctx context.Context, entryID string, match domain.Match) error
}

// Options carries per-run tunables.
type Options struct {
	// TimeZone is the IANA zone used to resolve workout completion instants
	// to calendar dates. Empty or unrecognised values fall back to the
	// process-local zone.
	TimeZone string
}

// Summary reports the outcome of a reconciliation run. Success is true iff no
// match write failed; Err is set for aborted runs and for partial failures.
type Summary struct {
	Success bool
	Matched int
	Failed  int
	Err     string
}

// Option configures optional behaviour for the Engine.
type Option func(*Engine)

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine orchestrates a reconciliation run. It holds no per-run state, so a
// single Engine may serve concurrent runs for different users.
type Engine struct {
	source WorkoutSource
	store  EntryStore
	logger *log.Logger
}

// NewEngine constructs an Engine over the provided collaborators.
func NewEngine(source WorkoutSource, store EntryStore, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		store:  store,
		logger: log.New(log.Writer(), "[reconcile] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile fetches the user's recent completed workouts and matches each one
// against an unmatched plan entry sharing the workout's ride and local
// calendar date. Individual write failures are counted and the run continues;
// only the provider fetch and the eligibility query abort the run. Nothing
// panics across this boundary.
func (e *Engine) Reconcile(ctx context.Context, userID, providerUserID string, opts Options) (summary Summary) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("reconcile panic (user=%s): %v", userID, r)
			recordRun(outcomeAborted)
			summary = Summary{Err: fmt.Sprint(r)}
		}
	}()

	workouts, err := e.source.FetchCompletedWorkouts(ctx, providerUserID, completedFetchLimit, true)
	if err != nil {
		recordRun(outcomeAborted)
		return Summary{Err: fmt.Sprintf("workout fetch failed: %v", err)}
	}

	completed := make([]domain.Workout, 0, len(workouts))
	for _, w := range workouts {
		if w.Completed() {
			completed = append(completed, w)
		}
	}
	if len(completed) == 0 {
		recordRun(outcomeClean)
		return Summary{Success: true}
	}

	entries, err := e.store.FetchEligibleEntries(ctx, userID)
	if err != nil {
		recordRun(outcomeAborted)
		return Summary{Err: fmt.Sprintf("plan lookup failed: %v", err)}
	}
	if len(entries) == 0 {
		recordRun(outcomeClean)
		return Summary{Success: true}
	}

	idx := buildCandidateIndex(entries)
	loc := resolveLocation(opts.TimeZone, e.logger)

	// Run-local guards: a workout is consumed at most once even when the feed
	// repeats it, and an entry receives at most one write attempt even when a
	// write fails.
	consumed := make(map[string]struct{}, len(completed))
	attempted := make(map[string]struct{}, len(entries))

	var matched, failed int
	for _, workout := range completed {
		if _, dup := consumed[workout.ID]; dup {
			continue
		}

		date := calendarDate(workout.CreatedAt, loc)
		var entryID string
		for _, candidate := range idx.lookup(date, workout.RideID) {
			if _, taken := attempted[candidate]; !taken {
				entryID = candidate
				break
			}
		}
		if entryID == "" {
			continue
		}

		attempted[entryID] = struct{}{}
		consumed[workout.ID] = struct{}{}

		match := domain.Match{WorkoutID: workout.ID, CompletedAt: workout.CreatedAt}
		if err := e.store.MarkMatched(ctx, entryID, match); err != nil {
			failed++
			recordWriteFailure()
			e.logger.Printf("match write failed (entry=%s, workout=%s): %v", entryID, workout.ID, err)
			continue
		}
		matched++
		recordMatch()
	}

	summary = Summary{Success: failed == 0, Matched: matched, Failed: failed}
	if failed > 0 {
		recordRun(outcomePartial)
		summary.Err = fmt.Sprintf("%d match write(s) failed", failed)
	} else {
		recordRun(outcomeClean)
	}
	return summary
}
