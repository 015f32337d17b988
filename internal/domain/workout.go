package domain

import "time"

// WorkoutStatus is the provider-reported lifecycle state of a workout.
type WorkoutStatus string

// WorkoutStatusComplete is the only status eligible for matching.
const WorkoutStatusComplete WorkoutStatus = "COMPLETE"

// Workout is an externally recorded activity fetched from the provider.
// RideID is empty when the provider returned no ride join for the workout,
// which makes it ineligible for matching.
type Workout struct {
	ID        string
	CreatedAt time.Time
	Status    WorkoutStatus
	RideID    string
}

// Completed reports whether the workout can be matched against a plan entry.
func (w Workout) Completed() bool {
	return w.Status == WorkoutStatusComplete && w.RideID != ""
}
