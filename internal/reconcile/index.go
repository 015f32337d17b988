package reconcile

import (
	"sort"

	"github.com/lightcap/clip-in/internal/domain"
)

// candidateIndex groups eligible plan entry IDs by scheduled date, then by
// ride. Each bucket is ordered by order index ascending; entries tying on
// order index keep their input order. The index is built once per run and
// never mutated afterwards.
type candidateIndex map[string]map[string][]string

// buildCandidateIndex constructs the lookup from the eligible entry set.
func buildCandidateIndex(entries []domain.PlanEntry) candidateIndex {
	type ranked struct {
		id    string
		order int
	}
	buckets := make(map[string]map[string][]ranked)
	for _, entry := range entries {
		byRide, ok := buckets[entry.ScheduledDate]
		if !ok {
			byRide = make(map[string][]ranked)
			buckets[entry.ScheduledDate] = byRide
		}
		byRide[entry.RideID] = append(byRide[entry.RideID], ranked{id: entry.ID, order: entry.OrderIndex})
	}

	idx := make(candidateIndex, len(buckets))
	for date, byRide := range buckets {
		out := make(map[string][]string, len(byRide))
		for rideID, candidates := range byRide {
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].order < candidates[j].order
			})
			ids := make([]string, len(candidates))
			for i, c := range candidates {
				ids[i] = c.id
			}
			out[rideID] = ids
		}
		idx[date] = out
	}
	return idx
}

// lookup returns the ordered candidate entry IDs for a (date, ride) pair, or
// nil when no plan entry exists for that bucket.
func (idx candidateIndex) lookup(date, rideID string) []string {
	byRide, ok := idx[date]
	if !ok {
		return nil
	}
	return byRide[rideID]
}
