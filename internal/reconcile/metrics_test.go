package reconcile

import (
	"context"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lightcap/clip-in/internal/domain"
)

func TestReconcileIncrementsMatchCounter(t *testing.T) {
	before := counterValue(t, matchedCounter)

	source := &stubSource{workouts: []domain.Workout{
		completeWorkout("w1", "r1", 1705708800),
	}}
	store := &stubStore{entries: []domain.PlanEntry{
		planEntry("e1", "r1", "2024-01-20", 0),
	}}

	summary := newTestEngine(t, source, store).Reconcile(context.Background(), "user-1", "pl-user-1", Options{TimeZone: "UTC"})
	require.Equal(t, 1, summary.Matched)

	require.Equal(t, before+1, counterValue(t, matchedCounter))
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, c.Write(metric))
	counter := metric.GetCounter()
	require.NotNil(t, counter)
	return counter.GetValue()
}
