package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entryMatchedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clipin",
		Subsystem: "plan",
		Name:      "last_entry_matched_timestamp_seconds",
		Help:      "Unix timestamp of the most recent workout completion matched to a plan entry.",
	})
	runCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "clipin",
		Subsystem: "plan",
		Name:      "last_reconcile_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed reconciliation run.",
	})
)

func init() {
	prometheus.MustRegister(entryMatchedGauge, runCompletedGauge)
}

// RecordEntryMatched updates the match watermark gauge.
func RecordEntryMatched(ts time.Time) {
	if ts.IsZero() {
		return
	}
	entryMatchedGauge.Set(float64(ts.Unix()))
}

// RecordRunCompleted updates the run watermark gauge.
func RecordRunCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	runCompletedGauge.Set(float64(ts.Unix()))
}
