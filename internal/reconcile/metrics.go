package reconcile

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeClean   = "clean"
	outcomePartial = "partial"
	outcomeAborted = "aborted"
)

var (
	runCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clipin",
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Number of reconciliation runs grouped by outcome.",
	}, []string{"outcome"})

	matchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clipin",
		Subsystem: "reconcile",
		Name:      "entries_matched_total",
		Help:      "Number of plan entries successfully marked matched.",
	})

	writeFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "clipin",
		Subsystem: "reconcile",
		Name:      "write_failures_total",
		Help:      "Number of match writes rejected by the plan store.",
	})
)

func init() {
	prometheus.MustRegister(runCounter, matchedCounter, writeFailureCounter)
}

func recordRun(outcome string) {
	runCounter.WithLabelValues(outcome).Inc()
}

func recordMatch() {
	matchedCounter.Inc()
}

func recordWriteFailure() {
	writeFailureCounter.Inc()
}
