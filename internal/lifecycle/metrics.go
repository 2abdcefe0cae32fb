package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitledger",
		Name:      "events_applied_total",
		Help:      "Lifecycle events appended to the ledger, by event type.",
	}, []string{"event_type"})

	applyRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bitledger",
		Name:      "apply_rejected_total",
		Help:      "Transition requests rejected before any write, by outcome.",
	}, []string{"outcome"})

	dedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bitledger",
		Name:      "dedup_hits_total",
		Help:      "Retries answered from the idempotency window without a new event.",
	})

	liveCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bitledger",
		Name:      "live_candidates",
		Help:      "Candidates not yet in a terminal status.",
	})
)
