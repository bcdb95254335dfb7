package thread

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subtreeFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_subtree_fetches_total",
		Help: "Root subtree lookups by source",
	}, []string{"source"})

	subtreeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostrly_subtree_rejected_total",
		Help: "Relay events dropped because they do not mark the requested root",
	})

	chainRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nostrly_chain_fetch_rounds",
		Help:    "Batched fetch rounds needed to resolve a parent chain",
		Buckets: []float64{0, 1, 2, 3, 5, 8},
	})

	ensureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nostrly_ensure_thread_duration_seconds",
		Help:    "Time spent in EnsureThread",
		Buckets: prometheus.DefBuckets,
	})

	threadItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nostrly_thread_items",
		Help:    "Number of items in a thread after merge",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
