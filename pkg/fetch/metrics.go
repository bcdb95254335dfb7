package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostrly_fetch_cache_hits_total",
		Help: "Event lookups served from the local store",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostrly_fetch_cache_misses_total",
		Help: "Event lookups that were not in the local store",
	})

	requestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nostrly_fetch_requests_coalesced_total",
		Help: "Lookups that joined an already in-flight fetch",
	})

	transportCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_fetch_transport_calls_total",
		Help: "Transport requests issued by the deduplicator",
	}, []string{"result"})
)
