package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_relay_requests_total",
		Help: "REQ subscriptions sent to relays by outcome",
	}, []string{"relay", "result"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nostrly_relay_events_total",
		Help: "Events received from relays before dedupe",
	}, []string{"relay"})

	reqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nostrly_relay_request_duration_seconds",
		Help:    "Time from dial to EOSE or failure for one relay",
		Buckets: prometheus.ExponentialBucketsRange(0.01, 15, 12),
	}, []string{"relay"})
)
