package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choremane",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Outbound API requests attempted.",
		},
		[]string{"method"},
	)

	requestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "choremane",
			Subsystem: "client",
			Name:      "request_failures_total",
			Help:      "Requests that ended in a network failure or error status.",
		},
		[]string{"kind"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "choremane",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Network-level retry attempts.",
		},
	)

	tokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "choremane",
			Subsystem: "client",
			Name:      "token_refreshes_total",
			Help:      "Refresh-token exchanges performed.",
		},
	)
)
