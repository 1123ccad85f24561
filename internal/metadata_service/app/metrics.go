package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	materializeRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "metadata",
			Name:      "materialize_requests_total",
			Help:      "Total number of materialize requests by status.",
		},
		[]string{"status"}, // "success", "error"
	)

	contentsMissingCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "metadata",
			Name:      "contents_missing_total",
			Help:      "Requested content ids that were not found.",
		},
	)
)
