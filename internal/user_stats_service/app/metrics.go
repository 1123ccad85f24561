package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cohortQueriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "user_stats",
			Name:      "cohort_queries_total",
			Help:      "Total number of cohort queries by path and outcome.",
		},
		[]string{"path", "outcome"}, // path: "filter", "raw"; outcome: "ok", "invalid", "backend_error"
	)

	recordsStreamedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "user_stats",
			Name:      "records_streamed_total",
			Help:      "Total number of user records streamed to callers.",
		},
		[]string{"path"},
	)
)
