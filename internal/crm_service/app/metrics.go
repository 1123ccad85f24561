package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsStartedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "runs_started_total",
			Help:      "Notification runs by operation and setup outcome.",
		},
		[]string{"operation", "outcome"}, // outcome: "started", "rejected", "failed"
	)

	runsInFlightGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crm",
			Name:      "runs_in_flight",
			Help:      "Notification runs currently delivering in the background.",
		},
	)

	recordsSkippedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "records_skipped_total",
			Help:      "Cohort records that produced no message.",
		},
		[]string{"operation", "reason"}, // reason: "no_contents", "resolve_failed", "render_failed"
	)

	messagesEnqueuedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "messages_enqueued_total",
			Help:      "Messages placed on the intermediate delivery channel.",
		},
		[]string{"operation"},
	)

	submissionFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "submission_failures_total",
			Help:      "Messages dropped because the delivery run was already closed.",
		},
		[]string{"operation"},
	)

	acksCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "delivery_acks_total",
			Help:      "Delivery acks received by status.",
		},
		[]string{"operation", "status"}, // status: "success", "error"
	)
)
