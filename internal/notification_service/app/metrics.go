package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notification",
			Name:      "messages_dispatched_total",
			Help:      "Total number of messages dispatched by kind and status.",
		},
		[]string{"kind", "status"}, // status: "success", "error"
	)

	dispatchDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "notification",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handing one message to its channel, including throttling.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	openStreamsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "notification",
			Name:      "open_streams",
			Help:      "Number of delivery streams currently being served.",
		},
	)
)
