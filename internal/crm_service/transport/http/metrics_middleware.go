package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const operationNone = "none"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests served by the CRM gateway.",
		},
		[]string{"method", "path", "operation", "status_code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "Duration of CRM gateway HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "operation"},
	)

	notificationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_notification_requests_total",
			Help: "Welcome, recall and remind requests by outcome.",
		},
		[]string{"operation", "outcome"},
	)
)

var operations = map[string]struct{}{
	"welcome": {},
	"recall":  {},
	"remind":  {},
}

// operationFor maps a request path to the orchestrator operation it triggers.
// The raw path is used because unauthenticated requests never reach the /v1
// subrouter and so carry no full route pattern.
func operationFor(path string) string {
	name, ok := strings.CutPrefix(path, "/v1/")
	if !ok {
		return operationNone
	}
	if _, known := operations[strings.TrimSuffix(name, "/")]; !known {
		return operationNone
	}
	return strings.TrimSuffix(name, "/")
}

func outcomeFor(status int) string {
	switch {
	case status == http.StatusAccepted:
		return "accepted"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "unauthorized"
	case status >= http.StatusInternalServerError:
		return "failed"
	case status >= http.StatusBadRequest:
		return "rejected"
	default:
		return "other"
	}
}

// PrometheusMetricsMiddleware records request counts and latency per route
// pattern, plus the outcome of every notification operation.
func PrometheusMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		op := operationFor(r.URL.Path)

		httpRequestDurationSeconds.WithLabelValues(r.Method, path, op).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, op, strconv.Itoa(status)).Inc()
		if op != operationNone {
			notificationRequestsTotal.WithLabelValues(op, outcomeFor(status)).Inc()
		}
	})
}
