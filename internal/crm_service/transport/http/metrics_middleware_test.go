package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOperationFor(t *testing.T) {
	tests := map[string]string{
		"/v1/welcome":  "welcome",
		"/v1/recall":   "recall",
		"/v1/remind/":  "remind",
		"/v1/unknown":  operationNone,
		"/health":      operationNone,
		"/welcome":     operationNone,
		"/v1/":         operationNone,
		"/v1/remind/x": operationNone,
	}
	for path, want := range tests {
		assert.Equal(t, want, operationFor(path), path)
	}
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "accepted", outcomeFor(http.StatusAccepted))
	assert.Equal(t, "unauthorized", outcomeFor(http.StatusUnauthorized))
	assert.Equal(t, "unauthorized", outcomeFor(http.StatusForbidden))
	assert.Equal(t, "rejected", outcomeFor(http.StatusBadRequest))
	assert.Equal(t, "failed", outcomeFor(http.StatusServiceUnavailable))
	assert.Equal(t, "other", outcomeFor(http.StatusOK))
}

func TestMetricsMiddleware_CountsNotificationOutcomes(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetricsMiddleware)
	r.Post("/v1/remind", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) })
	r.Post("/v1/recall", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) })
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})

	accepted := testutil.ToFloat64(notificationRequestsTotal.WithLabelValues("remind", "accepted"))
	rejected := testutil.ToFloat64(notificationRequestsTotal.WithLabelValues("recall", "rejected"))
	health := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", operationNone, "200"))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/v1/remind", nil),
		httptest.NewRequest(http.MethodPost, "/v1/remind", nil),
		httptest.NewRequest(http.MethodPost, "/v1/recall", nil),
		httptest.NewRequest(http.MethodGet, "/health", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, accepted+2, testutil.ToFloat64(notificationRequestsTotal.WithLabelValues("remind", "accepted")))
	assert.Equal(t, rejected+1, testutil.ToFloat64(notificationRequestsTotal.WithLabelValues("recall", "rejected")))
	assert.Equal(t, health+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", operationNone, "200")))
}
