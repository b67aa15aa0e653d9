package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAdminHandlers(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	broken := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name         string
		path         string
		checks       map[string]Pinger
		expectedCode int
		expectedBody string
	}{
		{
			name:         "Health",
			path:         "/healthz",
			expectedCode: http.StatusOK,
			expectedBody: "healthy",
		},
		{
			name:         "Ready",
			path:         "/readyz",
			checks:       map[string]Pinger{"postgres": healthy},
			expectedCode: http.StatusOK,
			expectedBody: "ready",
		},
		{
			name:         "Not Ready",
			path:         "/readyz",
			checks:       map[string]Pinger{"postgres": healthy, "redis": broken},
			expectedCode: http.StatusServiceUnavailable,
			expectedBody: "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandlers(tt.checks, prometheus.NewRegistry(), zaptest.NewLogger(t))

			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedBody, body["status"])
		})
	}
}

func TestAdminHandlers_ReadinessReportsFailingChecks(t *testing.T) {
	broken := PingFunc(func(context.Context) error { return errors.New("connection refused") })
	h := NewAdminHandlers(map[string]Pinger{"redis": broken}, prometheus.NewRegistry(), nil)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body struct {
		Failing map[string]string `json:"failing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Failing)
}

func TestAdminHandlers_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "cardguard_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewAdminHandlers(nil, reg, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cardguard_test_total 1")
}

func TestAdminHandlers_MethodNotAllowed(t *testing.T) {
	h := NewAdminHandlers(nil, prometheus.NewRegistry(), zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
