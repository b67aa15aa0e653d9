package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// PingContext calls f(ctx)
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// AdminHandlers serves health, readiness and metrics for operators
type AdminHandlers struct {
	checks   map[string]Pinger
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewAdminHandlers creates admin handlers. checks are pinged on /readyz.
func NewAdminHandlers(checks map[string]Pinger, gatherer prometheus.Gatherer, logger *zap.Logger) *AdminHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandlers{
		checks:   checks,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Router builds the admin router
func (h *AdminHandlers) Router() *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers the admin routes on router
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.healthCheck).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.readinessCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

func (h *AdminHandlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "cardguard",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *AdminHandlers) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	failing := make(map[string]string)
	for name, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			failing[name] = err.Error()
		}
	}

	if len(failing) > 0 {
		h.logger.Warn("readiness check failed", zap.Any("failing", failing))
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "not ready",
			"failing": failing,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
	})
}

func (h *AdminHandlers) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
