package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector contains all metrics for the card control service.
// A nil *Collector is valid and records nothing.
type Collector struct {
	DecisionsTotal        *prometheus.CounterVec
	ViolationsTotal       *prometheus.CounterVec
	TransitionsTotal      *prometheus.CounterVec
	AuthorizationDuration prometheus.Histogram
	LockFailuresTotal     prometheus.Counter
	PublishFailuresTotal  prometheus.Counter
}

// NewCollector creates the collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardguard_authorization_decisions_total",
			Help: "The total number of transaction attempts by decision",
		}, []string{"decision"}),
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardguard_control_violations_total",
			Help: "The total number of control violations by reason",
		}, []string{"reason"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardguard_status_transitions_total",
			Help: "The total number of status transitions by entity and target status",
		}, []string{"kind", "status"}),
		AuthorizationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardguard_authorization_duration_seconds",
			Help:    "The duration of transaction attempts in seconds, lock wait included",
			Buckets: prometheus.DefBuckets,
		}),
		LockFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardguard_card_lock_failures_total",
			Help: "The total number of card locks that could not be acquired",
		}),
		PublishFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cardguard_event_publish_failures_total",
			Help: "The total number of transition event batches that failed to publish",
		}),
	}
}

// ObserveDecision records a decision, its violations and its duration
func (c *Collector) ObserveDecision(decision string, violations []string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.DecisionsTotal.WithLabelValues(decision).Inc()
	for _, v := range violations {
		c.ViolationsTotal.WithLabelValues(v).Inc()
	}
	c.AuthorizationDuration.Observe(elapsed.Seconds())
}

// ObserveTransition records a status transition
func (c *Collector) ObserveTransition(kind, status string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(kind, status).Inc()
}

// LockFailed records a failed lock acquisition
func (c *Collector) LockFailed() {
	if c == nil {
		return
	}
	c.LockFailuresTotal.Inc()
}

// PublishFailed records a failed event publish
func (c *Collector) PublishFailed() {
	if c == nil {
		return
	}
	c.PublishFailuresTotal.Inc()
}
