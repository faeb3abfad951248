package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records metadata for status-refresh sweep runs.
type SweepMetrics struct {
	duration *prometheus.HistogramVec
	checked  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewSweepMetrics registers the sweep metrics on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Duration of status-refresh sweep runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})
	checked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_orders_checked",
		Help: "Orders examined by the status-refresh sweep.",
	}, []string{"sweep", "outcome"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_failure",
		Help: "Failed sweep runs.",
	}, []string{"sweep"})
	reg.MustRegister(duration, checked, failure)
	return &SweepMetrics{
		duration: duration,
		checked:  checked,
		failure:  failure,
	}
}

// ObserveDuration records the duration for the named sweep.
func (s *SweepMetrics) ObserveDuration(sweep string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(sweep)).Observe(duration.Seconds())
}

// IncChecked increments the per-outcome order counter for the named sweep.
func (s *SweepMetrics) IncChecked(sweep, outcome string) {
	if s == nil || s.checked == nil {
		return
	}
	s.checked.WithLabelValues(normalizeLabel(sweep), normalizeLabel(outcome)).Inc()
}

// IncFailure increments the failure counter for the named sweep.
func (s *SweepMetrics) IncFailure(sweep string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(sweep)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
