package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// SyncMetrics records remote cart push attempts.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	pushes   *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_push_duration_seconds",
		Help:    "Duration of remote cart pushes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	pushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_push_total",
		Help: "Remote cart push attempts by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(duration, pushes)
	return &SyncMetrics{
		duration: duration,
		pushes:   pushes,
	}
}

// ObservePush counts a finished push and records how long it took.
func (m *SyncMetrics) ObservePush(outcome string, took time.Duration) {
	if m == nil || m.pushes == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.pushes.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(took.Seconds())
}

// IncSkipped counts a push dropped before it reached the network.
func (m *SyncMetrics) IncSkipped() {
	if m == nil || m.pushes == nil {
		return
	}
	m.pushes.WithLabelValues(OutcomeSkipped).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
