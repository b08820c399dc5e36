package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sbsync"

// SyncMetrics records outcomes of reconciliation workflows and event handlers.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	requeue  *prometheus.CounterVec
}

// NewSyncMetrics registers the workflow metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "workflow_duration_seconds",
		Help:      "Duration of sync workflows in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"workflow"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_success_total",
		Help:      "Successful sync workflow executions.",
	}, []string{"workflow"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workflow_failure_total",
		Help:      "Failed sync workflow executions.",
	}, []string{"workflow"})
	requeue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_requeue_total",
		Help:      "Events handed back to Pub/Sub for redelivery.",
	}, []string{"event_type"})
	reg.MustRegister(duration, success, failure, requeue)
	return &SyncMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		requeue:  requeue,
	}
}

// Observe records duration plus success or failure for the named workflow.
func (m *SyncMetrics) Observe(workflow string, started time.Time, err error) {
	if m == nil || m.duration == nil {
		return
	}
	label := normalizeLabel(workflow)
	m.duration.WithLabelValues(label).Observe(time.Since(started).Seconds())
	if err != nil {
		m.failure.WithLabelValues(label).Inc()
		return
	}
	m.success.WithLabelValues(label).Inc()
}

// IncRequeue counts a nacked event.
func (m *SyncMetrics) IncRequeue(eventType string) {
	if m == nil || m.requeue == nil {
		return
	}
	m.requeue.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
