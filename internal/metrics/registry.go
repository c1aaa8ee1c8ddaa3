package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric definitions for the security pipeline

var (
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secpipeline",
			Subsystem: "risk",
			Name:      "evaluations_total",
			Help:      "Total number of risk evaluations",
		},
		[]string{"threat_level", "blocked"},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "secpipeline",
			Subsystem: "risk",
			Name:      "evaluation_duration_seconds",
			Help:      "Risk evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~6.5s
		},
	)

	tokenOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secpipeline",
			Subsystem: "token",
			Name:      "operations_total",
			Help:      "Token lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	denylistSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "secpipeline",
			Subsystem: "token",
			Name:      "denylist_entries",
			Help:      "Resident revoked-token denylist entries",
		},
	)

	auditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secpipeline",
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Audit events logged",
		},
		[]string{"category", "severity", "outcome"},
	)

	auditPendingWrites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "secpipeline",
			Subsystem: "audit",
			Name:      "pending_writes",
			Help:      "Audit events queued or awaiting durable-write retry",
		},
	)

	anonymizationSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "secpipeline",
			Subsystem: "privacy",
			Name:      "suppressed_records_total",
			Help:      "Records suppressed by anonymization passes",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secpipeline",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "handler", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "secpipeline",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"method", "handler"},
	)
)

// RecordEvaluation tracks one risk evaluation
func RecordEvaluation(threatLevel string, blocked bool, duration time.Duration) {
	b := "false"
	if blocked {
		b = "true"
	}
	evaluationsTotal.WithLabelValues(threatLevel, b).Inc()
	evaluationDuration.Observe(duration.Seconds())
}

// RecordTokenOperation tracks one token lifecycle call
func RecordTokenOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	tokenOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// SetDenylistSize updates the denylist gauge
func SetDenylistSize(n int) {
	denylistSize.Set(float64(n))
}

// RecordAuditEvent tracks one logged audit event
func RecordAuditEvent(category, severity, outcome string) {
	auditEventsTotal.WithLabelValues(category, severity, outcome).Inc()
}

// SetAuditPendingWrites updates the pending-write gauge
func SetAuditPendingWrites(n int) {
	auditPendingWrites.Set(float64(n))
}

// RecordSuppressedRecords tracks anonymization suppression
func RecordSuppressedRecords(n int) {
	anonymizationSuppressed.Add(float64(n))
}

// RecordHTTPRequest tracks one API request
func RecordHTTPRequest(method, handler, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, handler, status).Inc()
	httpRequestDuration.WithLabelValues(method, handler).Observe(duration.Seconds())
}
