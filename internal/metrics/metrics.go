package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Access metrics
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lacoctelera_access_decisions_total",
			Help: "Total number of token authorization decisions",
		},
		[]string{"outcome"},
	)

	AccessDecisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lacoctelera_access_decision_duration_seconds",
			Help:    "Time taken to authorize a presented token",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
	)

	// Token metrics
	TokenIssuanceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lacoctelera_token_issuance_attempts_total",
			Help: "Total number of token issuance attempts",
		},
		[]string{"result"},
	)

	TokenCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lacoctelera_token_collisions_total",
			Help: "Total number of generated tokens that collided with a stored token",
		},
	)

	TokensRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lacoctelera_tokens_revoked_total",
			Help: "Total number of tokens revoked",
		},
	)

	// Workflow metrics
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lacoctelera_workflow_transitions_total",
			Help: "Total number of account lifecycle transitions",
		},
		[]string{"event"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lacoctelera_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"kind", "status"},
	)

	NotificationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lacoctelera_notification_retries_total",
			Help: "Total number of notification delivery retries",
		},
	)

	// Audit metrics
	AuditRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lacoctelera_audit_records_total",
			Help: "Total number of audit records archived",
		},
		[]string{"status"},
	)

	// Expiry job metrics
	ExpiryWarningsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lacoctelera_expiry_warnings_total",
			Help: "Total number of token expiry warnings queued",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lacoctelera_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
