package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// UserSaves counts account writes by operation (create|update) and result.
	UserSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_user_saves_total",
			Help: "Total number of user create and update operations",
		},
		[]string{"operation", "result"},
	)

	// SignUps counts self-registration attempts by outcome
	// (registered|already_registered|disabled|rejected).
	SignUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_sign_ups_total",
			Help: "Total number of self sign-up attempts",
		},
		[]string{"outcome"},
	)

	// PasswordResets counts reset link issuance and redemption by result.
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_password_resets_total",
			Help: "Total number of password reset operations",
		},
		[]string{"stage", "result"},
	)

	// OutgoingEmails counts emails handed to the mailer by kind and result.
	OutgoingEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_outgoing_emails_total",
			Help: "Total number of outgoing account emails",
		},
		[]string{"kind", "result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// RoleChecks counts role gate decisions by role and result
	// (allowed|denied|error).
	RoleChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_role_checks_total",
			Help: "Total number of role gate checks",
		},
		[]string{"role", "result"},
	)

	// BackgroundJobs counts processed background jobs by kind and result
	// (ok|retry|failed).
	BackgroundJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_background_jobs_total",
			Help: "Total number of processed background jobs",
		},
		[]string{"kind", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
