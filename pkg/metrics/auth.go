package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthMetrics is the Prometheus implementation of shibauth.Metrics.
type AuthMetrics struct {
	authentications *prometheus.CounterVec
	usersCreated    prometheus.Counter
	groupSyncRuns   prometheus.Counter
	groupChanges    *prometheus.CounterVec
}

// NewAuthMetrics creates a Prometheus-backed authentication metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); a nil
// *AuthMetrics is safe to use and records nothing.
func NewAuthMetrics() *AuthMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &AuthMetrics{
		authentications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shibgate_authentications_total",
				Help: "Trusted-header authentication attempts by outcome",
			},
			[]string{"outcome"}, // success, no_credential, unknown_user, disabled, parse_error
		),
		usersCreated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "shibgate_users_created_total",
				Help: "Users auto-created on first login",
			},
		),
		groupSyncRuns: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "shibgate_group_sync_runs_total",
				Help: "Group synchronization passes on authenticated requests",
			},
		),
		groupChanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "shibgate_group_membership_changes_total",
				Help: "Group membership changes applied by synchronization",
			},
			[]string{"op"}, // added, removed
		),
	}
}

// ObserveAuthentication records one authentication attempt by outcome.
func (m *AuthMetrics) ObserveAuthentication(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
}

// ObserveUserCreated records a first-login user creation.
func (m *AuthMetrics) ObserveUserCreated() {
	if m == nil {
		return
	}
	m.usersCreated.Inc()
}

// ObserveGroupSync records one synchronization pass and its changes.
func (m *AuthMetrics) ObserveGroupSync(added, removed int) {
	if m == nil {
		return
	}
	m.groupSyncRuns.Inc()
	if added > 0 {
		m.groupChanges.WithLabelValues("added").Add(float64(added))
	}
	if removed > 0 {
		m.groupChanges.WithLabelValues("removed").Add(float64(removed))
	}
}
