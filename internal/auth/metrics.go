package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the auth collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	tokenVerifications *prometheus.CounterVec
	logins             *prometheus.CounterVec
	authorizations     *prometheus.CounterVec
	hashDuration       *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_token_verifications_total",
				Help: "Token verifications by token kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_login_attempts_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		authorizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authcore_authorizations_total",
				Help: "Authorization decisions by outcome.",
			},
			[]string{"outcome"},
		),
		hashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authcore_password_hash_duration_seconds",
				Help:    "Time spent in bcrypt hash and verify.",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.tokenVerifications, m.logins, m.authorizations, m.hashDuration)
	}
	return m
}

func (m *Metrics) tokenVerified(kind, outcome string) {
	if m == nil {
		return
	}
	m.tokenVerifications.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) authorization(outcome string) {
	if m == nil {
		return
	}
	m.authorizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) timeHash(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.hashDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
