package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts authentication outcomes.
type Metrics struct {
	logins        *prometheus.CounterVec
	registrations *prometheus.CounterVec
}

// NewMetrics registers the auth counters on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_logins_total",
			Help: "Login attempts by method and result.",
		}, []string{"method", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_auth_registrations_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.logins, m.registrations)
	}
	return m
}

func (m *Metrics) login(method, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, result).Inc()
}

func (m *Metrics) registration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}
