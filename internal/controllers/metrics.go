package controllers

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the guard's decision counters. A nil registerer keeps the
// counters alive but unregistered, which tests rely on.
type Metrics struct {
	Decisions *prometheus.CounterVec
	Deletions *prometheus.CounterVec
}

// NewMetrics creates and registers the guard metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardarr",
			Name:      "decisions_total",
			Help:      "Guard run outcomes by decision and reason tag.",
		}, []string{"decision", "reason"}),
		Deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardarr",
			Name:      "deletions_total",
			Help:      "Torrents deleted, by reason tag.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Deletions)
	}
	return m
}
