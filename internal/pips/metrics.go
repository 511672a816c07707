package pips

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rand/pips/internal/sandbox"
)

// Metrics holds the Prometheus instruments for the solve pipeline. A
// nil *Metrics is valid and records nothing, so library users are not
// forced to carry a registry.
type Metrics struct {
	sessionsTotal    *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	iterationsTotal  prometheus.Counter
	executionSeconds prometheus.Histogram
	executionsTotal  *prometheus.CounterVec
}

// NewMetrics registers the solver instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pips",
			Name:      "sessions_total",
			Help:      "Solve sessions by mode and final status.",
		}, []string{"mode", "status"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pips",
			Name:      "active_sessions",
			Help:      "Sessions currently running.",
		}),
		iterationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pips",
			Name:      "iterations_total",
			Help:      "Code solver iterations started.",
		}),
		executionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pips",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution wall-clock time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pips",
			Name:      "executions_total",
			Help:      "Sandbox executions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionFinished(mode string, status SessionStatus) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessionsTotal.WithLabelValues(mode, string(status)).Inc()
}

func (m *Metrics) iterationStarted() {
	if m == nil {
		return
	}
	m.iterationsTotal.Inc()
}

func (m *Metrics) executionFinished(res sandbox.Result) {
	if m == nil {
		return
	}
	m.executionSeconds.Observe(res.Duration.Seconds())
	outcome := "ok"
	switch {
	case res.TimedOut:
		outcome = "timeout"
	case res.Error != "":
		outcome = "error"
	}
	m.executionsTotal.WithLabelValues(outcome).Inc()
}
