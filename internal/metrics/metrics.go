// Package metrics holds the Prometheus collectors for study sessions and
// model calls. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "onenight"

// Model call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

type Metrics struct {
	modelRequests   *prometheus.CounterVec
	modelLatency    *prometheus.HistogramVec
	workspaces      prometheus.Gauge
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	materials       *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		modelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Generative model requests by operation (digest, seed, chat, quiz) and outcome.",
		}, []string{"operation", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency of generative model requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"operation"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces_active",
			Help:      "Workspaces currently held in memory.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "study_sessions_started_total",
			Help:      "Study sessions that entered the studying phase.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "study_sessions_ended_total",
			Help:      "Study sessions that ended, by outcome (finished, stopped).",
		}, []string{"outcome"}),
		materials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materials_ingested_total",
			Help:      "Ingested study materials by result (ok, skipped, converted).",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.modelRequests,
			m.modelLatency,
			m.workspaces,
			m.sessionsStarted,
			m.sessionsEnded,
			m.materials,
		)
	}
	return m
}

func (m *Metrics) ObserveModelRequest(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.modelRequests.WithLabelValues(operation, outcome).Inc()
	if took > 0 {
		m.modelLatency.WithLabelValues(operation).Observe(took.Seconds())
	}
}

func (m *Metrics) SetWorkspaces(n int) {
	if m == nil {
		return
	}
	m.workspaces.Set(float64(n))
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MaterialIngested(result string) {
	if m == nil {
		return
	}
	m.materials.WithLabelValues(result).Inc()
}
