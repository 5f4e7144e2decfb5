package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "os_failover"

// Metrics holds the daemon's Prometheus collectors, backed by a
// dedicated registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ProbesTotal      *prometheus.CounterVec
	ProbeDuration    *prometheus.HistogramVec
	HealthState      *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec
	QueriesTotal     *prometheus.CounterVec
	AnswersTotal     *prometheus.CounterVec
	ThrottledTotal   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Health probes performed, by check and result.",
		}, []string{"check", "result"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Health probe round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),
		HealthState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_state",
			Help:      "Current health state per check (1 healthy, 0 unhealthy).",
		}, []string{"check"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Health state flips, by check and resulting state.",
		}, []string{"check", "to"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_queries_total",
			Help:      "DNS questions handled, by zone and outcome.",
		}, []string{"zone", "outcome"}),
		AnswersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_answers_total",
			Help:      "Answers served, by zone and origin role.",
		}, []string{"zone", "role"}),
		ThrottledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_throttled_total",
			Help:      "Queries refused by the response rate limiter.",
		}),
	}

	m.registry.MustRegister(
		m.ProbesTotal,
		m.ProbeDuration,
		m.HealthState,
		m.StateTransitions,
		m.QueriesTotal,
		m.AnswersTotal,
		m.ThrottledTotal,
	)
	return m
}

// Handler exposes the registry for the admin server.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
