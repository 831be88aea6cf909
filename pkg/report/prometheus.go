package report

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusPublisher mirrors the latest batch of every agent as gauges.
// Metrics missing from an agent's latest batch are removed, not zeroed.
type PrometheusPublisher struct {
	metric *prometheus.GaugeVec
}

// NewPrometheusPublisher registers the gauge on reg
func NewPrometheusPublisher(reg prometheus.Registerer) *PrometheusPublisher {
	return &PrometheusPublisher{
		metric: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quasar_resque_metric",
				Help: "Latest value reported by a Resque agent",
			},
			[]string{"agent", "metric", "unit"},
		),
	}
}

// Publish implements Publisher
func (p *PrometheusPublisher) Publish(_ context.Context, b *Batch) error {
	p.metric.DeletePartialMatch(prometheus.Labels{"agent": b.Agent})
	for _, m := range b.Metrics {
		p.metric.WithLabelValues(b.Agent, m.Name, m.Unit).Set(m.Value)
	}
	return nil
}

// Forget removes every series of agent
func (p *PrometheusPublisher) Forget(agent string) {
	p.metric.DeletePartialMatch(prometheus.Labels{"agent": agent})
}

// Poll outcomes recorded by PollMetrics
const (
	OutcomeReported = "reported"
	OutcomeDown     = "down"
	OutcomeError    = "error"
)

// PollMetrics tracks the scheduler side of every poll
type PollMetrics struct {
	polls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	agents   prometheus.Gauge
}

// NewPollMetrics registers the poll counters on reg
func NewPollMetrics(reg prometheus.Registerer) *PollMetrics {
	factory := promauto.With(reg)
	return &PollMetrics{
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quasar_resque_polls_total",
				Help: "Total number of poll cycles by outcome",
			},
			[]string{"agent", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quasar_resque_poll_duration_seconds",
				Help:    "Poll cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		agents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quasar_resque_agents",
				Help: "Number of registered agents",
			},
		),
	}
}

// ObservePoll records one finished poll
func (m *PollMetrics) ObservePoll(agent, outcome string, d time.Duration) {
	m.polls.WithLabelValues(agent, outcome).Inc()
	m.duration.WithLabelValues(agent).Observe(d.Seconds())
}

// SetAgents records the number of registered agents
func (m *PollMetrics) SetAgents(n int) {
	m.agents.Set(float64(n))
}

var _ Publisher = (*PrometheusPublisher)(nil)
