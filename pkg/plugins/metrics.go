package plugins

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics carries the registry's prometheus instruments. A nil *Metrics is
// valid and records nothing, so callers who do not scrape pay no cost.
type Metrics struct {
	executions *prometheus.CounterVec
	violations *prometheus.CounterVec
	plugins    prometheus.Gauge
}

// NewMetrics builds and registers the plugin metrics on reg. Pass
// prometheus.DefaultRegisterer for the usual global setup.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscillo",
			Subsystem: "plugins",
			Name:      "executions_total",
			Help:      "Plugin executions by outcome (success, error, violation).",
		}, []string{"plugin", "outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscillo",
			Subsystem: "plugins",
			Name:      "violations_total",
			Help:      "Sandbox security violations by kind.",
		}, []string{"plugin", "kind"}),
		plugins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "oscillo",
			Subsystem: "plugins",
			Name:      "registered",
			Help:      "Number of plugins known to the registry.",
		}),
	}
	reg.MustRegister(m.executions, m.violations, m.plugins)
	return m
}

func (m *Metrics) observeExecution(pluginID, outcome string) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(pluginID, outcome).Inc()
}

func (m *Metrics) observeViolation(pluginID, kind string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(pluginID, kind).Inc()
}

func (m *Metrics) setPluginCount(n int) {
	if m == nil {
		return
	}
	m.plugins.Set(float64(n))
}
