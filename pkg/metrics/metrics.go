package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ena_deposition"

// Metrics are collectors of the deposition.
//
// A nil *Metrics is valid, and records nothing.
type Metrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	probes        *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	rows          *prometheus.GaugeVec
}

// New creates Metrics and registers them to reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Number of sweeps per loop and outcome.",
		}, []string{"loop", "outcome"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweeps per loop.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"loop"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Number of applied status transitions.",
		}, []string{"table", "from", "to"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visibility_probes_total",
			Help:      "Number of visibility lookups per source and result.",
		}, []string{"source", "target", "result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Number of alerts, sent or suppressed by cooldown.",
		}, []string{"condition", "result"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "Number of rows per table and status, as of the last count.",
		}, []string{"table", "status"}),
	}
	reg.MustRegister(m.sweeps, m.sweepDuration, m.transitions, m.probes, m.alerts, m.rows)
	return m
}

// Sweep records a sweep of a loop.
func (m *Metrics) Sweep(loop string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweeps.WithLabelValues(loop, outcome).Inc()
	m.sweepDuration.WithLabelValues(loop).Observe(elapsed.Seconds())
}

// Transition records an applied transition.
func (m *Metrics) Transition(table string, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(table, from, to).Inc()
}

// Probe records a visibility lookup. cached is true when the result is taken from the cache.
func (m *Metrics) Probe(source, target string, cached bool, visible bool) {
	if m == nil {
		return
	}
	result := "invisible"
	if visible {
		result = "visible"
	}
	if cached {
		result = "cached_" + result
	}
	m.probes.WithLabelValues(source, target, result).Inc()
}

// Alert records an alert.
func (m *Metrics) Alert(condition string, sent bool) {
	if m == nil {
		return
	}
	result := "suppressed"
	if sent {
		result = "sent"
	}
	m.alerts.WithLabelValues(condition, result).Inc()
}

// Rows records counts of rows per status of a table.
func (m *Metrics) Rows(table string, counts map[string]int64) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.rows.WithLabelValues(table, status).Set(float64(n))
	}
}
