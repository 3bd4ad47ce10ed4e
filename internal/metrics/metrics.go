// Package metrics holds the Prometheus collectors of suitability runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	runsTotal          *prometheus.CounterVec
	runDuration        prometheus.Histogram
	stageDuration      *prometheus.HistogramVec
	lastViability      prometheus.Gauge
	lastTopSites       prometheus.Gauge
	validationWarnings *prometheus.CounterVec
	cbState            *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vento_runs_total",
			Help: "Total suitability runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vento_run_duration_seconds",
			Help:    "Wall time of completed suitability runs.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vento_stage_duration_seconds",
			Help:    "Duration of pipeline stages.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		lastViability: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vento_last_viability_percentage",
			Help: "Viability percentage of the last completed run.",
		}),
		lastTopSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vento_last_top_sites",
			Help: "Candidate site cells selected by the last completed run.",
		}),
		validationWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vento_validation_warnings_total",
			Help: "Input data quality findings by layer.",
		}, []string{"layer"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vento_circuit_breaker_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.stageDuration,
		m.lastViability,
		m.lastTopSites,
		m.validationWarnings,
		m.cbState,
	)
	return m
}

// RunCompleted records a successful run.
func (m *Metrics) RunCompleted(d time.Duration, viability float64, topSites int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues("completed").Inc()
	m.runDuration.Observe(d.Seconds())
	m.lastViability.Set(viability)
	m.lastTopSites.Set(float64(topSites))
}

func (m *Metrics) RunFailed() {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues("failed").Inc()
}

// ObserveStage records how long one pipeline stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ValidationWarning(layer string) {
	if m == nil {
		return
	}
	m.validationWarnings.WithLabelValues(layer).Inc()
}

func (m *Metrics) SetCircuitBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(name).Set(state)
}
