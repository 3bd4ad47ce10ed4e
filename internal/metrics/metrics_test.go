package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunCompleted(2*time.Second, 61.5, 12)
	m.RunCompleted(time.Second, 40, 3)
	m.RunFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.lastViability))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lastTopSites))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runDuration))
}

func TestStagesAndWarnings(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStage("load", 10*time.Millisecond)
	m.ObserveStage("score", 5*time.Millisecond)
	m.ValidationWarning("wind")
	m.ValidationWarning("wind")
	m.SetCircuitBreakerState("remote-grid", 2)

	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.validationWarnings.WithLabelValues("wind")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cbState.WithLabelValues("remote-grid")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunCompleted(time.Second, 50, 1)
		m.RunFailed()
		m.ObserveStage("load", time.Second)
		m.ValidationWarning("slope")
		m.SetCircuitBreakerState("remote-grid", 0)
	})
}
