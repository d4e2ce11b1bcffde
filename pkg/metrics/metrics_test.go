package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itohio/aspol/pkg/sample"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveReading(t *testing.T) {
	m := New()

	m.ObserveReading(sample.Reading{Mode: sample.ModeFlow, Current: 30, Average: 12, Threshold: 14.4, Anomalous: true, Valid: true})
	m.ObserveReading(sample.Reading{Mode: sample.ModeFlow, Current: 99, Anomalous: true})

	assert.Equal(t, 30.0, testutil.ToFloat64(m.reading.WithLabelValues("FLOW", "current")))
	assert.Equal(t, 14.4, testutil.ToFloat64(m.reading.WithLabelValues("FLOW", "threshold")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies.WithLabelValues("FLOW")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.Event(sample.ModePressure, "written")
	m.Event(sample.ModePressure, "written")
	m.Event(sample.ModeFlow, "rate_limited")
	m.SensorError(sample.ModePressure)
	m.Pulses(15)
	m.Pulses(5)
	m.SetFix(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("PRESSURE", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("FLOW", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sensorErrors.WithLabelValues("PRESSURE")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.pulses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gpsFix))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReading(sample.Reading{Valid: true})
		m.Event(sample.ModeFlow, "written")
		m.SensorError(sample.ModeFlow)
		m.Pulses(1)
		m.SetFix(false)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.Pulses(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "aspol_flow_pulses_total 3"))
}
