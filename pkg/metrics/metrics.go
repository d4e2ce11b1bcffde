// Package metrics exports engine activity as Prometheus metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/itohio/aspol/pkg/sample"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aspol"

// Metrics holds the collectors of one engine.
type Metrics struct {
	reg *prometheus.Registry

	reading      *prometheus.GaugeVec
	anomalies    *prometheus.CounterVec
	events       *prometheus.CounterVec
	sensorErrors *prometheus.CounterVec
	pulses       prometheus.Counter
	gpsFix       prometheus.Gauge
}

// New creates the collectors on a private registry, along with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest evaluated reading per mode (hPa or L/min).",
		}, []string{"mode", "kind"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Readings above the dynamic threshold.",
		}, []string{"mode"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Anomalies handed to the event logger, by outcome.",
		}, []string{"mode", "outcome"}),
		sensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Sensor reads skipped because the sensor was unavailable.",
		}, []string{"mode"}),
		pulses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_pulses_total",
			Help:      "Flow sensor pulses drained from the counter.",
		}),
		gpsFix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gps_fix",
			Help:      "1 when the GPS has a valid fix.",
		}),
	}

	m.reg.MustRegister(
		m.reading, m.anomalies, m.events, m.sensorErrors, m.pulses, m.gpsFix,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveReading records an evaluated reading.
func (m *Metrics) ObserveReading(r sample.Reading) {
	if m == nil || !r.Valid {
		return
	}
	mode := r.Mode.String()
	m.reading.WithLabelValues(mode, "current").Set(r.Current)
	m.reading.WithLabelValues(mode, "average").Set(r.Average)
	m.reading.WithLabelValues(mode, "threshold").Set(r.Threshold)
	if r.Anomalous {
		m.anomalies.WithLabelValues(mode).Inc()
	}
}

// Event records the outcome of an event log attempt.
func (m *Metrics) Event(mode sample.Mode, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(mode.String(), outcome).Inc()
}

// SensorError records a skipped sensor read.
func (m *Metrics) SensorError(mode sample.Mode) {
	if m == nil {
		return
	}
	m.sensorErrors.WithLabelValues(mode.String()).Inc()
}

// Pulses records drained flow pulses.
func (m *Metrics) Pulses(n uint32) {
	if m == nil {
		return
	}
	m.pulses.Add(float64(n))
}

// SetFix records GPS fix validity.
func (m *Metrics) SetFix(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.gpsFix.Set(1)
	} else {
		m.gpsFix.Set(0)
	}
}
