package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/metrics"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/sensor"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns queued readings, then repeats the last one.
type scripted struct {
	values []float64
	errs   []error
	i      int
}

func (s *scripted) ReadPressure() (float64, error) {
	i := min(s.i, len(s.values)-1)
	s.i++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.values[i], err
}

type fixture struct {
	engine  *Engine
	clk     *clock.Manual
	counter *pulse.Counter
	store   *devconf.Store
	vol     *storage.Dir
	ring    *diag.Ring
}

func newFixture(t *testing.T, pressure sensor.Pressure, mode sample.Mode) *fixture {
	t.Helper()

	clk := &clock.Manual{}
	clk.Set(1)
	ring := diag.New(clk)
	log := diag.NewLogger(ring, io.Discard)
	vol := storage.NewDir(t.TempDir())
	fix := gps.Static{Valid: true, Lat: 54.687157, Lng: 25.279652}

	store := devconf.NewStore(vol, log)
	_, err := store.Apply(devconf.ModeUpdate(mode))
	require.NoError(t, err)

	counter := pulse.NewCounter(nil)
	events := eventlog.New(vol, fix, clock.Fixed{T: time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC)}, log, eventlog.DefaultOptions())

	e := New(Deps{
		Clock:    clk,
		Pressure: pressure,
		Counter:  counter,
		Config:   store,
		Events:   events,
		GPS:      fix,
		Metrics:  metrics.New(),
		Log:      log,
	}, Options{})

	return &fixture{engine: e, clk: clk, counter: counter, store: store, vol: vol, ring: ring}
}

func (f *fixture) records(t *testing.T, mode sample.Mode) []eventlog.Record {
	t.Helper()
	name := eventlog.DefaultOptions().FileName(mode)
	if !f.vol.Exists(name) {
		return nil
	}
	records, _, err := eventlog.ReadRecords(f.vol, name)
	require.NoError(t, err)
	return records
}

func (f *fixture) diagnostics(prefix string) int {
	n := 0
	for _, r := range f.ring.Snapshot() {
		if strings.HasPrefix(r.Text, prefix) {
			n++
		}
	}
	return n
}

func TestStep_PressureAnomalyLogged(t *testing.T) {
	f := newFixture(t, &scripted{values: []float64{1000, 1000, 1000, 1000, 1000, 1100}}, sample.ModePressure)

	assert.False(t, f.engine.CurrentReading().Valid)

	for range 5 {
		f.engine.Step()
		f.clk.Advance(100)
	}
	r := f.engine.CurrentReading()
	require.True(t, r.Valid)
	assert.False(t, r.Anomalous)
	assert.Equal(t, 1000.0, r.Average)
	assert.InDelta(t, 1050.0, r.Threshold, 1e-9)
	assert.Empty(t, f.records(t, sample.ModePressure))

	f.engine.Step()
	r = f.engine.CurrentReading()
	assert.True(t, r.Anomalous)
	assert.Equal(t, 1100.0, r.Current)
	assert.InDelta(t, 6100.0/6, r.Average, 1e-9)

	records := f.records(t, sample.ModePressure)
	require.Len(t, records, 1)
	assert.Equal(t, 1100.0, records[0].Value)
	assert.Equal(t, 54.687157, records[0].Lat)
	assert.Equal(t, 1, f.diagnostics("Anomaly"))

	// Every further anomalous pressure sample is logged.
	f.engine.Step()
	f.engine.Step()
	assert.Len(t, f.records(t, sample.ModePressure), 3)
	assert.Equal(t, []float64{1000, 1000, 1000, 1000, 1000, 1100, 1100, 1100}, f.engine.History(sample.ModePressure))
}

func TestStep_SensorNotInitialized(t *testing.T) {
	notInit := sensor.ErrNotInitialized
	f := newFixture(t, &scripted{
		values: []float64{0, 0, 0, 1000},
		errs:   []error{notInit, notInit, notInit, nil},
	}, sample.ModePressure)

	for range 3 {
		f.engine.Step()
	}
	assert.False(t, f.engine.CurrentReading().Valid)
	assert.Empty(t, f.engine.History(sample.ModePressure))
	assert.Equal(t, 1, f.diagnostics("WARNING: Pressure sensor unavailable"))

	f.engine.Step()
	assert.True(t, f.engine.CurrentReading().Valid)
	assert.Equal(t, 1, f.diagnostics("Pressure sensor available"))
}

func TestStep_NonPositiveReadingSkipped(t *testing.T) {
	f := newFixture(t, &scripted{values: []float64{1000, 0, -5, 1000}}, sample.ModePressure)

	for range 4 {
		f.engine.Step()
	}
	assert.Equal(t, []float64{1000, 1000}, f.engine.History(sample.ModePressure))
	assert.Equal(t, 1, f.diagnostics("WARNING: Invalid pressure reading"))
	assert.Equal(t, 1, f.diagnostics("Pressure sensor available"))
}

func TestStep_StuckSensorDoesNotFlushDiagnostics(t *testing.T) {
	values := []float64{1000}
	for range diag.Capacity + 50 {
		values = append(values, 0)
	}
	f := newFixture(t, &scripted{values: append(values, 1000, 0)}, sample.ModePressure)
	f.ring.Record("storage marker")

	for range len(values) + 2 {
		f.engine.Step()
	}
	assert.Equal(t, 1, f.diagnostics("storage marker"))
	// One warning per outage: the stuck run and the zero after recovery.
	assert.Equal(t, 2, f.diagnostics("WARNING: Invalid pressure reading"))
	assert.Equal(t, []float64{1000, 1000}, f.engine.History(sample.ModePressure))
}

func TestStep_FlowRateAndRateLimit(t *testing.T) {
	f := newFixture(t, sensor.Absent{}, sample.ModeFlow)

	// 75 pulses per second at 7.5 pulses per L/min is 10 L/min.
	for range 5 {
		f.counter.Add(75)
		f.clk.Advance(1000)
		f.engine.Step()
	}
	r := f.engine.CurrentReading()
	require.True(t, r.Valid)
	assert.Equal(t, sample.ModeFlow, r.Mode)
	assert.InDelta(t, 10.0, r.Current, 1e-9)
	assert.False(t, r.Anomalous)

	// Calls in between calculator actions change nothing.
	f.clk.Advance(500)
	f.engine.Step()
	assert.Equal(t, r, f.engine.CurrentReading())

	f.counter.Add(300)
	f.clk.Advance(500)
	f.engine.Step()
	r = f.engine.CurrentReading()
	assert.InDelta(t, 40.0, r.Current, 1e-9)
	assert.True(t, r.Anomalous)
	assert.Len(t, f.records(t, sample.ModeFlow), 1)

	// A second anomaly one second later is rate limited.
	f.counter.Add(600)
	f.clk.Advance(1000)
	f.engine.Step()
	assert.True(t, f.engine.CurrentReading().Anomalous)
	assert.Len(t, f.records(t, sample.ModeFlow), 1)

	// The pressure sensor is never polled in flow mode.
	assert.Equal(t, 0, f.diagnostics("WARNING: Pressure sensor"))
}

func TestStep_ModeSwitch(t *testing.T) {
	f := newFixture(t, &scripted{values: []float64{1000}}, sample.ModePressure)

	f.engine.Step()
	assert.Equal(t, sample.ModePressure, f.engine.CurrentReading().Mode)

	_, err := f.store.Apply(devconf.ModeUpdate(sample.ModeFlow))
	require.NoError(t, err)
	assert.Equal(t, sample.ModeFlow, f.engine.CurrentReading().Mode)
	assert.False(t, f.engine.CurrentReading().Valid)

	f.counter.Add(15)
	f.clk.Advance(1000)
	f.engine.Step()
	assert.InDelta(t, 2.0, f.engine.CurrentReading().Current, 1e-9)
	assert.True(t, f.engine.Reading(sample.ModePressure).Valid)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, &scripted{values: []float64{1000}}, sample.ModePressure)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	assert.Eventually(t, func() bool { return f.engine.Reading(sample.ModePressure).Valid }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}
