// Package engine runs the sampling and anomaly control loop.
package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/metrics"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/itohio/aspol/pkg/ring"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/sensor"
	"github.com/itohio/aspol/pkg/threshold"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultLoopDelay is the pause between two iterations.
	DefaultLoopDelay = 100 * time.Millisecond
	// DefaultHistory is the capacity of each rolling history.
	DefaultHistory = ring.DefaultCapacity
)

// Options tune the loop.
type Options struct {
	LoopDelay    time.Duration
	History      int
	FlowInterval time.Duration
	Calibration  float64
}

// Deps are the collaborators of the loop. Metrics may be nil.
type Deps struct {
	Clock    clock.Monotonic
	Pressure sensor.Pressure
	Counter  *pulse.Counter
	Config   *devconf.Store
	Events   *eventlog.Logger
	GPS      gps.Source
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger
}

// Engine owns the histories, the flow calculator and the event logger.
// Step must only be called from one goroutine; the published readings may
// be read from any goroutine.
type Engine struct {
	Deps
	delay time.Duration

	pressureHist *ring.Samples
	flowHist     *ring.Samples
	evaluator    *threshold.Evaluator
	calc         *pulse.Calculator
	sensorDown   bool

	mu        sync.RWMutex
	readings  map[sample.Mode]sample.Reading
	histories map[sample.Mode][]float64
}

// New creates an engine.
func New(deps Deps, opts Options) *Engine {
	if opts.LoopDelay <= 0 {
		opts.LoopDelay = DefaultLoopDelay
	}
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}

	e := &Engine{
		Deps:         deps,
		delay:        opts.LoopDelay,
		pressureHist: ring.New(opts.History),
		flowHist:     ring.New(opts.History),
		readings:     make(map[sample.Mode]sample.Reading),
		histories:    make(map[sample.Mode][]float64),
	}
	e.evaluator = threshold.NewEvaluator(e.pressureHist)
	e.calc = pulse.NewCalculator(deps.Counter, e.flowHist, opts.Calibration, uint64(opts.FlowInterval/time.Millisecond))
	e.calc.Reset(deps.Clock.Millis())
	return e
}

// Run steps the loop until ctx is done. An iteration in progress always
// completes.
func (e *Engine) Run(ctx context.Context) error {
	v := e.Config.Get()
	e.Log.WithFields(logrus.Fields{
		"mode":  v.Mode,
		"delay": e.delay,
	}).Info("Engine started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.Log.Info("Engine stopped")
			return ctx.Err()
		case <-timer.C:
			e.Step()
			timer.Reset(e.delay)
		}
	}
}

// Step runs one iteration: the flow calculator, then read, push, evaluate
// and log for the active mode.
func (e *Engine) Step() {
	now := e.Clock.Millis()
	v := e.Config.Get()

	if rate, ok := e.calc.Tick(now); ok {
		e.Metrics.Pulses(e.calc.LastCount())
		e.publishHistory(sample.ModeFlow, e.flowHist)
		if v.Mode == sample.ModeFlow {
			// The calculator already pushed rate into the flow history.
			res := threshold.Evaluate(rate, e.flowHist, v.FlowPct)
			e.handle(sample.ModeFlow, res, now)
		}
	}

	if v.Mode == sample.ModePressure {
		e.stepPressure(now, v.PressurePct)
	}

	e.Metrics.SetFix(e.GPS.Fix().Valid)
}

func (e *Engine) stepPressure(now uint64, pct float64) {
	raw, err := e.Pressure.ReadPressure()
	if err != nil {
		e.pressureDown(e.Log.WithError(err), "Pressure sensor unavailable")
		return
	}

	res, err := e.evaluator.Observe(raw, pct)
	if err != nil {
		e.pressureDown(e.Log.WithField("hpa", raw), "Invalid pressure reading")
		return
	}
	if e.sensorDown {
		e.sensorDown = false
		e.Log.Info("Pressure sensor available")
	}

	e.publishHistory(sample.ModePressure, e.pressureHist)
	e.handle(sample.ModePressure, res, now)
}

// pressureDown counts every failed read but logs only the first one of an
// outage, so a dead sensor cannot flush the diagnostic ring.
func (e *Engine) pressureDown(entry *logrus.Entry, msg string) {
	e.Metrics.SensorError(sample.ModePressure)
	if e.sensorDown {
		return
	}
	e.sensorDown = true
	entry.Warn(msg)
}

func (e *Engine) handle(mode sample.Mode, res threshold.Result, now uint64) {
	r := sample.Reading{
		Mode:      mode,
		Millis:    now,
		Current:   res.Live,
		Average:   res.Average,
		Threshold: res.Threshold,
		Anomalous: res.Anomalous,
		Valid:     true,
	}
	e.mu.Lock()
	e.readings[mode] = r
	e.mu.Unlock()
	e.Metrics.ObserveReading(r)

	if !res.Anomalous {
		return
	}

	outcome := e.Events.Log(mode, res.Live, now)
	e.Metrics.Event(mode, outcome.String())

	entry := e.Log.WithFields(logrus.Fields{
		"mode":    mode,
		"value":   roundedValue(res.Live),
		"limit":   roundedValue(res.Threshold),
		"outcome": outcome,
	})
	if outcome == eventlog.RateLimited {
		entry.Debug("Anomaly")
		return
	}
	entry.Info("Anomaly")
}

func (e *Engine) publishHistory(mode sample.Mode, h *ring.Samples) {
	values := h.Values()
	e.mu.Lock()
	e.histories[mode] = values
	e.mu.Unlock()
}

// CurrentReading returns the latest reading of the active mode. It is not
// Valid until that mode has been evaluated at least once.
func (e *Engine) CurrentReading() sample.Reading {
	return e.Reading(e.Config.Get().Mode)
}

// Reading returns the latest reading of mode.
func (e *Engine) Reading(mode sample.Mode) sample.Reading {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.readings[mode]
	if !ok {
		return sample.Reading{Mode: mode}
	}
	return r
}

// History returns the rolling history of mode, oldest first.
func (e *Engine) History(mode sample.Mode) []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]float64(nil), e.histories[mode]...)
}

type roundedValue float64

func (v roundedValue) String() string {
	return strconv.FormatFloat(float64(v), 'f', 2, 64)
}
