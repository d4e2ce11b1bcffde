// Package threshold classifies a live reading against a dynamic threshold
// derived from its own rolling average.
package threshold

import (
	"errors"
	"math"

	"github.com/itohio/aspol/pkg/ring"
)

// ErrSensorUnavailable marks a reading that cannot be a real measurement.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Result is the verdict for one live value.
type Result struct {
	Live      float64
	Average   float64
	Threshold float64
	Anomalous bool
}

// Evaluate compares live against history scaled by (1 + pct/100).
// The comparison is strict: a live value equal to the threshold is normal.
func Evaluate(live float64, history *ring.Samples, pct float64) Result {
	avg := history.Mean()
	th := avg * (1 + pct/100)
	return Result{
		Live:      live,
		Average:   avg,
		Threshold: th,
		Anomalous: live > th,
	}
}

// Evaluator feeds live readings into a history and evaluates them.
type Evaluator struct {
	history *ring.Samples
}

// NewEvaluator creates an evaluator over history.
func NewEvaluator(history *ring.Samples) *Evaluator {
	return &Evaluator{history: history}
}

// History returns the backing buffer.
func (e *Evaluator) History() *ring.Samples {
	return e.history
}

// Observe pushes raw into the history and evaluates it, so the average
// always includes the newest reading. A non-positive or NaN reading is
// rejected with ErrSensorUnavailable and leaves the history untouched.
func (e *Evaluator) Observe(raw, pct float64) (Result, error) {
	if !Valid(raw) {
		return Result{Live: raw}, ErrSensorUnavailable
	}
	e.history.Push(raw)
	return Evaluate(raw, e.history, pct), nil
}

// Valid reports whether raw can be a real sensor reading.
func Valid(raw float64) bool {
	return raw > 0 && !math.IsInf(raw, 0)
}
