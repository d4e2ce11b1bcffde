package pulse

import "github.com/itohio/aspol/pkg/ring"

const (
	// DefaultInterval is the minimum time between two calculator actions (ms).
	DefaultInterval = 1000
	// MinWindow is the floor applied to the elapsed window before dividing (ms).
	MinWindow = 100
	// DefaultCalibration is pulses per second per litre/minute for a YF-S201 class sensor.
	DefaultCalibration = 7.5
)

// Rate converts a pulse count over elapsedMs into a flow rate.
// The window is clamped to MinWindow so a near-zero window cannot blow the rate up.
func Rate(count uint32, elapsedMs uint64, calibration float64) float64 {
	if calibration <= 0 {
		calibration = DefaultCalibration
	}
	if elapsedMs < MinWindow {
		elapsedMs = MinWindow
	}
	return (float64(count) / calibration) * (1000.0 / float64(elapsedMs))
}

// Calculator periodically drains a Counter into a flow history.
type Calculator struct {
	counter     *Counter
	history     *ring.Samples
	calibration float64
	interval    uint64

	last      uint64 // millis of the previous action
	lastCount uint32
}

// NewCalculator creates a calculator draining counter into history every
// interval milliseconds. Zero values select the defaults.
func NewCalculator(counter *Counter, history *ring.Samples, calibration float64, interval uint64) *Calculator {
	if calibration <= 0 {
		calibration = DefaultCalibration
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Calculator{
		counter:     counter,
		history:     history,
		calibration: calibration,
		interval:    interval,
	}
}

// Tick is called on every loop iteration. It acts only once interval has
// elapsed since the previous action, and returns the new rate when it did.
func (c *Calculator) Tick(now uint64) (float64, bool) {
	if now < c.last {
		// Clock went backwards; restart the window from here.
		c.last = now
		return 0, false
	}
	elapsed := now - c.last
	if elapsed == 0 || elapsed < c.interval {
		return 0, false
	}

	count := c.counter.Drain()
	rate := Rate(count, elapsed, c.calibration)
	c.history.Push(rate)
	c.last = now
	c.lastCount = count
	return rate, true
}

// Last returns the millis of the previous action.
func (c *Calculator) Last() uint64 {
	return c.last
}

// LastCount returns the pulses drained by the previous action.
func (c *Calculator) LastCount() uint32 {
	return c.lastCount
}

// Reset restarts the window at now without draining.
func (c *Calculator) Reset(now uint64) {
	c.last = now
}
