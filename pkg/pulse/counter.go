// Package pulse counts edges from a flow sensor and turns them into a flow rate.
//
// The Counter is the only value shared between the edge source (a pin
// interrupt, a GPIO edge waiter or a serial bridge reader) and the control
// loop. Everything else in this package belongs to the control loop.
package pulse

import "sync/atomic"

// Gate masks the edge source while the counter is drained.
// Detach and Attach are always called in pairs from the control loop.
type Gate interface {
	Detach()
	Attach()
}

// Counter is a pulse counter incremented from the edge source and drained
// from the control loop.
type Counter struct {
	n    atomic.Uint32
	gate Gate
}

// NewCounter creates a counter. The gate may be nil: the drain is an atomic
// swap and does not need the source to be detached.
func NewCounter(gate Gate) *Counter {
	return &Counter{gate: gate}
}

// Inc records one edge. It is the whole interrupt handler.
func (c *Counter) Inc() {
	c.n.Add(1)
}

// Add records n edges reported at once, e.g. by a sensor bridge.
func (c *Counter) Add(n uint32) {
	c.n.Add(n)
}

// Pending returns the edges counted since the last drain without resetting.
func (c *Counter) Pending() uint32 {
	return c.n.Load()
}

// Drain returns the edges counted since the previous drain and zeroes the counter.
// An edge racing the drain lands either in this drain or in the next one.
func (c *Counter) Drain() uint32 {
	if c.gate != nil {
		c.gate.Detach()
		defer c.gate.Attach()
	}
	return c.n.Swap(0)
}
