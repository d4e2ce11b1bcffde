// Package clock provides the monotonic millisecond clock the engine runs on
// and the wall clock used to date events.
package clock

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrUnavailable is returned by a Wall clock that cannot provide the time.
var ErrUnavailable = errors.New("clock unavailable")

// Monotonic is a millisecond uptime counter.
type Monotonic interface {
	Millis() uint64
}

// Wall provides calendar time. It may fail; callers degrade to "unavailable".
type Wall interface {
	Now() (time.Time, error)
}

// Uptime is a Monotonic clock counting from its creation.
type Uptime struct {
	start time.Time
}

// NewUptime creates an Uptime clock starting at zero.
func NewUptime() *Uptime {
	return &Uptime{start: time.Now()}
}

// Millis returns milliseconds since creation.
func (u *Uptime) Millis() uint64 {
	return uint64(time.Since(u.start) / time.Millisecond)
}

// Manual is a Monotonic clock driven by hand, for tests and replays.
type Manual struct {
	ms atomic.Uint64
}

// Millis returns the current manual time.
func (m *Manual) Millis() uint64 {
	return m.ms.Load()
}

// Set moves the clock to ms.
func (m *Manual) Set(ms uint64) {
	m.ms.Store(ms)
}

// Advance moves the clock forward by d milliseconds.
func (m *Manual) Advance(d uint64) {
	m.ms.Add(d)
}

// System is a Wall clock backed by the host time.
type System struct{}

// Now returns the host time in UTC.
func (System) Now() (time.Time, error) {
	return time.Now().UTC(), nil
}

// None is a Wall clock that is never available.
type None struct{}

// Now always returns ErrUnavailable.
func (None) Now() (time.Time, error) {
	return time.Time{}, ErrUnavailable
}

// Fixed is a Wall clock that always returns T.
type Fixed struct {
	T time.Time
}

// Now returns the fixed time.
func (f Fixed) Now() (time.Time, error) {
	return f.T, nil
}
