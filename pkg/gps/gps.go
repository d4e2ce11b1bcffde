// Package gps supplies satellite fixes used to geotag events.
package gps

import "time"

// Fix is the most recent position report.
type Fix struct {
	Valid      bool      `json:"valid"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKmh   float64   `json:"speed_kmh"`
	Satellites int       `json:"satellites"`
	Time       time.Time `json:"time"` // UTC from the receiver, zero if not yet known
}

// Source reports the current fix.
type Source interface {
	Fix() Fix
}

// Static is a Source that always reports the same fix.
type Static Fix

// Fix returns s.
func (s Static) Fix() Fix {
	return Fix(s)
}

// None is a Source without a receiver attached.
type None struct{}

// Fix returns an invalid fix.
func (None) Fix() Fix {
	return Fix{}
}
