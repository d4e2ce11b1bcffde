// Package status serves the device status page, the configuration form and
// a JSON API, and provides a client for it.
package status

import (
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/sample"
)

// Status is the snapshot returned by /api/status.
type Status struct {
	Device      string         `json:"device"`
	Mode        sample.Mode    `json:"mode"`
	UptimeMs    uint64         `json:"uptime_ms"`
	Time        string         `json:"time"` // "unavailable" without a wall clock
	Reading     sample.Reading `json:"reading"`
	Unit        string         `json:"unit"`
	Temperature *float64       `json:"temperature,omitempty"`
	GPS         gps.Fix        `json:"gps"`
	Storage     bool           `json:"storage"`
}

// Readings is the view of the engine the server needs.
type Readings interface {
	CurrentReading() sample.Reading
	History(mode sample.Mode) []float64
}

// publicConfig strips the password before a configuration leaves the device.
func publicConfig(v devconf.Values) devconf.Values {
	v.Password = ""
	return v
}
