// Package sensor provides the pressure and flow front-ends the engine polls.
package sensor

import "errors"

// ErrNotInitialized is returned by a sensor that is absent or not yet reporting.
var ErrNotInitialized = errors.New("sensor not initialized")

// Pressure reads barometric pressure in hPa.
type Pressure interface {
	ReadPressure() (float64, error)
}

// Thermometer reads temperature in degrees Celsius.
type Thermometer interface {
	ReadTemperature() (float64, error)
}

// Device is a sensor front-end with a connection lifecycle.
type Device interface {
	Connect() error
	Close() error
	IsConnected() bool
}

var (
	_ Device = (*Bridge)(nil)
	_ Device = (*Mock)(nil)
	_ Device = (*BMP180)(nil)

	_ Pressure = (*Bridge)(nil)
	_ Pressure = (*Mock)(nil)
	_ Pressure = (*BMP180)(nil)
	_ Pressure = Absent{}
)

// Absent stands in for a pressure sensor that failed to initialize.
type Absent struct{}

// ReadPressure always returns ErrNotInitialized.
func (Absent) ReadPressure() (float64, error) {
	return 0, ErrNotInitialized
}
