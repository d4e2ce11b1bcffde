package sample

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Mode selects which physical quantity the device is watching.
type Mode int

const (
	ModePressure Mode = iota
	ModeFlow
)

// Modes lists every sensor mode.
var Modes = []Mode{ModePressure, ModeFlow}

// String returns the persisted name of the mode.
func (m Mode) String() string {
	switch m {
	case ModePressure:
		return "PRESSURE"
	case ModeFlow:
		return "FLOW"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Unit returns the display unit of readings in this mode.
func (m Mode) Unit() string {
	if m == ModeFlow {
		return "L/min"
	}
	return "hPa"
}

// ParseMode accepts the mode name (any case) or its numeric value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRESSURE", "0":
		return ModePressure, nil
	case "FLOW", "1":
		return ModeFlow, nil
	}
	return 0, fmt.Errorf("unknown sensor mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Reading is the latest verdict of the engine for the active mode.
type Reading struct {
	Mode      Mode    `json:"mode"`
	Millis    uint64  `json:"millis"` // device uptime of the evaluation
	Current   float64 `json:"current"`
	Average   float64 `json:"average"`
	Threshold float64 `json:"threshold"`
	Anomalous bool    `json:"anomalous"`
	Valid     bool    `json:"valid"` // false until the first successful evaluation
}

// Sample is a Reading placed on the observer's time axis.
type Sample struct {
	Timestamp time.Time
	Mode      Mode
	Value     float64
	Average   float64
	Threshold float64
	Anomalous bool
}

// Converter turns a stream of polled readings into samples.
type Converter func(in <-chan Reading) <-chan Sample

// NewConverter creates a converter that drops invalid readings and readings
// already seen (polling faster than the device evaluates yields repeats).
func NewConverter(bufSize int, log logrus.FieldLogger) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Reading) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			var last Reading
			for r := range in {
				if !r.Valid || (r.Millis == last.Millis && r.Mode == last.Mode && last.Valid) {
					continue
				}
				last = r

				select {
				case out <- FromReading(r, time.Now()):
				case <-time.After(time.Second):
					log.WithField("millis", r.Millis).Warn("Converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// FromReading stamps r with ts.
func FromReading(r Reading, ts time.Time) Sample {
	return Sample{
		Timestamp: ts,
		Mode:      r.Mode,
		Value:     r.Current,
		Average:   r.Average,
		Threshold: r.Threshold,
		Anomalous: r.Anomalous,
	}
}
