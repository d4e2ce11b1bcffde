package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the UART rate of the sensor bridge firmware.
	DefaultBaudRate = 115200
	// DefaultStaleAfter is how long a bridge pressure report stays current.
	DefaultStaleAfter = 3 * time.Second
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Bridge talks to a microcontroller that owns the sensors and reports them
// over a serial line, one frame per line:
//
//	P,<pascals>   pressure
//	T,<celsius>   temperature
//	F,<pulses>    flow pulses counted since the previous F frame
//	E,<text>      sensor error; "E,BMP" means the pressure sensor is absent
//
// The host can send "I,<millis>" to change the report interval.
type Bridge struct {
	port       string
	baudRate   int
	staleAfter time.Duration
	counter    *pulse.Counter
	log        logrus.FieldLogger
	now        func() time.Time

	mu          sync.RWMutex
	conn        serial.Port
	cancel      context.CancelFunc
	connected   bool
	pressure    float32 // Pa
	pressureAt  time.Time
	temperature float32
	tempAt      time.Time
	absent      bool
}

// NewBridge creates a bridge on port. Flow pulses are added to counter.
func NewBridge(port string, baudRate int, staleAfter time.Duration, counter *pulse.Counter, log logrus.FieldLogger) *Bridge {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Bridge{
		port:       port,
		baudRate:   baudRate,
		staleAfter: staleAfter,
		counter:    counter,
		log:        log,
		now:        time.Now,
	}
}

// Connect connects to the serial port and starts reading frames.
func (b *Bridge) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(b.port, &serial.Mode{BaudRate: b.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.conn = port
	b.cancel = cancel
	b.connected = true

	go b.readFrames(ctx, port)

	return nil
}

// Close closes the connection and stops reading frames.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}

	b.cancel()
	if err := b.conn.Close(); err != nil {
		b.log.WithError(err).Warn("Error closing serial port")
	}
	b.conn = nil
	b.connected = false
	return nil
}

// IsConnected returns whether the bridge is currently connected.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// SetReportInterval asks the firmware to report every d.
func (b *Bridge) SetReportInterval(d time.Duration) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected {
		return fmt.Errorf("not connected")
	}
	if _, err := fmt.Fprintf(b.conn, "I,%d\n", d.Milliseconds()); err != nil {
		return fmt.Errorf("failed to send interval command: %w", err)
	}
	return nil
}

// ReadPressure returns the latest reported pressure in hPa.
func (b *Bridge) ReadPressure() (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected || b.absent || b.pressureAt.IsZero() || b.now().Sub(b.pressureAt) > b.staleAfter {
		return 0, ErrNotInitialized
	}
	return float64(b.pressure / 100), nil
}

// ReadTemperature returns the latest reported temperature.
func (b *Bridge) ReadTemperature() (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.connected || b.absent || b.tempAt.IsZero() || b.now().Sub(b.tempAt) > b.staleAfter {
		return 0, ErrNotInitialized
	}
	return float64(b.temperature), nil
}

// readFrames reads lines from the serial port and applies them.
func (b *Bridge) readFrames(ctx context.Context, rd io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("Panic in readFrames: %v", r)
		}
	}()

	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		f, err := parseFrame(line)
		if err != nil {
			b.log.WithError(err).WithField("line", line).Debug("Failed to parse frame")
			continue
		}
		b.apply(f)
	}
	if err := scanner.Err(); err != nil && err != io.EOF && ctx.Err() == nil {
		b.log.WithError(err).Warn("Error reading from serial port")
	}
}

func (b *Bridge) apply(f frame) {
	if f.kind == framePulses {
		b.counter.Add(f.pulses)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch f.kind {
	case framePressure:
		b.pressure = f.value
		b.pressureAt = b.now()
		b.absent = false
	case frameTemperature:
		b.temperature = f.value
		b.tempAt = b.now()
	case frameError:
		if f.text == "BMP" {
			b.absent = true
		}
		b.log.WithField("error", f.text).Warn("Bridge reported sensor error")
	}
}

type frameKind byte

const (
	framePressure    frameKind = 'P'
	frameTemperature frameKind = 'T'
	framePulses      frameKind = 'F'
	frameError       frameKind = 'E'
)

type frame struct {
	kind   frameKind
	value  float32
	pulses uint32
	text   string
}

// parseFrame parses a line from the bridge.
// Example: P,101325
func parseFrame(line string) (frame, error) {
	kind, payload, ok := strings.Cut(line, ",")
	if !ok || len(kind) != 1 {
		return frame{}, fmt.Errorf("invalid frame format: expected <kind>,<value>")
	}

	f := frame{kind: frameKind(kind[0])}
	switch f.kind {
	case framePressure, frameTemperature:
		v, err := strconv.ParseFloat(payload, 32)
		if err != nil {
			return frame{}, fmt.Errorf("invalid value: %w", err)
		}
		f.value = float32(v)
		if math32.IsNaN(f.value) || math32.IsInf(f.value, 0) {
			return frame{}, fmt.Errorf("invalid value: %s", payload)
		}
	case framePulses:
		n, err := strconv.ParseUint(payload, 10, 32)
		if err != nil {
			return frame{}, fmt.Errorf("invalid pulse count: %w", err)
		}
		f.pulses = uint32(n)
	case frameError:
		f.text = payload
	default:
		return frame{}, fmt.Errorf("unknown frame kind %q", kind)
	}
	return f, nil
}
