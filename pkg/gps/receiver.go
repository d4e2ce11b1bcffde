package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the factory rate of NEO-6M modules.
	DefaultBaudRate = 9600
	// DefaultMaxAge is how long a position stays valid without a new sentence.
	DefaultMaxAge = 5 * time.Second

	knotsToKmh = 1.852
)

// Receiver tracks an NMEA receiver attached to a serial port.
type Receiver struct {
	port     string
	baudRate int
	maxAge   time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu      sync.RWMutex
	conn    serial.Port
	cancel  context.CancelFunc
	fix     Fix
	updated time.Time
}

var _ Source = (*Receiver)(nil)

// NewReceiver creates a receiver for port. Zero baudRate or maxAge select defaults.
func NewReceiver(port string, baudRate int, maxAge time.Duration, log logrus.FieldLogger) *Receiver {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}
	return &Receiver{
		port:     port,
		baudRate: baudRate,
		maxAge:   maxAge,
		log:      log,
		now:      time.Now,
	}
}

// Connect opens the serial port and starts decoding sentences.
func (r *Receiver) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(r.port, &serial.Mode{BaudRate: r.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open gps port %s: %w", r.port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.conn = port
	r.cancel = cancel

	go r.consume(ctx, port)
	return nil
}

// Close stops decoding and closes the port.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	r.cancel()
	err := r.conn.Close()
	r.conn = nil
	return err
}

// Fix returns the latest fix. A position older than the max age is reported invalid.
func (r *Receiver) Fix() Fix {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f := r.fix
	if f.Valid && r.now().Sub(r.updated) > r.maxAge {
		f.Valid = false
	}
	return f
}

func (r *Receiver) consume(ctx context.Context, rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := r.Update(line); err != nil {
			r.log.WithError(err).Debug("Skipping NMEA sentence")
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		r.log.WithError(err).Warn("GPS port read failed")
	}
}

// Update folds one NMEA sentence into the fix. RMC and GGA are used; other
// sentence types are ignored.
func (r *Receiver) Update(line string) error {
	s, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			r.fix.Valid = false
			return nil
		}
		r.fix.Lat = m.Latitude
		r.fix.Lng = m.Longitude
		r.fix.SpeedKmh = m.Speed * knotsToKmh
		if t, ok := utc(m.Date, m.Time); ok {
			r.fix.Time = t
		}
		r.markValid()
	case nmea.GGA:
		r.fix.Satellites = int(m.NumSatellites)
		if m.FixQuality == nmea.Invalid {
			r.fix.Valid = false
			return nil
		}
		r.fix.Lat = m.Latitude
		r.fix.Lng = m.Longitude
		r.markValid()
	}
	return nil
}

func (r *Receiver) markValid() {
	r.fix.Valid = true
	r.updated = r.now()
}

func utc(d nmea.Date, t nmea.Time) (time.Time, bool) {
	if !d.Valid || !t.Valid {
		return time.Time{}, false
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}
