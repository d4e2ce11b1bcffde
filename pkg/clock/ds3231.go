package clock

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	// DS3231Addr is the fixed I2C address of the DS3231.
	DS3231Addr = 0x68

	regSeconds = 0x00
	regStatus  = 0x0F

	statusOSF = 0x80 // oscillator stop flag: time is not trustworthy
)

// DS3231 is a battery-backed real-time clock on an I2C bus.
type DS3231 struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev
}

// OpenDS3231 opens the named I2C bus ("" for the first available) and
// attaches to the RTC.
func OpenDS3231(busName string) (*DS3231, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	d := &DS3231{bus: bus, dev: &i2c.Dev{Bus: bus, Addr: DS3231Addr}}

	// Probe the status register so a missing chip fails here and not on first read.
	if _, err := d.status(); err != nil {
		bus.Close()
		return nil, fmt.Errorf("RTC not found: %w", err)
	}
	return d, nil
}

// Close releases the I2C bus.
func (d *DS3231) Close() error {
	return d.bus.Close()
}

// LostPower reports whether the oscillator stopped since the time was last set.
func (d *DS3231) LostPower() (bool, error) {
	st, err := d.status()
	if err != nil {
		return false, err
	}
	return st&statusOSF != 0, nil
}

// Now reads the RTC. A stopped oscillator makes the time unavailable.
func (d *DS3231) Now() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.readReg(regStatus, 1)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if st[0]&statusOSF != 0 {
		return time.Time{}, fmt.Errorf("%w: oscillator stopped", ErrUnavailable)
	}
	raw, err := d.readReg(regSeconds, 7)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return decodeTime(raw), nil
}

// Set writes t (as UTC) to the RTC and clears the oscillator stop flag.
func (d *DS3231) Set(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := append([]byte{regSeconds}, encodeTime(t.UTC())...)
	if err := d.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("failed to set RTC time: %w", err)
	}
	st, err := d.readReg(regStatus, 1)
	if err != nil {
		return err
	}
	if err := d.dev.Tx([]byte{regStatus, st[0] &^ statusOSF}, nil); err != nil {
		return fmt.Errorf("failed to clear RTC status: %w", err)
	}
	return nil
}

func (d *DS3231) status() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, err := d.readReg(regStatus, 1)
	if err != nil {
		return 0, err
	}
	return st[0], nil
}

func (d *DS3231) readReg(reg byte, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := d.dev.Tx([]byte{reg}, r); err != nil {
		return nil, err
	}
	return r, nil
}

func bcdToInt(b byte) int {
	return int(b>>4)*10 + int(b&0x0F)
}

func intToBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}

// decodeTime converts the seven timekeeping registers to a UTC time.
func decodeTime(r []byte) time.Time {
	sec := bcdToInt(r[0] & 0x7F)
	min := bcdToInt(r[1] & 0x7F)

	var hour int
	if r[2]&0x40 != 0 {
		// 12 hour mode
		hour = bcdToInt(r[2]&0x1F) % 12
		if r[2]&0x20 != 0 {
			hour += 12
		}
	} else {
		hour = bcdToInt(r[2] & 0x3F)
	}

	day := bcdToInt(r[4] & 0x3F)
	month := bcdToInt(r[5] & 0x1F)
	year := 2000 + bcdToInt(r[6])
	if r[5]&0x80 != 0 {
		year += 100
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

// encodeTime converts t to the seven timekeeping registers (24 hour mode).
func encodeTime(t time.Time) []byte {
	year := t.Year() - 2000
	var century byte
	if year >= 100 {
		year -= 100
		century = 0x80
	}
	return []byte{
		intToBCD(t.Second()),
		intToBCD(t.Minute()),
		intToBCD(t.Hour()),
		byte(t.Weekday()) + 1,
		intToBCD(t.Day()),
		intToBCD(int(t.Month())) | century,
		intToBCD(year),
	}
}
