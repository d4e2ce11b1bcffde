package sensor

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/devices/bmxx80"
	"periph.io/x/periph/host"
)

// DefaultBMP180Addr is the fixed I2C address of the BMP180.
const DefaultBMP180Addr = 0x77

// BMP180 is a barometric sensor on an I2C bus.
type BMP180 struct {
	busName string
	addr    uint16

	mu  sync.Mutex
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// NewBMP180 creates a BMP180 on the named bus ("" for the first available).
func NewBMP180(busName string, addr uint16) *BMP180 {
	if addr == 0 {
		addr = DefaultBMP180Addr
	}
	return &BMP180{busName: busName, addr: addr}
}

// Connect opens the bus and probes the chip.
func (b *BMP180) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev != nil {
		return fmt.Errorf("already connected")
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	bus, err := i2creg.Open(b.busName)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", b.busName, err)
	}
	dev, err := bmxx80.NewI2C(bus, b.addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return fmt.Errorf("BMP180 not found: %w", err)
	}

	b.bus = bus
	b.dev = dev
	return nil
}

// Close halts the sensor and releases the bus.
func (b *BMP180) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dev == nil {
		return nil
	}
	b.dev.Halt()
	err := b.bus.Close()
	b.dev = nil
	b.bus = nil
	return err
}

// IsConnected reports whether the chip was found.
func (b *BMP180) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dev != nil
}

// ReadPressure returns the pressure in hPa.
func (b *BMP180) ReadPressure() (float64, error) {
	e, err := b.sense()
	if err != nil {
		return 0, err
	}
	return hectopascals(e.Pressure), nil
}

// ReadTemperature returns the die temperature in degrees Celsius.
func (b *BMP180) ReadTemperature() (float64, error) {
	e, err := b.sense()
	if err != nil {
		return 0, err
	}
	return celsius(e.Temperature), nil
}

func (b *BMP180) sense() (physic.Env, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var e physic.Env
	if b.dev == nil {
		return e, ErrNotInitialized
	}
	if err := b.dev.Sense(&e); err != nil {
		return e, fmt.Errorf("failed to read BMP180: %w", err)
	}
	return e, nil
}

func hectopascals(p physic.Pressure) float64 {
	return float64(p) / float64(100*physic.Pascal)
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}
