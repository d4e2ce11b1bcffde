package sensor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/sirupsen/logrus"
)

// Mock simulates a pressure sensor and a flow meter, injecting occasional
// anomalies that ramp up over a number of samples and then drop back.
type Mock struct {
	cfg         config.MockConfig
	calibration float32
	counter     *pulse.Counter
	log         logrus.FieldLogger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool

	// Simulation state
	rng       *rand.Rand
	pressure  float32 // hPa
	anomaly   int     // samples left in the current anomaly
	step      int     // samples into the current anomaly
	pulseFrac float32 // fractional pulses carried to the next sample
}

// NewMock creates a mock. Pulses are added to counter, scaled by calibration
// so the engine reads back cfg.FlowLpm.
func NewMock(cfg *config.MockConfig, calibration float64, counter *pulse.Counter, log logrus.FieldLogger) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if calibration <= 0 {
		calibration = pulse.DefaultCalibration
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return &Mock{
		cfg:         *cfg,
		calibration: float32(calibration),
		counter:     counter,
		log:         log,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		pressure:    float32(cfg.BaselineHPa),
	}
}

// Connect starts the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.connected = true

	go m.run(ctx)

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false
	return nil
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// ReadPressure returns the simulated pressure in hPa.
func (m *Mock) ReadPressure() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.connected {
		return 0, ErrNotInitialized
	}
	return float64(m.pressure), nil
}

// ReadTemperature returns a constant room temperature.
func (m *Mock) ReadTemperature() (float64, error) {
	if !m.IsConnected() {
		return 0, ErrNotInitialized
	}
	return 24.0, nil
}

func (m *Mock) run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.advance(m.cfg.SampleRate)
		}
	}
}

// advance moves the simulation forward by one sample of length dt.
func (m *Mock) advance(dt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.anomaly == 0 && m.cfg.AnomalyProbability > 0 && m.rng.Float64() < m.cfg.AnomalyProbability {
		m.anomaly = m.cfg.AnomalyDuration
		m.step = 0
		m.log.WithField("samples", m.anomaly).Info("Mock anomaly started")
	}

	// Ramp over the first half of the anomaly, hold for the rest.
	factor := float32(0)
	if m.anomaly > 0 {
		m.step++
		m.anomaly--
		rampLen := max(m.cfg.AnomalyDuration/2, 1)
		factor = math32.Min(float32(m.step)/float32(rampLen), 1)
		if m.anomaly == 0 {
			m.log.Info("Mock anomaly ended")
		}
	}

	noise := float32(m.rng.NormFloat64() * m.cfg.NoiseHPa)
	baseline := float32(m.cfg.BaselineHPa)
	m.pressure = baseline*(1+factor*float32(m.cfg.PressureSpikePct)/100) + noise

	// pulses = L/min * (pulses per second per L/min) * seconds
	lpm := float32(m.cfg.FlowLpm) * (1 + factor*float32(m.cfg.FlowSpikePct)/100)
	pulses := lpm*m.calibration*float32(dt.Seconds()) + m.pulseFrac
	whole := math32.Floor(pulses)
	m.pulseFrac = pulses - whole
	if whole > 0 {
		m.counter.Add(uint32(whole))
	}
}
