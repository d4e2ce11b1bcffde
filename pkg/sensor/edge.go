package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/aspol/pkg/pulse"
	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// edgePoll bounds how long Run waits for an edge before checking for cancellation.
const edgePoll = 100 * time.Millisecond

// EdgePin is a GPIO input configured for edge detection.
type EdgePin interface {
	WaitForEdge(timeout time.Duration) bool
}

// EdgeSource counts falling edges of a flow sensor wired to a GPIO pin.
type EdgeSource struct {
	pin     EdgePin
	counter *pulse.Counter
	log     logrus.FieldLogger
}

// OpenEdgeSource configures the named pin as a pulled-up input interrupting
// on falling edges.
func OpenEdgeSource(name string, counter *pulse.Counter, log logrus.FieldLogger) (*EdgeSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host drivers: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to find GPIO pin %q", name)
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("failed to configure GPIO pin %q: %w", name, err)
	}
	return NewEdgeSource(p, counter, log), nil
}

// NewEdgeSource counts edges of an already configured pin.
func NewEdgeSource(pin EdgePin, counter *pulse.Counter, log logrus.FieldLogger) *EdgeSource {
	return &EdgeSource{pin: pin, counter: counter, log: log}
}

// Run counts edges until ctx is done, then halts the pin if it supports it.
func (s *EdgeSource) Run(ctx context.Context) {
	s.log.Info("Starting flow pulse counter")
	defer func() {
		if h, ok := s.pin.(interface{ Halt() error }); ok {
			_ = h.Halt()
		}
	}()

	for ctx.Err() == nil {
		if s.pin.WaitForEdge(edgePoll) {
			s.counter.Inc()
		}
	}
}
