//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"runtime/interrupt"
	"time"

	"github.com/itohio/aspol/pkg/pulse"
	"tinygo.org/x/drivers/bmp180"
)

var (
	uart = machine.UART0

	sensor    bmp180.Device
	sensorOK  bool
	counter   *pulse.Counter
	interval  = time.Duration(DEFAULT_INTERVAL_MS) * time.Millisecond
	lastFrame time.Time

	// Serial buffer for reading lines
	serialBuffer [16]byte
	serialPos    int
)

// irqGate masks interrupts while the pulse counter is drained.
type irqGate struct {
	state interrupt.State
}

func (g *irqGate) Detach() { g.state = interrupt.Disable() }
func (g *irqGate) Attach() { interrupt.Restore(g.state) }

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	machine.I2C0.Configure(machine.I2CConfig{Frequency: I2C_FREQUENCY})
	sensor = bmp180.New(machine.I2C0)
	sensor.Configure()
	sensorOK = sensor.Connected()
	if !sensorOK {
		print("E,BMP\n")
	}

	counter = pulse.NewCounter(&irqGate{})
	PIN_FLOW.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_FLOW.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		counter.Inc()
	})

	lastFrame = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastFrame) >= interval {
			outputFrames()
			lastFrame = now
		}

		time.Sleep(time.Millisecond)
	}
}

func outputFrames() {
	if sensorOK {
		// Both readings are in thousandths.
		if p, err := sensor.ReadPressure(); err == nil {
			print("P,")
			print(p / 1000)
			print("\n")
		} else {
			print("E,BMP\n")
		}
		if t, err := sensor.ReadTemperature(); err == nil {
			print("T,")
			print(t / 1000)
			print(".")
			frac := t % 1000
			if frac < 0 {
				frac = -frac
			}
			print(frac / 100)
			print("\n")
		}
	} else {
		sensorOK = sensor.Connected()
		if !sensorOK {
			print("E,BMP\n")
		}
	}

	print("F,")
	print(counter.Drain())
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 2 && serialBuffer[0] == 'I' && serialBuffer[1] == ',' {
				updateInterval(serialBuffer[2:serialPos])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line, drop it
			serialPos = 0
		}
	}
}

func updateInterval(digits []byte) {
	ms := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return
		}
		ms = ms*10 + int(c-'0')
		if ms > MAX_INTERVAL_MS {
			ms = MAX_INTERVAL_MS
		}
	}
	if ms < MIN_INTERVAL_MS {
		ms = MIN_INTERVAL_MS
	}
	interval = time.Duration(ms) * time.Millisecond
}
