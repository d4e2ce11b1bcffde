//go:build tinygo

package main

import "machine"

const (
	// Reporting
	DEFAULT_INTERVAL_MS = 1000 // P/T/F frame period until the host sends I,<ms>
	MIN_INTERVAL_MS     = 50
	MAX_INTERVAL_MS     = 60000

	// Flow sensor pulse input (open collector, pulled up)
	PIN_FLOW = machine.D2

	// BMP180 on the default I2C bus
	I2C_FREQUENCY = 100 * machine.KHz

	// Serial configuration
	// Longest frame is "P,110000\n" (9 bytes). Three frames per 50ms report
	// is 540 bytes/sec; 115200 baud moves 11,520 bytes/sec.
	UART_BAUD_RATE = 115200
)
