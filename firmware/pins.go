//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	NUM_SAMPLES      = 16  // Readings averaged per channel for each poll
	SAMPLE_SETTLE_US = 50  // Settling time after switching channel
	POLL_TIMEOUT_MS  = 100 // Drop a partial command after this long

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V); host serial.vref must match
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Serial configuration
	// Reply: up to 8 x "4095," = 40 bytes per poll. At one poll per 10 ms that
	// is 4,000 bytes/sec; 115200 baud carries 11,520 bytes/sec.
	UART_BAUD_RATE = 115200
)

// Thermistor divider taps in channel order 1..8. A4/A5 stay free for I2C.
var channelPins = [...]machine.Pin{
	machine.A0,
	machine.A1,
	machine.A2,
	machine.A3,
	machine.A6,
	machine.A7,
	machine.A8,
	machine.A9,
}
