//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"strconv"
	"time"
)

var (
	adcs [len(channelPins)]machine.ADC
	uart = machine.UART0

	// Serial buffer for reading commands
	serialBuffer [8]byte
	serialPos    int
	lastByte     time.Time

	reply [len(channelPins) * 6]byte
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, pin := range channelPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	for {
		processSerial()
		time.Sleep(100 * time.Microsecond)
	}
}

// readChannel averages NUM_SAMPLES conversions and scales them to
// ADC_RESOLUTION bits. machine.ADC.Get always returns 16-bit values.
func readChannel(i int) uint16 {
	adcs[i].Get()
	time.Sleep(SAMPLE_SETTLE_US * time.Microsecond)

	var sum uint32
	for range NUM_SAMPLES {
		sum += uint32(adcs[i].Get())
	}
	return uint16(sum/NUM_SAMPLES) >> (16 - ADC_RESOLUTION)
}

// sendReadings answers a poll with one line of comma-separated counts.
// Example: "2048,1990,2101,2050,2047,2003,1987,2099\n"
func sendReadings() {
	buf := reply[:0]
	for i := range channelPins {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(readChannel(i)), 10)
	}
	buf = append(buf, '\n')
	uart.Write(buf)
}

func processSerial() {
	if serialPos > 0 && time.Since(lastByte) > POLL_TIMEOUT_MS*time.Millisecond {
		serialPos = 0
	}

	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}
		lastByte = time.Now()

		if data == '\n' || data == '\r' {
			if serialPos == 1 && serialBuffer[0] == 'R' {
				sendReadings()
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
		}
	}
}
