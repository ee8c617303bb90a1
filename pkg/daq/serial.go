package daq

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"k8s.io/klog/v2"
)

const (
	// DefaultBaudRate is the frontend firmware baud rate.
	DefaultBaudRate = 115200
	// DefaultADCBits is the SAMD21 ADC resolution.
	DefaultADCBits = 12
	// DefaultVRef is the ADC full scale voltage of the bundled firmware
	// (ADC_REFERENCE_MV in firmware/pins.go).
	DefaultVRef = 3.3

	// pollCommand asks the firmware for one line of ADC counts.
	pollCommand = "R\n"
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial polls the MCU frontend once per Read. Each poll returns one line of
// comma-separated ADC counts, one per configured channel.
type Serial struct {
	port     string
	baudRate int
	adcBits  int
	vref     float64

	open func(name string, baud int) (io.ReadWriteCloser, error)

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	reader   *bufio.Reader
	channels []ChannelRange
}

// NewSerial creates a serial source. Zero values select the defaults.
func NewSerial(port string, baudRate, adcBits int, vref float64) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if adcBits == 0 {
		adcBits = DefaultADCBits
	}
	if vref == 0 {
		vref = DefaultVRef
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		adcBits:  adcBits,
		vref:     vref,
		open:     openSerial,
	}
}

func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, p := range ports {
		desc := p.Name
		if p.IsUSB {
			desc = fmt.Sprintf("%s (%s:%s %s)", p.Name, p.VID, p.PID, p.Product)
		}
		result = append(result, Port{Name: p.Name, Description: desc})
	}

	return result, nil
}

// Configure opens the serial port and records the channel set.
func (d *Serial) Configure(channels []ChannelRange) error {
	if err := validateRanges(channels); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return fmt.Errorf("already connected")
	}

	conn, err := d.open(d.port, d.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = conn
	d.reader = bufio.NewReader(conn)
	d.channels = append([]ChannelRange(nil), channels...)
	klog.InfoS("Serial source opened", "port", d.port, "baud", d.baudRate, "channels", len(channels))

	return nil
}

// Read polls the frontend and converts the returned counts to volts.
// It blocks until a full line arrives; ctx is only checked before polling.
func (d *Serial) Read(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, ErrNotConfigured
	}

	if _, err := io.WriteString(d.conn, pollCommand); err != nil {
		return nil, fmt.Errorf("failed to send poll command: %w", err)
	}

	line, err := d.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read from serial port: %w", err)
	}

	counts, err := parseLine(strings.TrimSpace(line), len(d.channels), d.adcBits)
	if err != nil {
		return nil, err
	}

	volts := make([]float64, len(counts))
	for i, c := range counts {
		volts[i] = adcToVoltage(c, d.adcBits, d.vref)
		if err := checkRange(d.channels[i], volts[i]); err != nil {
			return nil, err
		}
	}
	return volts, nil
}

// Close closes the serial port.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}

	err := d.conn.Close()
	d.conn = nil
	d.reader = nil
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// parseLine parses a line of n comma-separated ADC counts.
// Example: 2048,1990,2101
func parseLine(line string, n, bits int) ([]uint16, error) {
	parts := strings.Split(line, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", n, len(parts))
	}

	limit := uint64(1)<<bits - 1
	counts := make([]uint16, n)
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid reading %d: %w", i, err)
		}
		if v > limit {
			return nil, fmt.Errorf("reading %d out of range: %d (max %d)", i, v, limit)
		}
		counts[i] = uint16(v)
	}
	return counts, nil
}

// adcToVoltage converts a raw count to volts.
func adcToVoltage(count uint16, bits int, vref float64) float64 {
	return float64(count) / float64(uint64(1)<<bits-1) * vref
}
