package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

// Calibration modes.
const (
	ModePooled     = "pooled"
	ModeIndividual = "individual"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Divider     DividerConfig     `yaml:"divider"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Log         LogConfig         `yaml:"log"`
	Display     DisplayConfig     `yaml:"display"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port    string  `yaml:"port"`
	Baud    int     `yaml:"baud"`
	ADCBits int     `yaml:"adc_bits"`
	VRef    float64 `yaml:"vref"` // ADC full scale (V)
}

// DividerConfig describes the thermistor voltage divider.
type DividerConfig struct {
	VIn float64 `yaml:"vin"` // Supply voltage (V)
	R0  float64 `yaml:"r0"`  // Fixed resistor (Ohm)
}

// ChannelConfig configures one analog input.
type ChannelConfig struct {
	Index    int     `yaml:"index"`
	MinVolts float64 `yaml:"min_volts"`
	MaxVolts float64 `yaml:"max_volts"`
	Label    string  `yaml:"label,omitempty"`
}

// CalibrationConfig holds the Steinhart-Hart coefficients.
type CalibrationConfig struct {
	Mode       string                          `yaml:"mode"` // pooled or individual; compare layout uses both
	Pooled     thermistor.Coefficients         `yaml:"pooled"`
	Individual map[int]thermistor.Coefficients `yaml:"individual"`
}

// LogConfig configures the sample log.
type LogConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // csv or tsv; empty selects by extension
	Layout string `yaml:"layout"`
	SQLite string `yaml:"sqlite,omitempty"` // Optional SQLite mirror of the log
	Table  string `yaml:"table,omitempty"`
}

// DisplayConfig configures the live chart.
type DisplayConfig struct {
	WindowSize int     `yaml:"window_size"`
	OffsetStep float64 `yaml:"offset_step"`
	MaxPoints  int     `yaml:"max_points"`
	PNG        string  `yaml:"png,omitempty"`
}

// AcquisitionConfig configures the tick loop.
type AcquisitionConfig struct {
	Interval     time.Duration `yaml:"interval"`
	EndTime      time.Duration `yaml:"end_time"`      // 0 = run until stopped
	MaxSamples   int           `yaml:"max_samples"`   // Overrides EndTime when > 0
	AverageReads int           `yaml:"average_reads"` // Source reads averaged per tick (0 = disabled)
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // Empty disables the endpoint
}

// MockConfig contains simulated source configuration.
type MockConfig struct {
	Ambient    float64       `yaml:"ambient"`     // Mean temperature (C)
	Swing      float64       `yaml:"swing"`       // Temperature amplitude (C)
	Period     time.Duration `yaml:"period"`      // Temperature oscillation period
	NoiseLevel float64       `yaml:"noise_level"` // Noise level (V)
	Step       time.Duration `yaml:"step"`        // Simulated time per read
	Seed       uint64        `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	channels := make([]ChannelConfig, 8)
	for i := range channels {
		channels[i] = ChannelConfig{Index: i + 1, MinVolts: 0, MaxVolts: 5}
	}

	return &Config{
		Serial: SerialConfig{
			Port:    "/dev/ttyACM0",
			Baud:    115200,
			ADCBits: 12,
			VRef:    3.3,
		},
		Divider: DividerConfig{
			VIn: thermistor.DefaultDivider.VIn,
			R0:  thermistor.DefaultDivider.R0,
		},
		Channels: channels,
		Calibration: CalibrationConfig{
			Mode:       ModePooled,
			Pooled:     thermistor.Coefficients(thermistor.DefaultPooled),
			Individual: maps.Clone(map[int]thermistor.Coefficients(thermistor.DefaultIndividual)),
		},
		Log: LogConfig{
			Path:   "thermistor.csv",
			Layout: string(record.LayoutResistance),
			Table:  "samples",
		},
		Display: DisplayConfig{
			WindowSize: 50,
			OffsetStep: 2,
			MaxPoints:  500,
		},
		Acquisition: AcquisitionConfig{
			Interval: time.Second,
		},
		Mock: MockConfig{
			Ambient:    22,
			Swing:      3,
			Period:     2 * time.Minute,
			NoiseLevel: 0.002,
			Step:       time.Second,
			Seed:       1,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Individual coefficients from the file are merged over the defaults.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ADCBits == 0 {
		c.Serial.ADCBits = def.Serial.ADCBits
	}
	if c.Serial.VRef == 0 {
		c.Serial.VRef = def.Serial.VRef
	}

	if c.Divider.VIn == 0 {
		c.Divider.VIn = def.Divider.VIn
	}
	if c.Divider.R0 == 0 {
		c.Divider.R0 = def.Divider.R0
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}

	if c.Calibration.Mode == "" {
		c.Calibration.Mode = def.Calibration.Mode
	}
	if c.Calibration.Pooled == (thermistor.Coefficients{}) {
		c.Calibration.Pooled = def.Calibration.Pooled
	}
	if len(c.Calibration.Individual) == 0 {
		c.Calibration.Individual = def.Calibration.Individual
	}

	if c.Log.Path == "" {
		c.Log.Path = def.Log.Path
	}
	if c.Log.Layout == "" {
		c.Log.Layout = def.Log.Layout
	}
	if c.Log.Table == "" {
		c.Log.Table = def.Log.Table
	}

	if c.Display.WindowSize == 0 {
		c.Display.WindowSize = def.Display.WindowSize
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Acquisition.Interval == 0 {
		c.Acquisition.Interval = def.Acquisition.Interval
	}

	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
	if c.Mock.Step == 0 {
		c.Mock.Step = def.Mock.Step
	}
}

// Validate reports configuration errors that would make acquisition fail.
func (c *Config) Validate() error {
	var errs []error

	if c.Divider.VIn <= 0 {
		errs = append(errs, fmt.Errorf("divider.vin must be positive, got %g", c.Divider.VIn))
	}
	if c.Divider.R0 <= 0 {
		errs = append(errs, fmt.Errorf("divider.r0 must be positive, got %g", c.Divider.R0))
	}
	if c.Acquisition.Interval <= 0 {
		errs = append(errs, fmt.Errorf("acquisition.interval must be positive, got %s", c.Acquisition.Interval))
	}
	if c.Acquisition.EndTime < 0 || c.Acquisition.MaxSamples < 0 || c.Acquisition.AverageReads < 0 {
		errs = append(errs, errors.New("acquisition.end_time, max_samples and average_reads must not be negative"))
	}

	seen := make(map[int]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Index < 1 {
			errs = append(errs, fmt.Errorf("channel index must be >= 1, got %d", ch.Index))
		}
		if seen[ch.Index] {
			errs = append(errs, fmt.Errorf("duplicate channel %d", ch.Index))
		}
		seen[ch.Index] = true
		if ch.MinVolts >= ch.MaxVolts {
			errs = append(errs, fmt.Errorf("channel %d: min_volts %g must be below max_volts %g", ch.Index, ch.MinVolts, ch.MaxVolts))
		}
	}

	layout := record.Layout(c.Log.Layout)
	if _, err := layout.Quantities(); err != nil {
		errs = append(errs, err)
	}

	switch c.Calibration.Mode {
	case ModePooled:
	case ModeIndividual:
	default:
		errs = append(errs, fmt.Errorf("unknown calibration mode %q", c.Calibration.Mode))
	}

	if c.needsIndividual() {
		for _, ch := range c.Channels {
			if _, ok := c.Calibration.Individual[ch.Index]; !ok {
				errs = append(errs, fmt.Errorf("channel %d has no individual calibration", ch.Index))
			}
		}
	}

	return errors.Join(errs...)
}

func (c *Config) needsIndividual() bool {
	switch record.Layout(c.Log.Layout) {
	case record.LayoutCompare:
		return true
	case record.LayoutTemperature, record.LayoutBoth:
		return c.Calibration.Mode == ModeIndividual
	}
	return false
}

// ThermistorDivider returns the divider in calibration engine terms.
func (c *Config) ThermistorDivider() thermistor.Divider {
	return thermistor.Divider{VIn: c.Divider.VIn, R0: c.Divider.R0}
}

// ChannelIndexes returns the configured channel indexes in order.
func (c *Config) ChannelIndexes() []int {
	out := make([]int, 0, len(c.Channels))
	for _, ch := range c.Channels {
		out = append(out, ch.Index)
	}
	return out
}

// SelectedCalibration returns the calibration selected by Mode.
func (c *Config) SelectedCalibration() thermistor.Calibration {
	if c.Calibration.Mode == ModeIndividual {
		return thermistor.Individual(c.Calibration.Individual)
	}
	return thermistor.Pooled(c.Calibration.Pooled)
}

// MaxSamples converts the acquisition limit into a sample count.
// An end time T at interval I yields floor(T/I)+1 samples covering 0..T.
// Zero means unbounded.
func (c *Config) MaxSamples() int {
	if c.Acquisition.MaxSamples > 0 {
		return c.Acquisition.MaxSamples
	}
	if c.Acquisition.EndTime <= 0 || c.Acquisition.Interval <= 0 {
		return 0
	}
	return int(c.Acquisition.EndTime/c.Acquisition.Interval) + 1
}

// Labels returns the channel labels keyed by index, omitting empty ones.
func (c *Config) Labels() map[int]string {
	out := make(map[int]string)
	for _, ch := range c.Channels {
		if ch.Label != "" {
			out[ch.Index] = ch.Label
		}
	}
	return out
}
