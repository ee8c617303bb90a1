package daq

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

// Simulated models a thermistor harness behind a voltage divider. Each channel
// follows a slow sine around the ambient temperature with a per-channel phase,
// plus uniform noise on the voltage. Time advances by cfg.Step per Read, so
// output does not depend on the wall clock.
type Simulated struct {
	cfg     config.MockConfig
	divider thermistor.Divider
	coeffs  thermistor.Coefficients

	mu       sync.Mutex
	rng      *rand.Rand
	channels []ChannelRange
	reads    int
	closed   bool
}

// NewSimulated creates a simulated source. A nil cfg selects the defaults.
func NewSimulated(cfg *config.MockConfig, d thermistor.Divider, c thermistor.Coefficients) *Simulated {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}

	return &Simulated{
		cfg:     *cfg,
		divider: d,
		coeffs:  c,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// Configure records the channel set.
func (m *Simulated) Configure(channels []ChannelRange) error {
	if err := validateRanges(channels); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.channels = append([]ChannelRange(nil), channels...)
	return nil
}

// Read returns one simulated voltage per channel.
func (m *Simulated) Read(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("daq: simulated source closed")
	}
	if m.channels == nil {
		return nil, ErrNotConfigured
	}

	elapsed := time.Duration(m.reads) * m.cfg.Step
	m.reads++

	volts := make([]float64, len(m.channels))
	for i, ch := range m.channels {
		celsius := m.temperature(i, elapsed)
		rt, err := thermistor.ResistanceAt(celsius, m.coeffs)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
		v := thermistor.Voltage(rt, m.divider)
		v += (m.rng.Float64()*2 - 1) * m.cfg.NoiseLevel
		volts[i] = clamp(v, ch.MinVolts, ch.MaxVolts)
	}
	return volts, nil
}

// temperature returns the simulated temperature of channel i.
func (m *Simulated) temperature(i int, elapsed time.Duration) float64 {
	phase := 0.0
	if m.cfg.Period > 0 {
		phase = 2 * math.Pi * elapsed.Seconds() / m.cfg.Period.Seconds()
	}
	// Channels sit half a degree apart so traces do not overlap.
	return m.cfg.Ambient + 0.5*float64(i) + m.cfg.Swing*math.Sin(phase+0.4*float64(i))
}

// Close stops the source. Further reads fail.
func (m *Simulated) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
