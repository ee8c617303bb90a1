// Package daq provides voltage sources: the serial ADC frontend, a simulated
// thermistor harness and an aggregate of several sources.
package daq

import (
	"context"
	"errors"
	"fmt"
)

// ChannelRange configures one analog input. Channel is the logical index
// used in log columns; readings are returned in configuration order.
type ChannelRange struct {
	Channel  int
	MinVolts float64
	MaxVolts float64
}

// Source yields one voltage per configured channel on demand.
type Source interface {
	// Configure sets the channel set once before the first Read.
	Configure(channels []ChannelRange) error
	// Read blocks until one voltage per configured channel is available.
	Read(ctx context.Context) ([]float64, error)
	Close() error
}

// Ensure sources implement Source.
var (
	_ Source = (*Serial)(nil)
	_ Source = (*Simulated)(nil)
	_ Source = (*Multi)(nil)
)

// ErrNotConfigured is returned by Read before Configure.
var ErrNotConfigured = errors.New("daq: source not configured")

// RangeError reports a reading outside its configured channel range.
type RangeError struct {
	Channel int
	Volts   float64
	Min     float64
	Max     float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("daq: channel %d read %gV outside [%g, %g]", e.Channel, e.Volts, e.Min, e.Max)
}

func validateRanges(channels []ChannelRange) error {
	if len(channels) == 0 {
		return errors.New("daq: no channels")
	}
	for _, ch := range channels {
		if ch.MinVolts >= ch.MaxVolts {
			return fmt.Errorf("daq: channel %d: invalid range [%g, %g]", ch.Channel, ch.MinVolts, ch.MaxVolts)
		}
	}
	return nil
}

func checkRange(ch ChannelRange, v float64) error {
	if v < ch.MinVolts || v > ch.MaxVolts {
		return &RangeError{Channel: ch.Channel, Volts: v, Min: ch.MinVolts, Max: ch.MaxVolts}
	}
	return nil
}

// Part is one member of a Multi source and the number of channels it serves.
type Part struct {
	Source   Source
	Channels int
}

// Multi aggregates several sources, e.g. several ADC boards, into one.
// Channels are assigned to parts in order.
type Multi struct {
	parts []Part
}

// NewMulti creates an aggregate source.
func NewMulti(parts ...Part) *Multi {
	return &Multi{parts: parts}
}

// Configure splits channels across the parts in order. The total channel
// count must match the sum of the parts.
func (m *Multi) Configure(channels []ChannelRange) error {
	total := 0
	for _, p := range m.parts {
		total += p.Channels
	}
	if total != len(channels) {
		return fmt.Errorf("daq: %d channels configured, sources serve %d", len(channels), total)
	}

	offset := 0
	for i, p := range m.parts {
		if err := p.Source.Configure(channels[offset : offset+p.Channels]); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
		offset += p.Channels
	}
	return nil
}

// Read reads every part in order and concatenates the voltages.
func (m *Multi) Read(ctx context.Context) ([]float64, error) {
	var out []float64
	for i, p := range m.parts {
		v, err := p.Source.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		if len(v) != p.Channels {
			return nil, fmt.Errorf("source %d: got %d voltages, want %d", i, len(v), p.Channels)
		}
		out = append(out, v...)
	}
	return out, nil
}

// Close closes all parts.
func (m *Multi) Close() error {
	var errs []error
	for _, p := range m.parts {
		if err := p.Source.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
