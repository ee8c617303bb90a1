package daq

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		n       int
		want    []uint16
		wantErr bool
	}{
		{name: "single channel", line: "2048", n: 1, want: []uint16{2048}},
		{name: "three channels", line: "0,2048,4095", n: 3, want: []uint16{0, 2048, 4095}},
		{name: "spaces around values", line: "12, 34", n: 2, want: []uint16{12, 34}},
		{name: "too few fields", line: "1,2", n: 3, wantErr: true},
		{name: "too many fields", line: "1,2,3,4", n: 3, wantErr: true},
		{name: "not a number", line: "1,x", n: 2, wantErr: true},
		{name: "negative", line: "-1", n: 1, wantErr: true},
		{name: "above 12 bits", line: "4096", n: 1, wantErr: true},
		{name: "empty", line: "", n: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line, tt.n, 12)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdcToVoltage(t *testing.T) {
	assert.Equal(t, 0.0, adcToVoltage(0, 12, 5))
	assert.Equal(t, 5.0, adcToVoltage(4095, 12, 5))
	assert.InDelta(t, 1.65, adcToVoltage(2048, 12, 3.3), 0.001)
	assert.Equal(t, 3.3, adcToVoltage(1023, 10, 3.3))
}

func TestSerial_DefaultsMatchFirmware(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, DefaultVRef, cfg.Serial.VRef)
	assert.Equal(t, DefaultADCBits, cfg.Serial.ADCBits)

	// The firmware reports 12-bit counts against a 3.3 V reference.
	const firmwareVRef = 3.3
	d, _ := newFakeSerial(t, "2048\n4095\n")
	require.NoError(t, d.Configure(fullRange(1)))

	v, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, firmwareVRef*2048/4095, v[0], 1e-9)

	// Full scale stays below the divider supply, so it still converts.
	v, err = d.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, firmwareVRef, v[0], 1e-9)
	_, err = thermistor.Resistance(v[0], cfg.ThermistorDivider())
	assert.NoError(t, err)
}

type fakePort struct {
	responses *bytes.Buffer
	written   bytes.Buffer
	closed    bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.responses.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.written.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func newFakeSerial(t *testing.T, responses string) (*Serial, *fakePort) {
	t.Helper()
	port := &fakePort{responses: bytes.NewBufferString(responses)}
	d := NewSerial("fake", 0, 0, 0)
	d.open = func(name string, baud int) (io.ReadWriteCloser, error) {
		assert.Equal(t, "fake", name)
		assert.Equal(t, DefaultBaudRate, baud)
		return port, nil
	}
	return d, port
}

func fullRange(channels ...int) []ChannelRange {
	out := make([]ChannelRange, len(channels))
	for i, ch := range channels {
		out[i] = ChannelRange{Channel: ch, MinVolts: 0, MaxVolts: 5}
	}
	return out
}

func TestSerial_Read(t *testing.T) {
	d, port := newFakeSerial(t, "4095,0\r\n2048,1024\n")
	ctx := context.Background()

	_, err := d.Read(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, d.Configure(fullRange(1, 2)))
	assert.Error(t, d.Configure(fullRange(1, 2)), "second Configure must fail")

	v, err := d.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{3.3, 0}, v)

	v, err = d.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.650, v[0], 0.001)
	assert.InDelta(t, 0.825, v[1], 0.001)

	assert.Equal(t, "R\nR\n", port.written.String(), "one poll per read")

	_, err = d.Read(ctx)
	assert.Error(t, err, "EOF must surface as an error")

	require.NoError(t, d.Close())
	assert.True(t, port.closed)
	require.NoError(t, d.Close())
}

func TestSerial_RangeError(t *testing.T) {
	d, _ := newFakeSerial(t, "4095\n")
	require.NoError(t, d.Configure([]ChannelRange{{Channel: 7, MinVolts: 0, MaxVolts: 3}}))

	_, err := d.Read(context.Background())
	var rangeErr *RangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, 7, rangeErr.Channel)
}

func TestSerial_OpenError(t *testing.T) {
	d := NewSerial("missing", 0, 0, 0)
	d.open = func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such port")
	}
	assert.Error(t, d.Configure(fullRange(1)))
}

func TestSerial_CancelledContext(t *testing.T) {
	d, port := newFakeSerial(t, "1\n")
	require.NoError(t, d.Configure(fullRange(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, port.written.String())
}

func TestConfigure_InvalidRanges(t *testing.T) {
	s := NewSimulated(nil, thermistor.DefaultDivider, thermistor.Coefficients(thermistor.DefaultPooled))
	assert.Error(t, s.Configure(nil))
	assert.Error(t, s.Configure([]ChannelRange{{Channel: 1, MinVolts: 5, MaxVolts: 0}}))
}

func TestSimulated_MatchesThermistorModel(t *testing.T) {
	cfg := &config.MockConfig{Ambient: 21, Swing: 2, Period: time.Minute, Step: 15 * time.Second}
	coeffs := thermistor.Coefficients(thermistor.DefaultPooled)
	s := NewSimulated(cfg, thermistor.DefaultDivider, coeffs)
	require.NoError(t, s.Configure(fullRange(1, 2, 3)))

	ctx := context.Background()
	for read := range 4 {
		v, err := s.Read(ctx)
		require.NoError(t, err)
		require.Len(t, v, 3)

		elapsed := time.Duration(read) * cfg.Step
		for i := range v {
			r, err := thermistor.Convert(v[i], thermistor.DefaultDivider, coeffs)
			require.NoError(t, err)
			assert.InDelta(t, s.temperature(i, elapsed), r.Temperature, 1e-6)
		}
	}
}

func TestSimulated_Deterministic(t *testing.T) {
	cfg := &config.MockConfig{Ambient: 22, Swing: 3, Period: time.Minute, NoiseLevel: 0.01, Step: time.Second, Seed: 42}
	coeffs := thermistor.Coefficients(thermistor.DefaultPooled)

	read := func() [][]float64 {
		s := NewSimulated(cfg, thermistor.DefaultDivider, coeffs)
		require.NoError(t, s.Configure(fullRange(1, 2)))
		var out [][]float64
		for range 5 {
			v, err := s.Read(context.Background())
			require.NoError(t, err)
			out = append(out, v)
		}
		return out
	}

	assert.Equal(t, read(), read())
}

func TestSimulated_Close(t *testing.T) {
	s := NewSimulated(nil, thermistor.DefaultDivider, thermistor.Coefficients(thermistor.DefaultPooled))
	_, err := s.Read(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	require.NoError(t, s.Configure(fullRange(1)))
	require.NoError(t, s.Close())
	_, err = s.Read(context.Background())
	assert.Error(t, err)
}

type constSource struct {
	volts      []float64
	configured []ChannelRange
	closed     bool
	err        error
}

func (c *constSource) Configure(ch []ChannelRange) error { c.configured = ch; return nil }
func (c *constSource) Read(context.Context) ([]float64, error) {
	return c.volts, c.err
}
func (c *constSource) Close() error { c.closed = true; return nil }

func TestMulti(t *testing.T) {
	a := &constSource{volts: []float64{1, 2}}
	b := &constSource{volts: []float64{3}}
	m := NewMulti(Part{Source: a, Channels: 2}, Part{Source: b, Channels: 1})

	assert.Error(t, m.Configure(fullRange(1, 2)), "channel count mismatch")
	require.NoError(t, m.Configure(fullRange(1, 2, 9)))
	assert.Equal(t, fullRange(1, 2), a.configured)
	assert.Equal(t, fullRange(9), b.configured)

	v, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)

	b.err = errors.New("board unplugged")
	_, err = m.Read(context.Background())
	assert.ErrorContains(t, err, "board unplugged")

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

type countingSource struct {
	constSource
	reads int
}

func (c *countingSource) Read(context.Context) ([]float64, error) {
	c.reads++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(c.reads), 2 * float64(c.reads)}, nil
}

func TestAveraging(t *testing.T) {
	inner := &countingSource{}
	assert.Same(t, Source(inner), NewAveraging(inner, 1), "n <= 1 is a no-op")

	avg := NewAveraging(inner, 4)
	require.NoError(t, avg.Configure(fullRange(1, 2)))
	assert.Equal(t, fullRange(1, 2), inner.configured)

	v, err := avg.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 5}, v)
	assert.Equal(t, 4, inner.reads)

	inner.err = errors.New("timeout")
	_, err = avg.Read(context.Background())
	assert.ErrorContains(t, err, "timeout")

	require.NoError(t, avg.Close())
	assert.True(t, inner.closed)
}
