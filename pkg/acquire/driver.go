// Package acquire runs the per-tick pipeline: read voltages, calibrate,
// append a log row, derive the display window and hand it to the sink.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/daq"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/thermistor"
	"github.com/itohio/thermdaq/pkg/window"
)

// State is the driver lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrNotIdle is returned when Run is called more than once.
var ErrNotIdle = errors.New("acquire: driver is not idle")

// SourceReadError wraps a voltage source failure.
type SourceReadError struct {
	Err error
}

func (e *SourceReadError) Error() string { return "acquire: source read: " + e.Err.Error() }
func (e *SourceReadError) Unwrap() error { return e.Err }

// SinkError wraps a chart rendering failure.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "acquire: sink: " + e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// Sink receives the window after every recorded row.
type Sink interface {
	Render(w window.Window) error
}

// Observer is notified of tick outcomes.
type Observer interface {
	ObserveTick(row record.Row, took time.Duration)
	ObserveError(err error)
	ObserveState(s State)
}

// Options configures a Driver.
type Options struct {
	Source   daq.Source
	Channels []daq.ChannelRange // Same channel order as the schema
	Divider  thermistor.Divider

	// Calibration converts temp columns. Pooled and Individual feed the
	// total and ind columns of the compare layout.
	Calibration thermistor.Calibration
	Pooled      thermistor.Calibration
	Individual  thermistor.Calibration

	Schema   *record.Schema
	Recorder record.Recorder

	// Window is read to build the display window. Nil uses the driver's
	// in-memory history.
	Window     record.Tailer
	WindowSize int
	Offsets    window.Offsets

	Sink     Sink     // Optional
	Observer Observer // Optional

	Interval   time.Duration
	MaxSamples int              // 0 = until ctx is cancelled
	Ticks      <-chan time.Time // Optional external trigger; nil uses a ticker at Interval
}

// Driver owns the source and recorder for the duration of Run.
type Driver struct {
	opts    Options
	history *window.History
	quants  []record.Quantity

	started atomic.Bool
	state   atomic.Int32
	mu      sync.Mutex
	err     error
	samples int
}

// New validates opts and returns an Idle driver.
func New(opts Options) (*Driver, error) {
	if opts.Source == nil {
		return nil, errors.New("acquire: no source")
	}
	if opts.Recorder == nil {
		return nil, errors.New("acquire: no recorder")
	}
	if opts.Schema == nil {
		return nil, errors.New("acquire: no schema")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("acquire: interval must be positive, got %s", opts.Interval)
	}
	if opts.MaxSamples < 0 {
		return nil, fmt.Errorf("acquire: negative sample limit %d", opts.MaxSamples)
	}

	chans := make([]int, len(opts.Channels))
	for i, ch := range opts.Channels {
		chans[i] = ch.Channel
	}
	if !slices.Equal(chans, opts.Schema.Channels()) {
		return nil, fmt.Errorf("acquire: source channels %v do not match log channels %v", chans, opts.Schema.Channels())
	}

	quants, err := opts.Schema.Layout().Quantities()
	if err != nil {
		return nil, err
	}
	for _, q := range quants {
		switch {
		case q == record.Temp && opts.Calibration == nil:
			return nil, errors.New("acquire: temperature layout needs a calibration")
		case (q == record.Ind || q == record.Dif) && opts.Individual == nil:
			return nil, errors.New("acquire: compare layout needs an individual calibration")
		case (q == record.Total || q == record.Dif) && opts.Pooled == nil:
			return nil, errors.New("acquire: compare layout needs a pooled calibration")
		}
	}

	if opts.WindowSize <= 0 {
		opts.WindowSize = window.DefaultSize
	}

	d := &Driver{
		opts:    opts,
		history: window.NewHistory(opts.WindowSize),
		quants:  quants,
	}
	if d.opts.Window == nil {
		d.opts.Window = d.history
	}
	return d, nil
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Err returns the error that stopped the driver, if any.
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Samples returns the number of rows recorded so far.
func (d *Driver) Samples() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.samples
}

// History returns the in-memory buffer of recent rows.
func (d *Driver) History() *window.History { return d.history }

// Run configures the source and ticks until the sample limit is reached, ctx
// is cancelled, or a step fails. The first tick fires immediately. On return
// the driver is Stopped and both the source and the recorder are closed.
// Cancellation is a normal stop and returns nil.
func (d *Driver) Run(ctx context.Context) (err error) {
	if !d.started.CompareAndSwap(false, true) {
		return ErrNotIdle
	}

	defer func() {
		err = errors.Join(err, d.release())
		d.mu.Lock()
		d.err = err
		d.mu.Unlock()
		d.setState(Stopped)
		if err != nil {
			d.observeError(err)
			klog.ErrorS(err, "Acquisition stopped", "samples", d.Samples())
		} else {
			klog.InfoS("Acquisition stopped", "samples", d.Samples())
		}
	}()

	if err := d.opts.Source.Configure(d.opts.Channels); err != nil {
		return &SourceReadError{Err: fmt.Errorf("configure: %w", err)}
	}
	d.setState(Running)

	if d.opts.MaxSamples == 0 {
		klog.InfoS("No end time specified, collection continues indefinitely", "interval", d.opts.Interval)
	} else {
		klog.InfoS("Acquisition started", "interval", d.opts.Interval, "samples", d.opts.MaxSamples)
	}

	ticks := d.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(d.opts.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for tick := 0; ; tick++ {
		if err := d.tick(ctx, tick); err != nil {
			return err
		}
		if d.opts.MaxSamples > 0 && tick+1 >= d.opts.MaxSamples {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
		}
	}
}

// tick runs one read, calibrate, record, render sequence. A failure before
// Append leaves the log unchanged.
func (d *Driver) tick(ctx context.Context, tick int) error {
	start := time.Now()

	volts, err := d.opts.Source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &SourceReadError{Err: err}
	}
	if len(volts) != len(d.opts.Channels) {
		return &SourceReadError{Err: fmt.Errorf("got %d voltages for %d channels", len(volts), len(d.opts.Channels))}
	}

	values, err := d.calibrate(volts)
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}

	t := float64(tick) * d.opts.Interval.Seconds()
	row, err := d.opts.Schema.Build(t, values)
	if err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	if err := d.opts.Recorder.Append(row); err != nil {
		return fmt.Errorf("tick %d: %w", tick, err)
	}
	d.history.Add(row)

	d.mu.Lock()
	d.samples++
	d.mu.Unlock()

	if d.opts.Sink != nil {
		rows, err := d.opts.Window.Tail(d.opts.WindowSize)
		if err != nil {
			return fmt.Errorf("tick %d: window: %w", tick, err)
		}
		w := window.View(rows, d.opts.WindowSize, d.opts.Offsets)
		if err := d.opts.Sink.Render(w); err != nil {
			return &SinkError{Err: err}
		}
	}

	if d.opts.Observer != nil {
		d.opts.Observer.ObserveTick(row, time.Since(start))
	}
	return nil
}

// calibrate derives every logged quantity from one set of voltages.
func (d *Driver) calibrate(volts []float64) (record.Values, error) {
	values := make(record.Values, len(d.quants))
	div := d.opts.Divider

	for i, ch := range d.opts.Channels {
		v := volts[i]
		for _, q := range d.quants {
			switch q {
			case record.Res:
				rt, err := thermistor.Resistance(v, div)
				if err != nil {
					return nil, fmt.Errorf("channel %d: %w", ch.Channel, err)
				}
				values.Set(q, ch.Channel, rt)
			case record.Temp:
				r, err := thermistor.ConvertChannel(ch.Channel, v, div, d.opts.Calibration)
				if err != nil {
					return nil, err
				}
				values.Set(q, ch.Channel, r.Temperature)
			case record.Ind:
				r, err := thermistor.ConvertChannel(ch.Channel, v, div, d.opts.Individual)
				if err != nil {
					return nil, err
				}
				values.Set(q, ch.Channel, r.Temperature)
			case record.Total:
				r, err := thermistor.ConvertChannel(ch.Channel, v, div, d.opts.Pooled)
				if err != nil {
					return nil, err
				}
				values.Set(q, ch.Channel, r.Temperature)
			case record.Dif:
				dif, err := thermistor.Difference(ch.Channel, v, div, d.opts.Individual, d.opts.Pooled)
				if err != nil {
					return nil, err
				}
				values.Set(q, ch.Channel, dif)
			}
		}
	}
	return values, nil
}

// release closes the source and the recorder.
func (d *Driver) release() error {
	var errs []error
	if err := d.opts.Source.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if err := d.opts.Recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recorder: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveState(s)
	}
}

func (d *Driver) observeError(err error) {
	if d.opts.Observer != nil {
		d.opts.Observer.ObserveError(err)
	}
}
