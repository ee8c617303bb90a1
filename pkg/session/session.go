// Package session wires a configuration into the pieces an acquisition run
// needs: source, log schema, recorders and driver options.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/daq"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/store"
	"github.com/itohio/thermdaq/pkg/thermistor"
	"github.com/itohio/thermdaq/pkg/window"
)

// Session holds the opened resources of one run. The driver created from
// Options owns them once Run starts; before that, Close releases them.
type Session struct {
	cfg      *config.Config
	schema   *record.Schema
	log      *record.FileLog
	recorder record.Recorder
	source   daq.Source
	channels []daq.ChannelRange
}

// Open validates cfg, creates the log (and its SQLite mirror when
// configured) and prepares the source. useMock selects the simulated source.
func Open(cfg *config.Config, useMock bool) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	schema, err := record.NewSchema(record.Layout(cfg.Log.Layout), cfg.ChannelIndexes())
	if err != nil {
		return nil, err
	}

	format := record.Format(cfg.Log.Format)
	if format == "" {
		format = record.FormatFromPath(cfg.Log.Path)
	}
	if dir := filepath.Dir(cfg.Log.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	log, err := record.Create(cfg.Log.Path, schema, format)
	if err != nil {
		return nil, err
	}
	klog.InfoS("Log opened", "path", cfg.Log.Path, "format", format, "columns", len(schema.Header()))

	var recorder record.Recorder = log
	if cfg.Log.SQLite != "" {
		db, err := store.Create(cfg.Log.SQLite, cfg.Log.Table, schema)
		if err != nil {
			log.Close()
			return nil, err
		}
		tee, err := record.NewTee(log, db)
		if err != nil {
			log.Close()
			db.Close()
			return nil, err
		}
		recorder = tee
	}

	s := &Session{
		cfg:      cfg,
		schema:   schema,
		log:      log,
		recorder: recorder,
		source:   newSource(cfg, useMock),
		channels: channelRanges(cfg.Channels),
	}
	return s, nil
}

func newSource(cfg *config.Config, useMock bool) daq.Source {
	var src daq.Source
	if useMock {
		klog.InfoS("Using simulated source")
		src = daq.NewSimulated(&cfg.Mock, cfg.ThermistorDivider(), cfg.Calibration.Pooled)
	} else {
		src = daq.NewSerial(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.ADCBits, cfg.Serial.VRef)
	}
	if cfg.Acquisition.AverageReads > 1 {
		klog.V(2).InfoS("Averaging source reads", "reads", cfg.Acquisition.AverageReads)
	}
	return daq.NewAveraging(src, cfg.Acquisition.AverageReads)
}

func channelRanges(channels []config.ChannelConfig) []daq.ChannelRange {
	out := make([]daq.ChannelRange, len(channels))
	for i, ch := range channels {
		out[i] = daq.ChannelRange{Channel: ch.Index, MinVolts: ch.MinVolts, MaxVolts: ch.MaxVolts}
	}
	return out
}

// Schema returns the log schema.
func (s *Session) Schema() *record.Schema { return s.schema }

// LogPath returns the path of the text log.
func (s *Session) LogPath() string { return s.log.Path() }

// Options returns driver options for this session. The window is read back
// from the in-memory history.
func (s *Session) Options(sink acquire.Sink, obs acquire.Observer) acquire.Options {
	cfg := s.cfg
	return acquire.Options{
		Source:      s.source,
		Channels:    s.channels,
		Divider:     cfg.ThermistorDivider(),
		Calibration: cfg.SelectedCalibration(),
		Pooled:      thermistor.Pooled(cfg.Calibration.Pooled),
		Individual:  thermistor.Individual(cfg.Calibration.Individual),
		Schema:      s.schema,
		Recorder:    s.recorder,
		WindowSize:  cfg.Display.WindowSize,
		Offsets:     window.StepOffsets(s.schema.Header(), cfg.Display.OffsetStep),
		Sink:        sink,
		Observer:    obs,
		Interval:    cfg.Acquisition.Interval,
		MaxSamples:  cfg.MaxSamples(),
	}
}

// Driver builds a driver for this session.
func (s *Session) Driver(sink acquire.Sink, obs acquire.Observer) (*acquire.Driver, error) {
	return acquire.New(s.Options(sink, obs))
}

// Close releases the source and recorders. Use it only when the driver never
// ran.
func (s *Session) Close() error {
	return errors.Join(s.source.Close(), s.recorder.Close())
}

// Elapsed returns the log time covered by n samples.
func (s *Session) Elapsed(n int) time.Duration {
	if n <= 1 {
		return 0
	}
	return time.Duration(n-1) * s.cfg.Acquisition.Interval
}
