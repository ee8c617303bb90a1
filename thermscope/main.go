// Command thermscope shows live thermistor channels in a desktop window while
// logging them.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/metrics"
	"github.com/itohio/thermdaq/pkg/scope"
	"github.com/itohio/thermdaq/pkg/session"
	"github.com/itohio/thermdaq/pkg/sink"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use simulated source instead of serial port")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration", "path", *configFlag)
		klog.Flush()
		return
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	application := app.NewWithID("com.itohio.thermscope")

	window := application.NewWindow("Thermistor Scope")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
		useMock:    *mockFlag,
		status:     widget.NewLabel("Stopped"),
	}

	scopeWidget := scope.New(cfg.Display.MaxPoints)
	scopeWidget.SetLabels(cfg.Labels())
	state.scopeWidget = scopeWidget

	if cfg.Metrics.Addr != "" {
		state.registry = prometheus.NewRegistry()
		state.metrics = metrics.New(state.registry)
		go func() {
			if err := metrics.Serve(context.Background(), cfg.Metrics.Addr, state.registry); err != nil {
				klog.ErrorS(err, "Metrics server failed", "addr", cfg.Metrics.Addr)
			}
		}()
	}

	window.SetContent(container.NewBorder(createToolbar(state), nil, nil, nil, scopeWidget))
	window.SetOnClosed(state.stop)
	window.ShowAndRun()
}

// run is one acquisition in progress.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	window      fyne.Window
	scopeWidget *scope.ScopeWidget
	startBtn    *widget.Button
	status      *widget.Label
	useMock     bool

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	mu      sync.Mutex
	current *run
}

// createToolbar creates the application toolbar with Start/Stop and Settings buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	startBtn := widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() {
		handleStartStop(state)
	})
	state.startBtn = startBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(startBtn, settingsBtn),
		state.status,
		nil,
	)
}

func (state *appState) running() bool {
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.current != nil
}

// handleStartStop starts a run, or stops the current one.
func handleStartStop(state *appState) {
	if state.running() {
		state.stop()
		return
	}
	if err := state.start(); err != nil {
		dialog.ShowError(err, state.window)
	}
}

func (state *appState) start() error {
	s, err := session.Open(state.cfg, state.useMock)
	if err != nil {
		return err
	}

	sinks := sink.Multi{state.scopeWidget}
	if state.cfg.Display.PNG != "" {
		sinks = append(sinks, sink.NewPNG(state.cfg.Display.PNG, 10, state.cfg.Display.MaxPoints))
	}

	var next acquire.Observer
	if state.metrics != nil {
		next = state.metrics
	}
	driver, err := s.Driver(sinks, &statusObserver{label: state.status, next: next})
	if err != nil {
		s.Close()
		return err
	}
	state.scopeWidget.SetLabels(state.cfg.Labels())

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, done: make(chan struct{})}

	state.mu.Lock()
	state.current = r
	state.mu.Unlock()
	state.startBtn.SetIcon(theme.MediaStopIcon())

	if state.useMock {
		klog.InfoS("Started simulated acquisition", "log", s.LogPath())
	} else {
		klog.InfoS("Started acquisition", "port", state.cfg.Serial.Port, "log", s.LogPath())
	}

	go func() {
		defer close(r.done)
		err := driver.Run(ctx)
		klog.InfoS("Acquisition finished", "samples", driver.Samples(), "covered", s.Elapsed(driver.Samples()))

		state.mu.Lock()
		if state.current == r {
			state.current = nil
		}
		state.mu.Unlock()

		fyne.Do(func() {
			state.startBtn.SetIcon(theme.MediaPlayIcon())
			if err != nil {
				dialog.ShowError(fmt.Errorf("acquisition stopped: %w", err), state.window)
			}
		})
	}()
	return nil
}

// stop cancels the current run and waits for the driver to release the
// source and log.
func (state *appState) stop() {
	state.mu.Lock()
	r := state.current
	state.current = nil
	state.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}
