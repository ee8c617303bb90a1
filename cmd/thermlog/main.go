// Command thermlog records thermistor channels to a log file without a GUI.
//
//	thermlog -t 1 -e 600 -f run.csv
//	thermlog calibrate -log run.csv -points 0=0.1,600=25,1200=50
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/config"
	"github.com/itohio/thermdaq/pkg/daq"
	"github.com/itohio/thermdaq/pkg/metrics"
	"github.com/itohio/thermdaq/pkg/session"
	"github.com/itohio/thermdaq/pkg/sink"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	if len(os.Args) > 1 && os.Args[1] == "calibrate" {
		if err := runCalibrate(os.Args[2:], os.Stdout); err != nil {
			klog.ErrorS(err, "Calibration failed")
			klog.Flush()
			os.Exit(1)
		}
		return
	}

	var (
		intervalFlag = flag.Float64("t", 0, "Sampling interval in seconds (overrides config)")
		endFlag      = flag.Float64("e", -1, "End time in seconds; 0 runs until interrupted (overrides config)")
		fileFlag     = flag.String("f", "", "Output log file; .txt/.tsv are tab separated (overrides config)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated source instead of serial port")
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		layoutFlag   = flag.String("layout", "", "Log layout: resistance, temperature, both or compare")
		metricsFlag  = flag.String("metrics-addr", "", "Prometheus listen address, e.g. :9100")
		pngFlag      = flag.String("png", "", "Write a chart of the live window to this PNG file")
		sqliteFlag   = flag.String("sqlite", "", "Mirror the log into this SQLite database")
		portsFlag    = flag.Bool("ports", false, "List serial ports and exit")
		averageFlag  = flag.Int("average-reads", -1, "Source reads averaged per sample (0 = disabled, overrides config)")
	)
	flag.Parse()

	if *portsFlag {
		if err := listPorts(); err != nil {
			klog.ErrorS(err, "Failed to list ports")
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		klog.ErrorS(err, "Failed to load configuration", "path", *configFlag)
		os.Exit(1)
	}

	if *intervalFlag > 0 {
		cfg.Acquisition.Interval = seconds(*intervalFlag)
	}
	if *endFlag >= 0 {
		cfg.Acquisition.EndTime = seconds(*endFlag)
		cfg.Acquisition.MaxSamples = 0
	}
	if *fileFlag != "" {
		cfg.Log.Path = *fileFlag
		cfg.Log.Format = ""
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *layoutFlag != "" {
		cfg.Log.Layout = *layoutFlag
	}
	if *metricsFlag != "" {
		cfg.Metrics.Addr = *metricsFlag
	}
	if *pngFlag != "" {
		cfg.Display.PNG = *pngFlag
	}
	if *sqliteFlag != "" {
		cfg.Log.SQLite = *sqliteFlag
	}
	if *averageFlag >= 0 {
		cfg.Acquisition.AverageReads = *averageFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mockFlag); err != nil {
		klog.ErrorS(err, "Acquisition failed")
		klog.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, useMock bool) error {
	s, err := session.Open(cfg, useMock)
	if err != nil {
		return err
	}

	sinks := sink.Multi{sink.NewLog()}
	if cfg.Display.PNG != "" {
		sinks = append(sinks, sink.NewPNG(cfg.Display.PNG, 1, cfg.Display.MaxPoints))
	}

	var obs acquire.Observer
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		obs = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				klog.ErrorS(err, "Metrics server failed", "addr", cfg.Metrics.Addr)
			}
		}()
	}

	driver, err := s.Driver(sinks, obs)
	if err != nil {
		s.Close()
		return err
	}

	if err := driver.Run(ctx); err != nil {
		return err
	}
	klog.InfoS("Log complete", "path", s.LogPath(), "samples", driver.Samples(), "covered", s.Elapsed(driver.Samples()))
	return nil
}

func listPorts() error {
	ports, err := daq.Ports()
	if err != nil {
		return err
	}
	for _, p := range ports {
		fmt.Println(p.Description)
	}
	return nil
}

// seconds converts a flag value to a duration, rounded to the nanosecond.
func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
