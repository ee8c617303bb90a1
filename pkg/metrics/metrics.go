// Package metrics exports acquisition state to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

const namespace = "thermdaq"

var _ acquire.Observer = (*Metrics)(nil)

// Metrics implements acquire.Observer.
type Metrics struct {
	value    *prometheus.GaugeVec
	samples  prometheus.Counter
	errors   *prometheus.CounterVec
	duration prometheus.Histogram
	state    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "value",
				Help:      "Latest logged value per log column",
			},
			[]string{"field"},
		),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Rows appended to the log",
		}),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors that stopped acquisition, by kind",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one read, calibrate, record, render tick",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Driver state: 0 idle, 1 running, 2 stopped",
		}),
	}
	reg.MustRegister(m.value, m.samples, m.errors, m.duration, m.state)
	return m
}

// ObserveTick implements acquire.Observer.
func (m *Metrics) ObserveTick(row record.Row, took time.Duration) {
	m.samples.Inc()
	m.duration.Observe(took.Seconds())
	for i, f := range row.Fields {
		if f == record.TimeField || i >= len(row.Values) {
			continue
		}
		m.value.WithLabelValues(f).Set(row.Values[i])
	}
}

// ObserveError implements acquire.Observer.
func (m *Metrics) ObserveError(err error) {
	m.errors.WithLabelValues(Kind(err)).Inc()
}

// ObserveState implements acquire.Observer.
func (m *Metrics) ObserveState(s acquire.State) {
	m.state.Set(float64(s))
}

// Kind classifies an acquisition error for the errors_total label.
func Kind(err error) string {
	var (
		domainErr  *thermistor.DomainError
		profileErr *thermistor.MissingProfileError
		schemaErr  *record.SchemaMismatchError
		readErr    *acquire.SourceReadError
		sinkErr    *acquire.SinkError
	)
	switch {
	case errors.As(err, &readErr):
		return "source_read"
	case errors.As(err, &domainErr):
		return "domain"
	case errors.As(err, &profileErr):
		return "missing_profile"
	case errors.As(err, &schemaErr):
		return "schema_mismatch"
	case errors.As(err, &sinkErr):
		return "sink"
	}
	return "other"
}

// Serve exposes gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.ErrorS(err, "Failed to stop metrics server")
		}
	}()

	klog.InfoS("Starting metrics server", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
