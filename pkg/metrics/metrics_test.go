package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/thermistor"
)

func TestObserveTick(t *testing.T) {
	m := New(prometheus.NewRegistry())

	row := record.Row{
		Fields: []string{record.TimeField, "temp1", "temp2"},
		Values: []float64{3, 21.5, 22.25},
	}
	m.ObserveTick(row, 2*time.Millisecond)
	m.ObserveTick(row, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.samples))
	assert.Equal(t, 21.5, testutil.ToFloat64(m.value.WithLabelValues("temp1")))
	assert.Equal(t, 22.25, testutil.ToFloat64(m.value.WithLabelValues("temp2")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.value), "time is not exported")
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestObserveState(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveState(acquire.Running)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.state))
	m.ObserveState(acquire.Stopped)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.state))
}

func TestObserveError(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveError(&acquire.SinkError{Err: errors.New("closed")})
	m.ObserveError(&acquire.SinkError{Err: errors.New("closed")})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.errors.WithLabelValues("sink")))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: &acquire.SourceReadError{Err: errors.New("eof")}, want: "source_read"},
		{err: fmt.Errorf("tick 3: %w", &thermistor.DomainError{Op: "log", Value: 0}), want: "domain"},
		{err: &thermistor.MissingProfileError{Channel: 4}, want: "missing_profile"},
		{err: &record.SchemaMismatchError{}, want: "schema_mismatch"},
		{err: &acquire.SinkError{Err: errors.New("x")}, want: "sink"},
		{err: errors.New("disk full"), want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	require.Panics(t, func() { New(reg) })
}
