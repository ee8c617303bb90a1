package scope

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/window"
)

func TestAutoScale(t *testing.T) {
	tests := []struct {
		name   string
		series []window.Series
		lo, hi float64
	}{
		{name: "empty", lo: 0, hi: 1},
		{name: "range with margin", series: []window.Series{{Values: []float64{10, 20}}}, lo: 9, hi: 21},
		{name: "across series", series: []window.Series{{Values: []float64{10}}, {Values: []float64{30}}}, lo: 8, hi: 32},
		{name: "flat", series: []window.Series{{Values: []float64{5, 5}}}, lo: 4.5, hi: 5.5},
		{name: "ignores NaN", series: []window.Series{{Values: []float64{math.NaN(), 0, 10}}}, lo: -1, hi: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := autoScale(tt.series)
			assert.InDelta(t, tt.lo, lo, 1e-9)
			assert.InDelta(t, tt.hi, hi, 1e-9)
		})
	}
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span float32
		n    int
		want float32
	}{
		{span: 10, n: 10, want: 1},
		{span: 49, n: 10, want: 5},
		{span: 15, n: 10, want: 2},
		{span: 0.3, n: 10, want: 0.05},
		{span: 900, n: 10, want: 100},
		{span: 0, n: 10, want: 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, niceStep(tt.span, tt.n), 1e-6, "span %g", tt.span)
	}
}

func TestProject(t *testing.T) {
	assert.Equal(t, float32(10), project(0, 0, 10, 10, 100))
	assert.Equal(t, float32(60), project(5, 0, 10, 10, 100))
	assert.Equal(t, float32(110), project(10, 0, 10, 10, 100))
	assert.Equal(t, float32(10), project(3, 3, 3, 10, 100))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "21.50", formatValue(21.5, 5))
	assert.Equal(t, "12000", formatValue(12000, 5000))
	assert.Equal(t, "0.1230", formatValue(0.123, 0.05))
}

func TestPanelHeight(t *testing.T) {
	assert.InDelta(t, 260, panelHeight(300, 1), 1e-3)
	assert.InDelta(t, 120, panelHeight(300, 2), 1e-3)
	assert.Equal(t, float32(0), panelHeight(300, 0))
}

func TestSetWindow(t *testing.T) {
	s := &ScopeWidget{maxDisplayPoints: 2}
	s.setWindow(window.Window{
		Time: []float64{0, 1, 2, 3},
		Series: []window.Series{
			{Name: "temp1", Values: []float64{20, 21, 22, 23}},
			{Name: "res1", Values: []float64{100, 90, 80, 70}},
		},
	})

	require.Len(t, s.panels, 2)
	assert.Equal(t, record.Temp, s.panels[0].quantity)
	assert.Equal(t, record.Res, s.panels[1].quantity)
	assert.Equal(t, 2, s.display.Len(), "decimated to maxDisplayPoints")
	assert.Equal(t, 0.0, s.xMin)
	assert.Equal(t, 2.0, s.xMax)

	s.setWindow(window.Window{Time: []float64{5}, Series: []window.Series{{Name: "res1", Values: []float64{1}}}})
	require.Len(t, s.panels, 1)
	assert.Equal(t, 5.0, s.xMin)
	assert.Equal(t, 6.0, s.xMax)
}

func TestLegendName(t *testing.T) {
	s := &ScopeWidget{labels: map[int]string{2: "inlet"}}
	assert.Equal(t, "temp2 inlet", s.legendName("temp2"))
	assert.Equal(t, "temp1", s.legendName("temp1"))
	assert.Equal(t, "dif12", s.legendName("dif12"))
}
