package scope

import (
	"image/color"
	"math"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/record"
	"github.com/itohio/thermdaq/pkg/window"
)

var _ acquire.Sink = (*ScopeWidget)(nil)

// panel is one stacked chart: all series of one quantity group.
type panel struct {
	quantity   record.Quantity
	series     []window.Series
	yMin, yMax float64
}

// ScopeWidget is a custom Fyne widget that draws the live window, one
// stacked panel per quantity group (e.g. temperature above resistance).
type ScopeWidget struct {
	widget.BaseWidget

	// Data (protected by mu)
	mu         sync.RWMutex
	display    window.Window
	panels     []panel
	xMin, xMax float64
	labels     map[int]string

	maxDisplayPoints int
}

// New creates a new ScopeWidget. maxPoints limits points drawn per series.
func New(maxPoints int) *ScopeWidget {
	if maxPoints <= 0 {
		maxPoints = 1000
	}
	s := &ScopeWidget{maxDisplayPoints: maxPoints}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// SetLabels sets legend names for channels; unnamed channels use the
// column name.
func (s *ScopeWidget) SetLabels(labels map[int]string) {
	s.mu.Lock()
	s.labels = labels
	s.mu.Unlock()
}

// Render implements acquire.Sink. It may be called from any goroutine.
func (s *ScopeWidget) Render(w window.Window) error {
	s.setWindow(w)
	fyne.Do(s.Refresh)
	return nil
}

// setWindow decimates w into the display buffer and recomputes scales.
func (s *ScopeWidget) setWindow(w window.Window) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.display = window.Decimate(s.display, w, s.maxDisplayPoints)
	s.panels = s.panels[:0]
	for _, q := range s.display.Quantities() {
		p := panel{quantity: q, series: s.display.Group(q)}
		p.yMin, p.yMax = autoScale(p.series)
		s.panels = append(s.panels, p)
	}

	s.xMin, s.xMax = 0, 1
	if n := s.display.Len(); n > 0 {
		s.xMin, s.xMax = s.display.Time[0], s.display.Time[n-1]
		if s.xMax <= s.xMin {
			s.xMax = s.xMin + 1
		}
	}
}

// autoScale returns the value range of series with a 10% margin.
func autoScale(series []window.Series) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 1
	}

	span := hi - lo
	if span == 0 {
		span = math.Max(math.Abs(hi), 1)
	}
	margin := span * 0.1
	return lo - margin, hi + margin
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
