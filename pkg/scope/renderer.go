package scope

import (
	"image/color"
	"strconv"
	"strings"
	"unicode"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/chewxy/math32"
)

const (
	marginLeft   = float32(70)
	marginRight  = float32(90) // legend
	marginTop    = float32(10)
	marginBottom = float32(30)
	panelGap     = float32(20)

	hGridLines = 4
	vGridLines = 10
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}

	// seriesColors cycles per series within a panel.
	seriesColors = []color.Color{
		color.RGBA{R: 255, G: 165, B: 0, A: 255},
		color.RGBA{R: 100, G: 200, B: 255, A: 255},
		color.RGBA{R: 120, G: 220, B: 120, A: 255},
		color.RGBA{R: 240, G: 90, B: 90, A: 255},
		color.RGBA{R: 200, G: 130, B: 255, A: 255},
		color.RGBA{R: 255, G: 240, B: 100, A: 255},
		color.RGBA{R: 90, G: 230, B: 210, A: 255},
		color.RGBA{R: 255, G: 140, B: 200, A: 255},
	}
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// Refresh rebuilds all canvas objects from the current window.
func (r *scopeRenderer) Refresh() {
	size := r.scope.Size()
	r.objects = []fyne.CanvasObject{r.bg}
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.scope.mu.RLock()
	defer r.scope.mu.RUnlock()

	panels := r.scope.panels
	if len(panels) == 0 {
		r.drawEmpty(size)
		return
	}

	plotX := marginLeft
	plotWidth := size.Width - marginLeft - marginRight
	heights := panelHeight(size.Height, len(panels))

	for i, p := range panels {
		plotY := marginTop + float32(i)*(heights+panelGap)
		r.drawPanel(p, plotX, plotY, plotWidth, heights, i == len(panels)-1)
	}
}

// panelHeight splits the available height across n stacked panels.
func panelHeight(total float32, n int) float32 {
	if n <= 0 {
		return 0
	}
	h := total - marginTop - marginBottom - float32(n-1)*panelGap
	return math32.Max(h/float32(n), 10)
}

func (r *scopeRenderer) drawEmpty(size fyne.Size) {
	text := canvas.NewText("waiting for samples", labelColor)
	text.TextSize = 12
	text.Alignment = fyne.TextAlignCenter
	text.Move(fyne.NewPos(size.Width/2, size.Height/2))
	r.objects = append(r.objects, text)
}

func (r *scopeRenderer) drawPanel(p panel, plotX, plotY, plotWidth, plotHeight float32, timeAxis bool) {
	s := r.scope
	xMin, xMax := float32(s.xMin), float32(s.xMax)
	yMin, yMax := float32(p.yMin), float32(p.yMax)

	// Horizontal grid with value labels.
	for i := range hGridLines + 1 {
		y := plotY + float32(i)*plotHeight/hGridLines
		r.addLine(gridColor, 1, fyne.NewPos(plotX, y), fyne.NewPos(plotX+plotWidth, y))

		value := yMax - float32(i)*(yMax-yMin)/hGridLines
		text := canvas.NewText(formatValue(value, yMax-yMin), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.objects = append(r.objects, text)
	}

	// Vertical grid at round time steps.
	step := niceStep(xMax-xMin, vGridLines)
	first := math32.Ceil(xMin / step)
	for k := range 2*vGridLines + 1 {
		t := (first + float32(k)) * step
		if t > xMax {
			break
		}
		x := project(t, xMin, xMax, plotX, plotWidth)
		r.addLine(gridColor, 1, fyne.NewPos(x, plotY), fyne.NewPos(x, plotY+plotHeight))
		if timeAxis {
			text := canvas.NewText(formatValue(t, xMax-xMin)+"s", labelColor)
			text.TextSize = 10
			text.Alignment = fyne.TextAlignCenter
			text.Move(fyne.NewPos(x-20, plotY+plotHeight+5))
			r.objects = append(r.objects, text)
		}
	}

	title := canvas.NewText(p.quantity.Label(), labelColor)
	title.TextSize = 10
	title.Move(fyne.NewPos(plotX+4, plotY+2))
	r.objects = append(r.objects, title)

	times := s.display.Time
	for si, series := range p.series {
		c := seriesColors[si%len(seriesColors)]
		var prev fyne.Position
		for j, v := range series.Values {
			if j >= len(times) {
				break
			}
			pos := fyne.NewPos(
				project(float32(times[j]), xMin, xMax, plotX, plotWidth),
				plotY+plotHeight-project(float32(v), yMin, yMax, 0, plotHeight),
			)
			if j > 0 {
				r.addLine(c, 1.5, prev, pos)
			}
			prev = pos
		}

		legend := canvas.NewText(s.legendName(series.Name), c)
		legend.TextSize = 10
		legend.Move(fyne.NewPos(plotX+plotWidth+8, plotY+float32(si)*12))
		r.objects = append(r.objects, legend)
	}
}

func (r *scopeRenderer) addLine(c color.Color, width float32, p1, p2 fyne.Position) {
	line := canvas.NewLine(c)
	line.Position1 = p1
	line.Position2 = p2
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// legendName returns the configured label for the series channel, if any.
func (s *ScopeWidget) legendName(field string) string {
	digits := strings.TrimLeftFunc(field, func(r rune) bool { return !unicode.IsDigit(r) })
	if ch, err := strconv.Atoi(digits); err == nil {
		if label, ok := s.labels[ch]; ok {
			return field + " " + label
		}
	}
	return field
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

// project maps v in [lo, hi] onto [origin, origin+length].
func project(v, lo, hi, origin, length float32) float32 {
	if hi == lo {
		return origin
	}
	return origin + (v-lo)/(hi-lo)*length
}

// niceStep returns a 1, 2 or 5 times power of ten step giving roughly n
// divisions of span.
func niceStep(span float32, n int) float32 {
	if span <= 0 || n <= 0 {
		return 1
	}
	raw := span / float32(n)
	mag := math32.Pow(10, math32.Floor(math32.Log10(raw)))
	switch f := raw / mag; {
	case f <= 1:
		return mag
	case f <= 2:
		return 2 * mag
	case f <= 5:
		return 5 * mag
	}
	return 10 * mag
}

// formatValue prints v with enough decimals to resolve span/100.
func formatValue(v, span float32) string {
	decimals := 0
	if span > 0 {
		decimals = int(math32.Max(0, -math32.Floor(math32.Log10(span/100))))
	}
	return strconv.FormatFloat(float64(v), 'f', min(decimals, 6), 32)
}
