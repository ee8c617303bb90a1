package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/window"
)

// PNG redraws the window into an image file, one panel per quantity group.
// The file is replaced atomically so viewers never see a partial image.
type PNG struct {
	path      string
	width     vg.Length
	height    vg.Length
	maxPoints int
	every     int

	renders int
	buf     window.Window
}

// NewPNG creates a PNG sink writing to path every `every` renders.
// maxPoints limits the points drawn per series (0 draws all).
func NewPNG(path string, every, maxPoints int) *PNG {
	if every <= 0 {
		every = 1
	}
	return &PNG{
		path:      path,
		width:     8 * vg.Inch,
		height:    6 * vg.Inch,
		maxPoints: maxPoints,
		every:     every,
	}
}

// Render implements acquire.Sink.
func (p *PNG) Render(w window.Window) error {
	p.renders++
	if w.Len() == 0 || (p.renders-1)%p.every != 0 {
		return nil
	}

	p.buf = window.Decimate(p.buf, w, p.maxPoints)
	plots, err := buildPlots(p.buf)
	if err != nil {
		return err
	}

	img := vgimg.New(p.width, p.height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: 1,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		plots[i][0].Draw(canvases[i][0])
	}

	if err := p.write(vgimg.PngCanvas{Canvas: img}); err != nil {
		return fmt.Errorf("failed to write chart %s: %w", p.path, err)
	}
	klog.V(4).InfoS("Chart written", "path", p.path, "rows", w.Len())
	return nil
}

func (p *PNG) write(img vgimg.PngCanvas) error {
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".chart-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := img.WriteTo(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

// buildPlots returns one single-column row of plots per quantity group.
func buildPlots(w window.Window) ([][]*plot.Plot, error) {
	quantities := w.Quantities()
	plots := make([][]*plot.Plot, 0, len(quantities))

	for gi, q := range quantities {
		p := plot.New()
		p.Y.Label.Text = q.Label()
		if gi == len(quantities)-1 {
			p.X.Label.Text = "time (s)"
		}
		p.Add(plotter.NewGrid())

		for i, s := range w.Group(q) {
			pts := make(plotter.XYs, len(s.Values))
			for j, v := range s.Values {
				pts[j] = plotter.XY{X: w.Time[j], Y: v}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", s.Name, err)
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(s.Name, line)
		}
		p.Legend.Top = true
		plots = append(plots, []*plot.Plot{p})
	}
	return plots, nil
}
