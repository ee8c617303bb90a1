package sink

import (
	"math"

	"k8s.io/klog/v2"

	"github.com/itohio/thermdaq/pkg/window"
)

// Log writes one summary line per tick with the latest logged values,
// rounded to three decimals.
type Log struct{}

// NewLog creates a log sink.
func NewLog() *Log { return &Log{} }

// Render implements acquire.Sink.
func (l *Log) Render(w window.Window) error {
	if w.Len() == 0 {
		return nil
	}
	klog.InfoS("Sample", Summary(w)...)
	return nil
}

// Summary returns key/value pairs for the last row of w. Display offsets
// are removed so values match the log.
func Summary(w window.Window) []any {
	if w.Len() == 0 {
		return nil
	}
	last := w.Len() - 1
	kv := make([]any, 0, 2+2*len(w.Series))
	kv = append(kv, "time", round3(w.Time[last]))
	for _, s := range w.Series {
		kv = append(kv, s.Name, round3(s.Values[last]-s.Offset))
	}
	return kv
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
