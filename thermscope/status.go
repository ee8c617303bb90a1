package main

import (
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/record"
)

// statusObserver mirrors the driver progress into the toolbar label and
// forwards every event to next.
type statusObserver struct {
	label *widget.Label
	next  acquire.Observer
	state acquire.State
}

func (o *statusObserver) ObserveTick(row record.Row, took time.Duration) {
	text := statusText(o.state, row.Time(), took)
	fyne.Do(func() { o.label.SetText(text) })
	if o.next != nil {
		o.next.ObserveTick(row, took)
	}
}

func (o *statusObserver) ObserveError(err error) {
	if o.next != nil {
		o.next.ObserveError(err)
	}
}

func (o *statusObserver) ObserveState(s acquire.State) {
	o.state = s
	text := s.String()
	fyne.Do(func() { o.label.SetText(text) })
	if o.next != nil {
		o.next.ObserveState(s)
	}
}

func statusText(s acquire.State, t float64, took time.Duration) string {
	return fmt.Sprintf("%s  t=%.1f s  tick %s", s, t, took.Round(time.Microsecond))
}
