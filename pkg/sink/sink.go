// Package sink contains live chart sinks that consume the display window
// after every recorded row.
package sink

import (
	"errors"

	"github.com/itohio/thermdaq/pkg/acquire"
	"github.com/itohio/thermdaq/pkg/window"
)

var (
	_ acquire.Sink = (*Log)(nil)
	_ acquire.Sink = (*PNG)(nil)
	_ acquire.Sink = Multi(nil)
)

// Multi renders to every sink in order and joins their errors.
type Multi []acquire.Sink

// Render implements acquire.Sink.
func (m Multi) Render(w window.Window) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Render(w); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
