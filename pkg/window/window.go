// Package window derives the display view of a sample log: the most recent
// rows with per-series display offsets applied.
package window

import (
	"slices"
	"strings"
	"unicode"

	"github.com/itohio/thermdaq/pkg/record"
)

// DefaultSize is the number of rows shown on the live chart.
const DefaultSize = 50

// Series is one value column of a window, offset for display.
type Series struct {
	Name   string
	Offset float64
	Values []float64
}

// Window is the chart-ready view of the last rows of a log.
// Time is never offset.
type Window struct {
	Time   []float64
	Series []Series
}

// Len returns the number of rows in the window.
func (w Window) Len() int { return len(w.Time) }

// Group returns the series whose name starts with the quantity prefix,
// e.g. "res" for res1..resN.
func (w Window) Group(q record.Quantity) []Series {
	var out []Series
	for _, s := range w.Series {
		if quantityOf(s.Name) == string(q) {
			out = append(out, s)
		}
	}
	return out
}

// Quantities returns the distinct quantity groups in series order.
func (w Window) Quantities() []record.Quantity {
	var out []record.Quantity
	for _, s := range w.Series {
		q := record.Quantity(quantityOf(s.Name))
		if !slices.Contains(out, q) {
			out = append(out, q)
		}
	}
	return out
}

// Offsets maps a field name to its additive display offset.
type Offsets map[string]float64

// StepOffsets assigns k*step to the k-th (0-based) series of each quantity
// group in header order, so res1 gets 0, res2 gets step, and so on.
func StepOffsets(header []string, step float64) Offsets {
	offsets := make(Offsets, len(header))
	counts := make(map[string]int)
	for _, field := range header {
		if field == record.TimeField {
			continue
		}
		q := quantityOf(field)
		offsets[field] = float64(counts[q]) * step
		counts[q]++
	}
	return offsets
}

// quantityOf strips the trailing channel number from a field name.
func quantityOf(field string) string {
	return strings.TrimRightFunc(field, unicode.IsDigit)
}

// View returns the last n rows (all rows if fewer than n or n <= 0) as a
// Window. rows are not modified.
func View(rows []record.Row, n int, offsets Offsets) Window {
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	if len(rows) == 0 {
		return Window{}
	}

	fields := rows[0].Fields
	w := Window{Time: make([]float64, len(rows))}
	for i, f := range fields {
		if i == 0 {
			continue
		}
		w.Series = append(w.Series, Series{
			Name:   f,
			Offset: offsets[f],
			Values: make([]float64, len(rows)),
		})
	}

	for r, row := range rows {
		w.Time[r] = row.Time()
		for i := range w.Series {
			if i+1 < len(row.Values) {
				w.Series[i].Values[r] = row.Values[i+1] + w.Series[i].Offset
			}
		}
	}
	return w
}
