// Package record implements the append-only sample log.
//
// A log is created once with a header derived from a Schema and appended to
// once per tick. Rows are never rewritten.
package record

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
)

// TimeField is the first column of every log.
const TimeField = "time (s)"

// Quantity names one derived value family in the log.
type Quantity string

const (
	Res   Quantity = "res"   // Resistance (Ohm)
	Temp  Quantity = "temp"  // Temperature (°C)
	Ind   Quantity = "ind"   // Temperature, individual calibration (°C)
	Total Quantity = "total" // Temperature, pooled calibration (°C)
	Dif   Quantity = "dif"   // ind - total (°C)
)

// Label returns a human readable axis label.
func (q Quantity) Label() string {
	switch q {
	case Res:
		return "resistance (Ω)"
	case Temp:
		return "temperature (°C)"
	case Ind:
		return "individual (°C)"
	case Total:
		return "pooled (°C)"
	case Dif:
		return "individual - pooled (°C)"
	}
	return string(q)
}

// Layout selects which quantities are logged per channel.
type Layout string

const (
	LayoutResistance  Layout = "resistance"
	LayoutTemperature Layout = "temperature"
	LayoutBoth        Layout = "both"
	LayoutCompare     Layout = "compare"
)

// Quantities returns the quantity groups of the layout in column order.
func (l Layout) Quantities() ([]Quantity, error) {
	switch l {
	case LayoutResistance:
		return []Quantity{Res}, nil
	case LayoutTemperature:
		return []Quantity{Temp}, nil
	case LayoutBoth:
		return []Quantity{Temp, Res}, nil
	case LayoutCompare:
		return []Quantity{Ind, Total, Dif}, nil
	default:
		return nil, fmt.Errorf("unknown log layout %q", string(l))
	}
}

// Column is one channel's value of one quantity.
type Column struct {
	Quantity Quantity
	Channel  int
}

// Name returns the header field, e.g. "res3".
func (c Column) Name() string {
	return string(c.Quantity) + strconv.Itoa(c.Channel)
}

// Schema fixes the column order of a log.
type Schema struct {
	layout   Layout
	channels []int
	columns  []Column
	header   []string
}

// NewSchema builds the schema for the given layout and 1-based channels.
// Columns are grouped by quantity, channels in the given order within each
// group.
func NewSchema(layout Layout, channels []int) (*Schema, error) {
	qs, err := layout.Quantities()
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("schema needs at least one channel")
	}
	seen := make(map[int]bool, len(channels))
	for _, ch := range channels {
		if ch < 1 {
			return nil, fmt.Errorf("invalid channel %d: channels are 1-based", ch)
		}
		if seen[ch] {
			return nil, fmt.Errorf("duplicate channel %d", ch)
		}
		seen[ch] = true
	}

	s := &Schema{
		layout:   layout,
		channels: slices.Clone(channels),
		header:   []string{TimeField},
	}
	for _, q := range qs {
		for _, ch := range channels {
			col := Column{Quantity: q, Channel: ch}
			s.columns = append(s.columns, col)
			s.header = append(s.header, col.Name())
		}
	}
	return s, nil
}

// Layout returns the schema layout.
func (s *Schema) Layout() Layout { return s.layout }

// Channels returns a copy of the schema channels.
func (s *Schema) Channels() []int { return slices.Clone(s.channels) }

// Columns returns a copy of the value columns (time excluded).
func (s *Schema) Columns() []Column { return slices.Clone(s.columns) }

// Header returns a copy of the header fields, time first.
func (s *Schema) Header() []string { return slices.Clone(s.header) }

// Values collects one tick's derived values by quantity and channel.
type Values map[Quantity]map[int]float64

// Set stores v for quantity q on channel ch.
func (vs Values) Set(q Quantity, ch int, v float64) {
	m, ok := vs[q]
	if !ok {
		m = make(map[int]float64)
		vs[q] = m
	}
	m[ch] = v
}

// Get returns the value for quantity q on channel ch.
func (vs Values) Get(q Quantity, ch int) (float64, bool) {
	v, ok := vs[q][ch]
	return v, ok
}

// Build lays out vals in schema order. Every column must be present.
func (s *Schema) Build(t float64, vals Values) (Row, error) {
	row := Row{
		Fields: s.Header(),
		Values: make([]float64, 0, len(s.header)),
	}
	row.Values = append(row.Values, t)
	for _, col := range s.columns {
		v, ok := vals.Get(col.Quantity, col.Channel)
		if !ok {
			return Row{}, &SchemaMismatchError{Want: s.Header(), Got: vals.fields()}
		}
		row.Values = append(row.Values, v)
	}
	return row, nil
}

// fields lists the populated columns, sorted by name.
func (vs Values) fields() []string {
	var out []string
	for q, m := range vs {
		for ch := range maps.Keys(m) {
			out = append(out, Column{Quantity: q, Channel: ch}.Name())
		}
	}
	slices.Sort(out)
	return append([]string{TimeField}, out...)
}
