package record

import (
	"fmt"
	"slices"
	"strings"
)

// Row is one flat log record. Values[i] belongs to Fields[i]; the first
// field is always TimeField.
type Row struct {
	Fields []string
	Values []float64
}

// Time returns the row time in seconds.
func (r Row) Time() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	return r.Values[0]
}

// Value returns the value of the named field.
func (r Row) Value(field string) (float64, bool) {
	i := slices.Index(r.Fields, field)
	if i < 0 || i >= len(r.Values) {
		return 0, false
	}
	return r.Values[i], true
}

// Recorder is an append-only sink for rows. Only one goroutine may write to
// a Recorder.
type Recorder interface {
	Header() []string
	Append(row Row) error
	Close() error
}

// Undoer removes the row written by the last successful Append. It can undo
// one row only.
type Undoer interface {
	DropLast() error
}

// Tailer re-reads the most recent rows of a log.
type Tailer interface {
	Tail(n int) ([]Row, error)
}

// SchemaMismatchError is returned when a row's fields differ from the log
// header.
type SchemaMismatchError struct {
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("record: schema mismatch: want [%s], got [%s]",
		strings.Join(e.Want, ","), strings.Join(e.Got, ","))
}

// checkRow verifies that row matches header exactly, field by field.
func checkRow(header []string, row Row) error {
	if !slices.Equal(header, row.Fields) || len(row.Values) != len(row.Fields) {
		return &SchemaMismatchError{Want: slices.Clone(header), Got: slices.Clone(row.Fields)}
	}
	return nil
}
