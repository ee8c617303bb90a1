package record

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Format is the on-disk delimiter style of a file log.
type Format string

const (
	FormatCSV Format = "csv"
	FormatTSV Format = "tsv"
)

// FormatFromPath guesses the format from the file extension.
// ".txt" and ".tsv" are tab separated, everything else is CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		return FormatTSV
	default:
		return FormatCSV
	}
}

func (f Format) comma() (rune, error) {
	switch f {
	case FormatCSV, "":
		return ',', nil
	case FormatTSV:
		return '\t', nil
	default:
		return 0, fmt.Errorf("unknown log format %q", string(f))
	}
}

var _ Recorder = (*FileLog)(nil)
var _ Tailer = (*FileLog)(nil)
var _ Undoer = (*FileLog)(nil)

// FileLog is a delimited text log. Each Append writes one complete line and
// syncs the file before returning.
type FileLog struct {
	path   string
	format Format
	comma  rune
	header []string

	f    *os.File
	size int64
	rows int

	last     int64 // offset of the last appended row
	undoable bool
}

// Create truncates (or creates) path and writes the schema header.
func Create(path string, s *Schema, format Format) (*FileLog, error) {
	comma, err := format.comma()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log %s: %w", path, err)
	}

	l := &FileLog{
		path:   path,
		format: format,
		comma:  comma,
		header: s.Header(),
		f:      f,
	}

	if err := l.writeLine(l.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write log header: %w", err)
	}

	return l, nil
}

// Path returns the log file path.
func (l *FileLog) Path() string { return l.path }

// Header returns a copy of the log header.
func (l *FileLog) Header() []string { return slices.Clone(l.header) }

// Rows returns the number of data rows appended through this handle.
func (l *FileLog) Rows() int { return l.rows }

// Append writes row durably. The row fields must equal the header.
func (l *FileLog) Append(row Row) error {
	if l.f == nil {
		return fmt.Errorf("log %s is closed", l.path)
	}
	if err := checkRow(l.header, row); err != nil {
		return err
	}

	fields := make([]string, len(row.Values))
	for i, v := range row.Values {
		fields[i] = formatValue(v)
	}
	start := l.size
	if err := l.writeLine(fields); err != nil {
		return fmt.Errorf("failed to append to log %s: %w", l.path, err)
	}
	l.rows++
	l.last, l.undoable = start, true
	return nil
}

// DropLast truncates the file back to before the last appended row.
func (l *FileLog) DropLast() error {
	if l.f == nil {
		return fmt.Errorf("log %s is closed", l.path)
	}
	if !l.undoable {
		return fmt.Errorf("log %s: no row to drop", l.path)
	}
	if err := l.f.Truncate(l.last); err != nil {
		return fmt.Errorf("failed to drop row from log %s: %w", l.path, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to drop row from log %s: %w", l.path, err)
	}
	l.size = l.last
	l.rows--
	l.undoable = false
	return nil
}

// writeLine encodes one line fully before touching the file so that a failed
// write can be rolled back to the previous line boundary.
func (l *FileLog) writeLine(fields []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = l.comma
	if err := w.Write(fields); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	n, err := l.f.WriteAt(buf.Bytes(), l.size)
	if err == nil {
		err = l.f.Sync()
	}
	if err != nil {
		// Drop any partial line.
		if terr := l.f.Truncate(l.size); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}
	l.size += int64(n)
	return nil
}

// Tail re-reads the last n rows from disk. n <= 0 returns all rows.
func (l *FileLog) Tail(n int) ([]Row, error) {
	_, rows, err := Tail(l.path, l.format, n)
	return rows, err
}

// Close closes the file. Closing twice is a no-op.
func (l *FileLog) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadAll reads the header and every row of a file log.
func ReadAll(path string, format Format) ([]string, []Row, error) {
	return Tail(path, format, 0)
}

// Tail reads the header and the last n rows of a file log. n <= 0 returns
// all rows.
func Tail(path string, format Format, n int) ([]string, []Row, error) {
	comma, err := format.comma()
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.ReuseRecord = true

	rec, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read log header: %w", err)
	}
	header := slices.Clone(rec)
	r.FieldsPerRecord = len(header)

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read log %s: %w", path, err)
		}
		row := Row{Fields: header, Values: make([]float64, len(rec))}
		for i, s := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid value %q in column %s: %w", s, header[i], err)
			}
			row.Values[i] = v
		}
		rows = append(rows, row)
		if n > 0 && len(rows) > n {
			rows = rows[1:]
		}
	}

	return header, rows, nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
