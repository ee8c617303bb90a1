package record

import (
	"errors"
	"fmt"
	"slices"
)

// Tee appends every row to a primary recorder and then to each mirror.
// The primary's header is authoritative; mirrors must share it.
type Tee struct {
	primary Recorder
	mirrors []Recorder
}

// NewTee creates a Tee. It fails if a mirror's header differs from the
// primary's.
func NewTee(primary Recorder, mirrors ...Recorder) (*Tee, error) {
	for i, m := range mirrors {
		if !slices.Equal(primary.Header(), m.Header()) {
			return nil, fmt.Errorf("mirror %d: %w", i, &SchemaMismatchError{Want: primary.Header(), Got: m.Header()})
		}
	}
	return &Tee{primary: primary, mirrors: mirrors}, nil
}

// Header returns the primary's header.
func (t *Tee) Header() []string { return t.primary.Header() }

// Append writes to the primary first. Mirrors are not written if the
// primary fails. If a mirror fails, the row is dropped again from the
// primary and from the mirrors already written, so the row is either in
// every recorder or in none.
func (t *Tee) Append(row Row) error {
	if err := t.primary.Append(row); err != nil {
		return err
	}
	for i, m := range t.mirrors {
		if err := m.Append(row); err != nil {
			err = fmt.Errorf("mirror %d: %w", i, err)
			return errors.Join(err, t.undo(i))
		}
	}
	return nil
}

// undo drops the last row from the primary and the first n mirrors.
func (t *Tee) undo(n int) error {
	var errs []error
	for _, r := range append([]Recorder{t.primary}, t.mirrors[:n]...) {
		u, ok := r.(Undoer)
		if !ok {
			errs = append(errs, fmt.Errorf("record: %T cannot drop rows", r))
			continue
		}
		if err := u.DropLast(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tail reads from the primary when it supports it.
func (t *Tee) Tail(n int) ([]Row, error) {
	tailer, ok := t.primary.(Tailer)
	if !ok {
		return nil, errors.New("record: primary recorder cannot tail")
	}
	return tailer.Tail(n)
}

// Close closes every recorder.
func (t *Tee) Close() error {
	errs := []error{t.primary.Close()}
	for _, m := range t.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
