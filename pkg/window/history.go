package window

import (
	"sync"

	"github.com/itohio/thermdaq/pkg/record"
)

// History is a bounded in-memory FIFO of the most recent rows.
// Oldest rows are at index 0. It is safe for one writer and many readers.
type History struct {
	capacity int

	mu   sync.RWMutex
	rows []record.Row

	callbacks []func(rows []record.Row)
	cbMu      sync.RWMutex
}

// NewHistory creates a History holding at most capacity rows.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultSize
	}
	return &History{
		capacity: capacity,
		rows:     make([]record.Row, 0, capacity),
	}
}

// Capacity returns the maximum number of rows kept.
func (h *History) Capacity() int { return h.capacity }

// Add appends row, drops the oldest row beyond capacity and notifies the
// registered callbacks with a snapshot.
func (h *History) Add(row record.Row) {
	h.mu.Lock()
	if len(h.rows) == h.capacity {
		copy(h.rows, h.rows[1:])
		h.rows = h.rows[:len(h.rows)-1]
	}
	h.rows = append(h.rows, row)
	h.mu.Unlock()

	h.notifyCallbacks()
}

// Len returns the number of rows held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rows)
}

// Rows returns a copy of the held rows, oldest first.
func (h *History) Rows() []record.Row {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]record.Row, len(h.rows))
	copy(result, h.rows)
	return result
}

// Tail implements record.Tailer over the in-memory rows.
func (h *History) Tail(n int) ([]record.Row, error) {
	rows := h.Rows()
	if n > 0 && len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return rows, nil
}

// OnUpdate registers a callback invoked after every Add.
// The callback should copy what it needs and return quickly.
func (h *History) OnUpdate(callback func(rows []record.Row)) {
	h.cbMu.Lock()
	defer h.cbMu.Unlock()
	h.callbacks = append(h.callbacks, callback)
}

// notifyCallbacks calls the callbacks without holding any lock.
func (h *History) notifyCallbacks() {
	h.cbMu.RLock()
	callbacks := make([]func(rows []record.Row), len(h.callbacks))
	copy(callbacks, h.callbacks)
	h.cbMu.RUnlock()

	if len(callbacks) == 0 {
		return
	}

	snapshot := h.Rows()
	for _, cb := range callbacks {
		if cb != nil {
			cb(snapshot)
		}
	}
}
