package window

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thermdaq/pkg/record"
)

func makeRows(t *testing.T, n int, channels []int) []record.Row {
	t.Helper()
	s, err := record.NewSchema(record.LayoutResistance, channels)
	require.NoError(t, err)

	rows := make([]record.Row, 0, n)
	for i := range n {
		vals := record.Values{}
		for _, ch := range channels {
			vals.Set(record.Res, ch, 1000*float64(ch)+float64(i))
		}
		row, err := s.Build(float64(i), vals)
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func TestView_FewerRowsThanWindow(t *testing.T) {
	rows := makeRows(t, 30, []int{1, 2})
	offsets := StepOffsets(rows[0].Fields, 2)

	w := View(rows, 50, offsets)
	require.Equal(t, 30, w.Len())
	for i := range 30 {
		assert.Equal(t, float64(i), w.Time[i], "time series must not be offset")
	}
	require.Len(t, w.Series, 2)
	assert.Equal(t, 1000.0, w.Series[0].Values[0])
	assert.Equal(t, 2002.0, w.Series[1].Values[0])
}

func TestView_LastN(t *testing.T) {
	rows := makeRows(t, 200, []int{1, 2, 3})
	offsets := StepOffsets(rows[0].Fields, 2)

	w := View(rows, 50, offsets)
	require.Equal(t, 50, w.Len())
	assert.Equal(t, 150.0, w.Time[0])
	assert.Equal(t, 199.0, w.Time[49])

	require.Len(t, w.Series, 3)
	assert.Equal(t, "res1", w.Series[0].Name)
	assert.Equal(t, 0.0, w.Series[0].Offset)
	assert.Equal(t, 2.0, w.Series[1].Offset)
	assert.Equal(t, 4.0, w.Series[2].Offset)

	// Series 2 is shifted by +2 relative to its logged value.
	logged, ok := rows[150].Value("res2")
	require.True(t, ok)
	assert.Equal(t, logged+2, w.Series[1].Values[0])
	assert.Equal(t, 1150.0, w.Series[0].Values[0])
}

func TestView_DoesNotMutateRows(t *testing.T) {
	rows := makeRows(t, 10, []int{1, 2})
	before := make([]float64, len(rows[5].Values))
	copy(before, rows[5].Values)

	View(rows, 5, StepOffsets(rows[0].Fields, 100))
	assert.Equal(t, before, rows[5].Values)
}

func TestView_Idempotent(t *testing.T) {
	rows := makeRows(t, 80, []int{1, 2})
	offsets := StepOffsets(rows[0].Fields, 2)
	assert.Equal(t, View(rows, 50, offsets), View(rows, 50, offsets))
}

func TestView_Empty(t *testing.T) {
	w := View(nil, 50, nil)
	assert.Equal(t, 0, w.Len())
	assert.Empty(t, w.Series)
}

func TestStepOffsets_Groups(t *testing.T) {
	header := []string{record.TimeField, "ind1", "ind2", "total1", "total2", "dif1", "dif2"}
	offsets := StepOffsets(header, 2)

	assert.Equal(t, Offsets{
		"ind1": 0, "ind2": 2,
		"total1": 0, "total2": 2,
		"dif1": 0, "dif2": 2,
	}, offsets)
	_, ok := offsets[record.TimeField]
	assert.False(t, ok)
}

func TestWindow_Group(t *testing.T) {
	w := Window{Series: []Series{{Name: "temp1"}, {Name: "temp2"}, {Name: "res1"}}}
	assert.Len(t, w.Group(record.Temp), 2)
	assert.Len(t, w.Group(record.Res), 1)
	assert.Empty(t, w.Group(record.Dif))
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(5)
	rows := makeRows(t, 12, []int{1})
	for _, r := range rows {
		h.Add(r)
	}
	assert.Equal(t, 5, h.Len())
	got := h.Rows()
	assert.Equal(t, 7.0, got[0].Time())
	assert.Equal(t, 11.0, got[4].Time())

	tail, err := h.Tail(2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 10.0, tail[0].Time())
}

func TestHistory_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultSize, NewHistory(0).Capacity())
}

func TestHistory_OnUpdate(t *testing.T) {
	h := NewHistory(3)
	var (
		mu    sync.Mutex
		calls int
		last  []record.Row
	)
	h.OnUpdate(func(rows []record.Row) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last = rows
	})

	for _, r := range makeRows(t, 4, []int{1}) {
		h.Add(r)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 4, calls)
	require.Len(t, last, 3)
	assert.Equal(t, 3.0, last[2].Time())
}

func TestDecimate(t *testing.T) {
	rows := makeRows(t, 100, []int{1, 2})
	w := View(rows, 0, nil)

	dst := Decimate(Window{}, w, 10)
	require.Equal(t, 10, dst.Len())
	assert.Equal(t, w.Time[0], dst.Time[0])
	require.Len(t, dst.Series, 2)
	assert.Len(t, dst.Series[1].Values, 10)
	assert.GreaterOrEqual(t, dst.Time[9], 80.0)

	// Reuse with a shorter window copies everything.
	small := View(rows, 5, nil)
	dst = Decimate(dst, small, 10)
	assert.Equal(t, small.Time, dst.Time)
	assert.Equal(t, small.Series[0].Values, dst.Series[0].Values)
	assert.GreaterOrEqual(t, cap(dst.Time), 10)

	all := Decimate(Window{}, small, 0)
	assert.Equal(t, small.Time, all.Time)
}

func TestWindow_Quantities(t *testing.T) {
	w := Window{Series: []Series{{Name: "temp1"}, {Name: "temp2"}, {Name: "res1"}, {Name: "res2"}}}
	assert.Equal(t, []record.Quantity{record.Temp, record.Res}, w.Quantities())
	assert.Empty(t, Window{}.Quantities())
}
