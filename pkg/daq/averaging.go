package daq

import (
	"context"
	"fmt"
)

// Averaging reads its inner source N times per Read and returns the
// per-channel mean. It reduces ADC noise at the cost of N polls per tick.
type Averaging struct {
	Source
	n int
}

// NewAveraging wraps src. n <= 1 disables averaging and returns src as is.
func NewAveraging(src Source, n int) Source {
	if n <= 1 {
		return src
	}
	return &Averaging{Source: src, n: n}
}

// Read returns the mean of n consecutive reads. Any failed read fails the
// whole Read.
func (a *Averaging) Read(ctx context.Context) ([]float64, error) {
	var sum []float64
	for i := range a.n {
		v, err := a.Source.Read(ctx)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			sum = make([]float64, len(v))
		} else if len(v) != len(sum) {
			return nil, fmt.Errorf("read %d returned %d channels, expected %d", i, len(v), len(sum))
		}
		for j, x := range v {
			sum[j] += x
		}
	}

	for j := range sum {
		sum[j] /= float64(a.n)
	}
	return sum, nil
}
