package qrscan

import (
	"fmt"
	"time"
)

// MAF is a moving average filter over durations, used to smooth the time
// spent decoding each frame.
type MAF struct {
	index  int
	filled int
	sum    time.Duration
	values []time.Duration
}

// NewMAF returns a new moving average filter with a history of given size.
func NewMAF(size int) (*MAF, error) {
	if size <= 0 {
		return nil, fmt.Errorf("size must be > 0")
	}
	return &MAF{values: make([]time.Duration, size)}, nil
}

// Update adds one measurement and returns the average over the history.
// Until the history is full, only the measurements seen so far count.
func (m *MAF) Update(d time.Duration) (time.Duration, error) {
	if m.values == nil {
		return 0, fmt.Errorf("invalid MAF, use NewMAF")
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}

	m.sum -= m.values[m.index]
	m.sum += d
	m.values[m.index] = d
	m.index++
	if m.index >= len(m.values) {
		m.index = 0
	}
	if m.filled < len(m.values) {
		m.filled++
	}
	return m.sum / time.Duration(m.filled), nil
}
