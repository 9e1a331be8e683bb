package stream

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// FPSBuffer keeps a bounded history of instantaneous frame rates computed
// from consecutive source timestamps. A pair of equal (or decreasing)
// timestamps records NaN, which the mean skips.
type FPSBuffer struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
	last    float64
	hasLast bool
}

// NewFPSBuffer creates a buffer holding up to size samples.
func NewFPSBuffer(size int) *FPSBuffer {
	if size <= 0 {
		size = 1
	}
	return &FPSBuffer{samples: make([]float64, size)}
}

// Add records the rate between the previous timestamp and ts.
func (b *FPSBuffer) Add(ts float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasLast {
		rate := math.NaN()
		if dt := ts - b.last; dt > 0 {
			rate = 1 / dt
		}
		b.samples[b.next] = rate
		b.next = (b.next + 1) % len(b.samples)
		if b.next == 0 {
			b.full = true
		}
	}
	b.last, b.hasLast = ts, true
}

// Len returns the number of stored samples, NaN included.
func (b *FPSBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.samples)
	}
	return b.next
}

// Mean returns the average rate over the non-NaN samples, or NaN when
// there are none.
func (b *FPSBuffer) Mean() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.next
	if b.full {
		n = len(b.samples)
	}
	valid := make([]float64, 0, n)
	for _, v := range b.samples[:n] {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	return stat.Mean(valid, nil)
}

// Reset clears the history.
func (b *FPSBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next, b.full, b.hasLast = 0, false, false
}
