package aggregator

import (
	"slices"
	"sync"
)

// latencyWindow is a fixed-capacity ring of the most recent latency samples.
type latencyWindow struct {
	mu      sync.RWMutex
	samples []int64
	writes  int64
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &latencyWindow{samples: make([]int64, capacity)}
}

// add overwrites the oldest sample once the window is full.
func (w *latencyWindow) add(v int64) {
	w.mu.Lock()
	w.samples[w.writes%int64(len(w.samples))] = v
	w.writes++
	w.mu.Unlock()
}

// sorted returns an ascending copy of the valid samples.
func (w *latencyWindow) sorted() []int64 {
	w.mu.RLock()
	n := min(w.writes, int64(len(w.samples)))
	out := make([]int64, n)
	copy(out, w.samples[:n])
	w.mu.RUnlock()

	slices.Sort(out)
	return out
}

// percentile returns the sample at floor(n*p), clamped to the last index.
// sorted must be ascending and non-empty.
func percentile(sorted []int64, p float64) int64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
